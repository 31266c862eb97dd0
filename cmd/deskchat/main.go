package main

import (
	"os"

	"PPDesk/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}
