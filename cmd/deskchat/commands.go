package main

import (
	"PPDesk/global/config"
	"PPDesk/logger"
	"PPDesk/tools/ids"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
	appConfig  config.AppConfig

	rootCmd = &cobra.Command{
		Use:           "deskchat",
		Short:         "Helpdesk chat session synchronizer",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath, envFile)
			if err != nil {
				return err
			}
			appConfig = c
			logger.Init(c.Log.Level)
			ids.SetNodeID(c.NodeID)
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the synchronizer with the HTTP console (and optional NATS fan-out)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	tailCmd = &cobra.Command{
		Use:   "tail <ticketId>",
		Short: "Open a ticket and print its messages as they change",
		Args:  cobra.ExactArgs(1),
		RunE:  runTail,
	}

	watchCmd = &cobra.Command{
		Use:   "watch [ticketId]",
		Short: "Print snapshots published to NATS by a running serve",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatch,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a yaml config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with DESK_* overrides (ignored when missing)")
	tailCmd.Flags().StringP("send", "s", "", "send one message after connecting")
	rootCmd.AddCommand(serveCmd, tailCmd, watchCmd)
}
