package safe

import (
	"PPDesk/logger"
	"PPDesk/tools/errs"

	"go.uber.org/zap"
)

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(name string, f func()) {
	go func() {
		defer Recover(name)
		f()
	}()
}

// Recover logs a recovered panic. Must be called directly via defer.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("[SafeGo] panic recovered", zap.String("goroutine", name), zap.Error(errs.ErrPanic(r)))
	}
}
