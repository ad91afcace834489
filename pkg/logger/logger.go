package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var InfoLogger *zap.Logger

// helperSkip hides the printf wrappers from the reported caller
var helperSkip = zap.AddCallerSkip(1)

const serviceName = "dojibot"

// Init builds the global loggers. level is one of debug, info, warn, error.
func Init(level string, development bool) error {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(helperSkip)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	InfoLogger = l
	return nil
}

// Sync flushes buffered entries
func Sync() {
	if InfoLogger != nil {
		_ = InfoLogger.Sync()
	}
}

// Zap returns the service logger for libraries that take a *zap.Logger.
// Those call it directly, so the helper skip is undone.
func Zap() *zap.Logger {
	return base().WithOptions(zap.AddCallerSkip(-1))
}

func base() *zap.Logger {
	if InfoLogger == nil {
		return zap.NewNop()
	}
	return InfoLogger.With(zap.String("service", serviceName))
}

func Debug(format string, args ...interface{}) {
	base().Debug(fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	base().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	base().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	base().Error(fmt.Sprintf(format, args...))
}
