package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides a unified logging interface for the service. Packages log
// through the level functions below so call sites stay free of zap plumbing.

var sugar *zap.SugaredLogger

func init() {
	base, err := zap.NewProduction(zap.AddCallerSkip(1))
	if err != nil {
		base = zap.NewNop()
	}
	sugar = base.Sugar()
}

// Init replaces the default production logger, e.g. with a development
// config or a level override from the CLI.
func Init(development bool, level string) error {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	sugar = base.Sugar()
	return nil
}

// UseNop silences all logging. Useful in tests.
func UseNop() {
	sugar = zap.NewNop().Sugar()
}

// Debugf logs a debug message
func Debugf(format string, args ...interface{}) {
	sugar.Debugf(format, args...)
}

// Infof logs an info message
func Infof(format string, args ...interface{}) {
	sugar.Infof(format, args...)
}

// Warnf logs a warning message
func Warnf(format string, args ...interface{}) {
	sugar.Warnf(format, args...)
}

// Errorf logs an error message
func Errorf(format string, args ...interface{}) {
	sugar.Errorf(format, args...)
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	_ = sugar.Sync()
}
