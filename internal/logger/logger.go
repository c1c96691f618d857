// Package logger provides the shared zap logger. Diagnostics go to
// stderr so that stdout stays reserved for the machine-parsable marker
// lines the plugin host scrapes.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

// Init initializes the package-level logger. Console encoding in debug
// mode, JSON otherwise.
func Init(debug bool) error {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	log = zl.Sugar()
	return nil
}

func get() *zap.SugaredLogger {
	if log == nil {
		zl, _ := zap.NewProduction(zap.AddCallerSkip(1))
		log = zl.Sugar()
	}
	return log
}

// Sync flushes any buffered log entries.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

func Debugf(template string, args ...interface{}) { get().Debugf(template, args...) }
func Infof(template string, args ...interface{})  { get().Infof(template, args...) }
func Warnf(template string, args ...interface{})  { get().Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { get().Errorf(template, args...) }

func Fatalf(template string, args ...interface{}) {
	get().Errorf(template, args...)
	Sync()
	os.Exit(1)
}
