// Package logger provides a small global leveled logger used across the
// server. The call shape (Init, Debug, Info, Error) is the teacher's; the
// backing implementation is go.uber.org/zap rather than the teacher's
// bare log.Printf (see DESIGN.md).
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

// Init builds the global logger from LOG_LEVEL (debug|info|error,
// default info). Must be called once at startup before Debug/Info/Error.
func Init() {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(os.Stdout),
		level,
	)

	log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Debug logs a debug message (only surfaced when LOG_LEVEL=debug).
func Debug(format string, v ...interface{}) {
	ensureInit()
	log.Debugf(format, v...)
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	ensureInit()
	log.Infof(format, v...)
}

// Error logs an error message; always emitted regardless of LOG_LEVEL.
func Error(format string, v ...interface{}) {
	ensureInit()
	log.Errorf(format, v...)
}

// Sync flushes any buffered log entries; call before process exit.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

func ensureInit() {
	if log == nil {
		Init()
	}
}
