// Package logger wraps zap with the defaults shared by the stats task and the
// read API.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It is a no-op until Init is called so that
// packages and tests can log unconditionally.
var Log = zap.NewNop()

// Config holds logger configuration.
type Config struct {
	Level  string
	Format string
}

// New builds a logger without touching the global instance.
func New(cfg Config) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Init replaces the global logger.
func Init(cfg Config) *zap.Logger {
	Log = New(cfg)
	return Log
}

// Sync flushes any buffered log entries.
func Sync() error {
	if Log != nil {
		return Log.Sync()
	}
	return nil
}

// WithRun returns a logger tagged with a task run.
func WithRun(runID, taskDate string) *zap.Logger {
	return Log.With(zap.String("run_id", runID), zap.String("task_date", taskDate))
}

// WithScope returns a child logger tagged with a region scope.
func WithScope(l *zap.Logger, scope string) *zap.Logger {
	return l.With(zap.String("scope", scope))
}
