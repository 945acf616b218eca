// Package log holds the process-wide zap logger and small helpers for component loggers.
package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	logger *zap.Logger
)

// ParseLevel maps a config string to a zap level. Unknown values fall back to INFO.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Setup builds the global JSON logger writing to stderr (stdout is left to command output)
// and returns it. Calling it again replaces the previous logger.
func Setup(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	Set(l)
	return l
}

// Set installs l as the global logger. Tests use it to capture output.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Get returns the configured logger, or a no-op one if Setup hasn't been called.
// Library code stays silent unless a binary opts in.
func Get() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *zap.Logger {
	return Get().With(zap.String("component", name))
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Get().Sync()
}
