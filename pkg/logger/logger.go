package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Init builds the process logger. format is "json" or "console".
func Init(level, format string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	mu.Lock()
	log = l
	mu.Unlock()
	return nil
}

// L returns the current logger without the wrapper's caller skip.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.WithOptions(zap.AddCallerSkip(-1))
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debug(msg string, fields ...zap.Field) { current().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { current().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { current().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { current().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { current().Fatal(msg, fields...) }

// Sync flushes buffered entries. Call before exit.
func Sync() error { return current().Sync() }
