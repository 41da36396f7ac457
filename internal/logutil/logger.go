package logutil

import (
	"log/slog"
	"sync"
)

var (
	mu           sync.RWMutex
	globalLogger *slog.Logger
)

func init() {
	// Default to a no-op logger so nothing reaches stdout/stderr unless a
	// destination is explicitly installed (those streams carry the RPC
	// transport).
	globalLogger = slog.New(slog.DiscardHandler)
}

// Debug logs at LevelDebug using the process-wide logger.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at LevelInfo using the process-wide logger.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at LevelWarn using the process-wide logger.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at LevelError using the process-wide logger.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// With returns a logger that includes the supplied key/value pairs as
// attributes, rooted at the process-wide logger.
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

// Default returns the current process-wide logger, analogous to slog.Default.
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// SetDefault sets the process-wide logger, analogous to slog.SetDefault.
func SetDefault(logger *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	globalLogger = logger
}
