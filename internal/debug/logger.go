// Package debug holds the process-wide slog logger used for SQL tracing.
package debug

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	logger  = discard()
	enabled bool
	mu      sync.RWMutex
)

// Options configures the debug logger.
type Options struct {
	// Writer defaults to os.Stderr.
	Writer io.Writer
	// JSON selects the JSON handler instead of text.
	JSON bool
}

// Init enables or disables debug output to stderr.
func Init(enable bool) {
	InitWith(enable, Options{})
}

// InitWith enables or disables debug output using opts.
func InitWith(enable bool, opts Options) {
	mu.Lock()
	defer mu.Unlock()

	enabled = enable
	if !enable {
		logger = discard()
		return
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if opts.JSON {
		logger = slog.New(slog.NewJSONHandler(w, handlerOpts))
		return
	}
	logger = slog.New(slog.NewTextHandler(w, handlerOpts))
}

// discard drops everything below a level no record uses.
func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Enabled returns whether debug logging is enabled
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// Statement logs an executed statement at debug level.
func Statement(query string, params []any, elapsed time.Duration, err error) {
	l := Logger()
	if err != nil {
		l.Debug("sql failed", "sql", query, "params", params, "duration", elapsed, "error", err)
		return
	}
	l.Debug("sql", "sql", query, "params", params, "duration", elapsed)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Logger returns the underlying slog.Logger instance
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
