// Package logger provides leveled structured logging.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[slog.Logger]

// Init initializes the default logger with the specified level and format.
// Format "json" emits one JSON object per line; anything else emits text.
func Init(level string, format string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: l}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	defaultLogger.Store(slog.New(handler))
}

func get() *slog.Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

func Debug(format string, args ...any) {
	get().Debug(fmt.Sprintf(format, args...))
}

func Info(format string, args ...any) {
	get().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...any) {
	get().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...any) {
	get().Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...any) {
	get().Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
