package logger

import (
	"log/slog"
	"time"
)

// LogRequest logs a finished HTTP request.
func LogRequest(method, path string, status int, took time.Duration, attrs ...any) {
	base := []any{
		slog.String("type", "http"),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Duration("took", took),
	}
	base = append(base, attrs...)

	switch {
	case status >= 500:
		slog.Error("Request failed", base...)
	case status >= 400:
		slog.Warn("Request rejected", base...)
	default:
		slog.Info("Request handled", base...)
	}
}

// LogSystem logs system events
func LogSystem(msg string, attrs ...any) {
	slog.Info(msg, append([]any{slog.String("type", "sys")}, attrs...)...)
}

// LogError logs error events
func LogError(msg string, err error, attrs ...any) {
	base := []any{
		slog.String("type", "error"),
		slog.Any("error", err),
	}
	slog.Error(msg, append(base, attrs...)...)
}
