package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestCustomHandler(t *testing.T) {
	tests := []struct {
		name     string
		log      func(*slog.Logger)
		contains []string
		empty    bool
	}{
		{
			name: "type tag and attrs",
			log: func(l *slog.Logger) {
				l.Info("Swap accepted", slog.String("type", "swap"), slog.String("request_id", "r1"))
			},
			contains: []string{"[SwapCard]", "INFO", "[" + colorCyan + "SWAP", "Swap accepted", "request_id=r1"},
		},
		{
			name: "error details are appended to message",
			log: func(l *slog.Logger) {
				l.Error("Mail failed", slog.String("type", "mail"), slog.Any("error", errors.New("timeout")))
			},
			contains: []string{"ERROR", "MAIL", "Mail failed: timeout"},
		},
		{
			name: "default type is SYS",
			log: func(l *slog.Logger) {
				l.With(slog.String("component", "sweep")).Warn("Stale requests found")
			},
			contains: []string{"WARN", "SYS", "component=sweep"},
		},
		{
			name:  "below level is dropped",
			log:   func(l *slog.Logger) { l.Debug("noise") },
			empty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(slog.New(NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

			out := buf.String()
			if tt.empty {
				if out != "" {
					t.Errorf("expected no output, got %q", out)
				}
				return
			}
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output %q does not contain %q", out, want)
				}
			}
		})
	}
}
