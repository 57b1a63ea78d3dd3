package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
)

type LogType string

const (
	TypeHTTP   LogType = "HTTP"
	TypeDB     LogType = "DB"
	TypeSwap   LogType = "SWAP"
	TypeMail   LogType = "MAIL"
	TypeSystem LogType = "SYS"
	TypeError  LogType = "ERR"
)

// CustomHandler writes one colored line per record:
// [SwapCard] [15:04:05] [LEVEL] [TYPE] message key=value...
type CustomHandler struct {
	opts   *slog.HandlerOptions
	out    io.Writer
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

func NewHandler(w io.Writer, opts *slog.HandlerOptions) *CustomHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: slog.LevelInfo}
	}
	if w == nil {
		w = os.Stdout
	}
	return &CustomHandler{
		opts: opts,
		out:  w,
		mu:   &sync.Mutex{},
	}
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

func (h *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	timestamp := r.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	levelColor, levelText := levelStyle(r.Level)
	logType := getLogType(h.attrs, &r)

	message := r.Message
	if r.Level >= slog.LevelError {
		if details := getAttr(&r, "error"); details != "" {
			message = fmt.Sprintf("%s: %s", message, details)
		}
	}
	if h.opts.AddSource && r.PC != 0 {
		if src := sourceOf(r); src != "" {
			message = fmt.Sprintf("%s (%s)", message, src)
		}
	}

	var b strings.Builder
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, attr := range h.attrs {
		writeAttr(&b, prefix, attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "error" || r.Level < slog.LevelError {
			writeAttr(&b, prefix, a)
		}
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.out, "%s[SwapCard] [%s] [%s%s%s] [%s%s%s] %s%s%s\n",
		colorWhite,
		timestamp.Format("15:04:05"),
		levelColor,
		levelText,
		colorWhite,
		colorCyan,
		logType,
		colorWhite,
		message,
		b.String(),
		colorReset,
	)
	return err
}

func levelStyle(level slog.Level) (string, string) {
	switch {
	case level >= slog.LevelError:
		return colorRed, "ERROR"
	case level >= slog.LevelWarn:
		return colorYellow, "WARN"
	case level >= slog.LevelInfo:
		return colorGreen, "INFO"
	default:
		return colorPurple, "DEBUG"
	}
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	if a.Key == "type" || a.Equal(slog.Attr{}) {
		return
	}
	fmt.Fprintf(b, " %s%s=%v", prefix, a.Key, a.Value.Resolve())
}

func getLogType(handlerAttrs []slog.Attr, r *slog.Record) LogType {
	var raw string
	for _, a := range handlerAttrs {
		if a.Key == "type" {
			raw = a.Value.String()
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "type" {
			raw = a.Value.String()
			return false
		}
		return true
	})

	switch raw {
	case "http":
		return TypeHTTP
	case "db":
		return TypeDB
	case "swap":
		return TypeSwap
	case "mail":
		return TypeMail
	case "error":
		return TypeError
	default:
		return TypeSystem
	}
}

func getAttr(r *slog.Record, key string) string {
	var value string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			value = a.Value.String()
			return false
		}
		return true
	})
	return value
}

func sourceOf(r slog.Record) string {
	frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
	if frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}

// Setup installs the default logger for the configured format.
func Setup(w io.Writer, level slog.Level, format string, addSource bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, AddSource: addSource}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = NewHandler(w, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
