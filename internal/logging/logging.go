package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

type contextKey string

const (
	RunIDKey   contextKey = "run_id"
	AttemptKey contextKey = "attempt"
)

// DefaultLogPath is where the JSON log lands when the process can write
// there; otherwise the user cache dir is used.
const DefaultLogPath = "/var/log/mdmsync.log"

// MultiHandler sends log records to multiple handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if err := h.Handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}

// LogFilePath returns the JSON log destination, preferring /var/log and
// falling back to the user cache dir when that is not writable.
func LogFilePath() string {
	f, err := os.OpenFile(DefaultLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		f.Close()
		return DefaultLogPath
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return "mdmsync.log"
	}
	dir := filepath.Join(cache, "mdmsync")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "mdmsync.log"
	}
	return filepath.Join(dir, "mdmsync.log")
}

func Init(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(a.Key, t.Format("2006:01:02:15:04:05"))
				}
			}
			return a
		},
	}

	// Stdout: Text format
	stdoutHandler := slog.NewTextHandler(os.Stdout, opts)

	// File: JSON format
	logFile, err := os.OpenFile(LogFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("failed to open log file", slog.Any("error", err))
		slog.SetDefault(slog.New(stdoutHandler))
		return
	}

	jsonHandler := slog.NewJSONHandler(logFile, opts)

	logger := slog.New(&MultiHandler{
		handlers: []slog.Handler{stdoutHandler, jsonHandler},
	})
	slog.SetDefault(logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if val, ok := ctx.Value(RunIDKey).(string); ok {
		l = l.With("run_id", val)
	}
	if val, ok := ctx.Value(AttemptKey).(int); ok {
		l = l.With("attempt", val)
	}
	return l
}

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, AttemptKey, attempt)
}
