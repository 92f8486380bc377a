package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LevelSuccess sits between Info and Warn and marks completed milestones.
const LevelSuccess = slog.LevelInfo + 2

// New builds a logger writing to w in text or json format. The returned
// History records every entry that passes the level filter.
func New(level, format string, w io.Writer) (*slog.Logger, *History) {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: replaceLevel,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	history := NewHistory(handler)
	return slog.New(history), history
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "success":
		return LevelSuccess
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Tag returns the display tag for a level.
func Tag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARNING"
	case level >= LevelSuccess:
		return "SUCCESS"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// Success logs msg at LevelSuccess.
func Success(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Log(ctx, LevelSuccess, msg, args...)
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelSuccess {
			a.Value = slog.StringValue("SUCCESS")
		}
	}
	return a
}

// Entry is one recorded log line.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   string
}

// String renders the entry the way the completion screen shows it.
func (e Entry) String() string {
	line := fmt.Sprintf("[%s] %s: %s", e.Time.Format("15:04:05"), Tag(e.Level), e.Message)
	if e.Attrs != "" {
		line += " (" + e.Attrs + ")"
	}
	return line
}

type historyStore struct {
	mu      sync.Mutex
	entries []Entry
}

// History is a slog.Handler that keeps a copy of every handled record and
// forwards it to the wrapped handler.
type History struct {
	inner  slog.Handler
	store  *historyStore
	prefix []slog.Attr
}

// NewHistory wraps inner.
func NewHistory(inner slog.Handler) *History {
	return &History{inner: inner, store: &historyStore{}}
}

// Enabled implements slog.Handler.
func (h *History) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *History) Handle(ctx context.Context, r slog.Record) error {
	var attrs []string
	for _, a := range h.prefix {
		attrs = append(attrs, a.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a.String())
		return true
	})

	h.store.mu.Lock()
	h.store.entries = append(h.store.entries, Entry{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   strings.Join(attrs, " "),
	})
	h.store.mu.Unlock()

	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *History) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := make([]slog.Attr, 0, len(h.prefix)+len(attrs))
	prefix = append(prefix, h.prefix...)
	prefix = append(prefix, attrs...)
	return &History{inner: h.inner.WithAttrs(attrs), store: h.store, prefix: prefix}
}

// WithGroup implements slog.Handler.
func (h *History) WithGroup(name string) slog.Handler {
	return &History{inner: h.inner.WithGroup(name), store: h.store, prefix: h.prefix}
}

// Entries returns a copy of the recorded entries.
func (h *History) Entries() []Entry {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	out := make([]Entry, len(h.store.entries))
	copy(out, h.store.entries)
	return out
}

// Worst returns the highest level recorded, or Debug when empty.
func (h *History) Worst() slog.Level {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	worst := slog.LevelDebug
	for _, e := range h.store.entries {
		if e.Level > worst {
			worst = e.Level
		}
	}
	return worst
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
