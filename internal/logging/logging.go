// Package logging builds the structured JSON loggers used by every binary.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps LOG_LEVEL values to slog levels, defaulting to info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HandlerOptions renames the message and level keys to what log collectors index on.
func HandlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: a.Value}
			case slog.LevelKey:
				return slog.Attr{Key: "severity", Value: a.Value}
			}
			return a
		},
	}
}

// New returns a JSON logger writing to w, tagged with the service name.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, HandlerOptions(level))
	return slog.New(&ComponentHandler{Handler: handler}).With("service", service)
}

// ComponentHandler prefixes messages with [component] when a component attribute is set.
type ComponentHandler struct {
	slog.Handler
	component string
}

// WithGroup implements slog.Handler.
func (h *ComponentHandler) WithGroup(name string) slog.Handler {
	return &ComponentHandler{Handler: h.Handler.WithGroup(name), component: h.component}
}

// WithAttrs implements slog.Handler.
func (h *ComponentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	component := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			component = a.Value.String()
		}
	}
	return &ComponentHandler{Handler: h.Handler.WithAttrs(attrs), component: component}
}

// Handle implements slog.Handler.
func (h *ComponentHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = a.Value.String()
			return false
		}
		return true
	})
	if component == "" {
		return h.Handler.Handle(ctx, r)
	}

	prefixed := slog.NewRecord(r.Time, r.Level, "["+component+"] "+r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		prefixed.AddAttrs(a)
		return true
	})
	return h.Handler.Handle(ctx, prefixed)
}
