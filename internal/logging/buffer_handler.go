package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// LogCallback receives every entry after it is buffered. main uses it to put
// entries on the event bus without logging importing events.
type LogCallback func(entry LogEntry)

// Attribute keys lifted out of Attributes into their own LogEntry fields.
const (
	moduleKey   = "module"
	cameraIDKey = "camera_id"
)

// BufferHandler is a slog.Handler that records entries into a RingBuffer.
type BufferHandler struct {
	buffer   *RingBuffer
	level    slog.Leveler
	callback LogCallback

	// pre holds attrs bound with WithAttrs, already flattened under the
	// groups that were open at the time.
	pre      []slog.Attr
	module   string
	cameraID string
	prefix   string
}

// NewBufferHandler creates a handler that writes to buffer.
func NewBufferHandler(buffer *RingBuffer, level slog.Leveler, callback LogCallback) *BufferHandler {
	return &BufferHandler{
		buffer:   buffer,
		level:    level,
		callback: callback,
		module:   "app",
	}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp: r.Time,
		Level:     levelToString(r.Level),
		Module:    h.module,
		CameraID:  h.cameraID,
		Message:   r.Message,
	}

	attrs := make(map[string]any, len(h.pre)+r.NumAttrs())
	for _, a := range h.pre {
		attrs[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix == "" && h.lift(&entry, a) {
			return true
		}
		flatten(attrs, h.prefix, a)
		return true
	})
	if len(attrs) > 0 {
		entry.Attributes = attrs
	}

	entry = h.buffer.Write(entry)
	if h.callback != nil {
		h.callback(entry)
	}
	return nil
}

// lift moves top-level module and camera_id attrs into entry fields.
func (h *BufferHandler) lift(entry *LogEntry, a slog.Attr) bool {
	switch a.Key {
	case moduleKey:
		entry.Module = a.Value.String()
	case cameraIDKey:
		entry.CameraID = a.Value.String()
	default:
		return false
	}
	return true
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	flat := make(map[string]any)
	for _, a := range attrs {
		if h.prefix == "" {
			switch a.Key {
			case moduleKey:
				next.module = a.Value.String()
				continue
			case cameraIDKey:
				next.cameraID = a.Value.String()
				continue
			}
		}
		flatten(flat, h.prefix, a)
	}
	next.pre = append(append([]slog.Attr(nil), h.pre...), mapAttrs(flat)...)
	return &next
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = joinKey(h.prefix, name)
	return &next
}

// flatten stores a under dot-joined keys, descending into groups.
func flatten(dst map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			flatten(dst, key, ga)
		}
		return
	}
	dst[key] = attrValue(a.Value)
}

// attrValue renders values that do not survive JSON encoding as strings.
func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func mapAttrs(m map[string]any) []slog.Attr {
	out := make([]slog.Attr, 0, len(m))
	for k, v := range m {
		out = append(out, slog.Any(k, v))
	}
	return out
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.Join([]string{prefix, key}, ".")
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
