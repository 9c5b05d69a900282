// Package adminlog keeps a bounded in-memory ring of recent log entries so
// an operator can inspect what the server has been doing without shipping
// logs to an external sink, exposed over the admin HTTP surface.
package adminlog

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Logger  string            `json:"logger"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Buffer is a fixed-capacity ring of the most recent entries. It implements
// zapcore.Core so it can be tee'd alongside the process's normal log
// output.
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	minLevel zapcore.Level
}

// NewBuffer returns an empty ring holding at most capacity entries.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{entries: make([]Entry, 0, capacity), capacity: capacity, minLevel: zapcore.DebugLevel}
}

// Enabled implements zapcore.LevelEnabler.
func (b *Buffer) Enabled(level zapcore.Level) bool { return level >= b.minLevel }

// With implements zapcore.Core; the buffer does not pre-bind fields, so it
// returns itself unchanged.
func (b *Buffer) With([]zapcore.Field) zapcore.Core { return b }

// Check implements zapcore.Core.
func (b *Buffer) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if b.Enabled(entry.Level) {
		return checked.AddCore(entry, b)
	}
	return checked
}

// Write implements zapcore.Core: append the entry to the ring, evicting the
// oldest if at capacity.
func (b *Buffer) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	out := make(map[string]string, len(fields))
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	for k, v := range enc.Fields {
		out[k] = toString(v)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.capacity {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, Entry{
		Time:    entry.Time,
		Level:   entry.Level.String(),
		Logger:  entry.LoggerName,
		Message: entry.Message,
		Fields:  out,
	})
	return nil
}

// Sync implements zapcore.Core; the buffer has no underlying descriptor to
// flush.
func (b *Buffer) Sync() error { return nil }

// Recent returns a copy of every entry currently held, oldest first.
func (b *Buffer) Recent() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprintf("%v", t)
	}
}
