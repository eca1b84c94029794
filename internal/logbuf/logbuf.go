// Package logbuf keeps recent log records in memory so the admin API can
// show them without shelling into the host.
package logbuf

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultSize is the ring capacity used when New is given a non-positive size.
const DefaultSize = 2000

// Entry is a single log entry captured from slog.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries from a Buffer. Zero fields match everything.
type Filter struct {
	Since     time.Time
	MinLevel  slog.Level
	Ticket    string // matches the "ticket" attribute
	Component string // matches the "component" attribute
	Limit     int    // newest N after filtering
}

func (f Filter) match(e Entry) bool {
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if levelOf(e.Level) < f.MinLevel {
		return false
	}
	if f.Ticket != "" && e.Attrs["ticket"] != f.Ticket {
		return false
	}
	if f.Component != "" && e.Attrs["component"] != f.Component {
		return false
	}
	return true
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int
	dropped uint64
}

// New creates a new ring buffer that holds up to size entries.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Write appends an entry, overwriting the oldest when full.
func (b *Buffer) Write(e Entry) {
	b.mu.Lock()
	if b.count == b.size {
		b.dropped++
	}
	b.entries[b.pos] = e
	b.pos = (b.pos + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	b.mu.Unlock()
}

// Query returns entries matching f, oldest first.
func (b *Buffer) Query(f Filter) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []Entry

	start := 0
	if b.count == b.size {
		start = b.pos // oldest entry when buffer is full
	}
	for i := 0; i < b.count; i++ {
		e := b.entries[(start+i)%b.size]
		if f.match(e) {
			result = append(result, e)
		}
	}

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[len(result)-f.Limit:]
	}
	return result
}

// Len returns the number of buffered entries and how many were overwritten.
func (b *Buffer) Len() (n int, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count, b.dropped
}

// ParseLevel parses a level name such as "debug" or "WARN". The empty
// string is INFO.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logbuf: unknown level %q", s)
}

func levelOf(s string) slog.Level {
	l, _ := ParseLevel(s)
	return l
}
