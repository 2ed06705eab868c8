/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log entries in memory.
package logbuffer

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogEntry is one captured log line.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	GuildID   string         `json:"guild_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add adds a log entry to the buffer.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// QueryParams filters Query. Zero values match everything.
type QueryParams struct {
	// MinLevel drops entries below this level.
	MinLevel  zerolog.Level
	Component string
	GuildID   string
	Search    string
	Limit     int
}

// Query returns matching entries, newest first.
func (b *Buffer) Query(p QueryParams) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	search := strings.ToLower(p.Search)
	out := make([]LogEntry, 0, min(b.count, max(p.Limit, 0)))
	for i := 0; i < b.count; i++ {
		e := b.entries[(b.head-1-i+b.capacity)%b.capacity]
		if p.MinLevel > zerolog.TraceLevel {
			if lvl, err := zerolog.ParseLevel(e.Level); err == nil && lvl < p.MinLevel {
				continue
			}
		}
		if p.Component != "" && e.Component != p.Component {
			continue
		}
		if p.GuildID != "" && e.GuildID != p.GuildID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Message), search) {
			continue
		}
		out = append(out, e)
		if p.Limit > 0 && len(out) >= p.Limit {
			break
		}
	}
	return out
}

// Writer captures zerolog JSON output into a Buffer. Use it as an extra sink
// next to the console writer.
type Writer struct {
	buffer *Buffer
}

// NewWriter creates a writer that captures logs to the buffer.
func NewWriter(buffer *Buffer) *Writer {
	return &Writer{buffer: buffer}
}

// Write implements io.Writer. Lines that are not JSON are ignored.
func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}

	entry := LogEntry{Timestamp: time.Now()}
	take := func(key string) string {
		s, _ := raw[key].(string)
		delete(raw, key)
		return s
	}
	entry.Level = take(zerolog.LevelFieldName)
	entry.Message = take(zerolog.MessageFieldName)
	entry.Component = take("component")
	entry.GuildID = take("guild_id")
	switch ts := raw[zerolog.TimestampFieldName].(type) {
	case float64:
		entry.Timestamp = time.Unix(int64(ts), 0)
	case string:
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Timestamp = parsed
		}
	}
	delete(raw, zerolog.TimestampFieldName)
	if len(raw) > 0 {
		entry.Fields = raw
	}

	w.buffer.Add(entry)
	return len(p), nil
}
