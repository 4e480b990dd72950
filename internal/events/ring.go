// Package events keeps a bounded in-memory ring of decision log events
// consumed by the admin API.
package events

import (
	"sync"
	"time"
)

// Event levels mirror the levels the admin UI understands.
const (
	LevelDebug   = "debug"
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// DefaultCapacity is the number of events retained before the oldest is dropped.
const DefaultCapacity = 100

// Event is one structured log entry.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Ring is a fixed-capacity, thread-safe event buffer.
type Ring struct {
	mu      sync.Mutex
	cap     int
	entries []Event
}

// NewRing creates a ring holding at most capacity events. A non-positive
// capacity falls back to DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{cap: capacity}
}

// Append records an event, evicting the oldest entry when full.
func (r *Ring) Append(level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Event{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	})
	if len(r.entries) > r.cap {
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
}

// Snapshot returns a copy of the buffered events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.entries))
	copy(out, r.entries)
	return out
}

// Clear drops all buffered events.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
