// Package debounce collapses repeated reads of the same card into one tap.
package debounce

import (
	"sync"
	"time"
)

// DefaultWindow is how long a repeat of the last accepted identifier is
// treated as the same physical tap.
const DefaultWindow = 2000 * time.Millisecond

// Filter holds the single process-wide record of the last accepted card.
// It is keyed by identifier only: the same card presented to two readers
// inside the window is still one tap.
type Filter struct {
	window time.Duration

	mu     sync.Mutex
	lastID string
	lastAt time.Time
}

// New creates a filter. A non-positive window selects DefaultWindow.
func New(window time.Duration) *Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Filter{window: window}
}

// Window returns the configured debounce window.
func (f *Filter) Window() time.Duration { return f.window }

// Accept reports whether id observed at now should be forwarded.
// Accepted reads update the record; rejected reads leave it untouched so a
// card held on the reader is forwarded again once per window.
func (f *Filter) Accept(id string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lastID != "" && id == f.lastID && now.Sub(f.lastAt) < f.window {
		return false
	}
	f.lastID = id
	f.lastAt = now
	return true
}

// Last returns the most recently accepted identifier and when it was seen.
func (f *Filter) Last() (string, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastID, f.lastAt
}
