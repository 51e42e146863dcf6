package session

import (
	"sync"

	"github.com/TheNickoos/GilsTracker/internal/tracker"
)

// History keeps the most recent gil changes of the current session, oldest
// first. It is cleared whenever the session resets.
type History struct {
	mu    sync.RWMutex
	buf   []tracker.Change
	start int
	size  int
}

// NewHistory returns a History holding at most capacity changes. A
// non-positive capacity disables recording.
func NewHistory(capacity int) *History {
	if capacity < 0 {
		capacity = 0
	}
	return &History{buf: make([]tracker.Change, capacity)}
}

// Add records c, evicting the oldest entry when full.
func (h *History) Add(c tracker.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buf) == 0 {
		return
	}
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = c
		h.size++
		return
	}
	h.buf[h.start] = c
	h.start = (h.start + 1) % len(h.buf)
}

// All returns a copy of the recorded changes, oldest first.
func (h *History) All() []tracker.Change {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]tracker.Change, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of recorded changes.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Clear drops every recorded change.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start = 0
	h.size = 0
}
