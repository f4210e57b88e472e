package app

import "sync"

// MemHistory is the in-process ports.History implementation. It holds the
// current layers text the way a browser holds the address bar: one value,
// replaced wholesale, with a write counter so the rewrite diff gate is
// observable.
type MemHistory struct {
	mu     sync.Mutex
	text   string
	writes int
}

// NewMemHistory creates a history seeded with an initial layers text.
func NewMemHistory(initial string) *MemHistory {
	return &MemHistory{text: initial}
}

// Current returns the layers text as last written.
func (h *MemHistory) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.text
}

// Replace overwrites the layers text and bumps the write counter.
func (h *MemHistory) Replace(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.text = text
	h.writes++
}

// Writes returns how many times Replace has been called.
func (h *MemHistory) Writes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes
}
