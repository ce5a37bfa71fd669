package accumulator

import "sync"

// History is a thread-safe circular buffer of recent records, one per tier.
// It serves live queries without touching the storage medium; writes beyond
// capacity overwrite the oldest entry.
type History[T any] struct {
	mu       sync.RWMutex
	data     []T
	head     int // Next write position.
	count    int
	capacity int
}

// NewHistory creates a history buffer with the given capacity.
func NewHistory[T any](capacity int) *History[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &History[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Push adds a record, evicting the oldest if full.
func (h *History[T]) Push(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.data[h.head] = v
	h.head = (h.head + 1) % h.capacity
	if h.count < h.capacity {
		h.count++
	}
}

// Last returns up to n most recent records, oldest first.
func (h *History[T]) Last(n int) []T {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || h.count == 0 {
		return nil
	}
	if n > h.count {
		n = h.count
	}

	out := make([]T, n)
	start := h.head - n
	if start < 0 {
		start += h.capacity
	}
	for i := 0; i < n; i++ {
		out[i] = h.data[(start+i)%h.capacity]
	}
	return out
}

// Newest returns the most recent record, or false if empty.
func (h *History[T]) Newest() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var zero T
	if h.count == 0 {
		return zero, false
	}
	idx := h.head - 1
	if idx < 0 {
		idx += h.capacity
	}
	return h.data[idx], true
}

// Len returns the current number of records.
func (h *History[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the buffer capacity.
func (h *History[T]) Cap() int {
	return h.capacity
}
