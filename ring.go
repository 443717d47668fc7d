package ambient

import "sync"

// ring keeps the most recent entries up to a fixed size, oldest first.
// A nil ring is disabled and every method is a no-op.
type ring[T any] struct {
	mu    sync.Mutex
	items []T
	size  int
}

// newRing creates a ring holding up to size entries.
// If size is 0 or negative, the ring is disabled.
func newRing[T any](size int) *ring[T] {
	if size <= 0 {
		return nil
	}
	return &ring[T]{
		items: make([]T, 0, size),
		size:  size,
	}
}

// push appends v, evicting the oldest entry when full.
func (r *ring[T]) push(v T) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) == r.size {
		copy(r.items, r.items[1:])
		r.items = r.items[:r.size-1]
	}
	r.items = append(r.items, v)
}

// reset drops all entries.
func (r *ring[T]) reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.items)
	r.items = r.items[:0]
}

// all returns a copy of the entries, oldest first, or nil when empty.
func (r *ring[T]) all() []T {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) == 0 {
		return nil
	}
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}
