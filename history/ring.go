// Package history keeps the rolling per-channel series that back the
// dashboard charts. Every series is a fixed-capacity ring buffer, so
// memory use does not grow with uptime.
package history

import "fmt"

// Ring is a fixed-capacity FIFO that overwrites its oldest element when
// full. It is not safe for concurrent use; Store adds the locking.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int
}

// New returns an empty ring holding at most capacity elements.
func New[T any](capacity int) (*Ring[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring capacity must be positive, got %d", capacity)
	}
	return &Ring[T]{buf: make([]T, capacity)}, nil
}

// Push appends v, evicting the oldest element when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// GetAll returns a copy of the contents, oldest first.
func (r *Ring[T]) GetAll() []T {
	out := make([]T, r.size)
	n := copy(out, r.buf[r.head:min(r.head+r.size, len(r.buf))])
	copy(out[n:], r.buf[:r.size-n])
	return out
}

// Last returns the newest element.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)], true
}

func (r *Ring[T]) Len() int { return r.size }

func (r *Ring[T]) Cap() int { return len(r.buf) }

// Clear empties the ring without releasing its storage.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.size = 0
}
