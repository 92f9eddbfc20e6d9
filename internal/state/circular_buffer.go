package state

import "iter"

// Ring is a fixed-capacity circular buffer. When full, Push overwrites the
// oldest element. Ring is not safe for concurrent use; Container guards it.
type Ring[T any] struct {
	buf  []T
	size int
	head int // write position
	tail int // oldest element
	full bool
}

// NewRing creates a ring holding at most size elements.
func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{
		buf:  make([]T, size),
		size: size,
	}
}

// Push appends v. If the ring was full, the evicted oldest element is
// returned with ok set.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.full {
		evicted, ok = r.buf[r.tail], true
		r.tail = (r.tail + 1) % r.size
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.size
	if r.head == r.tail {
		r.full = true
	}
	return evicted, ok
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	if r.full {
		return r.size
	}
	if r.head >= r.tail {
		return r.head - r.tail
	}
	return (r.size - r.tail) + r.head
}

// Items returns the stored elements, oldest first, in a new slice.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, r.Len())
	for _, v := range r.All() {
		out = append(out, v)
	}
	return out
}

// All iterates the stored elements oldest first.
func (r *Ring[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		n := r.Len()
		for i := 0; i < n; i++ {
			if !yield(i, r.buf[(r.tail+i)%r.size]) {
				return
			}
		}
	}
}

// Capacity returns the maximum number of elements.
func (r *Ring[T]) Capacity() int {
	return r.size
}
