package history

// DefaultCapacity matches one minute of analysed frames at the default stride
const DefaultCapacity = 60

// Ring is a fixed-capacity, insertion-ordered buffer that evicts the oldest
// entry on overflow. It is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	start int
	size  int
}

// NewRing creates a ring holding at most capacity entries.
// A non-positive capacity falls back to DefaultCapacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, dropping the oldest entry when full
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = v
		r.size++
		return
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
}

// Len returns the number of stored entries
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the capacity
func (r *Ring[T]) Cap() int { return len(r.items) }

// Values returns a copy of the entries, oldest first
func (r *Ring[T]) Values() []T {
	return r.Last(r.size)
}

// Last returns a copy of the newest n entries, oldest first
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	offset := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.items[(r.start+offset+i)%len(r.items)]
	}
	return out
}

// Newest returns the most recently pushed entry
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.start+r.size-1)%len(r.items)], true
}
