package event

// Ring is a fixed-capacity FIFO. It does not allocate after New and is not
// safe for concurrent use; the owner serializes access.
type Ring[T any] struct {
	head  uint32
	tail  uint32
	slots []T
}

// NewRing allocates a ring holding up to capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{slots: make([]T, capacity)}
}

func (r *Ring[T]) Cap() int    { return len(r.slots) }
func (r *Ring[T]) Len() int    { return int(r.head - r.tail) }
func (r *Ring[T]) Empty() bool { return r.head == r.tail }
func (r *Ring[T]) Full() bool  { return int(r.head-r.tail) >= len(r.slots) }

// Push appends v, returning false if the ring is full.
func (r *Ring[T]) Push(v T) bool {
	if r.Full() {
		return false
	}
	r.slots[r.head%uint32(len(r.slots))] = v
	r.head++
	return true
}

// Pop removes the oldest item.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	if r.Empty() {
		return zero, false
	}
	i := r.tail % uint32(len(r.slots))
	v := r.slots[i]
	r.slots[i] = zero
	r.tail++
	return v, true
}

// Peek returns the oldest item without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	if r.Empty() {
		var zero T
		return zero, false
	}
	return r.slots[r.tail%uint32(len(r.slots))], true
}

// At returns the i-th oldest item.
func (r *Ring[T]) At(i int) T {
	return r.slots[(r.tail+uint32(i))%uint32(len(r.slots))]
}

// Set replaces the i-th oldest item.
func (r *Ring[T]) Set(i int, v T) {
	r.slots[(r.tail+uint32(i))%uint32(len(r.slots))] = v
}

// RemoveAt deletes the i-th oldest item, keeping order.
func (r *Ring[T]) RemoveAt(i int) {
	n := r.Len()
	if i < 0 || i >= n {
		return
	}
	for j := i; j < n-1; j++ {
		r.Set(j, r.At(j+1))
	}
	var zero T
	r.head--
	r.slots[r.head%uint32(len(r.slots))] = zero
}

// Clear drops every item.
func (r *Ring[T]) Clear() {
	for !r.Empty() {
		r.Pop()
	}
}
