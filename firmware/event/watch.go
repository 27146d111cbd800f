package event

import (
	"context"
	"sync"
)

// Watch is a lossy latest-value cell. Every Set bumps a sequence number;
// receivers that fall behind see only the newest value.
type Watch[T any] struct {
	mu      sync.Mutex
	seq     uint32
	val     T
	changed chan struct{}
}

func NewWatch[T any](initial T) *Watch[T] {
	return &Watch[T]{val: initial, changed: make(chan struct{})}
}

// Set stores v and wakes all waiting receivers.
func (w *Watch[T]) Set(v T) uint32 {
	w.mu.Lock()
	w.val = v
	w.seq++
	close(w.changed)
	w.changed = make(chan struct{})
	seq := w.seq
	w.mu.Unlock()
	return seq
}

// Update applies f to the current value under the lock.
func (w *Watch[T]) Update(f func(*T)) uint32 {
	w.mu.Lock()
	f(&w.val)
	w.seq++
	close(w.changed)
	w.changed = make(chan struct{})
	seq := w.seq
	w.mu.Unlock()
	return seq
}

// Get returns the current value and its sequence number.
func (w *Watch[T]) Get() (T, uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.val, w.seq
}

// Receiver returns a handle that has seen nothing yet.
func (w *Watch[T]) Receiver() *Receiver[T] { return &Receiver[T]{w: w} }

// Receiver tracks the last sequence number it observed.
type Receiver[T any] struct {
	w    *Watch[T]
	seen uint32
}

// Changed blocks until the value differs from the last one this receiver saw.
func (r *Receiver[T]) Changed(ctx context.Context) (T, error) {
	for {
		r.w.mu.Lock()
		if r.w.seq != r.seen {
			v := r.w.val
			r.seen = r.w.seq
			r.w.mu.Unlock()
			return v, nil
		}
		wait := r.w.changed
		r.w.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Peek returns the current value and whether it is new to this receiver.
func (r *Receiver[T]) Peek() (T, bool) {
	v, seq := r.w.Get()
	return v, seq != r.seen
}
