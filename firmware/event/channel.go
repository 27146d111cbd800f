package event

import (
	"context"
	"errors"
	"sync"
)

// DefaultDepth is the per-subscriber buffer depth when none is given.
const DefaultDepth = 16

// ErrSealed is returned by Subscribe after the first Publish.
var ErrSealed = errors.New("event: channel already in use")

// Channel is a single-producer, multi-subscriber broadcast with bounded
// buffering. Subscribers are registered at boot; Publish blocks while any
// subscriber buffer is full, so nothing is ever dropped.
type Channel[T any] struct {
	mu     sync.Mutex
	sealed bool
	subs   []chan T
	depth  int
}

// NewChannel creates a channel whose subscribers buffer depth items.
func NewChannel[T any](depth int) *Channel[T] {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Channel[T]{depth: depth}
}

// Subscribe adds a subscriber. It must be called before the first Publish.
func (c *Channel[T]) Subscribe() (*Subscriber[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return nil, ErrSealed
	}
	ch := make(chan T, c.depth)
	c.subs = append(c.subs, ch)
	return &Subscriber[T]{ch: ch}, nil
}

// MustSubscribe is Subscribe for boot-time wiring.
func (c *Channel[T]) MustSubscribe() *Subscriber[T] {
	s, err := c.Subscribe()
	if err != nil {
		panic(err)
	}
	return s
}

func (c *Channel[T]) seal() []chan T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	return c.subs
}

// Publish delivers v to every subscriber in registration order, waiting for
// buffer space. It returns ctx.Err() if cancelled mid-delivery; subscribers
// already served keep the value.
func (c *Channel[T]) Publish(ctx context.Context, v T) error {
	for _, ch := range c.seal() {
		select {
		case ch <- v:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// TryPublish delivers v only if every subscriber has room.
func (c *Channel[T]) TryPublish(v T) bool {
	subs := c.seal()
	for _, ch := range subs {
		if len(ch) == cap(ch) {
			return false
		}
	}
	for _, ch := range subs {
		ch <- v
	}
	return true
}

// Subscriber receives every published value in publish order.
type Subscriber[T any] struct {
	ch chan T
}

// Recv blocks until a value is available or ctx is done.
func (s *Subscriber[T]) Recv(ctx context.Context) (T, error) {
	select {
	case v := <-s.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryRecv returns a buffered value without blocking.
func (s *Subscriber[T]) TryRecv() (T, bool) {
	select {
	case v := <-s.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// C exposes the receive side for select loops.
func (s *Subscriber[T]) C() <-chan T { return s.ch }

// Len is the number of buffered values.
func (s *Subscriber[T]) Len() int { return len(s.ch) }
