// Package clock provides the millisecond timebase shared by the input pipeline.
package clock

import (
	"context"
	"sync"
	"time"
)

// Instant is a monotonic timestamp in milliseconds since boot.
type Instant uint64

// Add returns t advanced by ms milliseconds.
func (t Instant) Add(ms uint16) Instant { return t + Instant(ms) }

// Since returns t-earlier, or 0 if earlier is after t.
func (t Instant) Since(earlier Instant) uint64 {
	if earlier > t {
		return 0
	}
	return uint64(t - earlier)
}

// Duration converts a millisecond count to a time.Duration.
func Duration(ms uint64) time.Duration { return time.Duration(ms) * time.Millisecond }

// Clock reports the current instant.
type Clock interface {
	Now() Instant
}

// Monotonic counts milliseconds since it was created.
type Monotonic struct {
	start time.Time
}

// NewMonotonic starts a monotonic clock at zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

func (m *Monotonic) Now() Instant {
	return Instant(time.Since(m.start) / time.Millisecond)
}

// Ticked follows a 1ms hardware tick stream (hal.Time).
//
// The last observed sequence number is the current instant.
type Ticked struct {
	mu  sync.Mutex
	now Instant
}

// Follow consumes ticks until ctx ends or the channel closes.
func (t *Ticked) Follow(ctx context.Context, ticks <-chan uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case seq, ok := <-ticks:
			if !ok {
				return nil
			}
			t.mu.Lock()
			t.now = max(t.now, Instant(seq))
			t.mu.Unlock()
		}
	}
}

func (t *Ticked) Now() Instant {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

// Manual is a clock advanced explicitly. Tests drive the pipeline with it.
type Manual struct {
	mu  sync.Mutex
	now Instant
}

func (m *Manual) Now() Instant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t. Moving backwards is ignored.
func (m *Manual) Set(t Instant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t > m.now {
		m.now = t
	}
}
