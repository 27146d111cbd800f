package matrix

import (
	"context"
	"iter"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/clock"
	"rmk/firmware/debounce"
	"rmk/firmware/event"
	scan "rmk/firmware/matrix"
	"rmk/hal"
)

type script []event.KeyEvent

func (s script) Poll(now clock.Instant) iter.Seq[event.KeyEvent] {
	return func(yield func(event.KeyEvent) bool) {
		for _, ev := range s {
			ev.Time = now
			if !yield(ev) {
				return
			}
		}
	}
}

func (s script) Scan(now clock.Instant) iter.Seq[event.KeyEvent] { return s.Poll(now) }

func TestStepPublishesMatrixThenEncoders(t *testing.T) {
	events := event.NewChannel[event.KeyEvent](8)
	sub := events.MustSubscribe()
	clk := &clock.Manual{}
	clk.Set(42)
	s := New(Config{
		Matrix:   script{event.Press(event.Key(0, 1), 0)},
		Encoders: []Poller{script{event.Press(event.Encoder(0, event.Clockwise), 0), event.Release(event.Encoder(0, event.Clockwise), 0)}},
		Events:   events,
		Clock:    clk,
	})
	require.NoError(t, s.Step(context.Background()))

	var got []event.KeyEvent
	for ev, ok := sub.TryRecv(); ok; ev, ok = sub.TryRecv() {
		got = append(got, ev)
	}
	assert.Equal(t, []event.KeyEvent{
		event.Press(event.Key(0, 1), 42),
		event.Press(event.Encoder(0, event.Clockwise), 42),
		event.Release(event.Encoder(0, event.Clockwise), 42),
	}, got)
}

func TestStepHonoursCancelWhenFull(t *testing.T) {
	events := event.NewChannel[event.KeyEvent](1)
	_ = events.MustSubscribe()
	s := New(Config{
		Matrix: script{event.Press(event.Key(0, 0), 0), event.Press(event.Key(0, 1), 0)},
		Events: events,
		Clock:  &clock.Manual{},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Step(ctx), context.DeadlineExceeded)
}

func TestRunScansSimulatedMatrix(t *testing.T) {
	cfg := scan.Config{Rows: 2, Cols: 3, Diode: scan.Col2Row}
	sim := hal.NewSimMatrix(cfg.Rows, cfg.Cols, false, false)
	m, err := scan.New(cfg, sim.Outputs(), sim.Inputs(), debounce.NewEager(cfg.Rows*cfg.Cols, 0), nil)
	require.NoError(t, err)

	events := event.NewChannel[event.KeyEvent](8)
	sub := events.MustSubscribe()
	s := New(Config{Matrix: m, Events: events, IdleAfter: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The first press wakes the task from its idle wait.
	time.Sleep(20 * time.Millisecond)
	sim.Set(1, 2, true)
	ev, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, event.Key(1, 2), ev.Pos)
	assert.True(t, ev.Pressed)

	sim.Set(1, 2, false)
	ev, err = sub.Recv(ctx)
	require.NoError(t, err)
	assert.False(t, ev.Pressed)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, slices.Collect(m.Scan(0)))
}
