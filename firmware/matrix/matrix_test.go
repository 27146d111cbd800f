package matrix

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/debounce"
	"rmk/firmware/event"
	"rmk/hal"
)

func newSim(t *testing.T, cfg Config) (*Matrix, *hal.SimMatrix) {
	t.Helper()
	sim := hal.NewSimMatrix(cfg.Rows, cfg.Cols, cfg.Diode == Row2Col, cfg.ActiveLow)
	m, err := New(cfg, sim.Outputs(), sim.Inputs(), debounce.NewEager(cfg.Rows*cfg.Cols, 0), nil)
	require.NoError(t, err)
	return m, sim
}

func TestScanReportsEdges(t *testing.T) {
	for _, cfg := range []Config{
		{Rows: 3, Cols: 4, Diode: Col2Row},
		{Rows: 3, Cols: 4, Diode: Row2Col, ActiveLow: true},
	} {
		m, sim := newSim(t, cfg)
		sim.Set(1, 2, true)
		got := slices.Collect(m.Scan(5))
		require.Len(t, got, 1)
		assert.Equal(t, event.KeyEvent{Pos: event.Key(1, 2), Pressed: true, Time: 5}, got[0])
		assert.True(t, m.Pressed())

		assert.Empty(t, slices.Collect(m.Scan(6)))

		sim.Set(1, 2, false)
		got = slices.Collect(m.Scan(7))
		require.Len(t, got, 1)
		assert.False(t, got[0].Pressed)
	}
}

func TestScanOffset(t *testing.T) {
	m, sim := newSim(t, Config{Rows: 2, Cols: 2, RowOffset: 0, ColOffset: 5})
	sim.Set(0, 1, true)
	got := slices.Collect(m.Scan(0))
	require.Len(t, got, 1)
	assert.Equal(t, event.KeyPosition{Row: 0, Col: 6}, got[0].Pos.Key)
}

func TestGhostFilter(t *testing.T) {
	m, sim := newSim(t, Config{Rows: 2, Cols: 2, GhostFilter: true})
	// Three real presses plus the phantom fourth corner of a diodeless matrix.
	sim.Set(0, 0, true)
	sim.Set(0, 1, true)
	sim.Set(1, 0, true)
	sim.Set(1, 1, true)
	assert.Empty(t, slices.Collect(m.Scan(0)))

	sim.Set(1, 1, false)
	got := slices.Collect(m.Scan(1))
	assert.Len(t, got, 3)
}

func TestDirect(t *testing.T) {
	sim := hal.NewSimMatrix(1, 4, true, true)
	// Treat each column as its own direct pin by keeping row 0 strobed.
	require.NoError(t, sim.Outputs()[0].Configure(hal.GPIOModeOutput, hal.GPIOPullNone))
	require.NoError(t, sim.Outputs()[0].Write(false))
	m, err := New(Config{Rows: 2, Cols: 2, Direct: true, ActiveLow: true}, nil, sim.Inputs(), debounce.NewEager(4, 0), nil)
	require.NoError(t, err)
	sim.Set(0, 3, true)
	got := slices.Collect(m.Scan(0))
	require.Len(t, got, 1)
	assert.Equal(t, event.Key(1, 1), got[0].Pos)
}

func TestPinCountMismatch(t *testing.T) {
	sim := hal.NewSimMatrix(2, 2, false, false)
	_, err := New(Config{Rows: 3, Cols: 2}, sim.Outputs(), sim.Inputs(), debounce.NewEager(6, 0), nil)
	assert.ErrorIs(t, err, ErrPins)
}

func TestWaitForAny(t *testing.T) {
	m, sim := newSim(t, Config{Rows: 2, Cols: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.WaitForAny(ctx, time.Millisecond), context.DeadlineExceeded)

	sim.Set(1, 1, true)
	require.NoError(t, m.WaitForAny(context.Background(), time.Millisecond))
}

// polledPin hides the sim pin's edge support.
type polledPin struct{ hal.GPIOPin }

func (p polledPin) Caps() hal.GPIOCaps { return p.GPIOPin.Caps() &^ hal.GPIOCapEdge }

func TestWaitForAnyPollsWithoutEdges(t *testing.T) {
	sim := hal.NewSimMatrix(2, 2, false, false)
	var ins []hal.GPIOPin
	for _, p := range sim.Inputs() {
		ins = append(ins, polledPin{p})
	}
	m, err := New(Config{Rows: 2, Cols: 2}, sim.Outputs(), ins, debounce.NewEager(4, 0), nil)
	require.NoError(t, err)
	assert.Nil(t, m.edgeWaiters())

	done := make(chan error, 1)
	go func() { done <- m.WaitForAny(context.Background(), time.Millisecond) }()
	sim.Set(0, 1, true)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("press not seen")
	}
}
