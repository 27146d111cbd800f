package encoder

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/event"
	"rmk/hal"
)

type pin struct{ level bool }

func (p *pin) Name() string                               { return "enc" }
func (p *pin) Caps() hal.GPIOCaps                         { return hal.GPIOCapInput | hal.GPIOCapPullUp }
func (p *pin) Configure(hal.GPIOMode, hal.GPIOPull) error { return nil }
func (p *pin) Read() (bool, error)                        { return p.level, nil }
func (p *pin) Write(bool) error                           { return nil }

// Gray sequence for one clockwise detent starting at rest (both high).
var cw = []uint8{0b01, 0b00, 0b10, 0b11}

func TestStepDetents(t *testing.T) {
	e, err := New(0, &pin{true}, &pin{true}, 4, false)
	require.NoError(t, err)

	var got []event.Direction
	feed := func(seq []uint8) {
		for _, s := range seq {
			if d, ok := e.Step(s); ok {
				got = append(got, d)
			}
		}
	}
	feed(cw)
	ccw := slices.Clone(cw)
	slices.Reverse(ccw)
	feed(append(ccw[1:], 0b11))
	assert.Equal(t, []event.Direction{event.Clockwise, event.CounterClockwise}, got)
}

func TestBounceDoesNotCount(t *testing.T) {
	e, _ := New(0, &pin{true}, &pin{true}, 4, false)
	for _, s := range []uint8{0b10, 0b11, 0b10, 0b11} {
		_, ok := e.Step(s)
		assert.False(t, ok)
	}
}

func TestPollEmitsPressRelease(t *testing.T) {
	a, b := &pin{true}, &pin{true}
	e, _ := New(2, a, b, 1, true)
	a.level = false // 0b01
	got := slices.Collect(e.Poll(9))
	require.Len(t, got, 2)
	assert.Equal(t, event.Encoder(2, event.CounterClockwise), got[0].Pos)
	assert.True(t, got[0].Pressed)
	assert.False(t, got[1].Pressed)
}
