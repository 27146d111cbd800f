package keyboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/action"
	"rmk/firmware/clock"
	"rmk/firmware/event"
	"rmk/firmware/hid"
	"rmk/firmware/keyboard"
	"rmk/firmware/keycode"
	"rmk/firmware/keymap"
)

const (
	colA = iota
	colMO
	colMT
)

type rig struct {
	events  *event.Channel[event.KeyEvent]
	reports *event.Subscriber[hid.Report]
	status  *event.Watch[event.Status]
	reload  chan keyboard.Behavior
	clk     *clock.Monotonic
	cancel  context.CancelFunc
	done    chan error
}

func newRig(t *testing.T) *rig {
	t.Helper()
	cells := [][][]action.KeyAction{
		{{action.MustParse("A"), action.MustParse("MO(1)"), action.MustParse("MT(B,LShift)")}},
		{{action.MustParse("1"), action.MustParse("_"), action.MustParse("_")}},
	}
	km, err := keymap.FromLayers(cells, 0)
	require.NoError(t, err)

	beh := keyboard.DefaultBehavior()
	beh.Morse.TimeoutMs = 30
	r := &rig{
		events: event.NewChannel[event.KeyEvent](8),
		status: event.NewWatch(event.Status{}),
		reload: make(chan keyboard.Behavior, 1),
		clk:    clock.NewMonotonic(),
		done:   make(chan error, 1),
	}
	reports := event.NewChannel[hid.Report](32)
	r.reports = reports.MustSubscribe()
	s, err := New(Config{
		Engine:  keyboard.Options{Keymap: km, Behavior: beh},
		Events:  r.events.MustSubscribe(),
		Reports: reports,
		Status:  r.status,
		Reload:  r.reload,
		Clock:   r.clk,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() { r.done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-r.done, context.Canceled)
	})
	return r
}

func (r *rig) key(t *testing.T, col uint8, pressed bool) {
	t.Helper()
	ev := event.KeyEvent{Pos: event.Key(0, col), Pressed: pressed, Time: r.clk.Now()}
	require.NoError(t, r.events.Publish(context.Background(), ev))
}

// next waits for the next report match accepts, skipping the others.
func (r *rig) next(t *testing.T, match func(hid.Report) bool) hid.Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		rep, err := r.reports.Recv(ctx)
		require.NoError(t, err)
		if match(rep) {
			return rep
		}
	}
}

func isKeyboard(r hid.Report) bool {
	_, ok := r.(hid.KeyboardReport)
	return ok
}

func TestTapSendsPressAndRelease(t *testing.T) {
	r := newRig(t)
	r.key(t, colA, true)
	r.key(t, colA, false)

	assert.Equal(t, hid.KeyboardReport{Keys: [hid.BootKeys]uint8{uint8(keycode.A)}}, r.next(t, isKeyboard))
	assert.Equal(t, hid.KeyboardReport{}, r.next(t, isKeyboard))
}

func TestHoldResolvesOnTimer(t *testing.T) {
	r := newRig(t)
	r.key(t, colMT, true)
	// No further input: only the engine deadline can resolve the hold.
	assert.Equal(t, hid.KeyboardReport{Mods: keycode.ModLShift}, r.next(t, isKeyboard))
	r.key(t, colMT, false)
	assert.Equal(t, hid.KeyboardReport{}, r.next(t, isKeyboard))
}

func TestLayerChangesReachStatus(t *testing.T) {
	r := newRig(t)
	r.key(t, colMO, true)
	require.Eventually(t, func() bool {
		s, _ := r.status.Get()
		return s.Layer == 1
	}, 2*time.Second, time.Millisecond)

	r.key(t, colA, true)
	assert.Equal(t, hid.KeyboardReport{Keys: [hid.BootKeys]uint8{uint8(keycode.Kc1)}}, r.next(t, isKeyboard))
	r.key(t, colA, false)
	r.key(t, colMO, false)
	require.Eventually(t, func() bool {
		s, _ := r.status.Get()
		return s.Layer == 0
	}, 2*time.Second, time.Millisecond)
}

func TestReloadSwitchesReportMode(t *testing.T) {
	r := newRig(t)
	beh := keyboard.DefaultBehavior()
	beh.Report = hid.ModeNKRO
	r.reload <- beh
	require.Eventually(t, func() bool { return len(r.reload) == 0 }, 2*time.Second, time.Millisecond)

	r.key(t, colA, true)
	rep := r.next(t, func(rep hid.Report) bool {
		n, ok := rep.(hid.NKROReport)
		return ok && n.Has(keycode.A)
	})
	assert.IsType(t, hid.NKROReport{}, rep)
}

func TestNewNeedsChannels(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
