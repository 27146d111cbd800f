package combo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/action"
	"rmk/firmware/clock"
	"rmk/firmware/event"
)

// row 0: A B C D
var cells = []string{"A", "B", "C", "D"}

type rig struct {
	stage *Stage
	out   []event.KeyEvent
}

func newRig(t *testing.T, combos ...Combo) *rig {
	t.Helper()
	tab, err := NewTable(combos...)
	require.NoError(t, err)
	r := &rig{}
	r.stage = NewStage(tab, Config{
		TimeoutMs: 50,
		Lookup: func(pos event.Position) action.KeyAction {
			return action.MustParse(cells[pos.Key.Col])
		},
		Emit: func(ev event.KeyEvent) { r.out = append(r.out, ev) },
	})
	return r
}

func mk(t *testing.T, out string, keys ...string) Combo {
	t.Helper()
	var kas []action.KeyAction
	for _, k := range keys {
		kas = append(kas, action.MustParse(k))
	}
	c, err := New(kas, action.MustParse(out).Action)
	require.NoError(t, err)
	return c
}

func key(col uint8) event.Position { return event.Key(0, col) }

func TestComboFires(t *testing.T) {
	r := newRig(t, mk(t, "X", "A", "B"))
	r.stage.Process(event.Press(key(0), 0))
	assert.Empty(t, r.out)
	r.stage.Process(event.Press(key(1), 20))
	r.stage.Process(event.Release(key(1), 60))
	r.stage.Process(event.Release(key(0), 100))
	assert.Equal(t, []event.KeyEvent{
		event.Press(event.Virtual(0), 20),
		event.Release(event.Virtual(0), 100),
	}, r.out)
	assert.Equal(t, "X", r.stage.Output(0).String())
}

func TestComboTimeoutFlushes(t *testing.T) {
	r := newRig(t, mk(t, "X", "A", "B"))
	r.stage.Process(event.Press(key(0), 0))
	d, ok := r.stage.NextDeadline()
	require.True(t, ok)
	assert.EqualValues(t, 50, d)
	r.stage.Advance(50)
	r.stage.Process(event.Press(key(1), 60))
	// B alone starts a new chord.
	assert.Equal(t, []event.KeyEvent{event.Press(key(0), 0)}, r.out)
	assert.True(t, r.stage.Pending())
}

func TestNonCandidateFlushes(t *testing.T) {
	r := newRig(t, mk(t, "X", "A", "B"))
	r.stage.Process(event.Press(key(0), 0))
	r.stage.Process(event.Press(key(2), 10))
	assert.Equal(t, []event.KeyEvent{
		event.Press(key(0), 0),
		event.Press(key(2), 10),
	}, r.out)
	assert.False(t, r.stage.Pending())
}

func TestReleaseBeforeMatchFlushes(t *testing.T) {
	r := newRig(t, mk(t, "X", "A", "B"))
	r.stage.Process(event.Press(key(0), 0))
	r.stage.Process(event.Release(key(0), 10))
	assert.Equal(t, []event.KeyEvent{
		event.Press(key(0), 0),
		event.Release(key(0), 10),
	}, r.out)
}

func TestSupersetWaitsThenFiresSubset(t *testing.T) {
	r := newRig(t, mk(t, "X", "A", "B"), mk(t, "Y", "A", "B", "C"))
	r.stage.Process(event.Press(key(0), 0))
	r.stage.Process(event.Press(key(1), 10))
	assert.Empty(t, r.out)
	r.stage.Advance(50)
	assert.Equal(t, []event.KeyEvent{event.Press(event.Virtual(0), 50)}, r.out)
}

func TestSupersetCompletes(t *testing.T) {
	r := newRig(t, mk(t, "X", "A", "B"), mk(t, "Y", "A", "B", "C"))
	r.stage.Process(event.Press(key(0), 0))
	r.stage.Process(event.Press(key(1), 10))
	r.stage.Process(event.Press(key(2), 20))
	assert.Equal(t, []event.KeyEvent{event.Press(event.Virtual(1), 20)}, r.out)
}

func TestLayerRestricted(t *testing.T) {
	r := newRig(t, mk(t, "X", "A", "B").OnLayer(1))
	r.stage.cfg.LayerActive = func(n uint8) bool { return n == 0 }
	r.stage.Process(event.Press(key(0), 0))
	assert.Equal(t, []event.KeyEvent{event.Press(key(0), 0)}, r.out)
}

func TestDisabledPassesThrough(t *testing.T) {
	r := newRig(t, mk(t, "X", "A", "B"))
	r.stage.Process(event.Press(key(0), 0))
	r.stage.SetEnabled(false)
	r.stage.Process(event.Press(key(1), 5))
	assert.Equal(t, []event.KeyEvent{
		event.Press(key(0), 0),
		event.Press(key(1), 5),
	}, r.out)
}

// A chord either fires as one virtual key or every key goes through on its
// own, never both.
func TestFireOrFlushExclusive(t *testing.T) {
	for gap := uint64(0); gap < 120; gap += 7 {
		r := newRig(t, mk(t, "X", "A", "B"))
		r.stage.Process(event.Press(key(0), 0))
		r.stage.Advance(clock.Instant(gap))
		r.stage.Process(event.Press(key(1), clock.Instant(gap)))
		r.stage.Process(event.Release(key(0), clock.Instant(gap+30)))
		r.stage.Process(event.Release(key(1), clock.Instant(gap+40)))
		r.stage.Advance(clock.Instant(gap + 200))

		var virt, phys int
		for _, ev := range r.out {
			if ev.Pos.Kind == event.PosVirtual {
				virt++
			} else {
				phys++
			}
		}
		if gap < 50 {
			assert.Equal(t, 2, virt, "gap %d", gap)
			assert.Zero(t, phys, "gap %d", gap)
		} else {
			assert.Zero(t, virt, "gap %d", gap)
			assert.Equal(t, 4, phys, "gap %d", gap)
		}
	}
}
