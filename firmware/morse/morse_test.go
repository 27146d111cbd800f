package morse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/action"
	"rmk/firmware/event"
	"rmk/firmware/keycode"
)

var (
	mPos = event.Key(0, 0)
	kPos = event.Key(0, 1)
	rPos = event.Key(0, 9)
)

type rig struct {
	r   *Resolver
	out []Effect
}

func newRig(t *testing.T, m action.Morse, defaults action.MorseProfile) *rig {
	t.Helper()
	g := &rig{}
	g.r = New(Config{
		Defaults:  defaults,
		QueueSize: 4,
		Lookup: func(pos event.Position) (action.Morse, bool) {
			return m, pos == mPos
		},
		Hand: func(pos event.Position) Hand {
			if pos.Key.Col < 5 {
				return HandLeft
			}
			return HandRight
		},
		Emit: func(e Effect) { g.out = append(g.out, e) },
	})
	return g
}

func defaults() action.MorseProfile {
	return action.MorseProfile{Mode: action.ModeNormal, TimeoutMs: 250, GapMs: 200, PriorIdleMs: 120}
}

func tapHold() action.Morse {
	return action.NewTapHold(action.Key(keycode.B), action.Modifier(keycode.ModLShift), action.MorseProfile{})
}

func TestReleaseTaps(t *testing.T) {
	g := newRig(t, tapHold(), defaults())
	g.r.Feed(event.Press(mPos, 0))
	assert.True(t, g.r.Waiting())
	g.r.Feed(event.Release(mPos, 100))
	require.Len(t, g.out, 1)
	assert.Equal(t, EffectTap, g.out[0].Kind)
	assert.Equal(t, RuleRelease, g.out[0].Rule)
	assert.Equal(t, action.Key(keycode.B), g.out[0].Action)
	assert.False(t, g.r.Waiting())
}

func TestTimeoutHolds(t *testing.T) {
	g := newRig(t, tapHold(), defaults())
	g.r.Feed(event.Press(mPos, 0))
	d, ok := g.r.NextDeadline()
	require.True(t, ok)
	assert.EqualValues(t, 250, d)
	g.r.Advance(250)
	require.Len(t, g.out, 1)
	assert.Equal(t, EffectPress, g.out[0].Kind)
	assert.Equal(t, RuleTimeout, g.out[0].Rule)
	assert.EqualValues(t, 250, g.out[0].Event.Time)

	g.r.Feed(event.Release(mPos, 400))
	assert.Equal(t, EffectPass, g.out[1].Kind)
}

func TestNormalModeQueuesInterruptions(t *testing.T) {
	g := newRig(t, tapHold(), defaults())
	g.r.Feed(event.Press(mPos, 0))
	g.r.Feed(event.Press(kPos, 50))
	g.r.Feed(event.Release(kPos, 80))
	assert.Empty(t, g.out)
	assert.Equal(t, 2, g.r.Queued())

	g.r.Feed(event.Release(mPos, 100))
	require.Len(t, g.out, 3)
	assert.Equal(t, EffectTap, g.out[0].Kind)
	assert.Equal(t, event.Press(kPos, 50), g.out[1].Event)
	assert.Equal(t, event.Release(kPos, 80), g.out[2].Event)
}

func TestPermissiveHold(t *testing.T) {
	p := defaults()
	p.Mode = action.ModePermissiveHold
	g := newRig(t, tapHold(), p)
	g.r.Feed(event.Press(mPos, 0))
	g.r.Feed(event.Press(kPos, 50))
	g.r.Feed(event.Release(kPos, 80))
	require.Len(t, g.out, 3)
	assert.Equal(t, EffectPress, g.out[0].Kind)
	assert.Equal(t, RulePermissive, g.out[0].Rule)
	assert.EqualValues(t, 50, g.out[0].Event.Time)
	assert.Equal(t, EffectPass, g.out[1].Kind)
	assert.Equal(t, EffectPass, g.out[2].Kind)
}

func TestHoldOnOtherPress(t *testing.T) {
	p := defaults()
	p.Mode = action.ModeHoldOnOtherPress
	g := newRig(t, tapHold(), p)
	g.r.Feed(event.Press(mPos, 0))
	g.r.Feed(event.Press(kPos, 30))
	require.Len(t, g.out, 2)
	assert.Equal(t, RuleHoldOnOther, g.out[0].Rule)
	assert.Equal(t, action.Modifier(keycode.ModLShift), g.out[0].Action)
}

func TestUnilateralTap(t *testing.T) {
	p := defaults()
	p.EnableHRM = action.On
	p.UnilateralTap = action.On
	g := newRig(t, tapHold(), p)
	g.r.Feed(event.Press(mPos, 0))
	g.r.Feed(event.Press(kPos, 30))
	require.Len(t, g.out, 2)
	assert.Equal(t, RuleUnilateral, g.out[0].Rule)
	assert.Equal(t, EffectPress, g.out[0].Kind)
	assert.Equal(t, action.Key(keycode.B), g.out[0].Action)

	// Opposite hand does not trigger it.
	g = newRig(t, tapHold(), p)
	g.r.Feed(event.Press(mPos, 0))
	g.r.Feed(event.Press(rPos, 30))
	assert.Empty(t, g.out)
}

func TestFlowTap(t *testing.T) {
	p := defaults()
	p.EnableHRM = action.On
	g := newRig(t, tapHold(), p)
	g.r.Feed(event.Press(kPos, 0))
	g.r.Feed(event.Release(kPos, 20))
	g.r.Feed(event.Press(mPos, 110))
	require.Len(t, g.out, 3)
	assert.Equal(t, EffectTap, g.out[2].Kind)
	assert.Equal(t, RuleFlowTap, g.out[2].Rule)
	assert.False(t, g.r.Waiting())

	// After a pause the key resolves normally again.
	g.r.Feed(event.Release(mPos, 150))
	g.r.Feed(event.Press(mPos, 400))
	assert.True(t, g.r.Waiting())
}

func TestEmptyTapSlotSendsNothing(t *testing.T) {
	m := action.NewTapHold(action.No, action.Modifier(keycode.ModLShift), action.MorseProfile{})
	g := newRig(t, m, defaults())
	g.r.Feed(event.Press(mPos, 0))
	g.r.Feed(event.Release(mPos, 100))
	for _, e := range g.out {
		assert.NotEqual(t, EffectTap, e.Kind)
		assert.NotEqual(t, EffectPress, e.Kind)
	}
	assert.False(t, g.r.Waiting())

	// The hold slot still works.
	g.r.Feed(event.Press(mPos, 1000))
	g.r.Advance(1250)
	require.NotEmpty(t, g.out)
	last := g.out[len(g.out)-1]
	assert.Equal(t, EffectPress, last.Kind)
	assert.Equal(t, action.Modifier(keycode.ModLShift), last.Action)
}

func TestTapDance(t *testing.T) {
	m := action.NewTapDance(
		[]action.Action{action.Key(keycode.A), action.Key(keycode.B)},
		[]action.Action{action.Key(keycode.C), action.Key(keycode.D)},
		action.MorseProfile{},
	)
	g := newRig(t, m, defaults())
	g.r.Feed(event.Press(mPos, 0))
	g.r.Feed(event.Release(mPos, 50))
	assert.Empty(t, g.out)
	g.r.Feed(event.Press(mPos, 100))
	g.r.Feed(event.Release(mPos, 150))
	require.Len(t, g.out, 1)
	assert.Equal(t, action.Key(keycode.B), g.out[0].Action)
	assert.Equal(t, action.PatternDoubleTap, g.out[0].Pattern)

	// tap then hold
	g.out = nil
	g.r.Feed(event.Press(mPos, 1000))
	g.r.Feed(event.Release(mPos, 1050))
	g.r.Feed(event.Press(mPos, 1100))
	g.r.Advance(1350)
	require.Len(t, g.out, 1)
	assert.Equal(t, action.Key(keycode.D), g.out[0].Action)
	assert.Equal(t, EffectPress, g.out[0].Kind)

	// single tap resolves after the gap
	g.out = nil
	g.r.Feed(event.Release(mPos, 1400))
	g.r.Feed(event.Press(mPos, 2000))
	g.r.Feed(event.Release(mPos, 2050))
	g.r.Advance(2250)
	require.Len(t, g.out, 2)
	assert.Equal(t, RuleGap, g.out[1].Rule)
	assert.Equal(t, action.Key(keycode.A), g.out[1].Action)
}

func TestOverflowForcesHold(t *testing.T) {
	g := newRig(t, tapHold(), defaults())
	g.r.Feed(event.Press(mPos, 0))
	for i := 0; i < 4; i++ {
		g.r.Feed(event.Press(event.Key(1, uint8(i)), 10))
	}
	assert.Empty(t, g.out)
	g.r.Feed(event.Press(event.Key(2, 0), 20))
	require.Len(t, g.out, 6)
	assert.Equal(t, RuleOverflow, g.out[0].Rule)
	assert.Equal(t, EffectPress, g.out[0].Kind)
}

func TestTable(t *testing.T) {
	tab, err := NewTable(tapHold())
	require.NoError(t, err)
	m, ok := tab.For(action.MorseRef(0))
	require.True(t, ok)
	assert.True(t, m.IsTapHold())
	_, ok = tab.For(action.MorseRef(1))
	assert.False(t, ok)
	m, ok = tab.For(action.MustParse("LT(1, Space)"))
	require.True(t, ok)
	assert.Equal(t, action.LayerOn(1), m.HoldAction())
	assert.ErrorIs(t, tab.Set(MaxMorses, action.Morse{}), ErrIndex)
}
