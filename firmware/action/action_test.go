package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/keycode"
)

func TestParseSimple(t *testing.T) {
	cases := map[string]KeyAction{
		"A":           Single(Key(keycode.A)),
		"No":          NoKey,
		"_":           TransparentKey,
		"LShift":      Single(Modifier(keycode.ModLShift)),
		"MO(1)":       Single(LayerOn(1)),
		"TG(2)":       Single(LayerToggle(2)),
		"TO(3)":       Single(LayerToggleOnly(3)),
		"DF(1)":       Single(DefaultLayer(1)),
		"OSL(2)":      Single(OneShotLayer(2)),
		"OSM(LShift)": Single(OneShotModifier(keycode.ModLShift)),
		"OSK(LCtrl)":  Single(OneShotModifier(keycode.ModLCtrl)),
		"OSK(B)":      Single(OneShotKey(keycode.B)),
		"Macro(3)":    Single(TriggerMacro(3)),
		"Macro3":      Single(TriggerMacro(3)),
		"TD(4)":       MorseRef(4),
		"Tap(Enter)":  Tap(Key(keycode.Enter)),
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseTapHold(t *testing.T) {
	ka, err := Parse("LT(1, Space)")
	require.NoError(t, err)
	assert.Equal(t, KeyActionTapHold, ka.Kind)
	assert.Equal(t, Key(keycode.Space), ka.Action)
	assert.Equal(t, LayerOn(1), ka.Hold)

	ka, err = Parse("MT(A, LShift|LCtrl)")
	require.NoError(t, err)
	assert.Equal(t, Modifier(keycode.ModLShift|keycode.ModLCtrl), ka.Hold)
	assert.Equal(t, Inherit, ka.Profile.EnableHRM)

	ka, err = Parse("HRM(F, LGui)")
	require.NoError(t, err)
	assert.Equal(t, On, ka.Profile.EnableHRM)

	ka, err = Parse("TH(WM(A, LCtrl), MO(2))")
	require.NoError(t, err)
	assert.Equal(t, KeyWithModifier(keycode.A, keycode.ModLCtrl), ka.Action)
	assert.Equal(t, LayerOn(2), ka.Hold)
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"Nope", "MO(", "MO(1,2)", "MT(A, B)", "LT(x, A)", "Macro(99)", "WM(A)", "OSM()"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrSyntax, in)
	}
}

func TestPattern(t *testing.T) {
	assert.Equal(t, 0, PatternEmpty.Len())
	assert.Equal(t, 1, PatternTap.Len())
	assert.Equal(t, ".", PatternTap.String())
	assert.Equal(t, "-", PatternHold.String())
	assert.Equal(t, ".-", PatternTapHold.String())
	assert.True(t, PatternTapHold.HasPrefix(PatternTap))
	assert.False(t, PatternTapHold.HasPrefix(PatternHold))
	assert.True(t, PatternTapHold.IsHold(1))
	assert.False(t, PatternTapHold.IsHold(0))

	p, err := ParsePattern("..-")
	require.NoError(t, err)
	assert.Equal(t, PatternDoubleTap.Hold(), p)
	_, err = ParsePattern("x")
	assert.Error(t, err)
}

func TestMorseTable(t *testing.T) {
	m := NewTapDance(
		[]Action{Key(keycode.A), Key(keycode.B)},
		[]Action{Modifier(keycode.ModLShift)},
		MorseProfile{})
	a, ok := m.Lookup(PatternDoubleTap)
	require.True(t, ok)
	assert.Equal(t, Key(keycode.B), a)
	assert.True(t, m.CanExtend(PatternTap))
	assert.False(t, m.CanExtend(PatternDoubleTap))
	assert.False(t, m.IsTapHold())

	th := NewTapHold(Key(keycode.B), Modifier(keycode.ModLShift), MorseProfile{})
	assert.True(t, th.IsTapHold())
	assert.Equal(t, Key(keycode.B), th.TapAction())
	assert.Equal(t, Modifier(keycode.ModLShift), th.HoldAction())

	var full Morse
	for i := 0; i < MaxMorsePatterns; i++ {
		require.NoError(t, full.Put(PatternEmpty.Tap()<<uint(i), Key(keycode.A)))
	}
	assert.ErrorIs(t, full.Put(PatternHold, No), ErrMorseFull)
}

func TestProfileMerge(t *testing.T) {
	parent := MorseProfile{Mode: ModeNormal, EnableHRM: Off, UnilateralTap: On, TimeoutMs: 250, GapMs: 200, PriorIdleMs: 120}
	got := MorseProfile{Mode: ModePermissiveHold, TimeoutMs: 180}.Merge(parent)
	assert.Equal(t, ModePermissiveHold, got.Mode)
	assert.Equal(t, uint16(180), got.TimeoutMs)
	assert.Equal(t, uint16(200), got.GapMs)
	assert.True(t, got.UnilateralTap.Or(false))
	assert.False(t, got.EnableHRM.Or(true))
}

func TestForkMatch(t *testing.T) {
	f := Fork{
		Trigger:  Single(Key(keycode.Dot)),
		Negative: Single(Key(keycode.Dot)),
		Positive: Single(KeyWithModifier(keycode.Semicolon, keycode.ModLShift)),
		MatchAny: keycode.ModShift,
	}
	assert.False(t, f.Matches(0))
	assert.True(t, f.Matches(keycode.ModLShift))
	assert.Equal(t, keycode.ModLShift, f.Suppressed(keycode.ModLShift|keycode.ModLCtrl))

	f.Kept = keycode.ModLShift
	assert.Equal(t, keycode.ModifierCombination(0), f.Suppressed(keycode.ModLShift))

	f.MatchNone = keycode.ModLCtrl
	assert.False(t, f.Matches(keycode.ModLShift|keycode.ModLCtrl))
}
