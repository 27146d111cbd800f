package oneshot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rmk/firmware/keycode"
)

func TestModifierLatchesForNextKey(t *testing.T) {
	m := New(500)
	assert.Equal(t, keycode.ModLShift, m.PressModifier(keycode.ModLShift, 0))
	assert.False(t, m.ReleaseModifier(10).Drop)
	assert.Equal(t, Latched, m.ModState())
	assert.Equal(t, keycode.ModLShift, m.LatchedMods())

	a := m.Consume()
	assert.Equal(t, keycode.ModLShift, a.Mods)
	assert.Equal(t, Idle, m.ModState())
	assert.Zero(t, m.Consume().Mods)
}

func TestModifierUsedWhileHeldDrops(t *testing.T) {
	m := New(500)
	m.PressModifier(keycode.ModLCtrl, 0)
	assert.Zero(t, m.Consume().Mods)
	assert.True(t, m.ReleaseModifier(50).Drop)
	assert.Equal(t, Idle, m.ModState())
}

func TestModifiersAccumulate(t *testing.T) {
	m := New(500)
	m.PressModifier(keycode.ModLCtrl, 0)
	m.ReleaseModifier(10)
	assert.Equal(t, keycode.ModLCtrl|keycode.ModLShift, m.PressModifier(keycode.ModLShift, 20))
	m.ReleaseModifier(30)
	assert.Equal(t, keycode.ModLCtrl|keycode.ModLShift, m.Consume().Mods)
}

func TestDoubleTapSticky(t *testing.T) {
	m := New(500)
	m.PressModifier(keycode.ModLShift, 0)
	m.ReleaseModifier(10)
	m.PressModifier(keycode.ModLShift, 100)
	m.ReleaseModifier(110)
	assert.Equal(t, Sticky, m.ModState())
	assert.Equal(t, keycode.ModLShift, m.StickyMods())
	m.Consume()
	m.Consume()
	assert.Equal(t, Sticky, m.ModState())

	assert.Zero(t, m.PressModifier(keycode.ModLShift, 2000))
	assert.Equal(t, Idle, m.ModState())
	assert.Zero(t, m.StickyMods())
}

func TestLatchExpires(t *testing.T) {
	m := New(300)
	m.PressModifier(keycode.ModLAlt, 0)
	m.ReleaseModifier(10)
	d, ok := m.NextDeadline()
	assert.True(t, ok)
	assert.EqualValues(t, 310, d)
	assert.False(t, m.Advance(309).Mods)
	assert.True(t, m.Advance(310).Mods)
	assert.Zero(t, m.Consume().Mods)
}

func TestLayerLatch(t *testing.T) {
	m := New(500)
	c := m.PressLayer(2, 0)
	assert.True(t, c.On)
	assert.False(t, c.Off)
	assert.False(t, m.ReleaseLayer(10).Drop)
	l, on := m.Layer()
	assert.True(t, on)
	assert.Equal(t, uint8(2), l)

	a := m.Consume()
	assert.True(t, a.DropLayer)
	assert.Equal(t, uint8(2), a.Layer)

	m.PressLayer(1, 100)
	m.ReleaseLayer(110)
	c = m.PressLayer(3, 120)
	assert.True(t, c.On)
	assert.True(t, c.Off)
	assert.Equal(t, uint8(1), c.OffLayer)
}

func TestKeyLatch(t *testing.T) {
	m := New(500)
	assert.True(t, m.PressKey(keycode.Escape, 0))
	assert.False(t, m.ReleaseKey(5).Drop)
	assert.Equal(t, keycode.Escape, m.Consume().Key)
	assert.Equal(t, Idle, m.KeyState())
}
