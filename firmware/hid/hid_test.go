package hid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/clock"
	"rmk/firmware/event"
	"rmk/firmware/keycode"
)

type sent struct {
	r  Report
	at clock.Instant
}

func newComposer(mode Mode) (*Composer, *[]sent) {
	var out []sent
	c := NewComposer(Config{Mode: mode, Send: func(r Report, at clock.Instant) {
		out = append(out, sent{r, at})
	}})
	return c, &out
}

func pos(col uint8) event.Position { return event.Key(0, col) }

func TestKeyboardOnChangeOnly(t *testing.T) {
	c, out := newComposer(ModeBoot)
	require.True(t, c.Press(Record{Owner: pos(0), Key: keycode.A}))
	c.Flush(10, false)
	c.Flush(11, false)
	require.Len(t, *out, 1)
	assert.Equal(t, KeyboardReport{Keys: [6]uint8{uint8(keycode.A)}}, (*out)[0].r)
	assert.EqualValues(t, 10, (*out)[0].at)

	c.Flush(12, true)
	assert.Len(t, *out, 2)

	c.Release(pos(0))
	c.Flush(20, false)
	assert.Equal(t, KeyboardReport{}, (*out)[2].r)
}

func TestModifierOwnership(t *testing.T) {
	c, _ := newComposer(ModeBoot)
	c.Press(Record{Owner: pos(0), Mods: keycode.ModLShift})
	c.Press(Record{Owner: pos(1), Mods: keycode.ModLShift | keycode.ModLCtrl})
	assert.Equal(t, keycode.ModLShift|keycode.ModLCtrl, c.Mods())
	c.Release(pos(1))
	assert.Equal(t, keycode.ModLShift, c.Mods())
	c.Release(pos(0))
	assert.Zero(t, c.Mods())
}

func TestSuppressAndKeyMods(t *testing.T) {
	c, _ := newComposer(ModeBoot)
	c.Press(Record{Owner: pos(0), Mods: keycode.ModLShift})
	c.Press(Record{Owner: pos(1), Key: keycode.Semicolon, Suppress: keycode.ModLShift})
	assert.Zero(t, c.Mods())
	c.Press(Record{Owner: pos(2), Key: keycode.A, KeyMods: keycode.ModLShift})
	assert.Equal(t, keycode.ModLShift, c.Mods())
	c.SetSticky(keycode.ModLGui)
	assert.Equal(t, keycode.ModLShift|keycode.ModLGui, c.Mods())
}

func TestRollover(t *testing.T) {
	c, out := newComposer(ModeBoot)
	keys := []keycode.KeyCode{keycode.A, keycode.B, keycode.C, keycode.D, keycode.E, keycode.F}
	for i, k := range keys {
		c.Press(Record{Owner: pos(uint8(i)), Key: k})
	}
	c.Flush(0, false)
	assert.Equal(t, uint8(keycode.F), (*out)[0].r.(KeyboardReport).Keys[5])

	c.Press(Record{Owner: pos(6), Key: keycode.G})
	c.Flush(1, false)
	kb := (*out)[1].r.(KeyboardReport)
	for _, k := range kb.Keys {
		assert.Equal(t, uint8(keycode.ErrorRollover), k)
	}

	c.Release(pos(0))
	c.Flush(2, false)
	kb = (*out)[2].r.(KeyboardReport)
	assert.Equal(t, uint8(keycode.B), kb.Keys[0])
	assert.Equal(t, uint8(keycode.G), kb.Keys[5])
}

func TestNKRO(t *testing.T) {
	c, out := newComposer(ModeNKRO)
	for i := 0; i < 10; i++ {
		c.Press(Record{Owner: pos(uint8(i)), Key: keycode.A + keycode.KeyCode(i)})
	}
	c.Flush(0, false)
	r := (*out)[0].r.(NKROReport)
	assert.True(t, r.Has(keycode.A))
	assert.True(t, r.Has(keycode.J))
	assert.False(t, r.Has(keycode.K))
	assert.Len(t, Marshal(r), 1+1+NKROBytes)
}

func TestConsumerAndSystem(t *testing.T) {
	c, out := newComposer(ModeBoot)
	c.Press(Record{Owner: pos(0), Key: keycode.AudioVolUp})
	c.Press(Record{Owner: pos(1), Key: keycode.SystemSleep})
	c.Flush(0, false)
	require.Len(t, *out, 2)
	assert.Equal(t, ConsumerReport{Usages: [4]uint16{0x00E9}}, (*out)[0].r)
	assert.Equal(t, SystemReport{Usage: keycode.SystemSleep.SystemUsage()}, (*out)[1].r)
	assert.Equal(t, []byte{IDConsumer, 0xE9, 0, 0, 0, 0, 0, 0, 0}, Marshal((*out)[0].r))
}

func TestMouseTicks(t *testing.T) {
	c, out := newComposer(ModeBoot)
	c.Press(Record{Owner: pos(0), Key: keycode.MouseRight})
	c.Flush(100, false)
	require.Len(t, *out, 1)
	assert.Equal(t, MouseReport{X: DefaultMouseStep}, (*out)[0].r)

	d, ok := c.NextDeadline()
	require.True(t, ok)
	assert.EqualValues(t, 120, d)
	c.Advance(145)
	assert.Len(t, *out, 3)

	c.Release(pos(0))
	c.Flush(150, false)
	c.Advance(160)
	_, ok = c.NextDeadline()
	assert.False(t, ok)
	assert.Len(t, *out, 3)
}

func TestMouseButtonsAndAxis(t *testing.T) {
	c, out := newComposer(ModeBoot)
	c.Press(Record{Owner: pos(0), Key: keycode.MouseBtn2})
	c.Flush(0, false)
	assert.Equal(t, MouseReport{Buttons: 0b10}, (*out)[0].r)
	c.Move(300, -5, 0, 0, 1)
	assert.Equal(t, MouseReport{Buttons: 0b10, X: 127, Y: -5}, (*out)[1].r)
	c.Move(0, 0, 0, 0, 2)
	assert.Len(t, *out, 2)
}

func TestDescriptorIDs(t *testing.T) {
	ids := map[uint8]bool{}
	for i := 0; i+1 < len(Descriptor); i++ {
		if Descriptor[i] == 0x85 {
			ids[Descriptor[i+1]] = true
		}
	}
	for _, id := range []uint8{IDKeyboard, IDMouse, IDConsumer, IDSystem, IDNKRO} {
		assert.True(t, ids[id], "report id %d", id)
	}
}
