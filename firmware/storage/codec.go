package storage

import (
	"encoding/binary"
	"fmt"

	"rmk/firmware/action"
	"rmk/firmware/combo"
	"rmk/firmware/keycode"
)

// dec reads a value body; the first failure sticks.
type dec struct {
	b   []byte
	err error
}

func (d *dec) fail() {
	if d.err == nil {
		d.err = fmt.Errorf("%w: short value", ErrCorrupt)
	}
	d.b = nil
}

func (d *dec) u8() uint8 {
	if len(d.b) < 1 {
		d.fail()
		return 0
	}
	v := d.b[0]
	d.b = d.b[1:]
	return v
}

func (d *dec) u16() uint16 {
	if len(d.b) < 2 {
		d.fail()
		return 0
	}
	v := binary.LittleEndian.Uint16(d.b)
	d.b = d.b[2:]
	return v
}

func (d *dec) u32() uint32 {
	if len(d.b) < 4 {
		d.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(d.b)
	d.b = d.b[4:]
	return v
}

func (d *dec) bool() bool { return d.u8() != 0 }

func (d *dec) bytes(n int) []byte {
	if len(d.b) < n {
		d.fail()
		return nil
	}
	v := append([]byte(nil), d.b[:n]...)
	d.b = d.b[n:]
	return v
}

func (d *dec) rest() []byte {
	v := append([]byte(nil), d.b...)
	d.b = nil
	return v
}

func (d *dec) done() error {
	if d.err == nil && len(d.b) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(d.b))
	}
	return d.err
}

func putBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

// Action: kind, key u16, mods, layer, index.
func appendAction(b []byte, a action.Action) []byte {
	b = append(b, byte(a.Kind))
	b = binary.LittleEndian.AppendUint16(b, uint16(a.Key))
	return append(b, byte(a.Mods), a.Layer, a.Index)
}

func (d *dec) action() action.Action {
	a := action.Action{Kind: action.Kind(d.u8())}
	a.Key = keycode.KeyCode(d.u16())
	a.Mods = keycode.ModifierCombination(d.u8())
	a.Layer = d.u8()
	a.Index = d.u8()
	if a.Kind > action.KindOneShotModifier {
		d.err = fmt.Errorf("%w: action kind %d", ErrCorrupt, a.Kind)
	}
	return a
}

func appendProfile(b []byte, p action.MorseProfile) []byte {
	b = append(b, byte(p.Mode), byte(p.UnilateralTap), byte(p.EnableHRM))
	b = binary.LittleEndian.AppendUint16(b, p.TimeoutMs)
	b = binary.LittleEndian.AppendUint16(b, p.GapMs)
	return binary.LittleEndian.AppendUint16(b, p.PriorIdleMs)
}

func (d *dec) profile() action.MorseProfile {
	return action.MorseProfile{
		Mode:          action.MorseMode(d.u8()),
		UnilateralTap: action.Toggle(d.u8()),
		EnableHRM:     action.Toggle(d.u8()),
		TimeoutMs:     d.u16(),
		GapMs:         d.u16(),
		PriorIdleMs:   d.u16(),
	}
}

// KeyAction: kind then only the payload that kind uses.
func appendKeyAction(b []byte, k action.KeyAction) []byte {
	b = append(b, byte(k.Kind))
	switch k.Kind {
	case action.KeyActionSingle, action.KeyActionTap:
		b = appendAction(b, k.Action)
	case action.KeyActionTapHold:
		b = appendAction(b, k.Action)
		b = appendAction(b, k.Hold)
		b = appendProfile(b, k.Profile)
	case action.KeyActionMorse:
		b = append(b, k.Morse)
	}
	return b
}

func (d *dec) keyAction() action.KeyAction {
	k := action.KeyAction{Kind: action.KeyActionKind(d.u8())}
	switch k.Kind {
	case action.KeyActionNo, action.KeyActionTransparent:
	case action.KeyActionSingle, action.KeyActionTap:
		k.Action = d.action()
	case action.KeyActionTapHold:
		k.Action = d.action()
		k.Hold = d.action()
		k.Profile = d.profile()
	case action.KeyActionMorse:
		k.Morse = d.u8()
	default:
		d.err = fmt.Errorf("%w: key action kind %d", ErrCorrupt, k.Kind)
	}
	return k
}

func appendMorse(b []byte, m action.Morse) []byte {
	b = appendProfile(b, m.Profile)
	b = append(b, m.Count)
	for _, e := range m.Entries[:m.Count] {
		b = binary.LittleEndian.AppendUint16(b, uint16(e.Pattern))
		b = appendAction(b, e.Action)
	}
	return b
}

func (d *dec) morse() action.Morse {
	var m action.Morse
	m.Profile = d.profile()
	n := d.u8()
	if n > action.MaxMorsePatterns {
		d.err = fmt.Errorf("%w: %d morse patterns", ErrCorrupt, n)
		return m
	}
	for i := range n {
		m.Entries[i].Pattern = action.MorsePattern(d.u16())
		m.Entries[i].Action = d.action()
	}
	m.Count = n
	return m
}

func appendFork(b []byte, f action.Fork) []byte {
	b = appendKeyAction(b, f.Trigger)
	b = appendKeyAction(b, f.Negative)
	b = appendKeyAction(b, f.Positive)
	b = append(b, byte(f.MatchAny), byte(f.MatchNone), byte(f.Kept))
	return putBool(b, f.Bindable)
}

func (d *dec) fork() action.Fork {
	return action.Fork{
		Trigger:   d.keyAction(),
		Negative:  d.keyAction(),
		Positive:  d.keyAction(),
		MatchAny:  keycode.ModifierCombination(d.u8()),
		MatchNone: keycode.ModifierCombination(d.u8()),
		Kept:      keycode.ModifierCombination(d.u8()),
		Bindable:  d.bool(),
	}
}

func appendCombo(b []byte, c combo.Combo) []byte {
	b = append(b, c.Count)
	for _, k := range c.KeyList() {
		b = appendKeyAction(b, k)
	}
	b = appendAction(b, c.Output)
	b = putBool(b, c.HasLayer)
	b = append(b, c.Layer)
	return binary.LittleEndian.AppendUint16(b, c.TimeoutMs)
}

func (d *dec) combo() combo.Combo {
	var c combo.Combo
	n := d.u8()
	if n > combo.MaxKeys {
		d.err = fmt.Errorf("%w: %d combo keys", ErrCorrupt, n)
		return c
	}
	for i := range n {
		c.Keys[i] = d.keyAction()
	}
	c.Count = n
	c.Output = d.action()
	c.HasLayer = d.bool()
	c.Layer = d.u8()
	c.TimeoutMs = d.u16()
	return c
}
