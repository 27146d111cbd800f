package keycode

import "strings"

// ModifierCombination is the HID modifier byte.
//
// Bit layout: 0 LCtrl, 1 LShift, 2 LAlt, 3 LGui, 4 RCtrl, 5 RShift, 6 RAlt, 7 RGui.
type ModifierCombination uint8

const (
	ModLCtrl ModifierCombination = 1 << iota
	ModLShift
	ModLAlt
	ModLGui
	ModRCtrl
	ModRShift
	ModRAlt
	ModRGui
)

const (
	ModCtrl  = ModLCtrl | ModRCtrl
	ModShift = ModLShift | ModRShift
	ModAlt   = ModLAlt | ModRAlt
	ModGui   = ModLGui | ModRGui
)

// Has reports whether every bit of m2 is set in m.
func (m ModifierCombination) Has(m2 ModifierCombination) bool { return m&m2 == m2 && m2 != 0 }

// Any reports whether any bit of m2 is set in m.
func (m ModifierCombination) Any(m2 ModifierCombination) bool { return m&m2 != 0 }

// Keys returns the modifier keycodes set in m, left side first.
func (m ModifierCombination) Keys() []KeyCode {
	var out []KeyCode
	for i := 0; i < 8; i++ {
		if m&(1<<i) != 0 {
			out = append(out, LCtrl+KeyCode(i))
		}
	}
	return out
}

// Packed returns Vial's 5-bit modifier encoding:
// bit0 ctrl, bit1 shift, bit2 alt, bit3 gui, bit4 right hand.
//
// Mixed-hand combinations cannot be packed; right-hand bits win.
func (m ModifierCombination) Packed() uint8 {
	if m>>4 != 0 {
		return uint8(m>>4)&0x0F | 0x10
	}
	return uint8(m) & 0x0F
}

// FromPacked decodes Vial's 5-bit modifier encoding.
func FromPacked(p uint8) ModifierCombination {
	bits := ModifierCombination(p & 0x0F)
	if p&0x10 != 0 {
		return bits << 4
	}
	return bits
}

func (m ModifierCombination) String() string {
	if m == 0 {
		return "none"
	}
	names := [...]string{"LCtrl", "LShift", "LAlt", "LGui", "RCtrl", "RShift", "RAlt", "RGui"}
	var parts []string
	for i, n := range names {
		if m&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}
