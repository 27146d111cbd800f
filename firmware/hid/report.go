// Package hid builds the keyboard, consumer, system and mouse reports the
// host sees, and decides when a new one must be sent.
package hid

import (
	"encoding/binary"
	"fmt"

	"rmk/firmware/keycode"
)

// Report IDs of the composite descriptor.
const (
	IDKeyboard uint8 = 1
	IDMouse    uint8 = 2
	IDConsumer uint8 = 3
	IDSystem   uint8 = 4
	IDNKRO     uint8 = 5
)

// Bits of the host's LED output report.
const (
	LEDNumLock uint8 = 1 << iota
	LEDCapsLock
	LEDScrollLock
	LEDCompose
	LEDKana
)

// BootKeys is the key slot count of a boot keyboard report.
const BootKeys = 6

// NKROBytes covers usages 0x00..0xEF, one bit each.
const NKROBytes = 30

// Report is one input report ready for a transport.
type Report interface {
	ID() uint8
	// AppendTo appends the report payload (without the ID byte).
	AppendTo(b []byte) []byte
}

// KeyboardReport is the 8-byte boot report.
type KeyboardReport struct {
	Mods keycode.ModifierCombination
	Keys [BootKeys]uint8
}

func (KeyboardReport) ID() uint8 { return IDKeyboard }

func (r KeyboardReport) AppendTo(b []byte) []byte {
	b = append(b, uint8(r.Mods), 0)
	return append(b, r.Keys[:]...)
}

func (r KeyboardReport) String() string {
	return fmt.Sprintf("kbd mods=%s keys=% x", r.Mods, r.Keys)
}

// NKROReport carries one bit per usage.
type NKROReport struct {
	Mods keycode.ModifierCombination
	Bits [NKROBytes]uint8
}

func (NKROReport) ID() uint8 { return IDNKRO }

func (r NKROReport) AppendTo(b []byte) []byte {
	b = append(b, uint8(r.Mods))
	return append(b, r.Bits[:]...)
}

func (r *NKROReport) Set(kc keycode.KeyCode) {
	if kc < NKROBytes*8 {
		r.Bits[kc/8] |= 1 << (kc % 8)
	}
}

func (r NKROReport) Has(kc keycode.KeyCode) bool {
	return kc < NKROBytes*8 && r.Bits[kc/8]&(1<<(kc%8)) != 0
}

func (r NKROReport) String() string {
	var n int
	for kc := keycode.KeyCode(0); kc < NKROBytes*8; kc++ {
		if r.Has(kc) {
			n++
		}
	}
	return fmt.Sprintf("nkro mods=%s keys=%d", r.Mods, n)
}

// ConsumerReport holds up to four consumer page usages.
type ConsumerReport struct {
	Usages [4]uint16
}

func (ConsumerReport) ID() uint8 { return IDConsumer }

func (r ConsumerReport) AppendTo(b []byte) []byte {
	for _, u := range r.Usages {
		b = binary.LittleEndian.AppendUint16(b, u)
	}
	return b
}

func (r ConsumerReport) String() string { return fmt.Sprintf("consumer %04x", r.Usages) }

// SystemReport holds one system control usage.
type SystemReport struct {
	Usage uint8
}

func (SystemReport) ID() uint8 { return IDSystem }

func (r SystemReport) AppendTo(b []byte) []byte { return append(b, r.Usage) }

func (r SystemReport) String() string { return fmt.Sprintf("system %02x", r.Usage) }

// MouseReport is buttons plus relative motion.
type MouseReport struct {
	Buttons uint8
	X       int8
	Y       int8
	Wheel   int8
	Pan     int8
}

func (MouseReport) ID() uint8 { return IDMouse }

func (r MouseReport) AppendTo(b []byte) []byte {
	return append(b, r.Buttons, uint8(r.X), uint8(r.Y), uint8(r.Wheel), uint8(r.Pan))
}

func (r MouseReport) String() string {
	return fmt.Sprintf("mouse btn=%02x x=%d y=%d wheel=%d pan=%d", r.Buttons, r.X, r.Y, r.Wheel, r.Pan)
}

// Moving reports whether the report carries any motion.
func (r MouseReport) Moving() bool { return r.X != 0 || r.Y != 0 || r.Wheel != 0 || r.Pan != 0 }

// Marshal prefixes the payload with its report ID.
func Marshal(r Report) []byte {
	return r.AppendTo([]byte{r.ID()})
}

func clamp8(v int) int8 {
	switch {
	case v > 127:
		return 127
	case v < -127:
		return -127
	}
	return int8(v)
}
