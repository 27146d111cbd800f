// Package macro stores macros in the Vial byte format and plays them back.
//
// A macro buffer holds NumSlots macros separated by 0x00. Inside a macro,
// printable bytes are typed as text and 0x01 starts an action:
//
//	01 01 kc        tap kc
//	01 02 kc        press kc
//	01 03 kc        release kc
//	01 04 d1 d2     delay (d1-1) + (d2-1)*255 ms
//	01 05 lo hi     tap 16-bit keycode
//	01 06 lo hi     press 16-bit keycode
//	01 07 lo hi     release 16-bit keycode
package macro

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rmk/firmware/keycode"
)

const (
	// NumSlots is the number of addressable macros.
	NumSlots = 32
	// DefaultBufferSize is the byte budget shared by all slots.
	DefaultBufferSize = 1024

	prefix   = 0x01
	opTap    = 0x01
	opDown   = 0x02
	opUp     = 0x03
	opDelay  = 0x04
	opTap16  = 0x05
	opDown16 = 0x06
	opUp16   = 0x07
)

var (
	ErrSlot      = errors.New("macro: slot out of range")
	ErrMalformed = errors.New("macro: malformed payload")
	ErrTooLarge  = errors.New("macro: buffer full")
)

// OpKind discriminates Op.
type OpKind uint8

const (
	OpTap OpKind = iota
	OpPress
	OpRelease
	OpDelay
	OpText
)

// Op is one decoded macro step.
type Op struct {
	Kind  OpKind
	Key   keycode.KeyCode
	Mods  keycode.ModifierCombination
	Delay uint16
	Char  byte
}

func Tap(kc keycode.KeyCode) Op     { return Op{Kind: OpTap, Key: kc} }
func Press(kc keycode.KeyCode) Op   { return Op{Kind: OpPress, Key: kc} }
func Release(kc keycode.KeyCode) Op { return Op{Kind: OpRelease, Key: kc} }
func Delay(ms uint16) Op            { return Op{Kind: OpDelay, Delay: ms} }
func Text(c byte) Op                { return Op{Kind: OpText, Char: c} }

func (o Op) String() string {
	switch o.Kind {
	case OpTap:
		return fmt.Sprintf("Tap(%s)", o.Key)
	case OpPress:
		return fmt.Sprintf("Down(%s)", o.Key)
	case OpRelease:
		return fmt.Sprintf("Up(%s)", o.Key)
	case OpDelay:
		return fmt.Sprintf("Delay(%d)", o.Delay)
	default:
		return fmt.Sprintf("Text(%q)", o.Char)
	}
}

// next decodes the op at data[off:]. n is 0 at the end of the macro.
func next(data []byte, off int) (Op, int, error) {
	if off >= len(data) || data[off] == 0 {
		return Op{}, 0, nil
	}
	b := data[off]
	if b != prefix {
		if b < 0x20 || b > 0x7E {
			return Op{}, 0, fmt.Errorf("%w: byte %#x at %d", ErrMalformed, b, off)
		}
		return Text(b), 1, nil
	}
	if off+2 >= len(data) {
		return Op{}, 0, fmt.Errorf("%w: truncated action at %d", ErrMalformed, off)
	}
	code := data[off+1]
	switch code {
	case opTap, opDown, opUp:
		kinds := [...]OpKind{opTap: OpTap, opDown: OpPress, opUp: OpRelease}
		return Op{Kind: kinds[code], Key: keycode.KeyCode(data[off+2])}, 3, nil
	case opDelay, opTap16, opDown16, opUp16:
		if off+3 >= len(data) {
			return Op{}, 0, fmt.Errorf("%w: truncated action at %d", ErrMalformed, off)
		}
		lo, hi := data[off+2], data[off+3]
		if code == opDelay {
			return Delay(uint16(lo-1) + uint16(hi-1)*255), 4, nil
		}
		kinds := [...]OpKind{opTap16: OpTap, opDown16: OpPress, opUp16: OpRelease}
		kc, mods := split16(uint16(lo) | uint16(hi)<<8)
		return Op{Kind: kinds[code], Key: kc, Mods: mods}, 4, nil
	}
	return Op{}, 0, fmt.Errorf("%w: action code %#x at %d", ErrMalformed, code, off)
}

// split16 unpacks a 16-bit basic or modifier-wrapped keycode.
func split16(v uint16) (keycode.KeyCode, keycode.ModifierCombination) {
	if v >= 0x0100 && v < 0x2000 {
		return keycode.KeyCode(v & 0xFF), keycode.FromPacked(uint8(v >> 8))
	}
	return keycode.KeyCode(v), 0
}

// Decode reads one macro (up to its 0x00 terminator).
func Decode(data []byte) ([]Op, error) {
	var ops []Op
	for off := 0; ; {
		op, n, err := next(data, off)
		if err != nil {
			return ops, err
		}
		if n == 0 {
			return ops, nil
		}
		ops = append(ops, op)
		off += n
	}
}

// Encode writes ops in the byte format without the terminator.
func Encode(ops []Op) ([]byte, error) {
	var out []byte
	for _, op := range ops {
		switch op.Kind {
		case OpText:
			if op.Char < 0x20 || op.Char > 0x7E {
				return nil, fmt.Errorf("%w: text byte %#x", ErrMalformed, op.Char)
			}
			out = append(out, op.Char)
		case OpDelay:
			lo, hi := op.Delay%255+1, op.Delay/255+1
			if hi > 0xFF {
				return nil, fmt.Errorf("%w: delay %d", ErrMalformed, op.Delay)
			}
			out = append(out, prefix, opDelay, byte(lo), byte(hi))
		default:
			code := map[OpKind]byte{OpTap: opTap, OpPress: opDown, OpRelease: opUp}[op.Kind]
			if op.Key <= 0xFF && op.Key != 0 && op.Mods == 0 {
				out = append(out, prefix, code, byte(op.Key))
				continue
			}
			v := uint16(op.Key)
			if op.Mods != 0 {
				if op.Key > 0xFF {
					return nil, fmt.Errorf("%w: modifiers on %s", ErrMalformed, op.Key)
				}
				v |= uint16(op.Mods.Packed()) << 8
			}
			if byte(v) == 0 || byte(v>>8) == 0 {
				return nil, fmt.Errorf("%w: keycode %#x collides with the terminator", ErrMalformed, v)
			}
			out = append(out, prefix, code+4, byte(v), byte(v>>8))
		}
	}
	return out, nil
}

// ParseOps reads the description notation, one op per string:
//
//	Tap(A) Down(LShift) Up(LShift) Delay(100) Text(hello)
func ParseOps(list []string) ([]Op, error) {
	var ops []Op
	for _, s := range list {
		s = strings.TrimSpace(s)
		open := strings.IndexByte(s, '(')
		if open < 0 || !strings.HasSuffix(s, ")") {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
		name, arg := strings.ToLower(s[:open]), s[open+1:len(s)-1]
		switch name {
		case "text":
			for i := 0; i < len(arg); i++ {
				ops = append(ops, Text(arg[i]))
			}
			continue
		case "delay":
			ms, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 16)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
			}
			ops = append(ops, Delay(uint16(ms)))
			continue
		}
		kc, ok := keycode.Lookup(strings.TrimSpace(arg))
		if !ok {
			return nil, fmt.Errorf("%w: unknown key in %q", ErrMalformed, s)
		}
		switch name {
		case "tap":
			ops = append(ops, Tap(kc))
		case "down", "press":
			ops = append(ops, Press(kc))
		case "up", "release":
			ops = append(ops, Release(kc))
		default:
			return nil, fmt.Errorf("%w: unknown op %q", ErrMalformed, s)
		}
	}
	return ops, nil
}
