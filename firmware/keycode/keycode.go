// Package keycode defines the flat 16-bit keycode space.
//
// Ranges:
//   - 0x0000–0x00E7: USB HID keyboard usages (plus consumer/system/mouse aliases in 0xA5–0xDF)
//   - 0x0500–0x051F: macro slots
//   - 0x0600–0x06FF: backlight / RGB
//   - 0x0700–0x07FF: firmware-internal keys
//   - 0x0840–0x085F: user-defined keys
package keycode

// KeyCode is a flat 16-bit key identifier.
type KeyCode uint16

const (
	No             KeyCode = 0x00
	ErrorRollover  KeyCode = 0x01
	PostFail       KeyCode = 0x02
	ErrorUndefined KeyCode = 0x03

	A KeyCode = 0x04
	B KeyCode = 0x05
	C KeyCode = 0x06
	D KeyCode = 0x07
	E KeyCode = 0x08
	F KeyCode = 0x09
	G KeyCode = 0x0A
	H KeyCode = 0x0B
	I KeyCode = 0x0C
	J KeyCode = 0x0D
	K KeyCode = 0x0E
	L KeyCode = 0x0F
	M KeyCode = 0x10
	N KeyCode = 0x11
	O KeyCode = 0x12
	P KeyCode = 0x13
	Q KeyCode = 0x14
	R KeyCode = 0x15
	S KeyCode = 0x16
	T KeyCode = 0x17
	U KeyCode = 0x18
	V KeyCode = 0x19
	W KeyCode = 0x1A
	X KeyCode = 0x1B
	Y KeyCode = 0x1C
	Z KeyCode = 0x1D

	Kc1 KeyCode = 0x1E
	Kc2 KeyCode = 0x1F
	Kc3 KeyCode = 0x20
	Kc4 KeyCode = 0x21
	Kc5 KeyCode = 0x22
	Kc6 KeyCode = 0x23
	Kc7 KeyCode = 0x24
	Kc8 KeyCode = 0x25
	Kc9 KeyCode = 0x26
	Kc0 KeyCode = 0x27

	Enter        KeyCode = 0x28
	Escape       KeyCode = 0x29
	Backspace    KeyCode = 0x2A
	Tab          KeyCode = 0x2B
	Space        KeyCode = 0x2C
	Minus        KeyCode = 0x2D
	Equal        KeyCode = 0x2E
	LeftBracket  KeyCode = 0x2F
	RightBracket KeyCode = 0x30
	Backslash    KeyCode = 0x31
	NonusHash    KeyCode = 0x32
	Semicolon    KeyCode = 0x33
	Quote        KeyCode = 0x34
	Grave        KeyCode = 0x35
	Comma        KeyCode = 0x36
	Dot          KeyCode = 0x37
	Slash        KeyCode = 0x38
	CapsLock     KeyCode = 0x39

	F1  KeyCode = 0x3A
	F2  KeyCode = 0x3B
	F3  KeyCode = 0x3C
	F4  KeyCode = 0x3D
	F5  KeyCode = 0x3E
	F6  KeyCode = 0x3F
	F7  KeyCode = 0x40
	F8  KeyCode = 0x41
	F9  KeyCode = 0x42
	F10 KeyCode = 0x43
	F11 KeyCode = 0x44
	F12 KeyCode = 0x45

	PrintScreen KeyCode = 0x46
	ScrollLock  KeyCode = 0x47
	Pause       KeyCode = 0x48
	Insert      KeyCode = 0x49
	Home        KeyCode = 0x4A
	PageUp      KeyCode = 0x4B
	Delete      KeyCode = 0x4C
	End         KeyCode = 0x4D
	PageDown    KeyCode = 0x4E
	Right       KeyCode = 0x4F
	Left        KeyCode = 0x50
	Down        KeyCode = 0x51
	Up          KeyCode = 0x52
	NumLock     KeyCode = 0x53

	KpSlash        KeyCode = 0x54
	KpAsterisk     KeyCode = 0x55
	KpMinus        KeyCode = 0x56
	KpPlus         KeyCode = 0x57
	KpEnter        KeyCode = 0x58
	Kp1            KeyCode = 0x59
	Kp2            KeyCode = 0x5A
	Kp3            KeyCode = 0x5B
	Kp4            KeyCode = 0x5C
	Kp5            KeyCode = 0x5D
	Kp6            KeyCode = 0x5E
	Kp7            KeyCode = 0x5F
	Kp8            KeyCode = 0x60
	Kp9            KeyCode = 0x61
	Kp0            KeyCode = 0x62
	KpDot          KeyCode = 0x63
	NonusBackslash KeyCode = 0x64
	Application    KeyCode = 0x65
	KbPower        KeyCode = 0x66
	KpEqual        KeyCode = 0x67

	F13 KeyCode = 0x68
	F14 KeyCode = 0x69
	F15 KeyCode = 0x6A
	F16 KeyCode = 0x6B
	F17 KeyCode = 0x6C
	F18 KeyCode = 0x6D
	F19 KeyCode = 0x6E
	F20 KeyCode = 0x6F
	F21 KeyCode = 0x70
	F22 KeyCode = 0x71
	F23 KeyCode = 0x72
	F24 KeyCode = 0x73
)

// System control and consumer aliases (QMK-compatible numbering).
const (
	SystemPower KeyCode = 0xA5
	SystemSleep KeyCode = 0xA6
	SystemWake  KeyCode = 0xA7

	AudioMute        KeyCode = 0xA8
	AudioVolUp       KeyCode = 0xA9
	AudioVolDown     KeyCode = 0xAA
	MediaNextTrack   KeyCode = 0xAB
	MediaPrevTrack   KeyCode = 0xAC
	MediaStop        KeyCode = 0xAD
	MediaPlayPause   KeyCode = 0xAE
	MediaSelect      KeyCode = 0xAF
	MediaEject       KeyCode = 0xB0
	Mail             KeyCode = 0xB1
	Calculator       KeyCode = 0xB2
	MyComputer       KeyCode = 0xB3
	WwwSearch        KeyCode = 0xB4
	WwwHome          KeyCode = 0xB5
	WwwBack          KeyCode = 0xB6
	WwwForward       KeyCode = 0xB7
	WwwStop          KeyCode = 0xB8
	WwwRefresh       KeyCode = 0xB9
	WwwFavorites     KeyCode = 0xBA
	MediaFastForward KeyCode = 0xBB
	MediaRewind      KeyCode = 0xBC
	BrightnessUp     KeyCode = 0xBD
	BrightnessDown   KeyCode = 0xBE

	MouseUp         KeyCode = 0xCD
	MouseDown       KeyCode = 0xCE
	MouseLeft       KeyCode = 0xCF
	MouseRight      KeyCode = 0xD0
	MouseBtn1       KeyCode = 0xD1
	MouseBtn2       KeyCode = 0xD2
	MouseBtn3       KeyCode = 0xD3
	MouseBtn4       KeyCode = 0xD4
	MouseBtn5       KeyCode = 0xD5
	MouseBtn6       KeyCode = 0xD6
	MouseBtn7       KeyCode = 0xD7
	MouseBtn8       KeyCode = 0xD8
	MouseWheelUp    KeyCode = 0xD9
	MouseWheelDown  KeyCode = 0xDA
	MouseWheelLeft  KeyCode = 0xDB
	MouseWheelRight KeyCode = 0xDC
)

// Modifier keys.
const (
	LCtrl  KeyCode = 0xE0
	LShift KeyCode = 0xE1
	LAlt   KeyCode = 0xE2
	LGui   KeyCode = 0xE3
	RCtrl  KeyCode = 0xE4
	RShift KeyCode = 0xE5
	RAlt   KeyCode = 0xE6
	RGui   KeyCode = 0xE7
)

// Macro slots.
const (
	Macro0    KeyCode = 0x500
	MacroLast KeyCode = 0x51F
	NumMacros = int(MacroLast-Macro0) + 1
)

// Backlight / RGB range. Handled by external light controllers.
const (
	BacklightFirst KeyCode = 0x600
	BacklightLast  KeyCode = 0x6FF
)

// Firmware-internal keys.
const (
	Bootloader      KeyCode = 0x700
	Reboot          KeyCode = 0x701
	DebugToggle     KeyCode = 0x702
	ClearEeprom     KeyCode = 0x703
	OutputAuto      KeyCode = 0x710
	OutputUSB       KeyCode = 0x711
	OutputBluetooth KeyCode = 0x712
	ComboOn         KeyCode = 0x750
	ComboOff        KeyCode = 0x751
	ComboToggle     KeyCode = 0x752
	CapsWordToggle  KeyCode = 0x773
	RepeatKey       KeyCode = 0x77A
	InternalFirst   KeyCode = 0x700
	InternalLast    KeyCode = 0x7FF
)

// User-defined keys.
const (
	User0    KeyCode = 0x840
	UserLast KeyCode = 0x85F
)

// IsHIDKeyboard reports whether k is sent through the keyboard report.
func (k KeyCode) IsHIDKeyboard() bool {
	return (k >= A && k <= F24) || k.IsModifier()
}

// IsModifier reports whether k is one of the eight modifier keys.
func (k KeyCode) IsModifier() bool { return k >= LCtrl && k <= RGui }

// IsLetter reports whether k is A–Z.
func (k KeyCode) IsLetter() bool { return k >= A && k <= Z }

// IsDigit reports whether k is 1–0 on the main row.
func (k KeyCode) IsDigit() bool { return k >= Kc1 && k <= Kc0 }

// IsSystem reports whether k maps to the system control report.
func (k KeyCode) IsSystem() bool { return k >= SystemPower && k <= SystemWake }

// IsConsumer reports whether k maps to the consumer control report.
func (k KeyCode) IsConsumer() bool { return k >= AudioMute && k <= BrightnessDown }

// IsMouse reports whether k is a mouse key.
func (k KeyCode) IsMouse() bool { return k >= MouseUp && k <= MouseWheelRight }

// IsMacro reports whether k selects a macro slot.
func (k KeyCode) IsMacro() bool { return k >= Macro0 && k <= MacroLast }

// IsBacklight reports whether k is a backlight / RGB key.
func (k KeyCode) IsBacklight() bool { return k >= BacklightFirst && k <= BacklightLast }

// IsInternal reports whether k is handled by the firmware itself.
func (k KeyCode) IsInternal() bool { return k >= InternalFirst && k <= InternalLast }

// IsUser reports whether k is a user-defined key.
func (k KeyCode) IsUser() bool { return k >= User0 && k <= UserLast }

// MacroIndex returns the macro slot for a macro keycode.
func (k KeyCode) MacroIndex() (int, bool) {
	if !k.IsMacro() {
		return 0, false
	}
	return int(k - Macro0), true
}

// Modifier returns the modifier bit for a modifier keycode.
func (k KeyCode) Modifier() ModifierCombination {
	if !k.IsModifier() {
		return 0
	}
	return ModifierCombination(1 << (k - LCtrl))
}

// ConsumerUsage maps a consumer keycode to its HID consumer page usage.
func (k KeyCode) ConsumerUsage() uint16 {
	switch k {
	case AudioMute:
		return 0x00E2
	case AudioVolUp:
		return 0x00E9
	case AudioVolDown:
		return 0x00EA
	case MediaNextTrack:
		return 0x00B5
	case MediaPrevTrack:
		return 0x00B6
	case MediaStop:
		return 0x00B7
	case MediaPlayPause:
		return 0x00CD
	case MediaSelect:
		return 0x0183
	case MediaEject:
		return 0x00B8
	case Mail:
		return 0x018A
	case Calculator:
		return 0x0192
	case MyComputer:
		return 0x0194
	case WwwSearch:
		return 0x0221
	case WwwHome:
		return 0x0223
	case WwwBack:
		return 0x0224
	case WwwForward:
		return 0x0225
	case WwwStop:
		return 0x0226
	case WwwRefresh:
		return 0x0227
	case WwwFavorites:
		return 0x022A
	case MediaFastForward:
		return 0x00B3
	case MediaRewind:
		return 0x00B4
	case BrightnessUp:
		return 0x006F
	case BrightnessDown:
		return 0x0070
	default:
		return 0
	}
}

// SystemUsage maps a system keycode to its generic desktop usage.
func (k KeyCode) SystemUsage() uint8 {
	switch k {
	case SystemPower:
		return 0x81
	case SystemSleep:
		return 0x82
	case SystemWake:
		return 0x83
	default:
		return 0
	}
}
