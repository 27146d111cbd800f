package keycode

import (
	"fmt"
	"strconv"
	"strings"
)

type namedKey struct {
	name string
	code KeyCode
}

// canonical names, printed by String. Lookup is case-insensitive.
var keyNames = [...]namedKey{
	{"A", A},
	{"B", B},
	{"C", C},
	{"D", D},
	{"E", E},
	{"F", F},
	{"G", G},
	{"H", H},
	{"I", I},
	{"J", J},
	{"K", K},
	{"L", L},
	{"M", M},
	{"N", N},
	{"O", O},
	{"P", P},
	{"Q", Q},
	{"R", R},
	{"S", S},
	{"T", T},
	{"U", U},
	{"V", V},
	{"W", W},
	{"X", X},
	{"Y", Y},
	{"Z", Z},
	{"1", Kc1},
	{"2", Kc2},
	{"3", Kc3},
	{"4", Kc4},
	{"5", Kc5},
	{"6", Kc6},
	{"7", Kc7},
	{"8", Kc8},
	{"9", Kc9},
	{"0", Kc0},
	{"Enter", Enter},
	{"Escape", Escape},
	{"Backspace", Backspace},
	{"Tab", Tab},
	{"Space", Space},
	{"Minus", Minus},
	{"Equal", Equal},
	{"LeftBracket", LeftBracket},
	{"RightBracket", RightBracket},
	{"Backslash", Backslash},
	{"NonusHash", NonusHash},
	{"Semicolon", Semicolon},
	{"Quote", Quote},
	{"Grave", Grave},
	{"Comma", Comma},
	{"Dot", Dot},
	{"Slash", Slash},
	{"CapsLock", CapsLock},
	{"F1", F1},
	{"F2", F2},
	{"F3", F3},
	{"F4", F4},
	{"F5", F5},
	{"F6", F6},
	{"F7", F7},
	{"F8", F8},
	{"F9", F9},
	{"F10", F10},
	{"F11", F11},
	{"F12", F12},
	{"F13", F13},
	{"F14", F14},
	{"F15", F15},
	{"F16", F16},
	{"F17", F17},
	{"F18", F18},
	{"F19", F19},
	{"F20", F20},
	{"F21", F21},
	{"F22", F22},
	{"F23", F23},
	{"F24", F24},
	{"PrintScreen", PrintScreen},
	{"ScrollLock", ScrollLock},
	{"Pause", Pause},
	{"Insert", Insert},
	{"Home", Home},
	{"PageUp", PageUp},
	{"Delete", Delete},
	{"End", End},
	{"PageDown", PageDown},
	{"Right", Right},
	{"Left", Left},
	{"Down", Down},
	{"Up", Up},
	{"NumLock", NumLock},
	{"KpSlash", KpSlash},
	{"KpAsterisk", KpAsterisk},
	{"KpMinus", KpMinus},
	{"KpPlus", KpPlus},
	{"KpEnter", KpEnter},
	{"Kp1", Kp1},
	{"Kp2", Kp2},
	{"Kp3", Kp3},
	{"Kp4", Kp4},
	{"Kp5", Kp5},
	{"Kp6", Kp6},
	{"Kp7", Kp7},
	{"Kp8", Kp8},
	{"Kp9", Kp9},
	{"Kp0", Kp0},
	{"KpDot", KpDot},
	{"NonusBackslash", NonusBackslash},
	{"Application", Application},
	{"KbPower", KbPower},
	{"KpEqual", KpEqual},
	{"SystemPower", SystemPower},
	{"SystemSleep", SystemSleep},
	{"SystemWake", SystemWake},
	{"AudioMute", AudioMute},
	{"AudioVolUp", AudioVolUp},
	{"AudioVolDown", AudioVolDown},
	{"MediaNextTrack", MediaNextTrack},
	{"MediaPrevTrack", MediaPrevTrack},
	{"MediaStop", MediaStop},
	{"MediaPlayPause", MediaPlayPause},
	{"MediaSelect", MediaSelect},
	{"MediaEject", MediaEject},
	{"Mail", Mail},
	{"Calculator", Calculator},
	{"MyComputer", MyComputer},
	{"WwwSearch", WwwSearch},
	{"WwwHome", WwwHome},
	{"WwwBack", WwwBack},
	{"WwwForward", WwwForward},
	{"WwwStop", WwwStop},
	{"WwwRefresh", WwwRefresh},
	{"WwwFavorites", WwwFavorites},
	{"MediaFastForward", MediaFastForward},
	{"MediaRewind", MediaRewind},
	{"BrightnessUp", BrightnessUp},
	{"BrightnessDown", BrightnessDown},
	{"MouseUp", MouseUp},
	{"MouseDown", MouseDown},
	{"MouseLeft", MouseLeft},
	{"MouseRight", MouseRight},
	{"MouseBtn1", MouseBtn1},
	{"MouseBtn2", MouseBtn2},
	{"MouseBtn3", MouseBtn3},
	{"MouseBtn4", MouseBtn4},
	{"MouseBtn5", MouseBtn5},
	{"MouseBtn6", MouseBtn6},
	{"MouseBtn7", MouseBtn7},
	{"MouseBtn8", MouseBtn8},
	{"MouseWheelUp", MouseWheelUp},
	{"MouseWheelDown", MouseWheelDown},
	{"MouseWheelLeft", MouseWheelLeft},
	{"MouseWheelRight", MouseWheelRight},
	{"LCtrl", LCtrl},
	{"LShift", LShift},
	{"LAlt", LAlt},
	{"LGui", LGui},
	{"RCtrl", RCtrl},
	{"RShift", RShift},
	{"RAlt", RAlt},
	{"RGui", RGui},
	{"Bootloader", Bootloader},
	{"Reboot", Reboot},
	{"DebugToggle", DebugToggle},
	{"ClearEeprom", ClearEeprom},
	{"OutputAuto", OutputAuto},
	{"OutputUSB", OutputUSB},
	{"OutputBluetooth", OutputBluetooth},
	{"ComboOn", ComboOn},
	{"ComboOff", ComboOff},
	{"ComboToggle", ComboToggle},
	{"CapsWordToggle", CapsWordToggle},
	{"RepeatKey", RepeatKey},
}

// aliases accepted by Lookup in addition to the canonical names.
var keyAliases = map[string]KeyCode{
	"no":       No,
	"none":     No,
	"esc":      Escape,
	"bspc":     Backspace,
	"del":      Delete,
	"ent":      Enter,
	"return":   Enter,
	"spc":      Space,
	"caps":     CapsLock,
	"lbracket": LeftBracket,
	"rbracket": RightBracket,
	"scolon":   Semicolon,
	"quot":     Quote,
	"period":   Dot,
	"lcontrol": LCtrl,
	"rcontrol": RCtrl,
	"lcmd":     LGui,
	"rcmd":     RGui,
	"lwin":     LGui,
	"rwin":     RGui,
	"lopt":     LAlt,
	"ropt":     RAlt,
	"volup":    AudioVolUp,
	"voldown":  AudioVolDown,
	"mute":     AudioMute,
	"boot":     Bootloader,
	"capsword": CapsWordToggle,
	"repeat":   RepeatKey,
}

var lookupTable map[string]KeyCode

func init() {
	lookupTable = make(map[string]KeyCode, len(keyNames)+len(keyAliases))
	for _, nk := range keyNames {
		lookupTable[strings.ToLower(nk.name)] = nk.code
	}
	for name, code := range keyAliases {
		lookupTable[name] = code
	}
}

// Lookup resolves a key name such as "A", "LShift", "Macro3" or "User2".
func Lookup(name string) (KeyCode, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if kc, ok := lookupTable[n]; ok {
		return kc, true
	}
	if rest, ok := strings.CutPrefix(n, "macro"); ok {
		if i, err := strconv.Atoi(rest); err == nil && i >= 0 && i < NumMacros {
			return Macro0 + KeyCode(i), true
		}
	}
	if rest, ok := strings.CutPrefix(n, "user"); ok {
		if i, err := strconv.Atoi(rest); err == nil && i >= 0 && User0+KeyCode(i) <= UserLast {
			return User0 + KeyCode(i), true
		}
	}
	if rest, ok := strings.CutPrefix(n, "0x"); ok {
		if v, err := strconv.ParseUint(rest, 16, 16); err == nil {
			return KeyCode(v), true
		}
	}
	return No, false
}

func (k KeyCode) String() string {
	for _, nk := range keyNames {
		if nk.code == k {
			return nk.name
		}
	}
	switch {
	case k == No:
		return "No"
	case k.IsMacro():
		return fmt.Sprintf("Macro%d", k-Macro0)
	case k.IsUser():
		return fmt.Sprintf("User%d", k-User0)
	}
	return fmt.Sprintf("0x%04X", uint16(k))
}
