package action

import "fmt"

// KeyActionKind discriminates KeyAction.
type KeyActionKind uint8

const (
	KeyActionNo KeyActionKind = iota
	KeyActionTransparent
	KeyActionSingle
	KeyActionTap
	KeyActionTapHold
	KeyActionMorse
)

// KeyAction is what a keymap cell holds: an Action plus its timing role.
type KeyAction struct {
	Kind KeyActionKind

	// Action is the Single/Tap action, or the tap side of a TapHold.
	Action Action
	// Hold is the hold side of a TapHold.
	Hold Action
	// Profile tunes a TapHold; zero fields inherit the global profile.
	Profile MorseProfile
	// Morse indexes the morse table for KeyActionMorse.
	Morse uint8
}

var (
	NoKey          = KeyAction{Kind: KeyActionNo}
	TransparentKey = KeyAction{Kind: KeyActionTransparent}
)

// Single wraps a plain action.
func Single(a Action) KeyAction {
	switch a.Kind {
	case KindNo:
		return NoKey
	case KindTransparent:
		return TransparentKey
	}
	return KeyAction{Kind: KeyActionSingle, Action: a}
}

// Tap forces tap semantics: press and release are emitted on press.
func Tap(a Action) KeyAction { return KeyAction{Kind: KeyActionTap, Action: a} }

// TapHold builds the common two-pattern morse.
func TapHold(tap, hold Action, p MorseProfile) KeyAction {
	return KeyAction{Kind: KeyActionTapHold, Action: tap, Hold: hold, Profile: p}
}

// MorseRef points at an entry in the morse table.
func MorseRef(idx uint8) KeyAction { return KeyAction{Kind: KeyActionMorse, Morse: idx} }

// IsTransparent reports whether lookups fall through this cell.
func (k KeyAction) IsTransparent() bool { return k.Kind == KeyActionTransparent }

// IsMorse reports whether the key needs the morse resolver.
func (k KeyAction) IsMorse() bool {
	return k.Kind == KeyActionTapHold || k.Kind == KeyActionMorse
}

func (k KeyAction) String() string {
	switch k.Kind {
	case KeyActionNo:
		return "No"
	case KeyActionTransparent:
		return "_"
	case KeyActionSingle:
		return k.Action.String()
	case KeyActionTap:
		return fmt.Sprintf("Tap(%s)", k.Action)
	case KeyActionTapHold:
		return fmt.Sprintf("TH(%s,%s)", k.Action, k.Hold)
	case KeyActionMorse:
		return fmt.Sprintf("TD(%d)", k.Morse)
	default:
		return "?"
	}
}
