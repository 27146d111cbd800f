package action

import "rmk/firmware/keycode"

// MaxForks bounds the fork table.
const MaxForks = 16

// Fork replaces Trigger with Positive when the active modifiers match,
// otherwise with Negative.
//
// The match holds when any bit of MatchAny is active (or MatchAny is empty) and
// no bit of MatchNone is active. Modifiers in MatchAny are suppressed while the
// positive branch is held, except those listed in Kept.
type Fork struct {
	Trigger   KeyAction
	Negative  KeyAction
	Positive  KeyAction
	MatchAny  keycode.ModifierCombination
	MatchNone keycode.ModifierCombination
	Kept      keycode.ModifierCombination
	Bindable  bool
}

// Matches evaluates the fork predicate against the active modifier byte.
func (f *Fork) Matches(active keycode.ModifierCombination) bool {
	if active.Any(f.MatchNone) {
		return false
	}
	if f.MatchAny == 0 {
		return true
	}
	return active.Any(f.MatchAny)
}

// Suppressed is the set of modifiers removed from the report while the
// positive branch is held.
func (f *Fork) Suppressed(active keycode.ModifierCombination) keycode.ModifierCombination {
	return active & f.MatchAny &^ f.Kept
}

// IsEmpty reports an unused table slot.
func (f *Fork) IsEmpty() bool { return f.Trigger.Kind == KeyActionNo }
