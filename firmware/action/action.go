// Package action defines what a key does: Action, KeyAction, Morse and Fork.
//
// Each type is a discriminant plus payload, comparable with ==, so actions can be
// used as map keys and stored in fixed arrays without allocation.
package action

import (
	"fmt"

	"rmk/firmware/keycode"
)

// Kind discriminates Action.
type Kind uint8

const (
	KindNo Kind = iota
	KindTransparent
	KindKey
	KindKeyWithModifier
	KindModifier
	KindLayerOn
	KindLayerOff
	KindLayerToggle
	KindLayerToggleOnly
	KindDefaultLayer
	KindTriggerMacro
	KindOneShotKey
	KindOneShotLayer
	KindOneShotModifier
)

func (k Kind) String() string {
	switch k {
	case KindNo:
		return "no"
	case KindTransparent:
		return "transparent"
	case KindKey:
		return "key"
	case KindKeyWithModifier:
		return "key_with_modifier"
	case KindModifier:
		return "modifier"
	case KindLayerOn:
		return "layer_on"
	case KindLayerOff:
		return "layer_off"
	case KindLayerToggle:
		return "layer_toggle"
	case KindLayerToggleOnly:
		return "layer_toggle_only"
	case KindDefaultLayer:
		return "default_layer"
	case KindTriggerMacro:
		return "trigger_macro"
	case KindOneShotKey:
		return "oneshot_key"
	case KindOneShotLayer:
		return "oneshot_layer"
	case KindOneShotModifier:
		return "oneshot_modifier"
	default:
		return "unknown"
	}
}

// Action is the smallest unit of key behavior.
type Action struct {
	Kind  Kind
	Key   keycode.KeyCode
	Mods  keycode.ModifierCombination
	Layer uint8
	Index uint8
}

var (
	No          = Action{Kind: KindNo}
	Transparent = Action{Kind: KindTransparent}
)

func Key(kc keycode.KeyCode) Action { return Action{Kind: KindKey, Key: kc} }

func KeyWithModifier(kc keycode.KeyCode, m keycode.ModifierCombination) Action {
	return Action{Kind: KindKeyWithModifier, Key: kc, Mods: m}
}

func Modifier(m keycode.ModifierCombination) Action { return Action{Kind: KindModifier, Mods: m} }

func LayerOn(n uint8) Action         { return Action{Kind: KindLayerOn, Layer: n} }
func LayerOff(n uint8) Action        { return Action{Kind: KindLayerOff, Layer: n} }
func LayerToggle(n uint8) Action     { return Action{Kind: KindLayerToggle, Layer: n} }
func LayerToggleOnly(n uint8) Action { return Action{Kind: KindLayerToggleOnly, Layer: n} }
func DefaultLayer(n uint8) Action    { return Action{Kind: KindDefaultLayer, Layer: n} }
func TriggerMacro(idx uint8) Action  { return Action{Kind: KindTriggerMacro, Index: idx} }

func OneShotKey(kc keycode.KeyCode) Action { return Action{Kind: KindOneShotKey, Key: kc} }
func OneShotLayer(n uint8) Action          { return Action{Kind: KindOneShotLayer, Layer: n} }

func OneShotModifier(m keycode.ModifierCombination) Action {
	return Action{Kind: KindOneShotModifier, Mods: m}
}

// Normalize folds equivalent spellings: a modifier keycode becomes Modifier,
// a macro keycode becomes TriggerMacro.
func (a Action) Normalize() Action {
	if a.Kind != KindKey {
		return a
	}
	if a.Key.IsModifier() {
		return Modifier(a.Key.Modifier())
	}
	if idx, ok := a.Key.MacroIndex(); ok {
		return TriggerMacro(uint8(idx))
	}
	return a
}

// IsModifierOnly reports whether the action only changes modifier state.
func (a Action) IsModifierOnly() bool {
	a = a.Normalize()
	return a.Kind == KindModifier || a.Kind == KindOneShotModifier
}

// IsLayer reports whether the action manipulates the layer stack.
func (a Action) IsLayer() bool {
	switch a.Kind {
	case KindLayerOn, KindLayerOff, KindLayerToggle, KindLayerToggleOnly, KindDefaultLayer, KindOneShotLayer:
		return true
	}
	return false
}

// IsOneShot reports whether the action is one of the one-shot kinds.
func (a Action) IsOneShot() bool {
	switch a.Kind {
	case KindOneShotKey, KindOneShotLayer, KindOneShotModifier:
		return true
	}
	return false
}

func (a Action) String() string {
	switch a.Kind {
	case KindNo:
		return "No"
	case KindTransparent:
		return "_"
	case KindKey:
		return a.Key.String()
	case KindKeyWithModifier:
		return fmt.Sprintf("WM(%s,%s)", a.Key, a.Mods)
	case KindModifier:
		return a.Mods.String()
	case KindLayerOn:
		return fmt.Sprintf("MO(%d)", a.Layer)
	case KindLayerOff:
		return fmt.Sprintf("LayerOff(%d)", a.Layer)
	case KindLayerToggle:
		return fmt.Sprintf("TG(%d)", a.Layer)
	case KindLayerToggleOnly:
		return fmt.Sprintf("TO(%d)", a.Layer)
	case KindDefaultLayer:
		return fmt.Sprintf("DF(%d)", a.Layer)
	case KindTriggerMacro:
		return fmt.Sprintf("Macro(%d)", a.Index)
	case KindOneShotKey:
		return fmt.Sprintf("OSK(%s)", a.Key)
	case KindOneShotLayer:
		return fmt.Sprintf("OSL(%d)", a.Layer)
	case KindOneShotModifier:
		return fmt.Sprintf("OSM(%s)", a.Mods)
	default:
		return "?"
	}
}
