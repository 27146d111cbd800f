package vial

import (
	"math/bits"

	"rmk/firmware/action"
	"rmk/firmware/keycode"
)

// Two-byte keycode ranges of the Vial (QMK v6) keymap protocol.
const (
	viaTransparent   = 0x0001
	viaModsMin       = 0x0100
	viaModsMax       = 0x1FFF
	viaModTap        = 0x2000
	viaModTapMax     = 0x3FFF
	viaLayerTap      = 0x4000
	viaLayerTapMax   = 0x4FFF
	viaTo            = 0x5200
	viaMomentary     = 0x5220
	viaDefaultLayer  = 0x5240
	viaToggleLayer   = 0x5260
	viaOneShotLayer  = 0x5280
	viaOneShotMod    = 0x52A0
	viaTapDance      = 0x5700
	viaMacro         = 0x7700
	viaBacklight     = 0x7800
	viaInternal      = 0x7C00
	viaUser          = 0x7E00
	viaLayerRange    = 0x20
	viaMacroRange    = 0x100
	viaInternalRange = 0x100
	viaUserRange     = 0x20
)

// Encode converts a keymap cell to its two-byte form. Cells the protocol
// cannot express, and per-key morse profiles, are lost: ok is false and the
// code is KC_NO.
func Encode(ka action.KeyAction) (code uint16, ok bool) {
	switch ka.Kind {
	case action.KeyActionNo:
		return 0, true
	case action.KeyActionTransparent:
		return viaTransparent, true
	case action.KeyActionSingle, action.KeyActionTap:
		return encodeAction(ka.Action)
	case action.KeyActionMorse:
		return viaTapDance + uint16(ka.Morse), true
	case action.KeyActionTapHold:
		tap := ka.Action
		if tap.Kind != action.KindKey || tap.Key > 0xFF {
			return 0, false
		}
		switch hold := ka.Hold.Normalize(); hold.Kind {
		case action.KindModifier:
			return viaModTap | uint16(hold.Mods.Packed())<<8 | uint16(tap.Key), true
		case action.KindLayerOn:
			if hold.Layer > 0xF {
				return 0, false
			}
			return viaLayerTap | uint16(hold.Layer)<<8 | uint16(tap.Key), true
		}
	}
	return 0, false
}

func encodeAction(a action.Action) (uint16, bool) {
	a = a.Normalize()
	switch a.Kind {
	case action.KindNo:
		return 0, true
	case action.KindTransparent:
		return viaTransparent, true
	case action.KindKey:
		return encodeKey(a.Key)
	case action.KindKeyWithModifier:
		if a.Key > 0xFF {
			return 0, false
		}
		return uint16(a.Mods.Packed())<<8 | uint16(a.Key), true
	case action.KindModifier:
		if bits.OnesCount8(uint8(a.Mods)) == 1 {
			return uint16(keycode.LCtrl) + uint16(bits.TrailingZeros8(uint8(a.Mods))), true
		}
		return uint16(a.Mods.Packed()) << 8, true
	case action.KindLayerToggleOnly:
		return layerCode(viaTo, a.Layer)
	case action.KindLayerOn:
		return layerCode(viaMomentary, a.Layer)
	case action.KindDefaultLayer:
		return layerCode(viaDefaultLayer, a.Layer)
	case action.KindLayerToggle:
		return layerCode(viaToggleLayer, a.Layer)
	case action.KindOneShotLayer:
		return layerCode(viaOneShotLayer, a.Layer)
	case action.KindOneShotModifier:
		return viaOneShotMod + uint16(a.Mods.Packed()), true
	case action.KindTriggerMacro:
		return viaMacro + uint16(a.Index), true
	}
	return 0, false
}

func layerCode(base uint16, n uint8) (uint16, bool) {
	if n >= viaLayerRange {
		return 0, false
	}
	return base + uint16(n), true
}

func encodeKey(kc keycode.KeyCode) (uint16, bool) {
	switch {
	case kc <= 0xFF:
		return uint16(kc), true
	case kc.IsBacklight():
		return viaBacklight + uint16(kc-keycode.BacklightFirst), true
	case kc.IsInternal():
		return viaInternal + uint16(kc-keycode.InternalFirst), true
	case kc.IsUser():
		return viaUser + uint16(kc-keycode.User0), true
	}
	return 0, false
}

// Decode converts a two-byte keycode to a keymap cell. Unknown codes decode
// to No.
func Decode(code uint16) action.KeyAction {
	key := func(c uint16) action.Action { return action.Key(keycode.KeyCode(c & 0xFF)) }
	switch {
	case code == 0:
		return action.NoKey
	case code == viaTransparent:
		return action.TransparentKey
	case code <= 0xFF:
		return action.Single(action.Key(keycode.KeyCode(code)).Normalize())
	case code >= viaModsMin && code <= viaModsMax:
		mods := keycode.FromPacked(uint8(code >> 8))
		if code&0xFF == 0 {
			return action.Single(action.Modifier(mods))
		}
		return action.Single(action.KeyWithModifier(keycode.KeyCode(code&0xFF), mods))
	case code >= viaModTap && code <= viaModTapMax:
		mods := keycode.FromPacked(uint8(code>>8) & 0x1F)
		return action.TapHold(key(code), action.Modifier(mods), action.MorseProfile{})
	case code >= viaLayerTap && code <= viaLayerTapMax:
		layer := uint8(code>>8) & 0xF
		return action.TapHold(key(code), action.LayerOn(layer), action.MorseProfile{})
	case code >= viaTo && code < viaTo+viaLayerRange:
		return action.Single(action.LayerToggleOnly(uint8(code - viaTo)))
	case code >= viaMomentary && code < viaMomentary+viaLayerRange:
		return action.Single(action.LayerOn(uint8(code - viaMomentary)))
	case code >= viaDefaultLayer && code < viaDefaultLayer+viaLayerRange:
		return action.Single(action.DefaultLayer(uint8(code - viaDefaultLayer)))
	case code >= viaToggleLayer && code < viaToggleLayer+viaLayerRange:
		return action.Single(action.LayerToggle(uint8(code - viaToggleLayer)))
	case code >= viaOneShotLayer && code < viaOneShotLayer+viaLayerRange:
		return action.Single(action.OneShotLayer(uint8(code - viaOneShotLayer)))
	case code >= viaOneShotMod && code < viaOneShotMod+viaLayerRange:
		return action.Single(action.OneShotModifier(keycode.FromPacked(uint8(code - viaOneShotMod))))
	case code >= viaTapDance && code < viaTapDance+0x100:
		return action.MorseRef(uint8(code - viaTapDance))
	case code >= viaMacro && code < viaMacro+viaMacroRange:
		return action.Single(action.TriggerMacro(uint8(code - viaMacro)))
	case code >= viaBacklight && code < viaBacklight+0x100:
		return action.Single(action.Key(keycode.BacklightFirst + keycode.KeyCode(code-viaBacklight)))
	case code >= viaInternal && code < viaInternal+viaInternalRange:
		return action.Single(action.Key(keycode.InternalFirst + keycode.KeyCode(code-viaInternal)))
	case code >= viaUser && code < viaUser+viaUserRange:
		return action.Single(action.Key(keycode.User0 + keycode.KeyCode(code-viaUser)))
	}
	return action.NoKey
}
