package keyboard

import (
	"rmk/firmware/action"
	"rmk/firmware/clock"
	"rmk/firmware/event"
	"rmk/firmware/hid"
	"rmk/firmware/keycode"
	"rmk/firmware/macro"
	"rmk/firmware/morse"
)

// effect applies one resolver output.
func (k *Keyboard) effect(e morse.Effect) {
	t := e.Event.Time
	switch e.Kind {
	case morse.EffectPass:
		k.pass(e.Event)
	case morse.EffectPress:
		k.press(e.Event.Pos, e.Action, 0, t)
		k.flush(t, false)
	case morse.EffectTap:
		k.tap(e.Action, t)
	}
}

func (k *Keyboard) pass(ev event.KeyEvent) {
	t := ev.Time
	switch {
	case ev.Pos.Kind == event.PosAxis:
		k.axis(ev)
		return
	case !ev.Pressed:
		k.release(ev.Pos, t)
		k.flush(t, false)
		return
	}
	r := k.resolve(ev.Pos)
	switch r.Action.Kind {
	case action.KeyActionSingle:
		k.press(ev.Pos, r.Action.Action, r.Suppress, t)
		k.flush(t, false)
	case action.KeyActionTap:
		k.tap(r.Action.Action, t)
	case action.KeyActionTapHold, action.KeyActionMorse:
		// Only reached when a fork swapped in a morse cell after the
		// resolver passed the key; it behaves as its tap.
		if m, ok := k.morses.For(r.Action); ok {
			k.tap(m.TapAction(), t)
		}
	}
}

func (k *Keyboard) axis(ev event.KeyEvent) {
	v := int(ev.Value)
	switch ev.Pos.Axis {
	case event.AxisX:
		k.hid.Move(v, 0, 0, 0, ev.Time)
	case event.AxisY:
		k.hid.Move(0, v, 0, 0, ev.Time)
	case event.AxisWheel:
		k.hid.Move(0, 0, v, 0, ev.Time)
	case event.AxisPan:
		k.hid.Move(0, 0, 0, v, ev.Time)
	}
}

// press applies a down edge of a owned by owner. The caller flushes.
func (k *Keyboard) press(owner event.Position, a action.Action, suppress keycode.ModifierCombination, t clock.Instant) {
	a = a.Normalize()
	switch a.Kind {
	case action.KindKey, action.KindKeyWithModifier:
		k.pressKey(owner, a, suppress, t)
	case action.KindModifier:
		k.hid.Press(hid.Record{Owner: owner, Mods: a.Mods})
	case action.KindLayerOn:
		k.layers.Activate(a.Layer)
		k.hold(owner, a)
	case action.KindLayerOff:
		k.layers.Deactivate(a.Layer)
	case action.KindLayerToggle:
		k.layers.Toggle(a.Layer)
	case action.KindLayerToggleOnly:
		k.layers.Only(a.Layer)
	case action.KindDefaultLayer:
		k.layers.SetDefault(a.Layer)
	case action.KindTriggerMacro:
		if k.macros.Start(a.Index, t) {
			k.macros.Advance(t)
		}
	case action.KindOneShotModifier:
		if m := k.oneshot.PressModifier(a.Mods, t); m != 0 {
			k.hid.Press(hid.Record{Owner: owner, Mods: m})
		}
		k.hold(owner, a)
	case action.KindOneShotLayer:
		c := k.oneshot.PressLayer(a.Layer, t)
		if c.Off {
			k.layers.Deactivate(c.OffLayer)
		}
		if c.On {
			k.layers.Activate(a.Layer)
		}
		k.hold(owner, a)
	case action.KindOneShotKey:
		if k.oneshot.PressKey(a.Key, t) {
			k.hid.Press(hid.Record{Owner: owner, Key: a.Key})
		}
		k.hold(owner, a)
	}
}

func (k *Keyboard) pressKey(owner event.Position, a action.Action, suppress keycode.ModifierCombination, t clock.Instant) {
	kc := a.Key
	switch {
	case kc == keycode.No:
		return
	case kc.IsInternal():
		k.internal(owner, kc, t)
		return
	}
	rec := hid.Record{Owner: owner, Key: kc, Suppress: suppress}
	if a.Kind == action.KindKeyWithModifier {
		rec.KeyMods = a.Mods
	}
	if !kc.IsHIDKeyboard() {
		k.hid.Press(rec)
		return
	}
	ap := k.oneshot.Consume()
	rec.KeyMods |= ap.Mods &^ suppress
	if k.caps.Press(kc, t) {
		rec.KeyMods |= keycode.ModLShift
	}
	k.hid.Press(rec)
	if ap.Key != keycode.No {
		k.hid.Press(hid.Record{Owner: owner, Key: ap.Key})
	}
	if ap.DropLayer {
		k.layers.Deactivate(ap.Layer)
	}
	k.last = a
}

func (k *Keyboard) internal(owner event.Position, kc keycode.KeyCode, t clock.Instant) {
	switch kc {
	case keycode.ComboOn:
		k.combo.SetEnabled(true)
	case keycode.ComboOff:
		k.combo.SetEnabled(false)
	case keycode.ComboToggle:
		k.combo.SetEnabled(!k.combo.Enabled())
	case keycode.CapsWordToggle:
		k.caps.Toggle(t)
	case keycode.RepeatKey:
		if k.last.Kind != action.KindNo {
			k.pressKey(owner, k.last, 0, t)
		}
	case keycode.OutputUSB:
		k.opts.Notify(event.Controller{Kind: event.CtrlConnection, Conn: event.ConnUSB})
	case keycode.OutputBluetooth:
		k.opts.Notify(event.Controller{Kind: event.CtrlConnection, Conn: event.ConnBLE})
	case keycode.ClearEeprom:
		k.opts.Notify(event.Controller{Kind: event.CtrlStorageReset})
	case keycode.Reboot, keycode.Bootloader:
		if k.opts.Reboot != nil {
			k.opts.Reboot(kc == keycode.Bootloader)
		}
	default:
		k.log.Debug("unhandled internal key", "key", kc)
	}
}

// tap presses a and schedules its release. Non-HID actions release at once.
func (k *Keyboard) tap(a action.Action, t clock.Instant) {
	a = a.Normalize()
	slot := k.allocTap(t)
	owner := event.Virtual(uint8(tapOwnerBase + slot))
	k.press(owner, a, 0, t)
	if !k.hid.Held(owner) {
		k.release(owner, t)
		k.flush(t, false)
		return
	}
	ms := k.beh.TapIntervalMs
	if a.Key == keycode.CapsLock && k.beh.TapCapsLockIntervalMs > 0 {
		ms = k.beh.TapCapsLockIntervalMs
	}
	kbd := keyboardTap(a)
	k.taps[slot] = pendingTap{active: true, at: t.Add(ms), kbd: kbd}
	k.flush(t, kbd)
}

// keyboardTap reports whether tapping a puts a keycode in the keyboard
// report. Consumer, system and mouse taps only change their own reports.
func keyboardTap(a action.Action) bool {
	switch a.Kind {
	case action.KindKey, action.KindKeyWithModifier:
		return a.Key.IsHIDKeyboard()
	}
	return false
}

// allocTap finds a free tap slot, releasing the oldest one when all are
// busy.
func (k *Keyboard) allocTap(t clock.Instant) int {
	oldest := 0
	for i := range k.taps {
		if !k.taps[i].active {
			return i
		}
		if k.taps[i].at < k.taps[oldest].at {
			oldest = i
		}
	}
	k.taps[oldest].at = t
	k.fireTap(oldest)
	return oldest
}

func (k *Keyboard) fireTap(i int) {
	at := k.taps[i].at
	k.taps[i].active = false
	k.release(event.Virtual(uint8(tapOwnerBase+i)), at)
	k.flush(at, k.taps[i].kbd)
}

// release undoes everything owner holds. The caller flushes.
func (k *Keyboard) release(owner event.Position, t clock.Instant) {
	for i := 0; i < k.nholds; {
		h := k.holds[i]
		if h.owner != owner {
			i++
			continue
		}
		k.nholds--
		k.holds[i] = k.holds[k.nholds]
		k.unhold(h.act, t)
	}
	k.hid.Release(owner)
}

func (k *Keyboard) hold(owner event.Position, a action.Action) {
	if k.nholds == maxHolds {
		k.log.Warn("hold table full", "owner", owner, "action", a)
		return
	}
	k.holds[k.nholds] = hold{owner: owner, act: a}
	k.nholds++
}

func (k *Keyboard) unhold(a action.Action, t clock.Instant) {
	switch a.Kind {
	case action.KindLayerOn:
		k.layers.Deactivate(a.Layer)
	case action.KindOneShotModifier:
		k.oneshot.ReleaseModifier(t)
	case action.KindOneShotLayer:
		if k.oneshot.ReleaseLayer(t).Drop {
			k.layers.Deactivate(a.Layer)
		}
	case action.KindOneShotKey:
		k.oneshot.ReleaseKey(t)
	}
}

// macroStep applies one macro edge under the shared macro owner.
func (k *Keyboard) macroStep(s macro.Step) {
	if s.Pressed {
		k.hid.Press(hid.Record{Owner: macroOwner, Key: s.Key, Mods: s.Key.Modifier(), KeyMods: s.Mods})
	} else {
		k.hid.ReleaseKey(macroOwner, s.Key)
	}
	k.flush(s.Time, true)
}

func (k *Keyboard) flush(t clock.Instant, force bool) {
	k.hid.SetSticky(k.oneshot.StickyMods())
	k.hid.Flush(t, force)
}
