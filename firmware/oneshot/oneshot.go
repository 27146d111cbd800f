// Package oneshot tracks one-shot modifier, layer and key latches.
//
// A one-shot pressed and released alone latches for the next non-modifier key
// press. Pressing it again while latched makes it sticky until pressed once more.
package oneshot

import (
	"rmk/firmware/clock"
	"rmk/firmware/keycode"
)

// State of one latch.
type State uint8

const (
	Idle State = iota
	// Held: the one-shot key is physically down.
	Held
	// Latched: released alone, waiting for the next key.
	Latched
	// Sticky: applies to every key until the one-shot is pressed again.
	Sticky
)

func (s State) String() string {
	switch s {
	case Held:
		return "held"
	case Latched:
		return "latched"
	case Sticky:
		return "sticky"
	default:
		return "idle"
	}
}

// DefaultTimeoutMs is how long a latch waits for the next key.
const DefaultTimeoutMs = 500

type latch struct {
	state    State
	used     bool
	deadline clock.Instant
}

// press moves the latch on a press of its own key. same reports whether the
// press repeats the value already latched. It returns false if the press
// cleared a sticky latch.
func (l *latch) press(same bool, now clock.Instant) bool {
	switch {
	case l.state == Sticky:
		l.state = Idle
		return false
	case l.state == Latched && same && now < l.deadline:
		l.state = Sticky
		return true
	}
	l.state = Held
	l.used = false
	return true
}

// release returns true when the latch is now idle (it was used while held).
func (l *latch) release(now clock.Instant, timeout uint16) bool {
	if l.state != Held {
		return l.state == Idle
	}
	if l.used {
		l.state = Idle
		return true
	}
	l.state = Latched
	l.deadline = now.Add(timeout)
	return false
}

// Release says what a one-shot release left behind.
type Release struct {
	// Drop is set when the one-shot is done and its effect must be removed.
	Drop bool
}

// Applied is what a consuming key press picks up.
type Applied struct {
	Mods keycode.ModifierCombination
	// Key is pressed alongside the consuming key.
	Key keycode.KeyCode
	// DropLayer is set when the one-shot layer must be deactivated once the
	// consuming key has been looked up.
	DropLayer bool
	Layer     uint8
}

// Expired says which latches timed out in Advance.
type Expired struct {
	Mods  bool
	Layer bool
	Key   bool
}

// Manager holds the three latches. Owned by the core engine.
type Manager struct {
	timeout uint16

	mod    latch
	mods   keycode.ModifierCombination
	layerL latch
	layer  uint8
	keyL   latch
	key    keycode.KeyCode
}

func New(timeoutMs uint16) *Manager {
	if timeoutMs == 0 {
		timeoutMs = DefaultTimeoutMs
	}
	return &Manager{timeout: timeoutMs}
}

// SetTimeout changes the latch window (hot reload).
func (m *Manager) SetTimeout(ms uint16) {
	if ms > 0 {
		m.timeout = ms
	}
}

func (m *Manager) ModState() State   { return m.mod.state }
func (m *Manager) LayerState() State { return m.layerL.state }
func (m *Manager) KeyState() State   { return m.keyL.state }

// PressModifier handles a press of OneShotModifier(mods). It returns the
// modifiers to hold for the press, or 0 when the press ended a sticky latch.
func (m *Manager) PressModifier(mods keycode.ModifierCombination, now clock.Instant) keycode.ModifierCombination {
	same := m.mods&mods == mods
	if !m.mod.press(same, now) {
		m.mods = 0
		return 0
	}
	if m.mod.state == Held {
		m.mods |= mods
	}
	return m.mods
}

// ReleaseModifier handles the release. Drop means the held modifiers go away;
// otherwise they stay latched for the next key.
func (m *Manager) ReleaseModifier(now clock.Instant) Release {
	if m.mod.release(now, m.timeout) {
		m.mods = 0
		return Release{Drop: true}
	}
	return Release{}
}

// LayerChange tells the layer stack what a one-shot layer press did.
type LayerChange struct {
	On       bool
	Off      bool
	OffLayer uint8
}

// PressLayer handles OneShotLayer(n).
func (m *Manager) PressLayer(n uint8, now clock.Instant) LayerChange {
	prev, was := m.layer, m.layerL.state
	if !m.layerL.press(prev == n, now) {
		return LayerChange{Off: true, OffLayer: prev}
	}
	if m.layerL.state == Sticky {
		return LayerChange{}
	}
	m.layer = n
	c := LayerChange{On: true}
	if was == Latched || was == Held {
		c.Off, c.OffLayer = true, prev
	}
	return c
}

// ReleaseLayer reports whether the layer should be deactivated now.
func (m *Manager) ReleaseLayer(now clock.Instant) Release {
	return Release{Drop: m.layerL.release(now, m.timeout)}
}

// PressKey handles OneShotKey(kc).
func (m *Manager) PressKey(kc keycode.KeyCode, now clock.Instant) bool {
	if !m.keyL.press(m.key == kc, now) {
		m.key = 0
		return false
	}
	m.key = kc
	return true
}

// ReleaseKey reports whether the held key should be released now.
func (m *Manager) ReleaseKey(now clock.Instant) Release {
	if m.keyL.release(now, m.timeout) {
		m.key = 0
		return Release{Drop: true}
	}
	return Release{}
}

// Consume is called for each press of a key that is not itself a modifier or
// a one-shot. Latched one-shots attach to it and clear; held ones are marked
// used so their release drops them.
func (m *Manager) Consume() Applied {
	var a Applied
	for _, l := range []*latch{&m.mod, &m.layerL, &m.keyL} {
		if l.state == Held {
			l.used = true
		}
	}
	if m.mod.state == Latched {
		a.Mods = m.mods
		m.mods = 0
		m.mod.state = Idle
	}
	switch m.keyL.state {
	case Latched:
		a.Key = m.key
		m.key = 0
		m.keyL.state = Idle
	case Sticky:
		a.Key = m.key
	}
	if m.layerL.state == Latched {
		a.DropLayer = true
		a.Layer = m.layer
		m.layerL.state = Idle
	}
	return a
}

// Pending reports whether a latch would attach to the next key.
func (m *Manager) Pending() bool {
	return m.mod.state == Latched || m.mod.state == Sticky ||
		m.keyL.state == Latched || m.keyL.state == Sticky ||
		m.layerL.state == Latched
}

// LatchedMods is the modifier set waiting for the next key.
func (m *Manager) LatchedMods() keycode.ModifierCombination {
	if m.mod.state == Latched {
		return m.mods
	}
	return 0
}

// StickyMods is the modifier set locked on until pressed again. It belongs in
// every report.
func (m *Manager) StickyMods() keycode.ModifierCombination {
	if m.mod.state == Sticky {
		return m.mods
	}
	return 0
}

// Layer returns the one-shot layer and whether it is in effect.
func (m *Manager) Layer() (uint8, bool) {
	return m.layer, m.layerL.state != Idle
}

// NextDeadline is the earliest latch expiry.
func (m *Manager) NextDeadline() (clock.Instant, bool) {
	var t clock.Instant
	ok := false
	for _, l := range []*latch{&m.mod, &m.layerL, &m.keyL} {
		if l.state == Latched && (!ok || l.deadline < t) {
			t, ok = l.deadline, true
		}
	}
	return t, ok
}

// Advance expires latches due at or before now.
func (m *Manager) Advance(now clock.Instant) Expired {
	var e Expired
	if m.mod.state == Latched && m.mod.deadline <= now {
		m.mod.state = Idle
		m.mods = 0
		e.Mods = true
	}
	if m.layerL.state == Latched && m.layerL.deadline <= now {
		m.layerL.state = Idle
		e.Layer = true
	}
	if m.keyL.state == Latched && m.keyL.deadline <= now {
		m.keyL.state = Idle
		m.key = 0
		e.Key = true
	}
	return e
}

// Reset clears every latch.
func (m *Manager) Reset() {
	m.mod, m.layerL, m.keyL = latch{}, latch{}, latch{}
	m.mods, m.key, m.layer = 0, 0, 0
}
