// Package capsword implements Caps-Word: a transient mode that shifts letters
// until a word-breaking key is pressed or typing pauses.
package capsword

import (
	"rmk/firmware/clock"
	"rmk/firmware/keycode"
)

// DefaultIdleMs ends Caps-Word after this long without a press.
const DefaultIdleMs = 5000

type Config struct {
	IdleMs     uint16
	ShiftMinus bool
}

// DefaultConfig shifts Minus into an underscore.
func DefaultConfig() Config {
	return Config{IdleMs: DefaultIdleMs, ShiftMinus: true}
}

// Verdict is what a key press means while Caps-Word is active.
type Verdict uint8

const (
	// Break ends Caps-Word; the key is sent unshifted.
	Break Verdict = iota
	// Continue keeps Caps-Word on without shifting the key.
	Continue
	// Shift keeps Caps-Word on and shifts the key.
	Shift
	// Neutral keys (modifiers, layer keys) neither break nor shift.
	Neutral
)

// CapsWord is owned by the core engine.
type CapsWord struct {
	cfg      Config
	active   bool
	deadline clock.Instant
}

func New(cfg Config) *CapsWord {
	if cfg.IdleMs == 0 {
		cfg.IdleMs = DefaultIdleMs
	}
	return &CapsWord{cfg: cfg}
}

func (c *CapsWord) SetConfig(cfg Config) {
	if cfg.IdleMs == 0 {
		cfg.IdleMs = c.cfg.IdleMs
	}
	c.cfg = cfg
}

func (c *CapsWord) Active() bool { return c.active }

func (c *CapsWord) Activate(now clock.Instant) {
	c.active = true
	c.deadline = now.Add(c.cfg.IdleMs)
}

func (c *CapsWord) Deactivate() { c.active = false }

// Toggle flips the mode and returns the new state.
func (c *CapsWord) Toggle(now clock.Instant) bool {
	if c.active {
		c.Deactivate()
	} else {
		c.Activate(now)
	}
	return c.active
}

// Classify sorts a key into the continuation and shiftable sets.
func (c *CapsWord) Classify(kc keycode.KeyCode) Verdict {
	switch {
	case kc.IsLetter():
		return Shift
	case kc == keycode.Minus:
		if c.cfg.ShiftMinus {
			return Shift
		}
		return Continue
	case kc.IsDigit(), kc == keycode.Backspace, kc == keycode.Delete:
		return Continue
	case kc.IsModifier(), kc == keycode.No, kc == keycode.CapsWordToggle:
		return Neutral
	}
	return Break
}

// Press reports whether kc gets Shift. A key outside the continuation set
// ends the word.
func (c *CapsWord) Press(kc keycode.KeyCode, now clock.Instant) bool {
	if !c.active {
		return false
	}
	v := c.Classify(kc)
	switch v {
	case Break:
		c.active = false
		return false
	case Neutral:
		return false
	}
	c.deadline = now.Add(c.cfg.IdleMs)
	return v == Shift
}

// Touch restarts the idle timer for keys that do not reach the report, such
// as layer keys.
func (c *CapsWord) Touch(now clock.Instant) {
	if c.active {
		c.deadline = now.Add(c.cfg.IdleMs)
	}
}

func (c *CapsWord) NextDeadline() (clock.Instant, bool) {
	return c.deadline, c.active
}

// Advance returns true if Caps-Word timed out.
func (c *CapsWord) Advance(now clock.Instant) bool {
	if c.active && c.deadline <= now {
		c.active = false
		return true
	}
	return false
}
