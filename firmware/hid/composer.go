package hid

import (
	"rmk/firmware/clock"
	"rmk/firmware/event"
	"rmk/firmware/keycode"
)

// Mode selects the keyboard report format.
type Mode uint8

const (
	ModeBoot Mode = iota
	ModeNKRO
)

func (m Mode) String() string {
	if m == ModeNKRO {
		return "nkro"
	}
	return "boot"
}

// MaxRecords bounds the keys held at once.
const MaxRecords = 32

// Mouse defaults.
const (
	DefaultMouseTickMs = 20
	DefaultMouseStep   = 8
	DefaultWheelStep   = 1
)

// Record is one held output. Owner is the position whose release removes it.
type Record struct {
	Owner event.Position
	Key   keycode.KeyCode
	// Mods are held modifiers owned by this record.
	Mods keycode.ModifierCombination
	// KeyMods ride along with Key (WithModifier, caps-word, one-shot) and are
	// not hidden by Suppress.
	KeyMods keycode.ModifierCombination
	// Suppress hides modifiers held by other records.
	Suppress keycode.ModifierCombination
}

type Config struct {
	Mode        Mode
	MouseTickMs uint16
	MouseStep   int8
	WheelStep   int8
	// Send receives each report with the instant it takes effect.
	Send func(r Report, at clock.Instant)
}

// Composer holds the output state and emits a report whenever a byte of it
// changes. Owned by the core engine.
type Composer struct {
	cfg Config

	recs   [MaxRecords]Record
	n      int
	sticky keycode.ModifierCombination

	lastKbd  KeyboardReport
	lastNKRO NKROReport
	lastCons ConsumerReport
	lastSys  SystemReport
	lastBtn  uint8

	ticking  bool
	nextTick clock.Instant
}

func NewComposer(cfg Config) *Composer {
	if cfg.MouseTickMs == 0 {
		cfg.MouseTickMs = DefaultMouseTickMs
	}
	if cfg.MouseStep == 0 {
		cfg.MouseStep = DefaultMouseStep
	}
	if cfg.WheelStep == 0 {
		cfg.WheelStep = DefaultWheelStep
	}
	if cfg.Send == nil {
		cfg.Send = func(Report, clock.Instant) {}
	}
	return &Composer{cfg: cfg}
}

func (c *Composer) Mode() Mode { return c.cfg.Mode }

// SetMode switches report format. The next Flush sends the full state.
func (c *Composer) SetMode(m Mode, now clock.Instant) {
	if m == c.cfg.Mode {
		return
	}
	c.cfg.Mode = m
	c.lastKbd, c.lastNKRO = KeyboardReport{}, NKROReport{}
	c.Flush(now, true)
}

// Press adds a record. It returns false when the table is full.
func (c *Composer) Press(r Record) bool {
	if c.n >= MaxRecords {
		return false
	}
	c.recs[c.n] = r
	c.n++
	return true
}

// Release removes every record owned by owner.
func (c *Composer) Release(owner event.Position) bool {
	removed := false
	keep := 0
	for i := 0; i < c.n; i++ {
		if c.recs[i].Owner == owner {
			removed = true
			continue
		}
		c.recs[keep] = c.recs[i]
		keep++
	}
	c.n = keep
	return removed
}

// ReleaseKey removes the newest record of owner that holds kc.
func (c *Composer) ReleaseKey(owner event.Position, kc keycode.KeyCode) bool {
	for i := c.n - 1; i >= 0; i-- {
		if c.recs[i].Owner == owner && c.recs[i].Key == kc {
			copy(c.recs[i:c.n], c.recs[i+1:c.n])
			c.n--
			return true
		}
	}
	return false
}

// Held reports whether owner has a record.
func (c *Composer) Held(owner event.Position) bool {
	for i := 0; i < c.n; i++ {
		if c.recs[i].Owner == owner {
			return true
		}
	}
	return false
}

// Records returns the held records in press order.
func (c *Composer) Records() []Record { return c.recs[:c.n] }

// SetSticky sets modifiers that belong in every report.
func (c *Composer) SetSticky(m keycode.ModifierCombination) { c.sticky = m }

// Mods is the modifier byte the next keyboard report carries.
func (c *Composer) Mods() keycode.ModifierCombination {
	var held, keyed, hidden keycode.ModifierCombination
	for i := 0; i < c.n; i++ {
		r := &c.recs[i]
		held |= r.Mods
		keyed |= r.KeyMods
		hidden |= r.Suppress
	}
	return held&^hidden | keyed | c.sticky
}

// Keyboard composes the boot report.
func (c *Composer) Keyboard() KeyboardReport {
	r := KeyboardReport{Mods: c.Mods()}
	n := 0
	for i := 0; i < c.n; i++ {
		kc := c.recs[i].Key
		if !isKeyboardKey(kc) || contains(r.Keys[:n], uint8(kc)) {
			continue
		}
		if n == BootKeys {
			for j := range r.Keys {
				r.Keys[j] = uint8(keycode.ErrorRollover)
			}
			return r
		}
		r.Keys[n] = uint8(kc)
		n++
	}
	return r
}

// NKRO composes the bitmap report.
func (c *Composer) NKRO() NKROReport {
	r := NKROReport{Mods: c.Mods()}
	for i := 0; i < c.n; i++ {
		if kc := c.recs[i].Key; isKeyboardKey(kc) {
			r.Set(kc)
		}
	}
	return r
}

func (c *Composer) Consumer() ConsumerReport {
	var r ConsumerReport
	n := 0
	for i := 0; i < c.n && n < len(r.Usages); i++ {
		kc := c.recs[i].Key
		if !kc.IsConsumer() {
			continue
		}
		u := kc.ConsumerUsage()
		dup := false
		for _, have := range r.Usages[:n] {
			dup = dup || have == u
		}
		if !dup {
			r.Usages[n] = u
			n++
		}
	}
	return r
}

func (c *Composer) System() SystemReport {
	for i := 0; i < c.n; i++ {
		if kc := c.recs[i].Key; kc.IsSystem() {
			return SystemReport{Usage: kc.SystemUsage()}
		}
	}
	return SystemReport{}
}

func (c *Composer) buttons() uint8 {
	var b uint8
	for i := 0; i < c.n; i++ {
		if kc := c.recs[i].Key; kc >= keycode.MouseBtn1 && kc <= keycode.MouseBtn8 {
			b |= 1 << (kc - keycode.MouseBtn1)
		}
	}
	return b
}

// motion sums the held movement keys into one tick of motion.
func (c *Composer) motion() MouseReport {
	var x, y, w, p int
	step, wheel := int(c.cfg.MouseStep), int(c.cfg.WheelStep)
	for i := 0; i < c.n; i++ {
		switch c.recs[i].Key {
		case keycode.MouseUp:
			y -= step
		case keycode.MouseDown:
			y += step
		case keycode.MouseLeft:
			x -= step
		case keycode.MouseRight:
			x += step
		case keycode.MouseWheelUp:
			w += wheel
		case keycode.MouseWheelDown:
			w -= wheel
		case keycode.MouseWheelLeft:
			p -= wheel
		case keycode.MouseWheelRight:
			p += wheel
		}
	}
	return MouseReport{Buttons: c.buttons(), X: clamp8(x), Y: clamp8(y), Wheel: clamp8(w), Pan: clamp8(p)}
}

// Flush sends every report whose bytes changed. force resends the keyboard
// report even when unchanged, so both halves of a tap reach the host.
func (c *Composer) Flush(now clock.Instant, force bool) {
	if c.cfg.Mode == ModeNKRO {
		if r := c.NKRO(); force || r != c.lastNKRO {
			c.lastNKRO = r
			c.cfg.Send(r, now)
		}
	} else if r := c.Keyboard(); force || r != c.lastKbd {
		c.lastKbd = r
		c.cfg.Send(r, now)
	}
	if r := c.Consumer(); r != c.lastCons {
		c.lastCons = r
		c.cfg.Send(r, now)
	}
	if r := c.System(); r != c.lastSys {
		c.lastSys = r
		c.cfg.Send(r, now)
	}
	m := c.motion()
	switch {
	case m.Moving() && !c.ticking:
		c.ticking = true
		c.nextTick = now
		c.Advance(now)
	case m.Buttons != c.lastBtn:
		c.lastBtn = m.Buttons
		c.cfg.Send(MouseReport{Buttons: m.Buttons}, now)
	}
}

// Move sends pointer motion from an axis device.
func (c *Composer) Move(x, y, wheel, pan int, now clock.Instant) {
	r := MouseReport{Buttons: c.buttons(), X: clamp8(x), Y: clamp8(y), Wheel: clamp8(wheel), Pan: clamp8(pan)}
	if !r.Moving() {
		return
	}
	c.lastBtn = r.Buttons
	c.cfg.Send(r, now)
}

// NextDeadline is the next mouse tick while a movement key is held.
func (c *Composer) NextDeadline() (clock.Instant, bool) {
	return c.nextTick, c.ticking
}

// Advance emits mouse motion for every tick due at or before now.
func (c *Composer) Advance(now clock.Instant) {
	for c.ticking && c.nextTick <= now {
		m := c.motion()
		if !m.Moving() {
			c.ticking = false
			if m.Buttons != c.lastBtn {
				c.lastBtn = m.Buttons
				c.cfg.Send(m, c.nextTick)
			}
			return
		}
		c.lastBtn = m.Buttons
		c.cfg.Send(m, c.nextTick)
		c.nextTick = c.nextTick.Add(c.cfg.MouseTickMs)
	}
}

// Reset drops every record and sends empty reports where needed.
func (c *Composer) Reset(now clock.Instant) {
	c.n = 0
	c.sticky = 0
	c.ticking = false
	c.Flush(now, false)
}

func isKeyboardKey(kc keycode.KeyCode) bool {
	return kc != keycode.No && kc.IsHIDKeyboard() && !kc.IsModifier()
}

func contains(s []uint8, v uint8) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
