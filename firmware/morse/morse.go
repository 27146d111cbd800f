// Package morse decides what a multi-role key does: tap, hold, or one of
// several tap-dance patterns.
//
// One morse at a time is the pivot: the earliest unresolved morse press. Every
// event that arrives while it waits is held in a FIFO attached to it. When the
// pivot commits, the FIFO is replayed in order through the resolver, so the
// next morse in it becomes the new pivot.
package morse

import (
	"log/slog"

	"rmk/firmware/action"
	"rmk/firmware/clock"
	"rmk/firmware/event"
)

// Hand is the physical half a key sits on.
type Hand uint8

const (
	HandUnknown Hand = iota
	HandLeft
	HandRight
)

// Rule names why a morse committed.
type Rule uint8

const (
	RuleNone Rule = iota
	RuleFlowTap
	RuleUnilateral
	RulePermissive
	RuleHoldOnOther
	RuleTimeout
	RuleRelease
	RuleGap
	RuleOverflow
)

func (r Rule) String() string {
	switch r {
	case RuleFlowTap:
		return "flow_tap"
	case RuleUnilateral:
		return "unilateral"
	case RulePermissive:
		return "permissive_hold"
	case RuleHoldOnOther:
		return "hold_on_other_press"
	case RuleTimeout:
		return "timeout"
	case RuleRelease:
		return "release"
	case RuleGap:
		return "gap"
	case RuleOverflow:
		return "overflow"
	default:
		return "none"
	}
}

// IsTap reports whether the rule resolves toward the tap side.
func (r Rule) IsTap() bool {
	switch r {
	case RuleFlowTap, RuleUnilateral, RuleRelease, RuleGap:
		return true
	}
	return false
}

// EffectKind discriminates Effect.
type EffectKind uint8

const (
	// EffectPass forwards an event the resolver does not own.
	EffectPass EffectKind = iota
	// EffectPress holds Action down at Event.Pos until its physical release
	// is passed through.
	EffectPress
	// EffectTap presses Action and releases it after the tap interval.
	EffectTap
)

// Effect is one output of the resolver, in order.
type Effect struct {
	Kind    EffectKind
	Event   event.KeyEvent
	Action  action.Action
	Pattern action.MorsePattern
	Rule    Rule
}

// Config wires the resolver to its host. The callbacks run synchronously;
// Emit must apply each effect before returning, since later lookups depend on
// the layer state it leaves behind.
type Config struct {
	Defaults  action.MorseProfile
	QueueSize int
	Lookup    func(pos event.Position) (action.Morse, bool)
	Hand      func(pos event.Position) Hand
	Emit      func(Effect)
	Log       *slog.Logger
}

// DefaultQueueSize bounds the FIFO attached to the pivot.
const DefaultQueueSize = 16

type state uint8

const (
	waiting state = iota
	holding
	tapPending
)

type pivot struct {
	pos      event.Position
	morse    action.Morse
	prof     action.MorseProfile
	pattern  action.MorsePattern
	pressed  bool
	state    state
	deadline clock.Instant
	timed    bool
}

// Resolver is the morse FSM. Not safe for concurrent use.
type Resolver struct {
	cfg      Config
	pv       pivot
	active   bool
	queue    *event.Ring[event.KeyEvent]
	backlog  *event.Ring[event.KeyEvent]
	spare    *event.Ring[event.KeyEvent]
	lastKey  clock.Instant
	hasLast  bool
	draining bool
}

// New builds a resolver. Lookup, Hand and Emit are required.
func New(cfg Config) *Resolver {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Hand == nil {
		cfg.Hand = func(event.Position) Hand { return HandUnknown }
	}
	n := cfg.QueueSize + 2
	return &Resolver{
		cfg:     cfg,
		queue:   event.NewRing[event.KeyEvent](n),
		backlog: event.NewRing[event.KeyEvent](n),
		spare:   event.NewRing[event.KeyEvent](n),
	}
}

// SetDefaults swaps the global profile (hot reload).
func (r *Resolver) SetDefaults(p action.MorseProfile) { r.cfg.Defaults = p }

// Waiting reports whether a morse is unresolved.
func (r *Resolver) Waiting() bool { return r.active }

// Queued is the number of events held behind the pivot.
func (r *Resolver) Queued() int { return r.queue.Len() }

// NextDeadline returns the pivot's timer, if any.
func (r *Resolver) NextDeadline() (clock.Instant, bool) {
	if !r.active || !r.pv.timed {
		return 0, false
	}
	return r.pv.deadline, true
}

// Feed processes one event and everything it unblocks.
func (r *Resolver) Feed(ev event.KeyEvent) {
	if !r.backlog.Push(ev) {
		// Only reachable through re-entrant feeding from Emit.
		r.cfg.Log.Warn("morse backlog full, forwarding", "pos", ev.Pos.String())
		r.emit(Effect{Kind: EffectPass, Event: ev})
		return
	}
	r.drain()
}

// Advance fires every timer due at or before now.
func (r *Resolver) Advance(now clock.Instant) {
	for r.active && r.pv.timed && r.pv.deadline <= now && !r.draining {
		r.expire(r.pv.deadline)
		r.flush(nil)
		r.drain()
	}
}

// Reset drops all in-flight state without emitting anything.
func (r *Resolver) Reset() {
	r.active = false
	r.queue.Clear()
	r.backlog.Clear()
	r.hasLast = false
}

func (r *Resolver) drain() {
	if r.draining {
		return
	}
	r.draining = true
	defer func() { r.draining = false }()
	for {
		ev, ok := r.backlog.Pop()
		if !ok {
			return
		}
		r.step(ev)
	}
}

func (r *Resolver) emit(e Effect) {
	if e.Event.Pressed && e.Event.Pos.Kind == event.PosKey {
		r.lastKey = e.Event.Time
		r.hasLast = true
	}
	r.cfg.Emit(e)
}

func (r *Resolver) step(ev event.KeyEvent) {
	if r.active && r.pv.timed && r.pv.deadline <= ev.Time {
		r.expire(r.pv.deadline)
		r.flush(&ev)
		return
	}
	if !r.active {
		r.idle(ev)
		return
	}
	if ev.Pos.Kind == event.PosAxis {
		r.emit(Effect{Kind: EffectPass, Event: ev})
		return
	}
	pv := &r.pv
	if ev.Pos == pv.pos {
		r.self(ev)
		return
	}

	switch pv.state {
	case tapPending:
		if ev.Pressed {
			r.commit(pv.pattern, ev.Time, RuleGap)
			r.flush(&ev)
			return
		}
		r.emit(Effect{Kind: EffectPass, Event: ev})
		return
	case holding:
		r.commit(pv.pattern, ev.Time, RuleHoldOnOther)
		r.flush(&ev)
		return
	}

	hrm := pv.prof.EnableHRM.Or(false)
	if ev.Pressed {
		if hrm && pv.prof.UnilateralTap.Or(false) {
			h := r.cfg.Hand(ev.Pos)
			if h != HandUnknown && h == r.cfg.Hand(pv.pos) {
				r.commit(pv.pattern.Tap(), ev.Time, RuleUnilateral)
				r.flush(&ev)
				return
			}
		}
		if pv.prof.Mode == action.ModeHoldOnOtherPress {
			r.commit(pv.pattern.Hold(), ev.Time, RuleHoldOnOther)
			r.flush(&ev)
			return
		}
	}
	if !ev.Pressed && pv.prof.Mode == action.ModePermissiveHold {
		if at, ok := r.queuedPress(ev.Pos); ok {
			r.commit(pv.pattern.Hold(), at, RulePermissive)
			r.flush(&ev)
			return
		}
	}
	if r.queue.Len() >= r.cfg.QueueSize {
		r.cfg.Log.Warn("morse queue overflow, forcing hold", "pos", pv.pos.String(), "queued", r.queue.Len())
		r.commit(pv.pattern.Hold(), ev.Time, RuleOverflow)
		r.flush(&ev)
		return
	}
	r.queue.Push(ev)
}

// idle handles an event with no pivot.
func (r *Resolver) idle(ev event.KeyEvent) {
	if !ev.Pressed || ev.Pos.Kind == event.PosAxis {
		r.emit(Effect{Kind: EffectPass, Event: ev})
		return
	}
	m, ok := r.cfg.Lookup(ev.Pos)
	if !ok {
		r.emit(Effect{Kind: EffectPass, Event: ev})
		return
	}
	prof := m.Profile.Merge(r.cfg.Defaults)
	if prof.Mode == action.ModeInherit {
		prof.Mode = action.ModeNormal
	}
	if prof.EnableHRM.Or(false) && r.hasLast && ev.Time.Since(r.lastKey) <= uint64(prof.PriorIdleMs) {
		if a := m.TapAction(); a.Kind != action.KindNo {
			r.emit(Effect{Kind: EffectTap, Event: ev, Action: a, Pattern: action.PatternTap, Rule: RuleFlowTap})
			return
		}
	}
	r.pv = pivot{
		pos:      ev.Pos,
		morse:    m,
		prof:     prof,
		pattern:  action.PatternEmpty,
		pressed:  true,
		state:    waiting,
		deadline: ev.Time.Add(prof.TimeoutMs),
		timed:    true,
	}
	r.active = true
}

// self handles the pivot's own press or release.
func (r *Resolver) self(ev event.KeyEvent) {
	pv := &r.pv
	if ev.Pressed {
		if pv.state == tapPending {
			pv.pressed = true
			pv.state = waiting
			pv.deadline = ev.Time.Add(pv.prof.TimeoutMs)
			pv.timed = true
		}
		return
	}
	pv.pressed = false
	p := pv.pattern
	if pv.state == waiting {
		p = p.Tap()
	}
	if !r.queue.Empty() || p.IsFull() || !pv.morse.CanExtend(p) {
		r.commit(p, ev.Time, RuleRelease)
		r.flush(nil)
		return
	}
	pv.pattern = p
	pv.state = tapPending
	pv.deadline = ev.Time.Add(pv.prof.GapMs)
	pv.timed = true
}

// expire applies the pivot's timer at instant at.
func (r *Resolver) expire(at clock.Instant) {
	pv := &r.pv
	switch pv.state {
	case tapPending:
		r.commit(pv.pattern, at, RuleGap)
	case waiting:
		p := pv.pattern.Hold()
		if r.queue.Empty() && !p.IsFull() && pv.morse.CanExtend(p) {
			pv.pattern = p
			pv.state = holding
			pv.timed = false
			return
		}
		r.commit(p, at, RuleTimeout)
	default:
		pv.timed = false
	}
}

// commit resolves the pivot to pattern p and emits its action.
func (r *Resolver) commit(p action.MorsePattern, at clock.Instant, rule Rule) {
	pv := r.pv
	r.active = false
	a, ok := lookupPattern(&pv.morse, p)
	if !ok {
		return
	}
	kind := EffectTap
	if pv.pressed && rule != RuleFlowTap {
		kind = EffectPress
	}
	r.emit(Effect{
		Kind:    kind,
		Event:   event.KeyEvent{Pos: pv.pos, Pressed: true, Time: at},
		Action:  a,
		Pattern: p,
		Rule:    rule,
	})
}

// flush puts the pivot's FIFO, then extra, ahead of the backlog.
func (r *Resolver) flush(extra *event.KeyEvent) {
	if r.queue.Empty() && extra == nil {
		return
	}
	out := r.spare
	for {
		ev, ok := r.queue.Pop()
		if !ok {
			break
		}
		out.Push(ev)
	}
	if extra != nil {
		out.Push(*extra)
	}
	for {
		ev, ok := r.backlog.Pop()
		if !ok {
			break
		}
		out.Push(ev)
	}
	r.spare = r.backlog
	r.backlog = out
}

func (r *Resolver) queuedPress(pos event.Position) (clock.Instant, bool) {
	for i := 0; i < r.queue.Len(); i++ {
		if ev := r.queue.At(i); ev.Pressed && ev.Pos == pos {
			return ev.Time, true
		}
	}
	return 0, false
}

// lookupPattern finds the action bound to exactly p. An unbound or No slot
// sends nothing.
func lookupPattern(m *action.Morse, p action.MorsePattern) (action.Action, bool) {
	if a, ok := m.Lookup(p); ok && a.Kind != action.KindNo {
		return a, true
	}
	return action.No, false
}
