// Package keyboard is the core engine. It owns the layer stack, the morse
// and combo resolvers, the one-shot and caps-word state and the HID composer,
// and turns key events into reports.
//
// The engine is synchronous and single-owner: the keyboard service feeds it
// events with Process and wakes it with Advance at NextDeadline. Every report
// carries the logical instant it takes effect at, so tests can drive the
// engine with explicit timestamps.
package keyboard

import (
	"errors"
	"log/slog"

	"rmk/firmware/action"
	"rmk/firmware/capsword"
	"rmk/firmware/clock"
	"rmk/firmware/combo"
	"rmk/firmware/event"
	"rmk/firmware/fork"
	"rmk/firmware/hid"
	"rmk/firmware/keycode"
	"rmk/firmware/keymap"
	"rmk/firmware/macro"
	"rmk/firmware/morse"
	"rmk/firmware/oneshot"
)

const (
	maxHolds = 16
	maxTaps  = 16
	// Virtual owner IDs: combos use 0..combo.MaxCombos-1.
	tapOwnerBase = combo.MaxCombos
	macroOwnerID = 0xFF
)

var macroOwner = event.Virtual(macroOwnerID)

var ErrNoKeymap = errors.New("keyboard: keymap required")

// Options wires the engine. Tables left nil start empty.
type Options struct {
	Keymap       *keymap.Keymap
	Morses       *morse.Table
	Combos       *combo.Table
	Forks        *fork.Table
	Macros       *macro.Book
	TriLayer     *keymap.TriLayer
	DefaultLayer uint8
	Behavior     Behavior
	// Hand assigns key positions to halves for unilateral tap. The default
	// splits the matrix down the middle column.
	Hand func(pos event.KeyPosition) morse.Hand
	Send func(r hid.Report, at clock.Instant)
	// Notify receives layer, modifier, caps-word and connection changes.
	Notify func(c event.Controller)
	// Reboot is called for the Reboot and Bootloader keys.
	Reboot func(bootloader bool)
	Log    *slog.Logger
}

type hold struct {
	owner event.Position
	act   action.Action
}

type pendingTap struct {
	active bool
	at     clock.Instant
	// kbd taps repeat a keyboard keycode, so both edges are sent even
	// when the report looks unchanged.
	kbd bool
}

type snapshot struct {
	mask uint32
	top  uint8
	def  uint8
	mods keycode.ModifierCombination
	caps bool
}

// Keyboard is the engine. Not safe for concurrent use.
type Keyboard struct {
	opts   Options
	beh    Behavior
	log    *slog.Logger
	km     *keymap.Keymap
	layers *keymap.LayerStack
	morses *morse.Table
	forks  *fork.Table

	combo    *combo.Stage
	resolver *morse.Resolver
	oneshot  *oneshot.Manager
	caps     *capsword.CapsWord
	macros   *macro.Executor
	hid      *hid.Composer

	holds  [maxHolds]hold
	nholds int
	taps   [maxTaps]pendingTap
	last   action.Action
	now    clock.Instant
	sent   clock.Instant
	snap   snapshot
}

func New(opts Options) (*Keyboard, error) {
	if opts.Keymap == nil {
		return nil, ErrNoKeymap
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Notify == nil {
		opts.Notify = func(event.Controller) {}
	}
	if opts.Send == nil {
		opts.Send = func(hid.Report, clock.Instant) {}
	}
	var err error
	if opts.Morses == nil {
		if opts.Morses, err = morse.NewTable(); err != nil {
			return nil, err
		}
	}
	if opts.Combos == nil {
		if opts.Combos, err = combo.NewTable(); err != nil {
			return nil, err
		}
	}
	if opts.Forks == nil {
		if opts.Forks, err = fork.NewTable(); err != nil {
			return nil, err
		}
	}
	if opts.Macros == nil {
		opts.Macros = macro.NewBook(macro.DefaultBufferSize)
	}
	if opts.Behavior == (Behavior{}) {
		opts.Behavior = DefaultBehavior()
	}
	if opts.Hand == nil {
		half := uint8(opts.Keymap.Cols() / 2)
		opts.Hand = func(p event.KeyPosition) morse.Hand {
			if p.Col < half {
				return morse.HandLeft
			}
			return morse.HandRight
		}
	}

	b := opts.Behavior
	k := &Keyboard{
		opts:   opts,
		beh:    b,
		log:    opts.Log,
		km:     opts.Keymap,
		layers: keymap.NewLayerStack(opts.DefaultLayer, opts.TriLayer),
		morses: opts.Morses,
		forks:  opts.Forks,
		last:   action.No,
	}
	k.hid = hid.NewComposer(hid.Config{
		Mode:        b.Report,
		MouseTickMs: b.MouseTickMs,
		Send:        k.send,
	})
	k.oneshot = oneshot.New(b.OneShotTimeoutMs)
	k.caps = capsword.New(b.CapsWord)
	k.macros = macro.NewExecutor(opts.Macros, b.TapIntervalMs, k.macroStep, opts.Log.With("part", "macro"))
	k.resolver = morse.New(morse.Config{
		Defaults:  b.Morse,
		QueueSize: b.MorseQueue,
		Lookup:    k.lookupMorse,
		Hand:      k.hand,
		Emit:      k.effect,
		Log:       opts.Log.With("part", "morse"),
	})
	k.combo = combo.NewStage(opts.Combos, combo.Config{
		TimeoutMs:   b.ComboTimeoutMs,
		Lookup:      k.lookupCombo,
		LayerActive: k.layers.Active,
		Emit:        k.resolver.Feed,
		Log:         opts.Log.With("part", "combo"),
	})
	k.snap = k.snapshot()
	return k, nil
}

// Process runs one input event to completion. Timers due at or before the
// event's instant fire first.
func (k *Keyboard) Process(ev event.KeyEvent) {
	k.advance(ev.Time)
	k.combo.Process(ev)
	k.notify()
}

// Advance fires every timer due at or before now, in deadline order.
func (k *Keyboard) Advance(now clock.Instant) {
	k.advance(now)
	k.notify()
}

func (k *Keyboard) advance(now clock.Instant) {
	for {
		d, ok := k.NextDeadline()
		if !ok || d > now {
			break
		}
		k.fire(d)
	}
	if now > k.now {
		k.now = now
	}
}

// NextDeadline is the earliest pending timer of any stage.
func (k *Keyboard) NextDeadline() (clock.Instant, bool) {
	var best clock.Instant
	found := false
	consider := func(d clock.Instant, ok bool) {
		if ok && (!found || d < best) {
			best, found = d, true
		}
	}
	for i := range k.taps {
		consider(k.taps[i].at, k.taps[i].active)
	}
	consider(k.combo.NextDeadline())
	consider(k.resolver.NextDeadline())
	consider(k.macros.NextDeadline())
	consider(k.oneshot.NextDeadline())
	consider(k.caps.NextDeadline())
	consider(k.hid.NextDeadline())
	return best, found
}

// fire runs every stage's timers due at d. Tap releases go first, then the
// stages in pipeline order.
func (k *Keyboard) fire(d clock.Instant) {
	if d > k.now {
		k.now = d
	}
	for i := range k.taps {
		if k.taps[i].active && k.taps[i].at <= d {
			k.fireTap(i)
		}
	}
	k.combo.Advance(d)
	k.resolver.Advance(d)
	k.macros.Advance(d)
	if t, ok := k.oneshot.NextDeadline(); ok && t <= d {
		l, _ := k.oneshot.Layer()
		if e := k.oneshot.Advance(d); e.Layer {
			k.layers.Deactivate(l)
		}
		k.flush(d, false)
	}
	k.caps.Advance(d)
	k.hid.Advance(d)
}

// SetBehavior applies new timings. In-flight keys keep the profile they
// started with.
func (k *Keyboard) SetBehavior(b Behavior) {
	k.beh = b
	k.resolver.SetDefaults(b.Morse)
	k.combo.SetTimeout(b.ComboTimeoutMs)
	k.oneshot.SetTimeout(b.OneShotTimeoutMs)
	k.caps.SetConfig(b.CapsWord)
	k.macros.SetTapInterval(b.TapIntervalMs)
	k.hid.SetMode(b.Report, k.now)
}

func (k *Keyboard) Behavior() Behavior { return k.beh }

func (k *Keyboard) DefaultLayer() uint8  { return k.layers.Default() }
func (k *Keyboard) ActiveLayers() uint32 { return k.layers.Mask() }
func (k *Keyboard) CapsWord() bool       { return k.caps.Active() }
func (k *Keyboard) Mods() keycode.ModifierCombination {
	return k.hid.Mods()
}

// Reset drops every in-flight key and sends empty reports.
func (k *Keyboard) Reset() {
	k.resolver.Reset()
	k.combo.Reset()
	k.oneshot.Reset()
	k.caps.Deactivate()
	k.macros.Stop()
	k.layers.Reset()
	k.nholds = 0
	k.taps = [maxTaps]pendingTap{}
	k.hid.Reset(k.now)
	k.notify()
}

// send stamps reports in order. Events replayed from the morse queue carry
// their original instants, which may precede a commit already reported.
func (k *Keyboard) send(r hid.Report, at clock.Instant) {
	if at < k.sent {
		at = k.sent
	}
	k.sent = at
	k.opts.Send(r, at)
}

func (k *Keyboard) hand(pos event.Position) morse.Hand {
	if pos.Kind != event.PosKey {
		return morse.HandUnknown
	}
	return k.opts.Hand(pos.Key)
}

// resolve finds what pos does right now, after forks.
func (k *Keyboard) resolve(pos event.Position) fork.Result {
	ka := action.NoKey
	switch pos.Kind {
	case event.PosKey:
		ka, _ = k.km.Resolve(k.layers, pos.Key)
	case event.PosEncoder:
		ka = k.km.ResolveEncoder(k.layers, pos.ID, pos.Dir)
	case event.PosVirtual:
		if pos.ID < combo.MaxCombos {
			ka = action.Single(k.combo.Output(pos.ID))
		}
	}
	// A latched one-shot modifier applies to the next key, so forks see it.
	return k.forks.Resolve(ka, k.hid.Mods()|k.oneshot.LatchedMods())
}

func (k *Keyboard) lookupMorse(pos event.Position) (action.Morse, bool) {
	if pos.Kind != event.PosKey && pos.Kind != event.PosEncoder {
		return action.Morse{}, false
	}
	return k.morses.For(k.resolve(pos).Action)
}

// lookupCombo matches chords on the keymap cell, before forks.
func (k *Keyboard) lookupCombo(pos event.Position) action.KeyAction {
	if pos.Kind != event.PosKey {
		return action.NoKey
	}
	ka, _ := k.km.Resolve(k.layers, pos.Key)
	return ka
}

func (k *Keyboard) snapshot() snapshot {
	return snapshot{
		mask: k.layers.Mask(),
		top:  k.layers.Highest(),
		def:  k.layers.Default(),
		mods: k.hid.Mods(),
		caps: k.caps.Active(),
	}
}

// LayerState is the layer stack as a CtrlLayer event.
func (k *Keyboard) LayerState() event.Controller {
	s := k.snapshot()
	return event.Controller{Kind: event.CtrlLayer, Layer: s.top, Layers: s.mask, Value: s.def}
}

func (k *Keyboard) notify() {
	s := k.snapshot()
	if s.mask != k.snap.mask || s.top != k.snap.top || s.def != k.snap.def {
		k.opts.Notify(k.LayerState())
	}
	if s.mods != k.snap.mods {
		k.opts.Notify(event.Controller{Kind: event.CtrlModifiers, Mods: s.mods})
	}
	if s.caps != k.snap.caps {
		k.opts.Notify(event.Controller{Kind: event.CtrlCapsWord, On: s.caps})
	}
	k.snap = s
}
