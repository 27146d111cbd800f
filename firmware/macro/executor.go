package macro

import (
	"log/slog"

	"rmk/firmware/clock"
	"rmk/firmware/event"
	"rmk/firmware/keycode"
)

// Step is one key edge produced by a running macro.
type Step struct {
	Pressed bool
	Key     keycode.KeyCode
	Mods    keycode.ModifierCombination
	Time    clock.Instant
}

// DefaultTapMs separates the press and release of a macro tap.
const DefaultTapMs = 10

// Executor plays macros one at a time on the engine's timer. Starts that
// arrive while a macro runs wait in a queue.
type Executor struct {
	book  *Book
	tapMs uint16
	emit  func(Step)
	log   *slog.Logger

	queue   *event.Ring[uint8]
	cur     []byte
	n       int
	off     int
	slot    uint8
	running bool
	wake    clock.Instant
	up      *Step
	upStep  Step
}

func NewExecutor(book *Book, tapMs uint16, emit func(Step), log *slog.Logger) *Executor {
	if tapMs == 0 {
		tapMs = DefaultTapMs
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		book:  book,
		tapMs: tapMs,
		emit:  emit,
		log:   log,
		queue: event.NewRing[uint8](NumSlots),
		cur:   make([]byte, book.Size()),
	}
}

func (e *Executor) SetTapInterval(ms uint16) {
	if ms > 0 {
		e.tapMs = ms
	}
}

// Running reports whether a macro is playing.
func (e *Executor) Running() bool { return e.running }

// Start schedules macro idx at now. The first step runs on the next Advance.
func (e *Executor) Start(idx uint8, now clock.Instant) bool {
	if int(idx) >= NumSlots {
		e.log.Warn("macro slot out of range", "idx", idx)
		return false
	}
	if e.running {
		if !e.queue.Push(idx) {
			e.log.Warn("macro queue full, dropping", "idx", idx)
			return false
		}
		return true
	}
	return e.load(idx, now)
}

func (e *Executor) load(idx uint8, now clock.Instant) bool {
	n, err := e.book.Slot(int(idx), e.cur)
	if err != nil {
		e.log.Warn("macro unreadable", "idx", idx, "err", err)
		return false
	}
	if n == 0 {
		e.log.Debug("macro empty", "idx", idx)
		return false
	}
	e.n, e.off, e.slot = n, 0, idx
	e.running = true
	e.wake = now
	return true
}

func (e *Executor) NextDeadline() (clock.Instant, bool) {
	return e.wake, e.running
}

// Advance plays every step due at or before now.
func (e *Executor) Advance(now clock.Instant) {
	for e.running && e.wake <= now {
		at := e.wake
		if e.up != nil {
			s := *e.up
			e.up = nil
			s.Time = at
			e.emit(s)
			continue
		}
		op, n, err := next(e.cur[:e.n], e.off)
		if err != nil {
			e.log.Warn("macro malformed, stopping", "idx", e.slot, "err", err)
			n = 0
		}
		if n == 0 {
			e.finish(at)
			continue
		}
		e.off += n
		e.play(op, at)
	}
}

func (e *Executor) play(op Op, at clock.Instant) {
	switch op.Kind {
	case OpDelay:
		e.wake = at + clock.Instant(op.Delay)
	case OpPress:
		e.emit(Step{Pressed: true, Key: op.Key, Mods: op.Mods, Time: at})
	case OpRelease:
		e.emit(Step{Key: op.Key, Mods: op.Mods, Time: at})
	case OpTap, OpText:
		kc, mods := op.Key, op.Mods
		if op.Kind == OpText {
			var shift, ok bool
			kc, shift, ok = keycode.FromASCII(op.Char)
			if !ok {
				return
			}
			if shift {
				mods = keycode.ModLShift
			}
		}
		e.emit(Step{Pressed: true, Key: kc, Mods: mods, Time: at})
		e.upStep = Step{Key: kc, Mods: mods}
		e.up = &e.upStep
		e.wake = at.Add(e.tapMs)
	}
}

func (e *Executor) finish(at clock.Instant) {
	e.running = false
	for {
		idx, ok := e.queue.Pop()
		if !ok {
			return
		}
		if e.load(idx, at) {
			return
		}
	}
}

// Stop abandons the running macro and the queue. Keys it pressed are left to
// the caller to release.
func (e *Executor) Stop() {
	e.running = false
	e.up = nil
	e.queue.Clear()
}
