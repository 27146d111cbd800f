package combo

import (
	"log/slog"

	"rmk/firmware/action"
	"rmk/firmware/clock"
	"rmk/firmware/event"
)

// Config wires a Stage into the pipeline. Emit receives every event the
// stage lets through, in order, including the virtual press and release of a
// fired combo at event.Virtual(index).
type Config struct {
	TimeoutMs   uint16
	Lookup      func(pos event.Position) action.KeyAction
	LayerActive func(n uint8) bool
	Emit        func(event.KeyEvent)
	Log         *slog.Logger
}

type buffered struct {
	ev event.KeyEvent
	ka action.KeyAction
}

type fired struct {
	idx  uint8
	held [MaxKeys]event.Position
	n    uint8
}

// Stage buffers presses that could start a chord and decides between firing
// a combo and flushing the keys through individually. Not safe for concurrent
// use.
type Stage struct {
	cfg     Config
	table   *Table
	enabled bool

	cur      [MaxCombos]Combo
	buf      [MaxKeys]buffered
	n        int
	deadline clock.Instant
	best     int

	fired  [MaxCombos]fired
	nfired int
}

func NewStage(t *Table, cfg Config) *Stage {
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = DefaultTimeoutMs
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.LayerActive == nil {
		cfg.LayerActive = func(uint8) bool { return true }
	}
	return &Stage{cfg: cfg, table: t, enabled: true, best: -1}
}

func (s *Stage) SetTimeout(ms uint16) {
	if ms > 0 {
		s.cfg.TimeoutMs = ms
	}
}

func (s *Stage) Enabled() bool { return s.enabled }

// SetEnabled turns combo matching on or off. Turning it off flushes any
// partial chord.
func (s *Stage) SetEnabled(on bool) {
	if !on && s.n > 0 {
		s.flush()
	}
	s.enabled = on
}

// Pending reports whether presses are buffered.
func (s *Stage) Pending() bool { return s.n > 0 }

func (s *Stage) NextDeadline() (clock.Instant, bool) {
	return s.deadline, s.n > 0
}

// Advance fires or flushes a chord whose window closed at or before now.
func (s *Stage) Advance(now clock.Instant) {
	if s.n > 0 && s.deadline <= now {
		s.timeout()
	}
}

// Process runs one event through the stage.
func (s *Stage) Process(ev event.KeyEvent) {
	if s.n > 0 && s.deadline <= ev.Time {
		s.timeout()
	}
	if ev.Pos.Kind != event.PosKey {
		if ev.Pressed && ev.Pos.Kind != event.PosAxis && s.n > 0 {
			s.resolve()
		}
		s.cfg.Emit(ev)
		return
	}
	if !ev.Pressed {
		s.release(ev)
		return
	}
	s.press(ev)
}

func (s *Stage) press(ev event.KeyEvent) {
	if !s.enabled {
		s.cfg.Emit(ev)
		return
	}
	ka := s.cfg.Lookup(ev.Pos)
	if s.n == 0 {
		s.table.snapshot(&s.cur)
	}
	var items [MaxKeys]action.KeyAction
	for i := 0; i < s.n; i++ {
		items[i] = s.buf[i].ka
	}
	candidates, exact, window := 0, -1, uint16(0)
	if s.n < MaxKeys && ka.Kind != action.KeyActionNo && ka.Kind != action.KeyActionTransparent {
		items[s.n] = ka
		set := items[:s.n+1]
		for i := range s.cur {
			c := &s.cur[i]
			if c.IsEmpty() || s.isFired(i) || (c.HasLayer && !s.cfg.LayerActive(c.Layer)) || !c.covers(set) {
				continue
			}
			candidates++
			if int(c.Count) == len(set) && exact < 0 {
				exact = i
			}
			t := c.TimeoutMs
			if t == 0 {
				t = s.cfg.TimeoutMs
			}
			if window == 0 || t < window {
				window = t
			}
		}
	}
	if candidates == 0 {
		if s.n > 0 {
			s.resolve()
			s.press(ev)
			return
		}
		s.cfg.Emit(ev)
		return
	}
	if s.n == 0 {
		s.deadline = ev.Time.Add(window)
	} else if d := s.buf[0].ev.Time.Add(window); d < s.deadline {
		s.deadline = d
	}
	s.buf[s.n] = buffered{ev: ev, ka: ka}
	s.n++
	if exact < 0 {
		return
	}
	if candidates == 1 {
		s.fire(exact, ev.Time)
		s.flush()
		return
	}
	s.best = exact
}

func (s *Stage) release(ev event.KeyEvent) {
	if s.swallow(ev) {
		return
	}
	for i := 0; i < s.n; i++ {
		if s.buf[i].ev.Pos == ev.Pos {
			s.resolve()
			if !s.swallow(ev) {
				s.cfg.Emit(ev)
			}
			return
		}
	}
	s.cfg.Emit(ev)
}

// swallow consumes the release of a key that belongs to a fired combo. The
// combo's virtual key is released when the last of its keys goes up.
func (s *Stage) swallow(ev event.KeyEvent) bool {
	for i := 0; i < s.nfired; i++ {
		f := &s.fired[i]
		for j := 0; j < int(f.n); j++ {
			if f.held[j] != ev.Pos {
				continue
			}
			f.held[j] = f.held[f.n-1]
			f.n--
			if f.n == 0 {
				idx := f.idx
				s.fired[i] = s.fired[s.nfired-1]
				s.nfired--
				s.cfg.Emit(event.Release(event.Virtual(idx), ev.Time))
			}
			return true
		}
	}
	return false
}

func (s *Stage) isFired(idx int) bool {
	for i := 0; i < s.nfired; i++ {
		if int(s.fired[i].idx) == idx {
			return true
		}
	}
	return false
}

// timeout closes the window: the best exact match fires, the rest flush.
func (s *Stage) timeout() {
	at := s.deadline
	if s.best >= 0 {
		s.fire(s.best, at)
	}
	s.flush()
}

// resolve ends the chord early because of an unrelated key or a release.
func (s *Stage) resolve() {
	last := s.buf[s.n-1].ev.Time
	if s.best >= 0 {
		s.fire(s.best, last)
	}
	s.flush()
}

// fire consumes the buffered keys that make up combo idx.
func (s *Stage) fire(idx int, at clock.Instant) {
	c := &s.cur[idx]
	f := fired{idx: uint8(idx)}
	var used [MaxKeys]bool
	keep := 0
	for i := 0; i < s.n; i++ {
		b := s.buf[i]
		matched := false
		for k := 0; k < int(c.Count); k++ {
			if !used[k] && c.Keys[k] == b.ka {
				used[k] = true
				matched = true
				break
			}
		}
		if matched {
			f.held[f.n] = b.ev.Pos
			f.n++
			continue
		}
		s.buf[keep] = b
		keep++
	}
	s.n = keep
	s.best = -1
	s.fired[s.nfired] = f
	s.nfired++
	s.cfg.Log.Debug("combo fired", "idx", idx, "output", c.Output.String())
	s.cfg.Emit(event.Press(event.Virtual(uint8(idx)), at))
}

// flush releases every buffered press downstream in press order.
func (s *Stage) flush() {
	n := s.n
	s.n = 0
	s.best = -1
	for i := 0; i < n; i++ {
		s.cfg.Emit(s.buf[i].ev)
	}
}

// Output returns the action a fired combo's virtual key stands for.
func (s *Stage) Output(idx uint8) action.Action {
	if int(idx) >= MaxCombos {
		return action.No
	}
	return s.cur[idx].Output
}

// Reset drops buffered presses and fired combos without emitting anything.
func (s *Stage) Reset() {
	s.n, s.nfired, s.best = 0, 0, -1
}
