// Package matrix scans key switches wired to GPIO pins.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/bits"
	"time"

	"rmk/firmware/clock"
	"rmk/firmware/debounce"
	"rmk/firmware/event"
	"rmk/hal"
)

// Diode selects the current direction through the switch diodes, and with it
// which pin set is driven.
type Diode uint8

const (
	// Col2Row drives columns and senses rows.
	Col2Row Diode = iota
	// Row2Col drives rows and senses columns.
	Row2Col
)

// Config describes the wiring.
type Config struct {
	Rows int
	Cols int
	// Direct wires one input pin per key (row-major), no outputs.
	Direct bool
	Diode  Diode
	// ActiveLow means a pressed key reads low and outputs strobe low.
	ActiveLow   bool
	GhostFilter bool
	// Offset is added to every reported position (split halves).
	RowOffset uint8
	ColOffset uint8
}

// MaxCols bounds the ghost filter's per-row bitmap.
const MaxCols = 64

var ErrPins = errors.New("matrix: pin count mismatch")

// Matrix samples the switch state and debounces it.
type Matrix struct {
	cfg  Config
	outs []hal.GPIOPin
	ins  []hal.GPIOPin
	deb  debounce.Debouncer
	log  *slog.Logger

	raw    []bool
	rowMap []uint64
}

// New configures the pins and returns a scanner. For Direct matrices outs must
// be empty and ins holds Rows*Cols pins (nil entries are unpopulated keys).
func New(cfg Config, outs, ins []hal.GPIOPin, deb debounce.Debouncer, log *slog.Logger) (*Matrix, error) {
	if cfg.Rows <= 0 || cfg.Cols <= 0 || cfg.Cols > MaxCols {
		return nil, fmt.Errorf("matrix: bad dimensions %dx%d", cfg.Rows, cfg.Cols)
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Matrix{
		cfg:    cfg,
		outs:   outs,
		ins:    ins,
		deb:    deb,
		log:    log,
		raw:    make([]bool, cfg.Rows*cfg.Cols),
		rowMap: make([]uint64, cfg.Rows),
	}
	if cfg.Direct {
		if len(outs) != 0 || len(ins) != cfg.Rows*cfg.Cols {
			return nil, fmt.Errorf("%w: direct matrix needs %d inputs, got %d", ErrPins, cfg.Rows*cfg.Cols, len(ins))
		}
	} else {
		nOut, nIn := cfg.Cols, cfg.Rows
		if cfg.Diode == Row2Col {
			nOut, nIn = cfg.Rows, cfg.Cols
		}
		if len(outs) != nOut || len(ins) != nIn {
			return nil, fmt.Errorf("%w: want %d outputs and %d inputs, got %d and %d", ErrPins, nOut, nIn, len(outs), len(ins))
		}
	}

	pull := hal.GPIOPullDown
	if cfg.ActiveLow {
		pull = hal.GPIOPullUp
	}
	for _, p := range ins {
		if p == nil {
			continue
		}
		if err := p.Configure(hal.GPIOModeInput, pull); err != nil {
			return nil, fmt.Errorf("matrix: %w", err)
		}
	}
	for _, p := range outs {
		if err := p.Configure(hal.GPIOModeOutput, hal.GPIOPullNone); err != nil {
			return nil, fmt.Errorf("matrix: %w", err)
		}
		if err := p.Write(!m.active()); err != nil {
			return nil, fmt.Errorf("matrix: %w", err)
		}
	}
	return m, nil
}

func (m *Matrix) Rows() int { return m.cfg.Rows }
func (m *Matrix) Cols() int { return m.cfg.Cols }

func (m *Matrix) active() bool { return !m.cfg.ActiveLow }

// Scan samples every switch once and yields the debounced edges of this tick.
// The sequence is finite; call Scan again on the next tick.
func (m *Matrix) Scan(now clock.Instant) iter.Seq[event.KeyEvent] {
	return func(yield func(event.KeyEvent) bool) {
		m.sample()
		for r := 0; r < m.cfg.Rows; r++ {
			for c := 0; c < m.cfg.Cols; c++ {
				idx := r*m.cfg.Cols + c
				raw := m.raw[idx]
				if raw && !m.deb.Stable(idx) && m.ghosted(r, c) {
					m.log.Debug("ghost suppressed", "row", r, "col", c)
					continue
				}
				e := m.deb.Update(idx, raw, now)
				if e == debounce.None {
					continue
				}
				pos := event.Key(uint8(r)+m.cfg.RowOffset, uint8(c)+m.cfg.ColOffset)
				if !yield(event.KeyEvent{Pos: pos, Pressed: e == debounce.Pressed, Time: now}) {
					return
				}
			}
		}
	}
}

func (m *Matrix) sample() {
	for i := range m.rowMap {
		m.rowMap[i] = 0
	}
	if m.cfg.Direct {
		for i, p := range m.ins {
			m.set(i/m.cfg.Cols, i%m.cfg.Cols, m.read(p))
		}
		return
	}
	for o, out := range m.outs {
		_ = out.Write(m.active())
		for i, in := range m.ins {
			r, c := i, o
			if m.cfg.Diode == Row2Col {
				r, c = o, i
			}
			m.set(r, c, m.read(in))
		}
		_ = out.Write(!m.active())
	}
}

func (m *Matrix) read(p hal.GPIOPin) bool {
	if p == nil {
		return false
	}
	level, err := p.Read()
	if err != nil {
		return false
	}
	return level == m.active()
}

func (m *Matrix) set(r, c int, pressed bool) {
	m.raw[r*m.cfg.Cols+c] = pressed
	if pressed {
		m.rowMap[r] |= 1 << c
	}
}

// ghosted reports whether (r,c) closes a rectangle of pressed keys, in which
// case the fourth corner cannot be told apart from a phantom.
func (m *Matrix) ghosted(r, c int) bool {
	if !m.cfg.GhostFilter || m.cfg.Direct {
		return false
	}
	row := m.rowMap[r]
	if bits.OnesCount64(row) < 2 {
		return false
	}
	for r2, other := range m.rowMap {
		if r2 == r || other&(1<<c) == 0 {
			continue
		}
		if row&other&^(1<<c) != 0 {
			return true
		}
	}
	return false
}

// WaitForAny drives every output active and returns once any input senses a
// press. Inputs that can wait for an edge are not polled. Used to idle
// between bursts of typing.
func (m *Matrix) WaitForAny(ctx context.Context, poll time.Duration) error {
	for _, out := range m.outs {
		_ = out.Write(m.active())
	}
	defer func() {
		for _, out := range m.outs {
			_ = out.Write(!m.active())
		}
	}()
	if ws := m.edgeWaiters(); ws != nil {
		return m.waitEdges(ctx, ws)
	}
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		for _, in := range m.ins {
			if m.read(in) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// edgeWaiters returns the inputs as edge waiters, or nil unless all are.
func (m *Matrix) edgeWaiters() []hal.EdgeWaiter {
	var ws []hal.EdgeWaiter
	for _, in := range m.ins {
		if in == nil {
			continue
		}
		w, ok := in.(hal.EdgeWaiter)
		if !ok || in.Caps()&hal.GPIOCapEdge == 0 {
			return nil
		}
		ws = append(ws, w)
	}
	return ws
}

func (m *Matrix) waitEdges(ctx context.Context, ws []hal.EdgeWaiter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	woke := make(chan error, len(ws))
	for _, w := range ws {
		go func() { woke <- w.WaitLevel(ctx, m.active()) }()
	}
	return <-woke
}

// Pressed reports whether any key is debounced down.
func (m *Matrix) Pressed() bool {
	for i := range m.raw {
		if m.deb.Stable(i) {
			return true
		}
	}
	return false
}
