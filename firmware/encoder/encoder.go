// Package encoder decodes quadrature rotary encoders into key events.
package encoder

import (
	"fmt"
	"iter"

	"rmk/firmware/clock"
	"rmk/firmware/event"
	"rmk/hal"
)

// transitions[prev<<2|cur] is the step for one quadrature state change:
// +1 clockwise, -1 counter-clockwise, 0 for no change or an invalid jump.
var transitions = [16]int8{
	0, -1, 1, 0,
	1, 0, 0, -1,
	-1, 0, 0, 1,
	0, 1, -1, 0,
}

// Encoder is one rotary encoder on two input pins.
type Encoder struct {
	id      uint8
	a, b    hal.GPIOPin
	pulses  int8
	reverse bool

	state uint8
	acc   int8
}

// New configures the pins. pulses is the number of quadrature steps per
// detent (usually 4).
func New(id uint8, a, b hal.GPIOPin, pulses int8, reverse bool) (*Encoder, error) {
	if pulses <= 0 {
		pulses = 4
	}
	for _, p := range []hal.GPIOPin{a, b} {
		if err := p.Configure(hal.GPIOModeInput, hal.GPIOPullUp); err != nil {
			return nil, fmt.Errorf("encoder %d: %w", id, err)
		}
	}
	e := &Encoder{id: id, a: a, b: b, pulses: pulses, reverse: reverse}
	e.state = e.read()
	return e, nil
}

func (e *Encoder) ID() uint8 { return e.id }

func (e *Encoder) read() uint8 {
	la, _ := e.a.Read()
	lb, _ := e.b.Read()
	var s uint8
	if la {
		s |= 2
	}
	if lb {
		s |= 1
	}
	return s
}

// Step feeds one sampled state (bit1 = A, bit0 = B) and reports a completed
// detent, if any.
func (e *Encoder) Step(cur uint8) (event.Direction, bool) {
	cur &= 3
	d := transitions[e.state<<2|cur]
	e.state = cur
	if d == 0 {
		return 0, false
	}
	e.acc += d
	switch {
	case e.acc >= e.pulses:
		e.acc = 0
		return e.dir(event.Clockwise), true
	case e.acc <= -e.pulses:
		e.acc = 0
		return e.dir(event.CounterClockwise), true
	}
	return 0, false
}

func (e *Encoder) dir(d event.Direction) event.Direction {
	if !e.reverse {
		return d
	}
	if d == event.Clockwise {
		return event.CounterClockwise
	}
	return event.Clockwise
}

// Poll samples the pins and yields a press and a release for each detent.
func (e *Encoder) Poll(now clock.Instant) iter.Seq[event.KeyEvent] {
	return func(yield func(event.KeyEvent) bool) {
		dir, ok := e.Step(e.read())
		if !ok {
			return
		}
		pos := event.Encoder(e.id, dir)
		if !yield(event.Press(pos, now)) {
			return
		}
		yield(event.Release(pos, now))
	}
}
