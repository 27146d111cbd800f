// Package event holds the input event types and the bus primitives that carry them.
package event

import (
	"fmt"

	"rmk/firmware/clock"
)

// KeyPosition is a matrix coordinate in the merged logical space.
type KeyPosition struct {
	Row uint8
	Col uint8
}

func (p KeyPosition) String() string { return fmt.Sprintf("(%d,%d)", p.Row, p.Col) }

// PositionKind discriminates Position.
type PositionKind uint8

const (
	PosKey PositionKind = iota
	PosEncoder
	PosAxis
	PosVirtual
)

// Direction of a rotary encoder detent.
type Direction uint8

const (
	Clockwise Direction = iota
	CounterClockwise
)

func (d Direction) String() string {
	if d == Clockwise {
		return "cw"
	}
	return "ccw"
}

// Axis identifies a pointing-device axis.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisWheel
	AxisPan
)

// Position is where an event came from: a key, an encoder detent, an axis, or a
// virtual source such as a combo output or a macro step.
type Position struct {
	Kind PositionKind
	Key  KeyPosition
	ID   uint8
	Dir  Direction
	Axis Axis
}

func Key(row, col uint8) Position {
	return Position{Kind: PosKey, Key: KeyPosition{Row: row, Col: col}}
}

func Encoder(id uint8, dir Direction) Position {
	return Position{Kind: PosEncoder, ID: id, Dir: dir}
}

func AxisOf(id uint8, a Axis) Position { return Position{Kind: PosAxis, ID: id, Axis: a} }

// Virtual positions never collide with matrix positions.
func Virtual(id uint8) Position { return Position{Kind: PosVirtual, ID: id} }

func (p Position) String() string {
	switch p.Kind {
	case PosKey:
		return p.Key.String()
	case PosEncoder:
		return fmt.Sprintf("enc%d/%s", p.ID, p.Dir)
	case PosAxis:
		return fmt.Sprintf("axis%d/%d", p.ID, p.Axis)
	default:
		return fmt.Sprintf("virt%d", p.ID)
	}
}

// KeyEvent is one edge (or one axis sample) at an instant.
type KeyEvent struct {
	Pos     Position
	Pressed bool
	// Value carries the signed delta of axis events.
	Value int16
	Time  clock.Instant
}

func Press(pos Position, t clock.Instant) KeyEvent {
	return KeyEvent{Pos: pos, Pressed: true, Time: t}
}

func Release(pos Position, t clock.Instant) KeyEvent {
	return KeyEvent{Pos: pos, Time: t}
}

func (e KeyEvent) String() string {
	state := "up"
	if e.Pressed {
		state = "down"
	}
	if e.Pos.Kind == PosAxis {
		return fmt.Sprintf("%s %+d @%d", e.Pos, e.Value, e.Time)
	}
	return fmt.Sprintf("%s %s @%d", e.Pos, state, e.Time)
}
