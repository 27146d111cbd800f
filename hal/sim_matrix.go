package hal

import (
	"context"
	"fmt"
	"sync"
)

// SimMatrix is a key-switch matrix with no hardware behind it. Output pins
// strobe a line; input pins read back the switches closed on strobed lines.
// The host simulator presses keys on it; tests use it in place of GPIO.
type SimMatrix struct {
	mu        sync.Mutex
	rows      int
	cols      int
	rowDriven bool
	activeLow bool
	pressed   []bool
	strobe    []bool
	// changed is closed and replaced whenever a switch or strobe moves.
	changed chan struct{}

	outs []GPIOPin
	ins  []GPIOPin
}

// NewSimMatrix builds a rows×cols matrix. When rowDriven, rows are outputs and
// columns inputs; otherwise columns drive and rows sense.
func NewSimMatrix(rows, cols int, rowDriven, activeLow bool) *SimMatrix {
	s := &SimMatrix{
		rows:      rows,
		cols:      cols,
		rowDriven: rowDriven,
		activeLow: activeLow,
		pressed:   make([]bool, rows*cols),
		changed:   make(chan struct{}),
	}
	nOut, nIn := cols, rows
	if rowDriven {
		nOut, nIn = rows, cols
	}
	s.strobe = make([]bool, nOut)
	for i := 0; i < nOut; i++ {
		s.outs = append(s.outs, &simPin{m: s, line: i, out: true, name: fmt.Sprintf("out%d", i)})
	}
	for i := 0; i < nIn; i++ {
		s.ins = append(s.ins, &simPin{m: s, line: i, name: fmt.Sprintf("in%d", i)})
	}
	return s
}

func (s *SimMatrix) Outputs() []GPIOPin { return s.outs }
func (s *SimMatrix) Inputs() []GPIOPin  { return s.ins }

// Set closes or opens the switch at (row, col).
func (s *SimMatrix) Set(row, col int, pressed bool) {
	if row < 0 || row >= s.rows || col < 0 || col >= s.cols {
		return
	}
	s.mu.Lock()
	s.pressed[row*s.cols+col] = pressed
	s.notify()
	s.mu.Unlock()
}

// Reset opens every switch.
func (s *SimMatrix) Reset() {
	s.mu.Lock()
	clear(s.pressed)
	s.notify()
	s.mu.Unlock()
}

func (s *SimMatrix) drive(line int, level bool) {
	s.mu.Lock()
	s.strobe[line] = level != s.activeLow
	s.notify()
	s.mu.Unlock()
}

// notify wakes edge waiters. s.mu must be held.
func (s *SimMatrix) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *SimMatrix) watch() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *SimMatrix) sense(line int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	hit := false
	for o, on := range s.strobe {
		if !on {
			continue
		}
		r, c := line, o
		if s.rowDriven {
			r, c = o, line
		}
		if s.pressed[r*s.cols+c] {
			hit = true
			break
		}
	}
	return hit != s.activeLow
}

type simPin struct {
	m     *SimMatrix
	line  int
	out   bool
	name  string
	level bool
}

func (p *simPin) Name() string { return p.name }

func (p *simPin) Caps() GPIOCaps {
	if p.out {
		return GPIOCapOutput
	}
	return GPIOCapInput | GPIOCapPullUp | GPIOCapPullDown | GPIOCapEdge
}

func (p *simPin) Configure(mode GPIOMode, pull GPIOPull) error {
	if p.out != (mode == GPIOModeOutput) {
		return fmt.Errorf("gpio: pin %s: mode unsupported", p.name)
	}
	return nil
}

func (p *simPin) Read() (bool, error) {
	if p.out {
		return p.level, nil
	}
	return p.m.sense(p.line), nil
}

func (p *simPin) Write(level bool) error {
	if !p.out {
		return fmt.Errorf("gpio: pin %s: not in output mode", p.name)
	}
	p.level = level
	p.m.drive(p.line, level)
	return nil
}

func (p *simPin) WaitLevel(ctx context.Context, level bool) error {
	if p.out {
		return fmt.Errorf("gpio: pin %s: not an input", p.name)
	}
	for {
		ch := p.m.watch()
		if p.m.sense(p.line) == level {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
