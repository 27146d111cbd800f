package hal

import (
	"context"
	"fmt"
	"sync"
)

// GPIOMode selects whether a pin is an input or output.
type GPIOMode uint8

const (
	GPIOModeInput GPIOMode = iota
	GPIOModeOutput
)

// GPIOPull selects the pull resistor configuration.
type GPIOPull uint8

const (
	GPIOPullNone GPIOPull = iota
	GPIOPullUp
	GPIOPullDown
)

// GPIOCaps declares what operations a pin supports.
type GPIOCaps uint8

const (
	GPIOCapInput GPIOCaps = 1 << iota
	GPIOCapOutput
	GPIOCapPullUp
	GPIOCapPullDown
	// GPIOCapEdge pins implement EdgeWaiter.
	GPIOCapEdge
)

// GPIO provides access to general-purpose IO pins.
//
// Implementations may return nil if GPIO is unsupported.
type GPIO interface {
	PinCount() int
	Pin(id int) GPIOPin
}

// GPIOPin is a single digital IO pin.
type GPIOPin interface {
	Name() string
	Caps() GPIOCaps
	Configure(mode GPIOMode, pull GPIOPull) error
	Read() (level bool, err error)
	Write(level bool) error
}

// EdgeWaiter is an input that can block until it reads a level instead of
// being polled.
type EdgeWaiter interface {
	WaitLevel(ctx context.Context, level bool) error
}

// Pins looks ids up in g. Every id must name a pin.
func Pins(g GPIO, ids []int) ([]GPIOPin, error) {
	pins := make([]GPIOPin, len(ids))
	for i, id := range ids {
		if g != nil && id >= 0 {
			pins[i] = g.Pin(id)
		}
		if pins[i] == nil {
			return nil, fmt.Errorf("gpio: no pin %d", id)
		}
	}
	return pins, nil
}

type nullGPIO struct{}

func (nullGPIO) PinCount() int      { return 0 }
func (nullGPIO) Pin(id int) GPIOPin { return nil }

// pinBank numbers a fixed list of pins from zero.
type pinBank []GPIOPin

func newPinBank(pins ...GPIOPin) GPIO {
	if len(pins) == 0 {
		return nullGPIO{}
	}
	return pinBank(pins)
}

func (b pinBank) PinCount() int { return len(b) }

func (b pinBank) Pin(id int) GPIOPin {
	if id < 0 || id >= len(b) {
		return nil
	}
	return b[id]
}

// ledPin exposes an indicator LED as an output pin.
type ledPin struct {
	mu    sync.Mutex
	led   LED
	name  string
	level bool
}

func newLEDPin(name string, led LED) GPIOPin {
	if led == nil {
		return nil
	}
	return &ledPin{led: led, name: name}
}

func (p *ledPin) Name() string   { return p.name }
func (p *ledPin) Caps() GPIOCaps { return GPIOCapOutput }

func (p *ledPin) Configure(mode GPIOMode, pull GPIOPull) error {
	if mode != GPIOModeOutput {
		return fmt.Errorf("gpio: pin %s: only output supported", p.name)
	}
	if pull != GPIOPullNone {
		return fmt.Errorf("gpio: pin %s: pull unsupported", p.name)
	}
	return nil
}

func (p *ledPin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, nil
}

func (p *ledPin) Write(level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	if level {
		p.led.High()
	} else {
		p.led.Low()
	}
	return nil
}
