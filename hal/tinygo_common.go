//go:build tinygo && baremetal

package hal

import (
	"fmt"
	"machine"
	"machine/usb/hid"
	"sync"
	"time"
)

// tinyGoTime publishes milliseconds since boot once per millisecond. A slow
// reader only misses intermediate values.
type tinyGoTime struct {
	ch chan uint64
}

func newTinyGoTime() *tinyGoTime {
	t := &tinyGoTime{ch: make(chan uint64, 1)}
	go func() {
		start := time.Now()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for now := range ticker.C {
			ms := uint64(now.Sub(start)/time.Millisecond) + 1
			select {
			case <-t.ch:
			default:
			}
			t.ch <- ms
		}
	}()
	return t
}

func (t *tinyGoTime) Ticks() <-chan uint64 { return t.ch }

// uartLogger writes CRLF-terminated lines to the debug UART.
type uartLogger struct {
	mu   sync.Mutex
	uart *machine.UART
}

func (l *uartLogger) WriteLineString(s string) { l.WriteLineBytes([]byte(s)) }

func (l *uartLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.uart.Write(b)
	_, _ = l.uart.Write([]byte{'\r', '\n'})
}

type pinLED struct {
	pin machine.Pin
}

func (l *pinLED) High() { l.pin.High() }
func (l *pinLED) Low()  { l.pin.Low() }

// uartSerial is the split link. TinyGo's UART.Read returns 0 when its ring
// is empty, so Read polls until at least one byte arrives.
type uartSerial struct {
	uart *machine.UART
}

const uartPoll = 200 * time.Microsecond

func (s *uartSerial) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for s.uart.Buffered() == 0 {
		time.Sleep(uartPoll)
	}
	return s.uart.Read(p)
}

func (s *uartSerial) Write(p []byte) (int, error) { return s.uart.Write(p) }

// machinePin adapts a chip pin to GPIOPin.
type machinePin struct {
	pin  machine.Pin
	name string
	mode GPIOMode
}

func machinePins(n int) []GPIOPin {
	pins := make([]GPIOPin, n)
	for i := range pins {
		pins[i] = &machinePin{pin: machine.Pin(i), name: fmt.Sprintf("GP%d", i)}
	}
	return pins
}

func (p *machinePin) Name() string { return p.name }

func (p *machinePin) Caps() GPIOCaps {
	return GPIOCapInput | GPIOCapOutput | GPIOCapPullUp | GPIOCapPullDown
}

func (p *machinePin) Configure(mode GPIOMode, pull GPIOPull) error {
	cfg := machine.PinConfig{Mode: machine.PinInput}
	switch {
	case mode == GPIOModeOutput:
		cfg.Mode = machine.PinOutput
	case pull == GPIOPullUp:
		cfg.Mode = machine.PinInputPullup
	case pull == GPIOPullDown:
		cfg.Mode = machine.PinInputPulldown
	}
	p.pin.Configure(cfg)
	p.mode = mode
	return nil
}

func (p *machinePin) Read() (bool, error) { return p.pin.Get(), nil }

func (p *machinePin) Write(level bool) error {
	if p.mode != GPIOModeOutput {
		return fmt.Errorf("gpio: pin %s: not in output mode", p.name)
	}
	p.pin.Set(level)
	return nil
}

// usbHID sends reports on the TinyGo USB HID endpoint and collects the
// host's LED output reports.
type usbHID struct {
	leds chan uint8
	buf  [64]byte
}

func newUSBHID() *usbHID {
	h := &usbHID{leds: make(chan uint8, 4)}
	hid.SetHandler(h)
	return h
}

func (h *usbHID) WriteReport(id uint8, payload []byte) error {
	b := h.buf[:0]
	if id != 0 {
		b = append(b, id)
	}
	b = append(b, payload...)
	hid.SendUSBPacket(b)
	return nil
}

func (h *usbHID) LEDs() <-chan uint8 { return h.leds }

func (h *usbHID) TxHandler() bool { return false }

// RxHandler takes the keyboard output report: [id, leds] or [leds].
func (h *usbHID) RxHandler(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	select {
	case h.leds <- b[len(b)-1]:
	default:
	}
	return true
}
