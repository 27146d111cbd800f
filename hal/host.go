//go:build !tinygo

package hal

import (
	"fmt"
	"os"
	"sync"
)

// HostOptions sizes the simulated keyboard.
type HostOptions struct {
	Rows      int
	Cols      int
	RowDriven bool
	ActiveLow bool
	// FlashPath backs the simulated flash; empty keeps it in memory.
	FlashPath string
	FlashSize uint32
	// SerialPath is the split link (a pty or FIFO pair); empty for none.
	SerialPath string
	// RawHIDAddr is the UDP address Vial frames arrive on; empty for none.
	RawHIDAddr string
	// DisplayWidth and DisplayHeight size the status display (128x64).
	DisplayWidth  int
	DisplayHeight int
}

// Host is the simulator HAL: a window or a headless loop around a simulated
// key matrix.
type Host struct {
	logger *hostLogger
	led    *hostLED
	gpio   GPIO
	sim    *SimMatrix
	fb     *hostFramebuffer
	kbd    *hostKeyboard
	t      *hostTime
	flash  Flash
	serial Serial
	hid    *hostHID
	raw    RawHID
}

// NewHost builds the simulator HAL.
func NewHost(opts HostOptions) (*Host, error) {
	logger := &hostLogger{w: os.Stdout}
	led := &hostLED{logger: logger}
	sim := NewSimMatrix(opts.Rows, opts.Cols, opts.RowDriven, opts.ActiveLow)
	pins := []GPIOPin{newLEDPin("LED", led)}
	pins = append(pins, sim.Outputs()...)
	pins = append(pins, sim.Inputs()...)

	size := opts.FlashSize
	if size == 0 {
		size = hostFlashDefaultSizeBytes
	}
	var flash Flash = NewMemFlash(size, hostFlashEraseBlockBytes)
	if opts.FlashPath != "" {
		f, err := OpenFileFlash(opts.FlashPath, size, hostFlashEraseBlockBytes)
		if err != nil {
			return nil, err
		}
		flash = f
	}

	w, ht := opts.DisplayWidth, opts.DisplayHeight
	if w <= 0 || ht <= 0 {
		w, ht = 128, 64
	}

	h := &Host{
		logger: logger,
		led:    led,
		gpio:   newPinBank(pins...),
		sim:    sim,
		fb:     newHostFramebuffer(w, ht),
		kbd:    newHostKeyboard(),
		t:      newHostTime(),
		flash:  flash,
		hid:    &hostHID{logger: logger},
		raw:    nullRawHID{},
	}
	if opts.SerialPath != "" {
		link, err := OpenSerialFile(opts.SerialPath)
		if err != nil {
			return nil, err
		}
		h.serial = link
	}
	if opts.RawHIDAddr != "" {
		raw, err := listenRawHID(opts.RawHIDAddr)
		if err != nil {
			return nil, err
		}
		h.raw = raw
	}
	return h, nil
}

func (h *Host) Logger() Logger   { return h.logger }
func (h *Host) LED() LED         { return h.led }
func (h *Host) GPIO() GPIO       { return h.gpio }
func (h *Host) Display() Display { return hostDisplay{fb: h.fb} }
func (h *Host) Input() Input     { return hostInput{kbd: h.kbd} }
func (h *Host) Flash() Flash     { return h.flash }
func (h *Host) Time() Time       { return h.t }
func (h *Host) Serial() Serial   { return h.serial }
func (h *Host) HID() HID         { return h.hid }
func (h *Host) RawHID() RawHID   { return h.raw }

// Matrix is the simulated switch matrix behind the GPIO pins.
func (h *Host) Matrix() *SimMatrix { return h.sim }

// CloseRawHID closes the raw HID socket, failing any blocked Recv.
func (h *Host) CloseRawHID() error {
	if c, ok := h.raw.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Close releases the flash file, the split link and the raw HID socket.
func (h *Host) Close() error {
	var err error
	for _, v := range []any{h.flash, h.serial} {
		if c, ok := v.(interface{ Close() error }); ok {
			if cerr := c.Close(); err == nil {
				err = cerr
			}
		}
	}
	if cerr := h.CloseRawHID(); err == nil {
		err = cerr
	}
	return err
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
	l.logger.WriteLineString("led: HIGH")
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
	l.logger.WriteLineString("led: LOW")
}

// hostHID prints every report in place of a USB endpoint.
type hostHID struct {
	logger *hostLogger
}

func (h *hostHID) WriteReport(id uint8, payload []byte) error {
	h.logger.WriteLineString(fmt.Sprintf("hid %02x: % x", id, payload))
	return nil
}
