package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
}

var (
	ErrNotImplemented          = errors.New("not implemented")
	ErrFlashWriteRequiresErase = errors.New("flash write requires erase")
)

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// KeyEvent is a host key going down or up. Name is the ebiten key name
// prefixed with "Key" ("KeyA", "KeySpace", "KeyDigit1").
type KeyEvent struct {
	Name  string
	Press bool
}

// Keyboard provides host key events. Only the simulator has one.
type Keyboard interface {
	Events() <-chan KeyEvent
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Input provides access to input devices (if available).
type Input interface {
	Keyboard() Keyboard
}

// Flash provides raw access to non-volatile memory.
//
// It is intentionally low-level: addresses and erase blocks only.
type Flash interface {
	SizeBytes() uint32
	EraseBlockBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Erase(off, size uint32) error
}

// Serial is a byte stream to another device: the split link on keyboards
// with two halves.
type Serial interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Time provides a base tick stream.
//
// The tick duration is platform-defined; higher-level timers live in userland.
type Time interface {
	Ticks() <-chan uint64
}

// HID sends input reports to the host. id 0 means the interface has no
// report IDs.
type HID interface {
	WriteReport(id uint8, payload []byte) error
}

// LEDSource is a HID interface that also receives the host's LED output
// report (Num, Caps, Scroll Lock...).
type LEDSource interface {
	LEDs() <-chan uint8
}

// RawHID moves fixed-size packets on the raw HID interface Vial talks to.
type RawHID interface {
	Send(pkt []byte) error
	Recv(pkt []byte) (int, error)
}

// HAL provides the only contact point between the firmware and the outside
// world.
type HAL interface {
	Logger() Logger
	LED() LED
	GPIO() GPIO
	Display() Display
	Input() Input
	Flash() Flash
	Time() Time
	Serial() Serial
	HID() HID
	RawHID() RawHID
}
