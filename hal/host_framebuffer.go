//go:build !tinygo

package hal

import (
	"encoding/binary"
	"sync"
)

// hostFramebuffer stands in for a small status OLED. Drawing goes to buf;
// Present publishes it as the frame the window shows.
type hostFramebuffer struct {
	width  int
	height int
	buf    []byte

	mu    sync.Mutex
	shown []byte
	frame uint64
}

func newHostFramebuffer(width, height int) *hostFramebuffer {
	return &hostFramebuffer{
		width:  width,
		height: height,
		buf:    make([]byte, width*height*2),
		shown:  make([]byte, width*height*2),
	}
}

func (f *hostFramebuffer) Width() int          { return f.width }
func (f *hostFramebuffer) Height() int         { return f.height }
func (f *hostFramebuffer) Format() PixelFormat { return PixelFormatRGB565 }
func (f *hostFramebuffer) StrideBytes() int    { return f.width * 2 }
func (f *hostFramebuffer) Buffer() []byte      { return f.buf }

func (f *hostFramebuffer) ClearRGB(r, g, b uint8) {
	px := RGB565(r, g, b)
	for i := 0; i+1 < len(f.buf); i += 2 {
		binary.LittleEndian.PutUint16(f.buf[i:], px)
	}
}

func (f *hostFramebuffer) Present() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.shown, f.buf)
	f.frame++
	return nil
}

// latest copies the presented frame into dst if it is newer than seen and
// returns the frame number.
func (f *hostFramebuffer) latest(dst []byte, seen uint64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frame != seen {
		copy(dst, f.shown)
	}
	return f.frame
}
