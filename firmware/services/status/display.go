package status

import (
	"image/color"

	"tinygo.org/x/drivers"

	"rmk/hal"
)

var _ drivers.Displayer = (*Display)(nil)

// Display adapts an RGB565 hal.Framebuffer to drivers.Displayer so tinyfont
// can draw into it. Pixels outside the buffer are ignored.
type Display struct {
	fb hal.Framebuffer
}

func NewDisplay(fb hal.Framebuffer) *Display {
	return &Display{fb: fb}
}

func (d *Display) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d *Display) SetPixel(x, y int16, c color.RGBA) {
	if d.fb == nil || d.fb.Format() != hal.PixelFormatRGB565 {
		return
	}
	buf := d.fb.Buffer()
	if buf == nil {
		return
	}
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.fb.Width() || iy < 0 || iy >= d.fb.Height() {
		return
	}
	off := iy*d.fb.StrideBytes() + ix*2
	if off+1 >= len(buf) {
		return
	}
	pixel := hal.RGB565(c.R, c.G, c.B)
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d *Display) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

// Clear fills the whole buffer with c.
func (d *Display) Clear(c color.RGBA) {
	if d.fb != nil {
		d.fb.ClearRGB(c.R, c.G, c.B)
	}
}
