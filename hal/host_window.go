//go:build !tinygo && cgo

package hal

import (
	"github.com/hajimehoshi/ebiten/v2"
)

const windowScale = 4

// RunWindow opens a desktop window showing the status display and feeding
// host keys to h's keyboard. step runs once per frame; its error closes the
// window. It blocks until the window closes.
func RunWindow(h *Host, title string, step func() error) error {
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowSize(h.fb.width*windowScale, h.fb.height*windowScale)
	ebiten.SetTPS(60)
	return ebiten.RunGame(&hostGame{h: h, step: step})
}

type hostGame struct {
	h     *Host
	step  func() error
	frame uint64
	raw   []byte
	pix   []byte
	img   *ebiten.Image
}

func (g *hostGame) Update() error {
	g.h.kbd.poll()
	g.h.t.advance()
	if g.step != nil {
		return g.step()
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil {
		g.raw = make([]byte, len(fb.buf))
		g.pix = make([]byte, fb.width*fb.height*4)
		g.img = ebiten.NewImage(fb.width, fb.height)
	}
	if frame := fb.latest(g.raw, g.frame); frame != g.frame {
		g.frame = frame
		for i := 0; i+1 < len(g.raw); i += 2 {
			r, gg, b := rgb888(uint16(g.raw[i]) | uint16(g.raw[i+1])<<8)
			j := i * 2
			g.pix[j], g.pix[j+1], g.pix[j+2], g.pix[j+3] = r, gg, b, 0xFF
		}
		g.img.WritePixels(g.pix)
	}
	screen.DrawImage(g.img, nil)
}

func (g *hostGame) Layout(_, _ int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
