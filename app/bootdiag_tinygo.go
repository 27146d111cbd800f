//go:build tinygo && bootdebug

package app

import (
	"context"
	"fmt"
	"image/color"
	"machine"
	"sync"
	"time"

	"rmk/firmware/services/status"
	"rmk/hal"
)

// replayFor is how long the boot log is repeated, long enough to attach a
// terminal to the USB CDC port after plugging in.
const replayFor = 10 * time.Second

var bootLog struct {
	mu    sync.Mutex
	start time.Time
	steps []string
}

// bootStep records the boot phase and paints it, so a board that hangs
// during bring-up shows where.
func bootStep(h hal.HAL, msg string) {
	bootLog.mu.Lock()
	if bootLog.start.IsZero() {
		bootLog.start = time.Now()
	}
	line := fmt.Sprintf("bootdiag: +%dms %s", time.Since(bootLog.start).Milliseconds(), msg)
	bootLog.steps = append(bootLog.steps, line)
	bootLog.mu.Unlock()

	if h == nil {
		return
	}
	if l := h.Logger(); l != nil {
		l.WriteLineString(line)
	}
	if d := h.Display(); d != nil && d.Framebuffer() != nil {
		fb := d.Framebuffer()
		fb.ClearRGB(0, 0, 0)
		drawLines(status.NewDisplay(fb), []string{"rmk boot", msg}, color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF})
		_ = fb.Present()
	}
}

// bootDiagStart replays the boot log over USB CDC for a while.
func bootDiagStart(ctx context.Context, h hal.HAL) {
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		end := time.After(replayFor)
		for {
			select {
			case <-ctx.Done():
				return
			case <-end:
				return
			case <-t.C:
			}
			bootLog.mu.Lock()
			steps := append([]string(nil), bootLog.steps...)
			bootLog.mu.Unlock()
			for _, line := range steps {
				_, _ = machine.USBCDC.Write([]byte(line + "\r\n"))
			}
		}
	}()
}
