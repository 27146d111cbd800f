//go:build !tinygo

package hal

import (
	"context"
	"fmt"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	// Hz is the step rate; zero means 1000.
	Hz int
	// Ticks stops the runner after this many steps; zero runs until ctx ends.
	Ticks uint64
}

// RunHeadless advances h's clock and calls step Hz times a second without
// opening a window.
func RunHeadless(ctx context.Context, h *Host, cfg HeadlessConfig, step func() error) error {
	hz := cfg.Hz
	if hz <= 0 {
		hz = 1000
	}
	if hz > int(time.Second) {
		return fmt.Errorf("headless: %d hz is too fast", hz)
	}
	t := time.NewTicker(time.Second / time.Duration(hz))
	defer t.Stop()
	for n := uint64(1); ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		h.t.advance()
		if step != nil {
			if err := step(); err != nil {
				return err
			}
		}
		if n == cfg.Ticks {
			return nil
		}
	}
}
