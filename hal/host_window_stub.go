//go:build !tinygo && !cgo

package hal

import "errors"

// Without cgo there is no window, so no host key ever arrives.
type hostKeyboard struct {
	ch chan KeyEvent
}

func newHostKeyboard() *hostKeyboard { return &hostKeyboard{ch: make(chan KeyEvent)} }

func (k *hostKeyboard) Events() <-chan KeyEvent { return k.ch }

// RunWindow reports that the window backend was not built; use -headless.
func RunWindow(*Host, string, func() error) error {
	return errors.New("window: built without cgo; run with -headless")
}
