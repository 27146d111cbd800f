//go:build !tinygo && cgo

package hal

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

type hostKeyboard struct {
	ch   chan KeyEvent
	keys []ebiten.Key
}

func newHostKeyboard() *hostKeyboard {
	return &hostKeyboard{ch: make(chan KeyEvent, 64)}
}

func (k *hostKeyboard) Events() <-chan KeyEvent { return k.ch }

// poll runs once per frame on the ebiten goroutine.
func (k *hostKeyboard) poll() {
	emit := func(key ebiten.Key, press bool) {
		select {
		case k.ch <- KeyEvent{Name: "Key" + key.String(), Press: press}:
		default:
		}
	}
	k.keys = inpututil.AppendJustPressedKeys(k.keys[:0])
	for _, key := range k.keys {
		emit(key, true)
	}
	k.keys = inpututil.AppendJustReleasedKeys(k.keys[:0])
	for _, key := range k.keys {
		emit(key, false)
	}
}
