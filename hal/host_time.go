//go:build !tinygo

package hal

import "time"

// hostTime publishes wall-clock milliseconds since the first advance. Only
// the newest count matters to readers, so a full channel drops the oldest.
type hostTime struct {
	start time.Time
	ms    uint64
	ch    chan uint64
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 8)}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// advance is called by the runner once per frame.
func (t *hostTime) advance() {
	now := time.Now()
	if t.start.IsZero() {
		t.start = now
	}
	ms := uint64(now.Sub(t.start)/time.Millisecond) + 1
	if ms <= t.ms {
		return
	}
	t.ms = ms
	for {
		select {
		case t.ch <- ms:
			return
		default:
		}
		select {
		case <-t.ch:
		default:
		}
	}
}
