// Package debounce filters contact bounce into single clean edges.
package debounce

import "rmk/firmware/clock"

// Edge is the debounced result of one raw sample.
type Edge uint8

const (
	None Edge = iota
	Pressed
	Released
)

func (e Edge) String() string {
	switch e {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	default:
		return "none"
	}
}

// Debouncer turns raw samples of key idx into at most one edge per physical edge.
type Debouncer interface {
	Update(idx int, raw bool, now clock.Instant) Edge
	// Stable returns the last debounced state of key idx.
	Stable(idx int) bool
}

// DefaultMs is the usual debounce window.
const DefaultMs = 10

type integrating struct {
	stable   bool
	tracking bool
	since    clock.Instant
}

// Default requires the new state to hold for the whole window before
// reporting it.
type Default struct {
	window uint64
	keys   []integrating
}

// NewDefault allocates state for n keys.
func NewDefault(n int, windowMs uint16) *Default {
	return &Default{window: uint64(windowMs), keys: make([]integrating, n)}
}

func (d *Default) Update(idx int, raw bool, now clock.Instant) Edge {
	if idx < 0 || idx >= len(d.keys) {
		return None
	}
	k := &d.keys[idx]
	if raw == k.stable {
		k.tracking = false
		return None
	}
	if !k.tracking {
		k.tracking = true
		k.since = now
	}
	if now.Since(k.since) < d.window {
		return None
	}
	k.stable = raw
	k.tracking = false
	return edge(raw)
}

func (d *Default) Stable(idx int) bool {
	if idx < 0 || idx >= len(d.keys) {
		return false
	}
	return d.keys[idx].stable
}

type eagerKey struct {
	stable bool
	mute   clock.Instant
}

// Eager reports the first edge at once, then ignores the key for the window.
type Eager struct {
	window uint16
	keys   []eagerKey
}

// NewEager allocates state for n keys.
func NewEager(n int, windowMs uint16) *Eager {
	return &Eager{window: windowMs, keys: make([]eagerKey, n)}
}

func (d *Eager) Update(idx int, raw bool, now clock.Instant) Edge {
	if idx < 0 || idx >= len(d.keys) {
		return None
	}
	k := &d.keys[idx]
	if now < k.mute || raw == k.stable {
		return None
	}
	k.stable = raw
	k.mute = now.Add(d.window)
	return edge(raw)
}

func (d *Eager) Stable(idx int) bool {
	if idx < 0 || idx >= len(d.keys) {
		return false
	}
	return d.keys[idx].stable
}

func edge(pressed bool) Edge {
	if pressed {
		return Pressed
	}
	return Released
}
