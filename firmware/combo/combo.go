// Package combo collapses chords of simultaneous presses into one virtual key.
package combo

import (
	"errors"
	"fmt"
	"sync"

	"rmk/firmware/action"
)

const (
	MaxCombos = 32
	// MaxKeys is the most keys one chord can hold.
	MaxKeys = 4
	// DefaultTimeoutMs is the chord window when neither the combo nor the
	// stage config sets one.
	DefaultTimeoutMs = 50
)

var (
	ErrIndex   = errors.New("combo: index out of range")
	ErrTooMany = errors.New("combo: too many keys")
)

// Combo maps a chord of key actions to one output action.
type Combo struct {
	Keys   [MaxKeys]action.KeyAction
	Count  uint8
	Output action.Action
	// Layer restricts the combo to a layer when HasLayer is set.
	Layer     uint8
	HasLayer  bool
	TimeoutMs uint16
}

// New builds a combo with no layer restriction and the default timeout.
func New(keys []action.KeyAction, output action.Action) (Combo, error) {
	var c Combo
	if len(keys) > MaxKeys {
		return c, fmt.Errorf("%w: %d", ErrTooMany, len(keys))
	}
	copy(c.Keys[:], keys)
	c.Count = uint8(len(keys))
	c.Output = output
	return c, nil
}

// OnLayer restricts c to layer n.
func (c Combo) OnLayer(n uint8) Combo {
	c.Layer, c.HasLayer = n, true
	return c
}

func (c *Combo) IsEmpty() bool { return c.Count == 0 || c.Output.Kind == action.KindNo }

func (c *Combo) KeyList() []action.KeyAction { return c.Keys[:c.Count] }

// covers reports whether items can each be matched to a distinct key of c.
func (c *Combo) covers(items []action.KeyAction) bool {
	if len(items) > int(c.Count) {
		return false
	}
	var used [MaxKeys]bool
	for _, it := range items {
		found := false
		for i := 0; i < int(c.Count); i++ {
			if !used[i] && c.Keys[i] == it {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Table is the combo definitions, shared between the engine and the host
// protocol.
type Table struct {
	mu     sync.RWMutex
	combos [MaxCombos]Combo
}

func NewTable(combos ...Combo) (*Table, error) {
	if len(combos) > MaxCombos {
		return nil, fmt.Errorf("%w: %d combos", ErrIndex, len(combos))
	}
	t := &Table{}
	copy(t.combos[:], combos)
	return t, nil
}

func (t *Table) Len() int { return MaxCombos }

func (t *Table) Get(i int) (Combo, error) {
	if i < 0 || i >= MaxCombos {
		return Combo{}, ErrIndex
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.combos[i], nil
}

func (t *Table) Set(i int, c Combo) error {
	if i < 0 || i >= MaxCombos {
		return ErrIndex
	}
	if c.Count > MaxKeys {
		return ErrTooMany
	}
	t.mu.Lock()
	t.combos[i] = c
	t.mu.Unlock()
	return nil
}

// snapshot copies the table for one resolution step.
func (t *Table) snapshot(dst *[MaxCombos]Combo) {
	t.mu.RLock()
	*dst = t.combos
	t.mu.RUnlock()
}
