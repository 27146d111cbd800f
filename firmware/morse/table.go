package morse

import (
	"errors"
	"sync"

	"rmk/firmware/action"
)

// MaxMorses bounds the tap-dance table.
const MaxMorses = 32

var ErrIndex = errors.New("morse: index out of range")

// Table holds the tap-dance definitions referenced by TD(n) cells. The host
// protocol writes it while the engine reads it.
type Table struct {
	mu     sync.RWMutex
	morses [MaxMorses]action.Morse
}

func NewTable(morses ...action.Morse) (*Table, error) {
	if len(morses) > MaxMorses {
		return nil, ErrIndex
	}
	t := &Table{}
	copy(t.morses[:], morses)
	return t, nil
}

func (t *Table) Len() int { return MaxMorses }

func (t *Table) Get(i int) (action.Morse, error) {
	if i < 0 || i >= MaxMorses {
		return action.Morse{}, ErrIndex
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.morses[i], nil
}

func (t *Table) Set(i int, m action.Morse) error {
	if i < 0 || i >= MaxMorses {
		return ErrIndex
	}
	t.mu.Lock()
	t.morses[i] = m
	t.mu.Unlock()
	return nil
}

// For expands a keymap cell into its morse definition.
func (t *Table) For(ka action.KeyAction) (action.Morse, bool) {
	switch ka.Kind {
	case action.KeyActionTapHold:
		return action.NewTapHold(ka.Action, ka.Hold, ka.Profile), true
	case action.KeyActionMorse:
		m, err := t.Get(int(ka.Morse))
		if err != nil || m.Count == 0 {
			return action.Morse{}, false
		}
		return m, true
	}
	return action.Morse{}, false
}
