// Package fork holds the fork table and picks a branch from the modifier
// state at the instant a key press is committed.
package fork

import (
	"errors"
	"sync"

	"rmk/firmware/action"
	"rmk/firmware/keycode"
)

var ErrIndex = errors.New("fork: index out of range")

// Table is shared between the core engine (reads) and the host protocol
// (writes).
type Table struct {
	mu    sync.RWMutex
	forks [action.MaxForks]action.Fork
}

func NewTable(forks ...action.Fork) (*Table, error) {
	t := &Table{}
	if len(forks) > action.MaxForks {
		return nil, ErrIndex
	}
	copy(t.forks[:], forks)
	return t, nil
}

func (t *Table) Len() int { return action.MaxForks }

func (t *Table) Get(i int) (action.Fork, error) {
	if i < 0 || i >= action.MaxForks {
		return action.Fork{}, ErrIndex
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.forks[i], nil
}

func (t *Table) Set(i int, f action.Fork) error {
	if i < 0 || i >= action.MaxForks {
		return ErrIndex
	}
	t.mu.Lock()
	t.forks[i] = f
	t.mu.Unlock()
	return nil
}

// Result is the branch chosen for one press.
type Result struct {
	Action action.KeyAction
	// Suppress lists modifiers hidden from the report while the key is held.
	Suppress keycode.ModifierCombination
	Forked   bool
}

// Resolve replaces ka with the branch of the first fork triggered by it. A
// branch that is itself the trigger of a bindable fork is resolved once more.
func (t *Table) Resolve(ka action.KeyAction, active keycode.ModifierCombination) Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := Result{Action: ka}
	for depth := 0; depth < 2; depth++ {
		f := t.find(res.Action, depth > 0)
		if f == nil {
			break
		}
		res.Forked = true
		if f.Matches(active) {
			res.Action = f.Positive
			res.Suppress |= f.Suppressed(active)
		} else {
			res.Action = f.Negative
		}
	}
	return res
}

func (t *Table) find(ka action.KeyAction, bindableOnly bool) *action.Fork {
	if ka.Kind == action.KeyActionNo || ka.Kind == action.KeyActionTransparent {
		return nil
	}
	for i := range t.forks {
		f := &t.forks[i]
		if f.IsEmpty() || f.Trigger != ka {
			continue
		}
		if bindableOnly && !f.Bindable {
			continue
		}
		return f
	}
	return nil
}
