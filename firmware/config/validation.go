package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"rmk/firmware/action"
	"rmk/firmware/combo"
	"rmk/firmware/keymap"
	"rmk/firmware/macro"
	"rmk/firmware/matrix"
	"rmk/firmware/morse"
	"rmk/firmware/storage"
)

var ErrInvalid = errors.New("config: invalid description")

// ValidationError is one rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error { return ErrInvalid }

func (e *ValidationErrors) add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the description is complete and self-consistent.
func (c *Config) Validate() error {
	var errs ValidationErrors
	c.validateKeyboard(&errs)
	c.validateMatrix(&errs)
	c.validateLayout(&errs)
	c.validateEncoders(&errs)
	c.validateBehavior(&errs)
	c.validateTables(&errs)
	c.validateStorage(&errs)
	c.validateSplit(&errs)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateKeyboard(errs *ValidationErrors) {
	if c.Keyboard.UID != "" {
		if b, err := hex.DecodeString(c.Keyboard.UID); err != nil || len(b) != 8 {
			errs.add("keyboard.uid", "want 16 hex digits, got %q", c.Keyboard.UID)
		}
	}
	switch strings.ToLower(c.Connection) {
	case "", "usb", "ble":
	default:
		errs.add("connection", "unknown connection %q", c.Connection)
	}
}

func (c *Config) validateMatrix(errs *ValidationErrors) {
	m := &c.Matrix
	if m.Rows <= 0 || m.Rows > 255 {
		errs.add("matrix.rows", "must be 1..255, got %d", m.Rows)
	}
	if m.Cols <= 0 || m.Cols > matrix.MaxCols {
		errs.add("matrix.cols", "must be 1..%d, got %d", matrix.MaxCols, m.Cols)
	}
	if _, err := parseDiode(m.Diode); err != nil {
		errs.add("matrix.diode", "%v", err)
	}
	switch m.Debouncer {
	case "", "default", "eager":
	default:
		errs.add("matrix.debouncer", "unknown debouncer %q", m.Debouncer)
	}
	if m.ScanIntervalMs == 0 {
		errs.add("matrix.scan_interval_ms", "must be positive")
	}
	if m.Direct {
		if n := len(m.DirectPins); n != 0 && n != m.Rows*m.Cols {
			errs.add("matrix.direct_pins", "want %d pins, got %d", m.Rows*m.Cols, n)
		}
		return
	}
	if n := len(m.RowPins); n != 0 && n != m.Rows {
		errs.add("matrix.row_pins", "want %d pins, got %d", m.Rows, n)
	}
	if n := len(m.ColPins); n != 0 && n != m.Cols {
		errs.add("matrix.col_pins", "want %d pins, got %d", m.Cols, n)
	}
}

func (c *Config) validateLayout(errs *ValidationErrors) {
	l := &c.Layout
	if l.Layers <= 0 || l.Layers > keymap.MaxLayers {
		errs.add("layout.layers", "must be 1..%d, got %d", keymap.MaxLayers, l.Layers)
		return
	}
	if cells := l.Layers * c.Matrix.Rows * c.Matrix.Cols; cells > storage.MaxKeymapCells {
		errs.add("layout.layers", "%d keymap cells exceed the storage key space (%d)", cells, storage.MaxKeymapCells)
	}
	if int(l.DefaultLayer) >= l.Layers {
		errs.add("layout.default_layer", "layer %d does not exist", l.DefaultLayer)
	}
	if len(l.Keymap) != l.Layers {
		errs.add("layout.keymap", "want %d layers, got %d", l.Layers, len(l.Keymap))
	}
	for li, layer := range l.Keymap {
		if len(layer) != c.Matrix.Rows {
			errs.add(fmt.Sprintf("layout.keymap[%d]", li), "want %d rows, got %d", c.Matrix.Rows, len(layer))
			continue
		}
		for r, row := range layer {
			if len(row) != c.Matrix.Cols {
				errs.add(fmt.Sprintf("layout.keymap[%d][%d]", li, r), "want %d cols, got %d", c.Matrix.Cols, len(row))
				continue
			}
			for col, cell := range row {
				field := fmt.Sprintf("layout.keymap[%d][%d][%d]", li, r, col)
				ka, err := action.Parse(cell)
				switch {
				case err != nil:
					errs.add(field, "%v", err)
				case li == 0 && ka.IsTransparent():
					errs.add(field, "transparent key on the base layer")
				}
			}
		}
	}
	if n := len(l.TriLayer); n != 0 {
		if n != 3 {
			errs.add("layout.tri_layer", "want [lower, upper, adjust], got %d entries", n)
		}
		for _, layer := range l.TriLayer {
			if int(layer) >= l.Layers {
				errs.add("layout.tri_layer", "layer %d does not exist", layer)
			}
		}
	}
	if len(l.Hands) != 0 {
		if len(l.Hands) != c.Matrix.Rows {
			errs.add("layout.hands", "want %d rows, got %d", c.Matrix.Rows, len(l.Hands))
		}
		for r, row := range l.Hands {
			if len(row) != c.Matrix.Cols || strings.Trim(strings.ToUpper(row), "LR") != "" {
				errs.add(fmt.Sprintf("layout.hands[%d]", r), "want %d of L or R, got %q", c.Matrix.Cols, row)
			}
		}
	}
}

func (c *Config) validateEncoders(errs *ValidationErrors) {
	for i, e := range c.Encoders {
		field := fmt.Sprintf("encoder[%d]", i)
		if e.Pulses < 0 {
			errs.add(field+".pulses", "must not be negative")
		}
		if len(e.Actions) > c.Layout.Layers {
			errs.add(field+".actions", "%d layers configured, keymap has %d", len(e.Actions), c.Layout.Layers)
		}
		for l, pair := range e.Actions {
			if len(pair) != 2 {
				errs.add(fmt.Sprintf("%s.actions[%d]", field, l), "want [clockwise, counter_clockwise]")
				continue
			}
			for _, s := range pair {
				if _, err := action.Parse(s); err != nil {
					errs.add(fmt.Sprintf("%s.actions[%d]", field, l), "%v", err)
				}
			}
		}
	}
}

func (c *Config) validateBehavior(errs *ValidationErrors) {
	b := &c.Behavior
	if _, err := action.ParseMode(b.Mode); err != nil {
		errs.add("behavior.mode", "%v", err)
	}
	if b.TimeoutMs == 0 {
		errs.add("behavior.timeout_ms", "must be positive")
	}
	if b.MorseQueue < 0 {
		errs.add("behavior.morse_queue", "must not be negative")
	}
}

func (c *Config) validateTables(errs *ValidationErrors) {
	if len(c.Morses) > morse.MaxMorses {
		errs.add("morse", "at most %d tap-dances, got %d", morse.MaxMorses, len(c.Morses))
	}
	for i, m := range c.Morses {
		if _, err := buildMorse(m); err != nil {
			errs.add(fmt.Sprintf("morse[%d]", i), "%v", err)
		}
	}
	if len(c.Combos) > combo.MaxCombos {
		errs.add("combo", "at most %d combos, got %d", combo.MaxCombos, len(c.Combos))
	}
	for i, cc := range c.Combos {
		if _, err := buildCombo(cc); err != nil {
			errs.add(fmt.Sprintf("combo[%d]", i), "%v", err)
		}
	}
	if len(c.Forks) > action.MaxForks {
		errs.add("fork", "at most %d forks, got %d", action.MaxForks, len(c.Forks))
	}
	for i, f := range c.Forks {
		if _, err := buildFork(f); err != nil {
			errs.add(fmt.Sprintf("fork[%d]", i), "%v", err)
		}
	}
	if len(c.Macros) > macro.NumSlots {
		errs.add("macro", "at most %d macros, got %d", macro.NumSlots, len(c.Macros))
	} else if _, err := buildMacros(c.Macros); err != nil {
		errs.add("macro", "%v", err)
	}
}

func (c *Config) validateStorage(errs *ValidationErrors) {
	if c.Storage.Enabled && c.Storage.NumSectors < storage.MinSectors {
		errs.add("storage.num_sectors", "need at least %d sectors, got %d", storage.MinSectors, c.Storage.NumSectors)
	}
}

func (c *Config) validateSplit(errs *ValidationErrors) {
	s := &c.Split
	switch s.Role {
	case RoleNone:
	case RoleCentral:
		seen := map[uint8]bool{}
		for i, p := range s.Peers {
			field := fmt.Sprintf("split.peer[%d]", i)
			if seen[p.ID] {
				errs.add(field, "duplicate peer id %d", p.ID)
			}
			seen[p.ID] = true
			if int(p.RowOffset)+p.Rows > c.Matrix.Rows || int(p.ColOffset)+p.Cols > c.Matrix.Cols {
				errs.add(field, "%dx%d at (%d,%d) does not fit the %dx%d matrix",
					p.Rows, p.Cols, p.RowOffset, p.ColOffset, c.Matrix.Rows, c.Matrix.Cols)
			}
		}
	case RolePeripheral:
		if len(s.Peers) != 0 {
			errs.add("split.peer", "only the central lists peers")
		}
	default:
		errs.add("split.role", "unknown role %q", s.Role)
	}
}
