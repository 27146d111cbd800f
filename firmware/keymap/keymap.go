// Package keymap holds the ROW×COL×LAYER action cube, the encoder map, and the
// layer stack that selects between layers.
package keymap

import (
	"errors"
	"fmt"
	"sync"

	"rmk/firmware/action"
	"rmk/firmware/event"
)

// MaxLayers bounds the layer stack bitmap.
const MaxLayers = 32

var (
	ErrBounds      = errors.New("keymap: position out of range")
	ErrTransparent = errors.New("keymap: transparent key on layer 0")
)

// EncoderAction is what one encoder does on one layer.
type EncoderAction struct {
	Clockwise        action.KeyAction
	CounterClockwise action.KeyAction
}

// Keymap is the action cube. Cells are replaced whole under a write lock so
// concurrent readers see either the old or the new value.
type Keymap struct {
	mu       sync.RWMutex
	rows     int
	cols     int
	layers   int
	encoders int
	cells    []action.KeyAction
	encMap   []EncoderAction
}

// New allocates an all-No keymap.
func New(rows, cols, layers, encoders int) (*Keymap, error) {
	if rows <= 0 || cols <= 0 || rows > 255 || cols > 255 {
		return nil, fmt.Errorf("keymap: bad matrix %dx%d", rows, cols)
	}
	if layers <= 0 || layers > MaxLayers {
		return nil, fmt.Errorf("keymap: bad layer count %d", layers)
	}
	if encoders < 0 {
		encoders = 0
	}
	return &Keymap{
		rows:     rows,
		cols:     cols,
		layers:   layers,
		encoders: encoders,
		cells:    make([]action.KeyAction, rows*cols*layers),
		encMap:   make([]EncoderAction, encoders*layers),
	}, nil
}

// FromLayers builds a keymap from layer-major [layer][row][col] data.
func FromLayers(data [][][]action.KeyAction, encoders int) (*Keymap, error) {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, errors.New("keymap: empty layout")
	}
	km, err := New(len(data[0]), len(data[0][0]), len(data), encoders)
	if err != nil {
		return nil, err
	}
	for l, layer := range data {
		if len(layer) != km.rows {
			return nil, fmt.Errorf("keymap: layer %d has %d rows, want %d", l, len(layer), km.rows)
		}
		for r, row := range layer {
			if len(row) != km.cols {
				return nil, fmt.Errorf("keymap: layer %d row %d has %d cols, want %d", l, r, len(row), km.cols)
			}
			copy(km.cells[km.index(l, r, 0):], row)
		}
	}
	return km, nil
}

func (k *Keymap) Rows() int     { return k.rows }
func (k *Keymap) Cols() int     { return k.cols }
func (k *Keymap) Layers() int   { return k.layers }
func (k *Keymap) Encoders() int { return k.encoders }

func (k *Keymap) index(layer, row, col int) int {
	return layer*k.rows*k.cols + row*k.cols + col
}

func (k *Keymap) inBounds(layer, row, col int) bool {
	return layer >= 0 && layer < k.layers && row >= 0 && row < k.rows && col >= 0 && col < k.cols
}

// Get returns the cell at (layer, row, col), or No when out of range.
func (k *Keymap) Get(layer, row, col int) action.KeyAction {
	if !k.inBounds(layer, row, col) {
		return action.NoKey
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cells[k.index(layer, row, col)]
}

// Set replaces one cell.
func (k *Keymap) Set(layer, row, col int, a action.KeyAction) error {
	if !k.inBounds(layer, row, col) {
		return fmt.Errorf("%w: (%d,%d,%d)", ErrBounds, layer, row, col)
	}
	k.mu.Lock()
	k.cells[k.index(layer, row, col)] = a
	k.mu.Unlock()
	return nil
}

// Encoder returns the encoder cell for idx on layer.
func (k *Keymap) Encoder(layer, idx int) EncoderAction {
	if layer < 0 || layer >= k.layers || idx < 0 || idx >= k.encoders {
		return EncoderAction{}
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.encMap[layer*k.encoders+idx]
}

// SetEncoder replaces the encoder cell for idx on layer.
func (k *Keymap) SetEncoder(layer, idx int, a EncoderAction) error {
	if layer < 0 || layer >= k.layers || idx < 0 || idx >= k.encoders {
		return fmt.Errorf("%w: encoder %d layer %d", ErrBounds, idx, layer)
	}
	k.mu.Lock()
	k.encMap[layer*k.encoders+idx] = a
	k.mu.Unlock()
	return nil
}

// Layer copies one layer out, row-major.
func (k *Keymap) Layer(layer int) []action.KeyAction {
	if layer < 0 || layer >= k.layers {
		return nil
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	start := k.index(layer, 0, 0)
	return append([]action.KeyAction(nil), k.cells[start:start+k.rows*k.cols]...)
}

// Validate rejects a base layer that falls through.
func (k *Keymap) Validate() error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var errs []error
	for r := 0; r < k.rows; r++ {
		for c := 0; c < k.cols; c++ {
			if k.cells[k.index(0, r, c)].IsTransparent() {
				errs = append(errs, fmt.Errorf("%w at (%d,%d)", ErrTransparent, r, c))
			}
		}
	}
	return errors.Join(errs...)
}

// Resolve walks the active layers from the top and returns the first concrete
// action for pos along with the layer it came from.
func (k *Keymap) Resolve(s *LayerStack, pos event.KeyPosition) (action.KeyAction, uint8) {
	r, c := int(pos.Row), int(pos.Col)
	if r >= k.rows || c >= k.cols {
		return action.NoKey, 0
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	for l := k.layers - 1; l >= 0; l-- {
		if !s.Active(uint8(l)) {
			continue
		}
		a := k.cells[k.index(l, r, c)]
		if !a.IsTransparent() {
			return a, uint8(l)
		}
	}
	return action.NoKey, 0
}

// ResolveEncoder is Resolve for encoder detents.
func (k *Keymap) ResolveEncoder(s *LayerStack, id uint8, dir event.Direction) action.KeyAction {
	if int(id) >= k.encoders {
		return action.NoKey
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	for l := k.layers - 1; l >= 0; l-- {
		if !s.Active(uint8(l)) {
			continue
		}
		e := k.encMap[l*k.encoders+int(id)]
		a := e.Clockwise
		if dir == event.CounterClockwise {
			a = e.CounterClockwise
		}
		if !a.IsTransparent() {
			return a
		}
	}
	return action.NoKey
}

// ActionAt resolves pos on exactly one layer, following transparency down.
// Used for combo matching against the layer a key was pressed on.
func (k *Keymap) ActionAt(layer uint8, pos event.KeyPosition) action.KeyAction {
	for l := int(layer); l >= 0; l-- {
		a := k.Get(l, int(pos.Row), int(pos.Col))
		if !a.IsTransparent() {
			return a
		}
	}
	return action.NoKey
}
