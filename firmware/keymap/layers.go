package keymap

import "math/bits"

// TriLayer activates Adjust while both Lower and Upper are on.
type TriLayer struct {
	Lower  uint8
	Upper  uint8
	Adjust uint8
}

// LayerStack tracks which layers are on. Momentary holds are reference
// counted so two keys holding the same layer release it only when both are up.
// Owned by the core engine; not safe for concurrent use.
type LayerStack struct {
	held    [MaxLayers]uint8
	toggled uint32
	def     uint8
	tri     *TriLayer
	triOn   bool
}

// NewLayerStack starts with only the default layer on.
func NewLayerStack(def uint8, tri *TriLayer) *LayerStack {
	return &LayerStack{def: def % MaxLayers, tri: tri}
}

// Active reports whether layer n participates in lookups. Layer 0 and the
// default layer are always on.
func (s *LayerStack) Active(n uint8) bool {
	if n >= MaxLayers {
		return false
	}
	return n == 0 || n == s.def || s.Mask()&(1<<n) != 0
}

// Mask returns the explicitly enabled layers as a bitmap.
func (s *LayerStack) Mask() uint32 {
	m := s.toggled
	for i, c := range s.held {
		if c > 0 {
			m |= 1 << i
		}
	}
	if s.triOn {
		m |= 1 << s.tri.Adjust
	}
	return m | 1<<s.def | 1
}

// Highest is the topmost active layer.
func (s *LayerStack) Highest() uint8 {
	return uint8(31 - bits.LeadingZeros32(s.Mask()))
}

func (s *LayerStack) Default() uint8 { return s.def }

// Activate holds layer n on (momentary).
func (s *LayerStack) Activate(n uint8) {
	if n >= MaxLayers {
		return
	}
	if s.held[n] < 255 {
		s.held[n]++
	}
	s.updateTri()
}

// Deactivate releases one momentary hold of layer n. A layer that was never
// held but is toggled on is switched off.
func (s *LayerStack) Deactivate(n uint8) {
	if n >= MaxLayers {
		return
	}
	if s.held[n] > 0 {
		s.held[n]--
	} else {
		s.toggled &^= 1 << n
	}
	s.updateTri()
}

// Toggle flips the latched state of layer n.
func (s *LayerStack) Toggle(n uint8) {
	if n >= MaxLayers {
		return
	}
	s.toggled ^= 1 << n
	s.updateTri()
}

// Only turns off every layer except the default and n.
func (s *LayerStack) Only(n uint8) {
	if n >= MaxLayers {
		return
	}
	s.held = [MaxLayers]uint8{}
	s.toggled = 1 << n
	s.updateTri()
}

// SetDefault makes n the base layer; higher layers still overlay it.
func (s *LayerStack) SetDefault(n uint8) {
	if n >= MaxLayers {
		return
	}
	s.def = n
}

// Reset drops every held and toggled layer.
func (s *LayerStack) Reset() {
	s.held = [MaxLayers]uint8{}
	s.toggled = 0
	s.triOn = false
}

func (s *LayerStack) updateTri() {
	if s.tri == nil {
		return
	}
	s.triOn = false
	s.triOn = s.Mask()&(1<<s.tri.Lower) != 0 && s.Mask()&(1<<s.tri.Upper) != 0
}
