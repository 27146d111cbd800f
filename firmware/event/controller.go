package event

import "rmk/firmware/keycode"

// ConnectionType selects which HID transport receives reports.
type ConnectionType uint8

const (
	ConnUSB ConnectionType = iota
	ConnBLE
)

func (c ConnectionType) String() string {
	if c == ConnBLE {
		return "BLE"
	}
	return "USB"
}

// Status is the controller-facing state snapshot. It travels over a Watch:
// displays and LEDs only care about the latest value.
type Status struct {
	Layer        uint8
	ActiveLayers uint32
	DefaultLayer uint8
	Modifiers    keycode.ModifierCombination
	CapsWord     bool
	LEDs         uint8 // host LED report, bit 1 = Caps Lock
	Connection   ConnectionType
	Battery      uint8
	PeersUp      uint8
	FirstBoot    bool
	Sleeping     bool
}

// ControllerKind discriminates Controller.
type ControllerKind uint8

const (
	CtrlLayer ControllerKind = iota
	CtrlModifiers
	CtrlCapsWord
	CtrlConnection
	CtrlBattery
	CtrlPeer
	CtrlStorageReset
	CtrlLEDs
)

// Controller is a single state change, applied to a Status with Apply.
// Value is the default layer for CtrlLayer, the battery level, the peer id or
// the host LED byte.
type Controller struct {
	Kind   ControllerKind
	Layer  uint8
	Layers uint32
	Mods   keycode.ModifierCombination
	On     bool
	Conn   ConnectionType
	Value  uint8
}

// Apply folds c into s.
func (c Controller) Apply(s *Status) {
	switch c.Kind {
	case CtrlLayer:
		s.Layer = c.Layer
		s.ActiveLayers = c.Layers
		s.DefaultLayer = c.Value
	case CtrlModifiers:
		s.Modifiers = c.Mods
	case CtrlCapsWord:
		s.CapsWord = c.On
	case CtrlConnection:
		s.Connection = c.Conn
	case CtrlBattery:
		s.Battery = c.Value
	case CtrlPeer:
		if c.On {
			s.PeersUp |= 1 << c.Value
		} else {
			s.PeersUp &^= 1 << c.Value
		}
	case CtrlStorageReset:
		s.FirstBoot = true
	case CtrlLEDs:
		s.LEDs = c.Value
	}
}
