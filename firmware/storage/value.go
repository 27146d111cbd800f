package storage

import (
	"encoding/binary"
	"fmt"

	"rmk/firmware/action"
	"rmk/firmware/combo"
	"rmk/firmware/keymap"
)

// Tag is the first byte of every stored value.
type Tag uint8

const (
	TagStorageConfig Tag = 0
	TagKeymapCell    Tag = 1
	TagLayoutConfig  Tag = 2
	TagBehavior      Tag = 3
	TagMacro         Tag = 4
	TagCombo         Tag = 5
	TagConnection    Tag = 6
	TagEncoder       Tag = 7
	TagFork          Tag = 8
	TagMorse         Tag = 9
	TagPeerAddress   Tag = 0xED
	TagActiveProfile Tag = 0xEE
	TagBondInfo      Tag = 0xEF
)

func (t Tag) String() string {
	switch t {
	case TagStorageConfig:
		return "storage_config"
	case TagKeymapCell:
		return "keymap_cell"
	case TagLayoutConfig:
		return "layout_config"
	case TagBehavior:
		return "behavior"
	case TagMacro:
		return "macro"
	case TagCombo:
		return "combo"
	case TagConnection:
		return "connection"
	case TagEncoder:
		return "encoder"
	case TagFork:
		return "fork"
	case TagMorse:
		return "morse"
	case TagPeerAddress:
		return "peer_address"
	case TagActiveProfile:
		return "active_profile"
	case TagBondInfo:
		return "bond_info"
	default:
		return fmt.Sprintf("tag(%#x)", uint8(t))
	}
}

// Fixed keys.
const (
	KeyStorageConfig uint32 = 0
	KeyLayoutConfig  uint32 = 1
	KeyBehavior      uint32 = 2
	KeyMacros        uint32 = 3
	KeyConnection    uint32 = 4
	KeyActiveProfile uint32 = 5

	keymapBase  uint32 = 0x1000
	bondBase    uint32 = 0x2000
	comboBase   uint32 = 0x3000
	encoderBase uint32 = 0x4000
	forkBase    uint32 = 0x5000
	peerBase    uint32 = 0x6000
	morseBase   uint32 = 0x7000

	// MaxKeymapCells is the key space reserved for keymap cells.
	MaxKeymapCells = bondBase - keymapBase
)

func KeymapKey(layer, row, col, rows, cols int) uint32 {
	return keymapBase + uint32(layer*rows*cols+row*cols+col)
}

func EncoderKey(idx, layer, encoders int) uint32 {
	return encoderBase + uint32(idx+encoders*layer)
}

func BondKey(slot int) uint32 { return bondBase + uint32(slot) }
func ComboKey(idx int) uint32 { return comboBase + uint32(idx) }
func ForkKey(idx int) uint32  { return forkBase + uint32(idx) }
func PeerKey(id int) uint32   { return peerBase + uint32(id) }
func MorseKey(idx int) uint32 { return morseBase + uint32(idx) }

func IsKeymapKey(k uint32) bool { return k >= keymapBase && k < bondBase }

// KeymapPos inverts KeymapKey.
func KeymapPos(key uint32, rows, cols int) (layer, row, col int, ok bool) {
	if !IsKeymapKey(key) || rows <= 0 || cols <= 0 {
		return 0, 0, 0, false
	}
	i := int(key - keymapBase)
	return i / (rows * cols), i % (rows * cols) / cols, i % cols, true
}

// EncoderPos inverts EncoderKey.
func EncoderPos(key uint32, encoders int) (idx, layer int, ok bool) {
	if key < encoderBase || key >= forkBase || encoders <= 0 {
		return 0, 0, false
	}
	i := int(key - encoderBase)
	return i % encoders, i / encoders, true
}

// Slot is the table index of a combo, fork, morse, bond or peer key.
func Slot(key uint32) int { return int(key & 0xFFF) }

// Value is one typed item.
type Value interface {
	Tag() Tag
	appendBody(b []byte) []byte
	decodeBody(d *dec)
}

// Marshal encodes v tag-first.
func Marshal(v Value) []byte {
	return v.appendBody([]byte{byte(v.Tag())})
}

// Unmarshal decodes a value written by Marshal.
func Unmarshal(b []byte) (Value, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrCorrupt)
	}
	var v Value
	switch Tag(b[0]) {
	case TagStorageConfig:
		v = &StorageConfig{}
	case TagKeymapCell:
		v = &KeymapCell{}
	case TagLayoutConfig:
		v = &LayoutConfig{}
	case TagBehavior:
		v = &BehaviorConfig{}
	case TagMacro:
		v = &MacroData{}
	case TagCombo:
		v = &ComboValue{}
	case TagConnection:
		v = &ConnectionValue{}
	case TagEncoder:
		v = &EncoderCell{}
	case TagFork:
		v = &ForkValue{}
	case TagMorse:
		v = &MorseValue{}
	case TagPeerAddress:
		v = &PeerAddress{}
	case TagActiveProfile:
		v = &ActiveProfile{}
	case TagBondInfo:
		v = &BondInfo{}
	default:
		return nil, fmt.Errorf("%w: unknown tag %#x", ErrCorrupt, b[0])
	}
	d := dec{b: b[1:]}
	v.decodeBody(&d)
	if err := d.done(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", Tag(b[0]), err)
	}
	return v, nil
}

// PutValue stores v under key.
func (s *Store) PutValue(key uint32, v Value) error {
	return s.Put(key, Marshal(v))
}

// Load reads key and checks that it holds a T.
func Load[T any, PT interface {
	*T
	Value
}](s *Store, key uint32) (T, error) {
	var zero T
	b, err := s.Get(key)
	if err != nil {
		return zero, err
	}
	v, err := Unmarshal(b)
	if err != nil {
		return zero, err
	}
	p, ok := v.(PT)
	if !ok {
		return zero, fmt.Errorf("%w: key %#x holds %s", ErrCorrupt, key, v.Tag())
	}
	return *p, nil
}

// StorageConfig marks an initialized store and the firmware that wrote it.
type StorageConfig struct {
	Enabled   bool
	BuildHash uint32
	Rows      uint8
	Cols      uint8
	Layers    uint8
	Encoders  uint8
}

func (*StorageConfig) Tag() Tag { return TagStorageConfig }
func (v *StorageConfig) appendBody(b []byte) []byte {
	b = putBool(b, v.Enabled)
	b = binary.LittleEndian.AppendUint32(b, v.BuildHash)
	return append(b, v.Rows, v.Cols, v.Layers, v.Encoders)
}
func (v *StorageConfig) decodeBody(d *dec) {
	v.Enabled = d.bool()
	v.BuildHash = d.u32()
	v.Rows, v.Cols, v.Layers, v.Encoders = d.u8(), d.u8(), d.u8(), d.u8()
}

type KeymapCell struct{ Action action.KeyAction }

func (*KeymapCell) Tag() Tag                     { return TagKeymapCell }
func (v *KeymapCell) appendBody(b []byte) []byte { return appendKeyAction(b, v.Action) }
func (v *KeymapCell) decodeBody(d *dec)          { v.Action = d.keyAction() }

type LayoutConfig struct {
	DefaultLayer uint8
	LayoutOption uint32
}

func (*LayoutConfig) Tag() Tag { return TagLayoutConfig }
func (v *LayoutConfig) appendBody(b []byte) []byte {
	b = append(b, v.DefaultLayer)
	return binary.LittleEndian.AppendUint32(b, v.LayoutOption)
}
func (v *LayoutConfig) decodeBody(d *dec) {
	v.DefaultLayer = d.u8()
	v.LayoutOption = d.u32()
}

// BehaviorConfig is the persisted timing set.
type BehaviorConfig struct {
	Morse                 action.MorseProfile
	TapIntervalMs         uint16
	TapCapsLockIntervalMs uint16
	ComboTimeoutMs        uint16
	OneShotTimeoutMs      uint16
	CapsWordIdleMs        uint16
	CapsWordShiftMinus    bool
	NKRO                  bool
	MouseTickMs           uint16
}

func (*BehaviorConfig) Tag() Tag { return TagBehavior }
func (v *BehaviorConfig) appendBody(b []byte) []byte {
	b = appendProfile(b, v.Morse)
	for _, n := range []uint16{v.TapIntervalMs, v.TapCapsLockIntervalMs, v.ComboTimeoutMs, v.OneShotTimeoutMs, v.CapsWordIdleMs} {
		b = binary.LittleEndian.AppendUint16(b, n)
	}
	b = putBool(b, v.CapsWordShiftMinus)
	b = putBool(b, v.NKRO)
	return binary.LittleEndian.AppendUint16(b, v.MouseTickMs)
}
func (v *BehaviorConfig) decodeBody(d *dec) {
	v.Morse = d.profile()
	v.TapIntervalMs = d.u16()
	v.TapCapsLockIntervalMs = d.u16()
	v.ComboTimeoutMs = d.u16()
	v.OneShotTimeoutMs = d.u16()
	v.CapsWordIdleMs = d.u16()
	v.CapsWordShiftMinus = d.bool()
	v.NKRO = d.bool()
	v.MouseTickMs = d.u16()
}

// MacroData is the whole Vial macro buffer.
type MacroData struct{ Data []byte }

func (*MacroData) Tag() Tag                     { return TagMacro }
func (v *MacroData) appendBody(b []byte) []byte { return append(b, v.Data...) }
func (v *MacroData) decodeBody(d *dec)          { v.Data = d.rest() }

type ComboValue struct{ Combo combo.Combo }

func (*ComboValue) Tag() Tag                     { return TagCombo }
func (v *ComboValue) appendBody(b []byte) []byte { return appendCombo(b, v.Combo) }
func (v *ComboValue) decodeBody(d *dec)          { v.Combo = d.combo() }

// ConnectionValue is the preferred transport: 0 USB, 1 BLE.
type ConnectionValue struct{ Type uint8 }

func (*ConnectionValue) Tag() Tag                     { return TagConnection }
func (v *ConnectionValue) appendBody(b []byte) []byte { return append(b, v.Type) }
func (v *ConnectionValue) decodeBody(d *dec) {
	v.Type = d.u8()
	if v.Type > 1 {
		d.err = fmt.Errorf("%w: connection type %d", ErrCorrupt, v.Type)
	}
}

type EncoderCell struct{ Action keymap.EncoderAction }

func (*EncoderCell) Tag() Tag { return TagEncoder }
func (v *EncoderCell) appendBody(b []byte) []byte {
	b = appendKeyAction(b, v.Action.Clockwise)
	return appendKeyAction(b, v.Action.CounterClockwise)
}
func (v *EncoderCell) decodeBody(d *dec) {
	v.Action.Clockwise = d.keyAction()
	v.Action.CounterClockwise = d.keyAction()
}

type ForkValue struct{ Fork action.Fork }

func (*ForkValue) Tag() Tag                     { return TagFork }
func (v *ForkValue) appendBody(b []byte) []byte { return appendFork(b, v.Fork) }
func (v *ForkValue) decodeBody(d *dec)          { v.Fork = d.fork() }

type MorseValue struct{ Morse action.Morse }

func (*MorseValue) Tag() Tag                     { return TagMorse }
func (v *MorseValue) appendBody(b []byte) []byte { return appendMorse(b, v.Morse) }
func (v *MorseValue) decodeBody(d *dec)          { v.Morse = d.morse() }

// PeerAddress is a split peer's link address.
type PeerAddress struct {
	Peer uint8
	Addr [6]byte
}

func (*PeerAddress) Tag() Tag { return TagPeerAddress }
func (v *PeerAddress) appendBody(b []byte) []byte {
	b = append(b, v.Peer)
	return append(b, v.Addr[:]...)
}
func (v *PeerAddress) decodeBody(d *dec) {
	v.Peer = d.u8()
	copy(v.Addr[:], d.bytes(len(v.Addr)))
}

type ActiveProfile struct{ Profile uint8 }

func (*ActiveProfile) Tag() Tag                     { return TagActiveProfile }
func (v *ActiveProfile) appendBody(b []byte) []byte { return append(b, v.Profile) }
func (v *ActiveProfile) decodeBody(d *dec)          { v.Profile = d.u8() }

// BondInfo is one BLE bonding slot. Key material is opaque to the core.
type BondInfo struct {
	Slot uint8
	Addr [6]byte
	Data []byte
}

func (*BondInfo) Tag() Tag { return TagBondInfo }
func (v *BondInfo) appendBody(b []byte) []byte {
	b = append(b, v.Slot)
	b = append(b, v.Addr[:]...)
	return append(b, v.Data...)
}
func (v *BondInfo) decodeBody(d *dec) {
	v.Slot = d.u8()
	copy(v.Addr[:], d.bytes(len(v.Addr)))
	v.Data = d.rest()
}

// Preserved reports whether a value survives ClearLayout.
func Preserved(val []byte) bool {
	if len(val) == 0 {
		return false
	}
	switch Tag(val[0]) {
	case TagStorageConfig, TagPeerAddress, TagActiveProfile, TagBondInfo, TagConnection:
		return true
	}
	return false
}

// ClearLayout drops layout, behavior and keymap data but keeps pairing.
func (s *Store) ClearLayout() error {
	return s.Keep(func(_ uint32, val []byte) bool { return Preserved(val) })
}
