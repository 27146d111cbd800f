// Package config reads the keyboard description: matrix wiring, keymap,
// behavior timings, tap-dances, combos, forks, macros, storage sizing and the
// split topology. Compiled-in firmware uses Default; host builds load TOML or
// YAML files and may hot-reload the behavior section.
package config

import "rmk/firmware/keyboard"

// Config is the whole keyboard description.
type Config struct {
	Keyboard   KeyboardConfig  `toml:"keyboard" yaml:"keyboard"`
	Matrix     MatrixConfig    `toml:"matrix" yaml:"matrix"`
	Layout     LayoutConfig    `toml:"layout" yaml:"layout"`
	Encoders   []EncoderConfig `toml:"encoder" yaml:"encoders"`
	Behavior   BehaviorConfig  `toml:"behavior" yaml:"behavior"`
	Morses     []MorseConfig   `toml:"morse" yaml:"morses"`
	Combos     []ComboConfig   `toml:"combo" yaml:"combos"`
	Forks      []ForkConfig    `toml:"fork" yaml:"forks"`
	Macros     []MacroConfig   `toml:"macro" yaml:"macros"`
	Storage    StorageConfig   `toml:"storage" yaml:"storage"`
	Split      SplitConfig     `toml:"split" yaml:"split"`
	Host       HostConfig      `toml:"host" yaml:"host"`
	Connection string          `toml:"connection" yaml:"connection"`
}

type KeyboardConfig struct {
	Name      string `toml:"name" yaml:"name"`
	VendorID  uint16 `toml:"vendor_id" yaml:"vendor_id"`
	ProductID uint16 `toml:"product_id" yaml:"product_id"`
	// UID is the 8-byte Vial keyboard id as 16 hex digits.
	UID string `toml:"uid" yaml:"uid"`
	// VialJSON points at a keyboard definition to serve instead of the
	// generated one. Relative paths resolve against the description file.
	VialJSON string `toml:"vial_json" yaml:"vial_json"`
}

type MatrixConfig struct {
	Rows        int    `toml:"rows" yaml:"rows"`
	Cols        int    `toml:"cols" yaml:"cols"`
	Diode       string `toml:"diode" yaml:"diode"`
	ActiveLow   bool   `toml:"active_low" yaml:"active_low"`
	GhostFilter bool   `toml:"ghost_filter" yaml:"ghost_filter"`
	Direct      bool   `toml:"direct" yaml:"direct"`
	RowPins     []int  `toml:"row_pins" yaml:"row_pins"`
	ColPins     []int  `toml:"col_pins" yaml:"col_pins"`
	DirectPins  []int  `toml:"direct_pins" yaml:"direct_pins"`

	ScanIntervalMs uint16 `toml:"scan_interval_ms" yaml:"scan_interval_ms"`
	DebounceMs     uint16 `toml:"debounce_ms" yaml:"debounce_ms"`
	Debouncer      string `toml:"debouncer" yaml:"debouncer"`
}

type LayoutConfig struct {
	Layers       int   `toml:"layers" yaml:"layers"`
	DefaultLayer uint8 `toml:"default_layer" yaml:"default_layer"`
	// Keymap is [layer][row][col] in action notation.
	Keymap [][][]string `toml:"keymap" yaml:"keymap"`
	// TriLayer is [lower, upper, adjust]; empty disables it.
	TriLayer []uint8 `toml:"tri_layer" yaml:"tri_layer"`
	// Hands has one string per row, one 'L' or 'R' per column. Empty splits
	// the matrix down the middle.
	Hands []string `toml:"hands" yaml:"hands"`
}

type EncoderConfig struct {
	PinA    int  `toml:"pin_a" yaml:"pin_a"`
	PinB    int  `toml:"pin_b" yaml:"pin_b"`
	Pulses  int8 `toml:"pulses" yaml:"pulses"`
	Reverse bool `toml:"reverse" yaml:"reverse"`
	// Actions holds [clockwise, counter-clockwise] per layer.
	Actions [][]string `toml:"actions" yaml:"actions"`
}

type BehaviorConfig struct {
	Mode                  string `toml:"mode" yaml:"mode"`
	EnableHRM             bool   `toml:"enable_hrm" yaml:"enable_hrm"`
	UnilateralTap         bool   `toml:"unilateral_tap" yaml:"unilateral_tap"`
	TimeoutMs             uint16 `toml:"timeout_ms" yaml:"timeout_ms"`
	GapMs                 uint16 `toml:"gap_ms" yaml:"gap_ms"`
	PriorIdleMs           uint16 `toml:"prior_idle_ms" yaml:"prior_idle_ms"`
	MorseQueue            int    `toml:"morse_queue" yaml:"morse_queue"`
	TapIntervalMs         uint16 `toml:"tap_interval_ms" yaml:"tap_interval_ms"`
	TapCapsLockIntervalMs uint16 `toml:"tap_capslock_interval_ms" yaml:"tap_capslock_interval_ms"`
	ComboTimeoutMs        uint16 `toml:"combo_timeout_ms" yaml:"combo_timeout_ms"`
	OneShotTimeoutMs      uint16 `toml:"oneshot_timeout_ms" yaml:"oneshot_timeout_ms"`
	CapsWordIdleMs        uint16 `toml:"caps_word_idle_ms" yaml:"caps_word_idle_ms"`
	CapsWordShiftMinus    bool   `toml:"caps_word_shift_minus" yaml:"caps_word_shift_minus"`
	NKRO                  bool   `toml:"nkro" yaml:"nkro"`
	MouseTickMs           uint16 `toml:"mouse_tick_ms" yaml:"mouse_tick_ms"`
}

// MorseConfig is one tap-dance: patterns in '.'/'-' notation mapped to
// actions.
type MorseConfig struct {
	Mode          string            `toml:"mode" yaml:"mode"`
	TimeoutMs     uint16            `toml:"timeout_ms" yaml:"timeout_ms"`
	GapMs         uint16            `toml:"gap_ms" yaml:"gap_ms"`
	UnilateralTap *bool             `toml:"unilateral_tap" yaml:"unilateral_tap"`
	Patterns      map[string]string `toml:"patterns" yaml:"patterns"`
}

type ComboConfig struct {
	Keys      []string `toml:"keys" yaml:"keys"`
	Output    string   `toml:"output" yaml:"output"`
	Layer     *uint8   `toml:"layer" yaml:"layer"`
	TimeoutMs uint16   `toml:"timeout_ms" yaml:"timeout_ms"`
}

type ForkConfig struct {
	Trigger   string `toml:"trigger" yaml:"trigger"`
	Negative  string `toml:"negative" yaml:"negative"`
	Positive  string `toml:"positive" yaml:"positive"`
	MatchAny  string `toml:"match_any" yaml:"match_any"`
	MatchNone string `toml:"match_none" yaml:"match_none"`
	Kept      string `toml:"kept" yaml:"kept"`
	Bindable  bool   `toml:"bindable" yaml:"bindable"`
}

// MacroConfig is one macro slot as a list of ops: Tap(A), Down(LShift),
// Up(LShift), Delay(100), Text(hello).
type MacroConfig struct {
	Ops []string `toml:"ops" yaml:"ops"`
}

type StorageConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	StartAddr  uint32 `toml:"start_addr" yaml:"start_addr"`
	NumSectors int    `toml:"num_sectors" yaml:"num_sectors"`
	// ClearStorage wipes the store on every boot.
	ClearStorage bool `toml:"clear_storage" yaml:"clear_storage"`
	// ClearLayout drops stored layout items on every boot, keeping pairing.
	ClearLayout bool `toml:"clear_layout" yaml:"clear_layout"`
	// Preserve keeps a layout written by a different firmware build.
	Preserve bool `toml:"preserve" yaml:"preserve"`
}

type SplitConfig struct {
	// Role is "", "central" or "peripheral".
	Role  string       `toml:"role" yaml:"role"`
	ID    uint8        `toml:"id" yaml:"id"`
	Peers []PeerConfig `toml:"peer" yaml:"peers"`
	// Serial names the link to the central on a peripheral.
	Serial string `toml:"serial" yaml:"serial"`
}

type PeerConfig struct {
	ID            uint8  `toml:"id" yaml:"id"`
	Rows          int    `toml:"rows" yaml:"rows"`
	Cols          int    `toml:"cols" yaml:"cols"`
	RowOffset     uint8  `toml:"row_offset" yaml:"row_offset"`
	ColOffset     uint8  `toml:"col_offset" yaml:"col_offset"`
	EncoderOffset uint8  `toml:"encoder_offset" yaml:"encoder_offset"`
	Serial        string `toml:"serial" yaml:"serial"`
}

// HostConfig only matters to the simulator.
type HostConfig struct {
	// Keys maps host key names (ebiten spelling with a Key prefix, "KeyA",
	// "KeySpace") to matrix positions written "row,col".
	Keys map[string]string `toml:"keys" yaml:"keys"`
	// Flash is the backing file for the simulated flash.
	Flash     string `toml:"flash" yaml:"flash"`
	FlashSize uint32 `toml:"flash_size" yaml:"flash_size"`
}

const (
	RoleNone       = ""
	RoleCentral    = "central"
	RolePeripheral = "peripheral"
)

// Default is the compiled-in description: a 2x2 macropad with two layers.
func Default() *Config {
	return &Config{
		Keyboard: KeyboardConfig{
			Name:      "rmk",
			VendorID:  0x4C4B,
			ProductID: 0x4643,
			UID:       "524d4b0000000001",
		},
		Matrix: MatrixConfig{
			Rows:           2,
			Cols:           2,
			Diode:          "col2row",
			ActiveLow:      true,
			GhostFilter:    true,
			ScanIntervalMs: 1,
			DebounceMs:     5,
			Debouncer:      "default",
		},
		Layout: LayoutConfig{
			Layers: 2,
			Keymap: [][][]string{
				{{"A", "B"}, {"LT(1,Space)", "MT(Escape,LShift)"}},
				{{"1", "2"}, {"_", "CapsWordToggle"}},
			},
		},
		Behavior:   DefaultBehavior(),
		Storage:    StorageConfig{Enabled: true, StartAddr: 0, NumSectors: 4},
		Connection: "usb",
		Host: HostConfig{
			Keys: map[string]string{"KeyA": "0,0", "KeyS": "0,1", "KeyD": "1,0", "KeyF": "1,1"},
		},
	}
}

// DefaultBehavior is the engine's compiled-in timing set.
func DefaultBehavior() BehaviorConfig { return FromBehavior(keyboard.DefaultBehavior()) }
