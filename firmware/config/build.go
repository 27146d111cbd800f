package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rmk/firmware/action"
	"rmk/firmware/capsword"
	"rmk/firmware/combo"
	"rmk/firmware/debounce"
	"rmk/firmware/event"
	"rmk/firmware/fork"
	"rmk/firmware/hid"
	"rmk/firmware/keyboard"
	"rmk/firmware/keycode"
	"rmk/firmware/keymap"
	"rmk/firmware/macro"
	"rmk/firmware/matrix"
	"rmk/firmware/morse"
	"rmk/firmware/storage"
)

// Tables are the runtime structures built from one description. Each call to
// Build returns fresh copies, so one set can run while another is kept as
// the defaults a reset restores.
type Tables struct {
	Keymap *keymap.Keymap
	Morses *morse.Table
	Combos *combo.Table
	Forks  *fork.Table
	Macros *macro.Book
}

// Build parses every action in the description into engine tables.
func (c *Config) Build() (Tables, error) {
	var t Tables
	if err := c.Validate(); err != nil {
		return t, err
	}
	cells := make([][][]action.KeyAction, len(c.Layout.Keymap))
	for l, layer := range c.Layout.Keymap {
		cells[l] = make([][]action.KeyAction, len(layer))
		for r, row := range layer {
			cells[l][r] = make([]action.KeyAction, len(row))
			for col, s := range row {
				cells[l][r][col] = action.MustParse(s)
			}
		}
	}
	km, err := keymap.FromLayers(cells, len(c.Encoders))
	if err != nil {
		return t, fmt.Errorf("config: %w", err)
	}
	for i, e := range c.Encoders {
		for l, pair := range e.Actions {
			ea := keymap.EncoderAction{Clockwise: action.MustParse(pair[0]), CounterClockwise: action.MustParse(pair[1])}
			if err := km.SetEncoder(l, i, ea); err != nil {
				return t, fmt.Errorf("config: %w", err)
			}
		}
	}
	t.Keymap = km

	morses := make([]action.Morse, len(c.Morses))
	for i, m := range c.Morses {
		morses[i], _ = buildMorse(m)
	}
	combos := make([]combo.Combo, len(c.Combos))
	for i, cc := range c.Combos {
		combos[i], _ = buildCombo(cc)
	}
	forks := make([]action.Fork, len(c.Forks))
	for i, f := range c.Forks {
		forks[i], _ = buildFork(f)
	}
	if t.Morses, err = morse.NewTable(morses...); err != nil {
		return t, err
	}
	if t.Combos, err = combo.NewTable(combos...); err != nil {
		return t, err
	}
	if t.Forks, err = fork.NewTable(forks...); err != nil {
		return t, err
	}
	t.Macros, err = buildMacros(c.Macros)
	return t, err
}

func buildMorse(m MorseConfig) (action.Morse, error) {
	var out action.Morse
	mode, err := action.ParseMode(m.Mode)
	if err != nil {
		return out, err
	}
	out.Profile = action.MorseProfile{Mode: mode, TimeoutMs: m.TimeoutMs, GapMs: m.GapMs}
	if m.UnilateralTap != nil {
		out.Profile.UnilateralTap = action.ToggleOf(*m.UnilateralTap)
	}
	if len(m.Patterns) == 0 {
		return out, errors.New("no patterns")
	}
	for p, s := range m.Patterns {
		pat, err := action.ParsePattern(p)
		if err != nil {
			return out, err
		}
		a, err := action.ParseAction(s)
		if err != nil {
			return out, err
		}
		if err := out.Put(pat, a); err != nil {
			return out, err
		}
	}
	return out, nil
}

func buildCombo(cc ComboConfig) (combo.Combo, error) {
	if len(cc.Keys) < 2 {
		return combo.Combo{}, fmt.Errorf("want at least 2 keys, got %d", len(cc.Keys))
	}
	keys := make([]action.KeyAction, len(cc.Keys))
	for i, s := range cc.Keys {
		ka, err := action.Parse(s)
		if err != nil {
			return combo.Combo{}, err
		}
		keys[i] = ka
	}
	out, err := action.ParseAction(cc.Output)
	if err != nil {
		return combo.Combo{}, err
	}
	c, err := combo.New(keys, out)
	if err != nil {
		return c, err
	}
	if cc.Layer != nil {
		c = c.OnLayer(*cc.Layer)
	}
	c.TimeoutMs = cc.TimeoutMs
	return c, nil
}

func buildFork(f ForkConfig) (action.Fork, error) {
	var out action.Fork
	var err error
	parse := func(s string, dst *action.KeyAction) {
		if err == nil {
			*dst, err = action.Parse(s)
		}
	}
	mods := func(s string, dst *keycode.ModifierCombination) {
		if err == nil && s != "" {
			*dst, err = action.ParseModifiers(s)
		}
	}
	parse(f.Trigger, &out.Trigger)
	parse(f.Negative, &out.Negative)
	parse(f.Positive, &out.Positive)
	mods(f.MatchAny, &out.MatchAny)
	mods(f.MatchNone, &out.MatchNone)
	mods(f.Kept, &out.Kept)
	out.Bindable = f.Bindable
	if err == nil && out.Trigger.Kind == action.KeyActionNo {
		err = errors.New("fork has no trigger")
	}
	return out, err
}

func buildMacros(list []MacroConfig) (*macro.Book, error) {
	macros := make([][]macro.Op, len(list))
	for i, m := range list {
		ops, err := macro.ParseOps(m.Ops)
		if err != nil {
			return nil, fmt.Errorf("macro %d: %w", i, err)
		}
		macros[i] = ops
	}
	book := macro.NewBook(macro.DefaultBufferSize)
	if err := book.SetMacros(macros); err != nil {
		return nil, err
	}
	return book, nil
}

func parseDiode(s string) (matrix.Diode, error) {
	switch strings.ToLower(s) {
	case "", "col2row":
		return matrix.Col2Row, nil
	case "row2col":
		return matrix.Row2Col, nil
	}
	return 0, fmt.Errorf("unknown diode direction %q", s)
}

// MatrixConfig returns the scanner settings.
func (c *Config) MatrixConfig() matrix.Config {
	diode, _ := parseDiode(c.Matrix.Diode)
	return matrix.Config{
		Rows:        c.Matrix.Rows,
		Cols:        c.Matrix.Cols,
		Direct:      c.Matrix.Direct,
		Diode:       diode,
		ActiveLow:   c.Matrix.ActiveLow,
		GhostFilter: c.Matrix.GhostFilter,
	}
}

// Debouncer builds the configured debouncer for every matrix key.
func (c *Config) Debouncer() debounce.Debouncer {
	n := c.Matrix.Rows * c.Matrix.Cols
	if c.Matrix.Debouncer == "eager" {
		return debounce.NewEager(n, c.Matrix.DebounceMs)
	}
	return debounce.NewDefault(n, c.Matrix.DebounceMs)
}

// Behavior converts the behavior section to engine settings.
func (b BehaviorConfig) Behavior() keyboard.Behavior {
	mode, _ := action.ParseMode(b.Mode)
	report := hid.ModeBoot
	if b.NKRO {
		report = hid.ModeNKRO
	}
	return keyboard.Behavior{
		Morse: action.MorseProfile{
			Mode:          mode,
			UnilateralTap: action.ToggleOf(b.UnilateralTap),
			EnableHRM:     action.ToggleOf(b.EnableHRM),
			TimeoutMs:     b.TimeoutMs,
			GapMs:         b.GapMs,
			PriorIdleMs:   b.PriorIdleMs,
		},
		MorseQueue:            b.MorseQueue,
		TapIntervalMs:         b.TapIntervalMs,
		TapCapsLockIntervalMs: b.TapCapsLockIntervalMs,
		ComboTimeoutMs:        b.ComboTimeoutMs,
		OneShotTimeoutMs:      b.OneShotTimeoutMs,
		CapsWord:              capsword.Config{IdleMs: b.CapsWordIdleMs, ShiftMinus: b.CapsWordShiftMinus},
		Report:                report,
		MouseTickMs:           b.MouseTickMs,
	}
}

// FromBehavior is the inverse of BehaviorConfig.Behavior.
func FromBehavior(b keyboard.Behavior) BehaviorConfig {
	return BehaviorConfig{
		Mode:                  b.Morse.Mode.String(),
		EnableHRM:             b.Morse.EnableHRM.Or(false),
		UnilateralTap:         b.Morse.UnilateralTap.Or(false),
		TimeoutMs:             b.Morse.TimeoutMs,
		GapMs:                 b.Morse.GapMs,
		PriorIdleMs:           b.Morse.PriorIdleMs,
		MorseQueue:            b.MorseQueue,
		TapIntervalMs:         b.TapIntervalMs,
		TapCapsLockIntervalMs: b.TapCapsLockIntervalMs,
		ComboTimeoutMs:        b.ComboTimeoutMs,
		OneShotTimeoutMs:      b.OneShotTimeoutMs,
		CapsWordIdleMs:        b.CapsWord.IdleMs,
		CapsWordShiftMinus:    b.CapsWord.ShiftMinus,
		NKRO:                  b.Report == hid.ModeNKRO,
		MouseTickMs:           b.MouseTickMs,
	}
}

// TriLayer returns the tri-layer setting, or nil when unset.
func (c *Config) TriLayer() *keymap.TriLayer {
	if len(c.Layout.TriLayer) != 3 {
		return nil
	}
	t := c.Layout.TriLayer
	return &keymap.TriLayer{Lower: t[0], Upper: t[1], Adjust: t[2]}
}

// Hand returns the hand assignment, or nil to let the engine split the
// matrix down the middle.
func (c *Config) Hand() func(event.KeyPosition) morse.Hand {
	if len(c.Layout.Hands) == 0 {
		return nil
	}
	hands := make([][]morse.Hand, len(c.Layout.Hands))
	for r, row := range c.Layout.Hands {
		hands[r] = make([]morse.Hand, len(row))
		for col, h := range strings.ToUpper(row) {
			hands[r][col] = morse.HandLeft
			if h == 'R' {
				hands[r][col] = morse.HandRight
			}
		}
	}
	return func(p event.KeyPosition) morse.Hand {
		if int(p.Row) >= len(hands) || int(p.Col) >= len(hands[p.Row]) {
			return morse.HandUnknown
		}
		return hands[p.Row][p.Col]
	}
}

// StorageConfig returns the flash region of the store.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{Start: c.Storage.StartAddr, Sectors: c.Storage.NumSectors}
}

// KeyboardID decodes the Vial keyboard id.
func (c *Config) KeyboardID() [8]byte {
	var id [8]byte
	b, err := hex.DecodeString(c.Keyboard.UID)
	if err == nil {
		copy(id[:], b)
	}
	return id
}

func (c *Config) ConnectionType() event.ConnectionType {
	if strings.EqualFold(c.Connection, "ble") {
		return event.ConnBLE
	}
	return event.ConnUSB
}

// Position parses a "row,col" matrix position.
func Position(s string) (event.KeyPosition, error) {
	r, col, ok := strings.Cut(s, ",")
	if !ok {
		return event.KeyPosition{}, fmt.Errorf("config: position %q is not row,col", s)
	}
	row, err1 := strconv.ParseUint(strings.TrimSpace(r), 10, 8)
	cl, err2 := strconv.ParseUint(strings.TrimSpace(col), 10, 8)
	if err := errors.Join(err1, err2); err != nil {
		return event.KeyPosition{}, fmt.Errorf("config: position %q: %w", s, err)
	}
	return event.KeyPosition{Row: uint8(row), Col: uint8(cl)}, nil
}
