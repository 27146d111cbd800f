// Package vial implements the Vial/VIA host protocol: 32-byte raw HID frames
// that read and rewrite the live keymap, macros, combos, forks and tap-dances.
// Every write lands in the running tables first and is then persisted through
// the storage task. A failed flash write is logged and the RAM value stays.
package vial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"rmk/firmware/action"
	"rmk/firmware/clock"
	"rmk/firmware/combo"
	"rmk/firmware/event"
	"rmk/firmware/fork"
	"rmk/firmware/keymap"
	"rmk/firmware/macro"
	"rmk/firmware/morse"
	"rmk/firmware/storage"
)

var (
	ErrUnknownCommand = errors.New("vial: unknown command")
	ErrBounds         = errors.New("vial: index out of range")
)

// Store is the persistence side of the protocol. *client/storage.Client
// satisfies it.
type Store interface {
	Put(ctx context.Context, key uint32, v storage.Value) error
	Delete(ctx context.Context, key uint32) error
	ClearLayout(ctx context.Context) error
	EraseAll(ctx context.Context) error
}

// Tables are the runtime structures the protocol edits.
type Tables struct {
	Keymap *keymap.Keymap
	Morses *morse.Table
	Combos *combo.Table
	Forks  *fork.Table
	Macros *macro.Book
}

type Config struct {
	Live Tables
	// Defaults are the compiled-in tables Reset copies back.
	Defaults Tables
	Store    Store
	Layout   storage.LayoutConfig

	KeyboardID [8]byte
	// Definition is the keyboard definition JSON served to the host.
	Definition []byte

	Clock  clock.Clock
	Notify func(event.Controller)
	Reboot func(bootloader bool)
	Log    *slog.Logger
}

type Service struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	layout storage.LayoutConfig
}

func New(cfg Config) (*Service, error) {
	if cfg.Live.Keymap == nil || cfg.Store == nil {
		return nil, errors.New("vial: keymap and store are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewMonotonic()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, log: log, layout: cfg.Layout}, nil
}

func (s *Service) km() *keymap.Keymap { return s.cfg.Live.Keymap }

func (s *Service) GetLayerCount() int { return s.km().Layers() }

func (s *Service) GetKeymapKey(layer, row, col int) (action.KeyAction, error) {
	km := s.km()
	if layer >= km.Layers() || row >= km.Rows() || col >= km.Cols() || layer < 0 || row < 0 || col < 0 {
		return action.NoKey, fmt.Errorf("%w: key (%d,%d,%d)", ErrBounds, layer, row, col)
	}
	return km.Get(layer, row, col), nil
}

// SetKeymapKey applies then persists one keymap cell.
func (s *Service) SetKeymapKey(ctx context.Context, layer, row, col int, ka action.KeyAction) error {
	if _, err := s.GetKeymapKey(layer, row, col); err != nil {
		return err
	}
	km := s.km()
	if err := km.Set(layer, row, col, ka); err != nil {
		return err
	}
	key := storage.KeymapKey(layer, row, col, km.Rows(), km.Cols())
	s.saved("key", key, s.cfg.Store.Put(ctx, key, &storage.KeymapCell{Action: ka}))
	return nil
}

// saved logs a failed flash write. The caller has already updated RAM, which
// keeps serving until the next boot.
func (s *Service) saved(what string, key uint32, err error) {
	if err != nil {
		s.log.Warn("vial: save failed", "item", what, "key", key, "err", err)
	}
}

func (s *Service) GetEncoderKey(layer, idx int) (keymap.EncoderAction, error) {
	km := s.km()
	if layer < 0 || layer >= km.Layers() || idx < 0 || idx >= km.Encoders() {
		return keymap.EncoderAction{}, fmt.Errorf("%w: encoder %d layer %d", ErrBounds, idx, layer)
	}
	return km.Encoder(layer, idx), nil
}

func (s *Service) SetEncoderKey(ctx context.Context, layer, idx int, a keymap.EncoderAction) error {
	if _, err := s.GetEncoderKey(layer, idx); err != nil {
		return err
	}
	if err := s.km().SetEncoder(layer, idx, a); err != nil {
		return err
	}
	key := storage.EncoderKey(idx, layer, s.km().Encoders())
	s.saved("encoder", key, s.cfg.Store.Put(ctx, key, &storage.EncoderCell{Action: a}))
	return nil
}

func (s *Service) GetLayoutOption() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout.LayoutOption
}

func (s *Service) SetLayoutOption(ctx context.Context, opt uint32) error {
	s.mu.Lock()
	s.layout.LayoutOption = opt
	next := s.layout
	s.mu.Unlock()
	s.saved("layout", storage.KeyLayoutConfig, s.cfg.Store.Put(ctx, storage.KeyLayoutConfig, &next))
	return nil
}

// SaveMacros persists the whole macro buffer as it is in RAM.
func (s *Service) SaveMacros(ctx context.Context) error {
	data := s.cfg.Live.Macros.Bytes()
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}
	s.saved("macros", storage.KeyMacros, s.cfg.Store.Put(ctx, storage.KeyMacros, &storage.MacroData{Data: data[:end]}))
	return nil
}

func (s *Service) GetCombo(i int) (combo.Combo, error) {
	c, err := s.cfg.Live.Combos.Get(i)
	if err != nil {
		return combo.Combo{}, fmt.Errorf("%w: combo %d", ErrBounds, i)
	}
	return c, nil
}

// SetCombo stores c in slot i. An empty combo deletes the stored slot.
func (s *Service) SetCombo(ctx context.Context, i int, c combo.Combo) error {
	if _, err := s.GetCombo(i); err != nil {
		return err
	}
	if err := s.cfg.Live.Combos.Set(i, c); err != nil {
		return err
	}
	key := storage.ComboKey(i)
	if c.IsEmpty() {
		s.saved("combo", key, s.cfg.Store.Delete(ctx, key))
	} else {
		s.saved("combo", key, s.cfg.Store.Put(ctx, key, &storage.ComboValue{Combo: c}))
	}
	return nil
}

func (s *Service) GetFork(i int) (action.Fork, error) {
	f, err := s.cfg.Live.Forks.Get(i)
	if err != nil {
		return action.Fork{}, fmt.Errorf("%w: fork %d", ErrBounds, i)
	}
	return f, nil
}

func (s *Service) SetFork(ctx context.Context, i int, f action.Fork) error {
	if _, err := s.GetFork(i); err != nil {
		return err
	}
	if err := s.cfg.Live.Forks.Set(i, f); err != nil {
		return err
	}
	key := storage.ForkKey(i)
	if f.IsEmpty() {
		s.saved("fork", key, s.cfg.Store.Delete(ctx, key))
	} else {
		s.saved("fork", key, s.cfg.Store.Put(ctx, key, &storage.ForkValue{Fork: f}))
	}
	return nil
}

func (s *Service) GetMorse(i int) (action.Morse, error) {
	m, err := s.cfg.Live.Morses.Get(i)
	if err != nil {
		return action.Morse{}, fmt.Errorf("%w: tap dance %d", ErrBounds, i)
	}
	return m, nil
}

func (s *Service) SetMorse(ctx context.Context, i int, m action.Morse) error {
	if _, err := s.GetMorse(i); err != nil {
		return err
	}
	if err := s.cfg.Live.Morses.Set(i, m); err != nil {
		return err
	}
	s.saved("tap dance", storage.MorseKey(i), s.cfg.Store.Put(ctx, storage.MorseKey(i), &storage.MorseValue{Morse: m}))
	return nil
}

// Reset drops every stored layout item and puts the compiled-in tables back.
// Pairing data survives. Stored behavior settings are dropped too, but the
// running engine keeps its current timings until reboot.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.cfg.Store.ClearLayout(ctx); err != nil {
		return fmt.Errorf("vial: reset: %w", err)
	}
	s.restoreDefaults()
	s.log.Info("vial: layout reset to defaults")
	return nil
}

// EepromReset wipes the whole store, pairing included.
func (s *Service) EepromReset(ctx context.Context) error {
	if err := s.cfg.Store.EraseAll(ctx); err != nil {
		return fmt.Errorf("vial: eeprom reset: %w", err)
	}
	s.restoreDefaults()
	if s.cfg.Notify != nil {
		s.cfg.Notify(event.Controller{Kind: event.CtrlStorageReset, On: true})
	}
	s.log.Warn("vial: storage erased")
	return nil
}

func (s *Service) restoreDefaults() {
	live, def := s.cfg.Live, s.cfg.Defaults
	if km := def.Keymap; km != nil {
		for l := 0; l < min(km.Layers(), live.Keymap.Layers()); l++ {
			for i, ka := range km.Layer(l) {
				_ = live.Keymap.Set(l, i/km.Cols(), i%km.Cols(), ka)
			}
			for e := 0; e < min(km.Encoders(), live.Keymap.Encoders()); e++ {
				_ = live.Keymap.SetEncoder(l, e, km.Encoder(l, e))
			}
		}
	}
	if def.Combos != nil && live.Combos != nil {
		for i := range live.Combos.Len() {
			c, _ := def.Combos.Get(i)
			_ = live.Combos.Set(i, c)
		}
	}
	if def.Forks != nil && live.Forks != nil {
		for i := range live.Forks.Len() {
			f, _ := def.Forks.Get(i)
			_ = live.Forks.Set(i, f)
		}
	}
	if def.Morses != nil && live.Morses != nil {
		for i := range live.Morses.Len() {
			m, _ := def.Morses.Get(i)
			_ = live.Morses.Set(i, m)
		}
	}
	if def.Macros != nil && live.Macros != nil {
		_ = live.Macros.Load(def.Macros.Bytes())
	}
	s.mu.Lock()
	s.layout = s.cfg.Layout
	s.mu.Unlock()
}

func (s *Service) reboot(bootloader bool) {
	if s.cfg.Reboot == nil {
		s.log.Warn("vial: reboot requested but not supported", "bootloader", bootloader)
		return
	}
	s.cfg.Reboot(bootloader)
}
