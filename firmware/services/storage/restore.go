package storage

import (
	"fmt"
	"log/slog"

	"rmk/firmware/combo"
	"rmk/firmware/event"
	"rmk/firmware/fork"
	"rmk/firmware/hid"
	"rmk/firmware/keyboard"
	"rmk/firmware/keymap"
	"rmk/firmware/macro"
	"rmk/firmware/morse"
	"rmk/firmware/storage"
)

// Data is the live configuration Restore overlays stored items onto. It
// starts out holding the compiled-in defaults.
type Data struct {
	Keymap     *keymap.Keymap
	Morses     *morse.Table
	Combos     *combo.Table
	Forks      *fork.Table
	Macros     *macro.Book
	Behavior   keyboard.Behavior
	Layout     storage.LayoutConfig
	Connection event.ConnectionType
}

type Options struct {
	BuildHash uint32
	// Preserve keeps a layout written by a different firmware build.
	Preserve bool
}

type Restored struct {
	FirstBoot bool
	Items     int
}

// Restore checks the store belongs to this firmware and loads every stored
// item into d. A store from another build, or one sized for another matrix,
// is erased and marked as first boot.
func Restore(st *storage.Store, d *Data, opt Options, log *slog.Logger) (Restored, error) {
	if log == nil {
		log = slog.Default()
	}
	want := storage.StorageConfig{
		Enabled:   true,
		BuildHash: opt.BuildHash,
		Rows:      uint8(d.Keymap.Rows()),
		Cols:      uint8(d.Keymap.Cols()),
		Layers:    uint8(d.Keymap.Layers()),
		Encoders:  uint8(d.Keymap.Encoders()),
	}
	sc, err := storage.Load[storage.StorageConfig](st, storage.KeyStorageConfig)
	reason := ""
	switch {
	case err != nil:
		reason = err.Error()
	case !sc.Enabled:
		reason = "disabled"
	case sc.Rows != want.Rows || sc.Cols != want.Cols || sc.Layers != want.Layers || sc.Encoders != want.Encoders:
		reason = "matrix size changed"
	case sc.BuildHash != want.BuildHash && !opt.Preserve:
		reason = "firmware changed"
	}
	if reason != "" {
		log.Warn("storage: reinitializing", "reason", reason)
		if err := st.EraseAll(); err != nil {
			return Restored{}, fmt.Errorf("storage reinit: %w", err)
		}
		if err := st.PutValue(storage.KeyStorageConfig, &want); err != nil {
			return Restored{}, fmt.Errorf("storage reinit: %w", err)
		}
		return Restored{FirstBoot: true}, nil
	}
	if sc.BuildHash != want.BuildHash {
		log.Info("storage: keeping layout across firmware update")
		if err := st.PutValue(storage.KeyStorageConfig, &want); err != nil {
			return Restored{}, fmt.Errorf("storage: %w", err)
		}
	}

	var r Restored
	for key := range st.Keys() {
		b, err := st.Get(key)
		if err != nil {
			return r, err
		}
		v, err := storage.Unmarshal(b)
		if err != nil {
			log.Warn("storage: skipping bad item", "key", key, "err", err)
			continue
		}
		if err := apply(d, key, v); err != nil {
			log.Warn("storage: skipping item", "key", key, "tag", v.Tag(), "err", err)
			continue
		}
		r.Items++
	}
	return r, nil
}

func apply(d *Data, key uint32, v storage.Value) error {
	km := d.Keymap
	switch v := v.(type) {
	case *storage.StorageConfig, *storage.PeerAddress, *storage.BondInfo, *storage.ActiveProfile:
		return nil
	case *storage.KeymapCell:
		layer, row, col, ok := storage.KeymapPos(key, km.Rows(), km.Cols())
		if !ok {
			return keymap.ErrBounds
		}
		return km.Set(layer, row, col, v.Action)
	case *storage.EncoderCell:
		idx, layer, ok := storage.EncoderPos(key, km.Encoders())
		if !ok {
			return keymap.ErrBounds
		}
		return km.SetEncoder(layer, idx, v.Action)
	case *storage.LayoutConfig:
		if int(v.DefaultLayer) >= km.Layers() {
			return keymap.ErrBounds
		}
		d.Layout = *v
	case *storage.BehaviorConfig:
		d.Behavior = ApplyBehavior(*v, d.Behavior)
	case *storage.MacroData:
		return d.Macros.Load(v.Data)
	case *storage.ComboValue:
		return d.Combos.Set(storage.Slot(key), v.Combo)
	case *storage.ForkValue:
		return d.Forks.Set(storage.Slot(key), v.Fork)
	case *storage.MorseValue:
		return d.Morses.Set(storage.Slot(key), v.Morse)
	case *storage.ConnectionValue:
		d.Connection = event.ConnectionType(v.Type)
	}
	return nil
}

// BehaviorConfig is the persisted form of b.
func BehaviorConfig(b keyboard.Behavior) storage.BehaviorConfig {
	return storage.BehaviorConfig{
		Morse:                 b.Morse,
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

// ApplyBehavior overlays a stored config on b. Fields the store does not
// carry keep b's value.
func ApplyBehavior(c storage.BehaviorConfig, b keyboard.Behavior) keyboard.Behavior {
	b.Morse = c.Morse.Merge(b.Morse)
	b.TapIntervalMs = c.TapIntervalMs
	b.TapCapsLockIntervalMs = c.TapCapsLockIntervalMs
	b.ComboTimeoutMs = c.ComboTimeoutMs
	b.OneShotTimeoutMs = c.OneShotTimeoutMs
	b.CapsWord.IdleMs = c.CapsWordIdleMs
	b.CapsWord.ShiftMinus = c.CapsWordShiftMinus
	b.Report = hid.ModeBoot
	if c.NKRO {
		b.Report = hid.ModeNKRO
	}
	b.MouseTickMs = c.MouseTickMs
	return b
}
