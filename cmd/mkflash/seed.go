//go:build !tinygo

package main

import (
	"errors"
	"fmt"

	"rmk/app"
	"rmk/firmware/config"
	storagesvc "rmk/firmware/services/storage"
	"rmk/firmware/storage"
)

// seed writes lay's layout into st, tagged for the firmware built from fw,
// so the keyboard restores it on first boot instead of reinitializing.
func seed(st *storage.Store, fw, lay *config.Config) (int, error) {
	if fw.Matrix.Rows != lay.Matrix.Rows || fw.Matrix.Cols != lay.Matrix.Cols ||
		fw.Layout.Layers != lay.Layout.Layers || len(fw.Encoders) != len(lay.Encoders) {
		return 0, errors.New("mkflash: layout does not fit the firmware's matrix")
	}
	t, err := lay.Build()
	if err != nil {
		return 0, err
	}
	km := t.Keymap

	n := 0
	put := func(key uint32, v storage.Value) {
		if err != nil {
			return
		}
		if err = st.PutValue(key, v); err == nil {
			n++
		}
	}

	put(storage.KeyStorageConfig, &storage.StorageConfig{
		Enabled:   true,
		BuildHash: app.BuildHash(fw),
		Rows:      uint8(km.Rows()),
		Cols:      uint8(km.Cols()),
		Layers:    uint8(km.Layers()),
		Encoders:  uint8(km.Encoders()),
	})
	put(storage.KeyLayoutConfig, &storage.LayoutConfig{DefaultLayer: lay.Layout.DefaultLayer})
	for l := range km.Layers() {
		for r := range km.Rows() {
			for c := range km.Cols() {
				put(storage.KeymapKey(l, r, c, km.Rows(), km.Cols()), &storage.KeymapCell{Action: km.Get(l, r, c)})
			}
		}
		for e := range km.Encoders() {
			put(storage.EncoderKey(e, l, km.Encoders()), &storage.EncoderCell{Action: km.Encoder(l, e)})
		}
	}

	bc := storagesvc.BehaviorConfig(lay.Behavior.Behavior())
	put(storage.KeyBehavior, &bc)
	put(storage.KeyMacros, &storage.MacroData{Data: t.Macros.Bytes()})
	put(storage.KeyConnection, &storage.ConnectionValue{Type: uint8(lay.ConnectionType())})

	for i := range lay.Combos {
		c, gerr := t.Combos.Get(i)
		if gerr != nil {
			return n, gerr
		}
		put(storage.ComboKey(i), &storage.ComboValue{Combo: c})
	}
	for i := range lay.Forks {
		f, gerr := t.Forks.Get(i)
		if gerr != nil {
			return n, gerr
		}
		put(storage.ForkKey(i), &storage.ForkValue{Fork: f})
	}
	for i := range lay.Morses {
		m, gerr := t.Morses.Get(i)
		if gerr != nil {
			return n, gerr
		}
		put(storage.MorseKey(i), &storage.MorseValue{Morse: m})
	}
	if err != nil {
		return n, fmt.Errorf("mkflash: %w", err)
	}
	return n, nil
}
