package vial

import (
	"fmt"
	"strconv"

	"github.com/tidwall/sjson"
)

// DefinitionInfo describes the keyboard for a generated definition.
type DefinitionInfo struct {
	Name      string
	VendorID  uint16
	ProductID uint16
	Rows      int
	Cols      int
}

// Definition builds a minimal keyboard definition: one key per matrix
// position, laid out as the matrix itself. Keyboards with a real layout ship
// their own vial.json instead. The result is served uncompressed.
func Definition(info DefinitionInfo) ([]byte, error) {
	if info.Rows <= 0 || info.Cols <= 0 {
		return nil, fmt.Errorf("vial: bad matrix %dx%d", info.Rows, info.Cols)
	}
	keymap := make([][]string, info.Rows)
	for r := range keymap {
		keymap[r] = make([]string, info.Cols)
		for c := range keymap[r] {
			keymap[r][c] = strconv.Itoa(r) + "," + strconv.Itoa(c)
		}
	}
	js := []byte(`{}`)
	var err error
	for _, kv := range []struct {
		path string
		val  any
	}{
		{"name", info.Name},
		{"vendorId", fmt.Sprintf("0x%04X", info.VendorID)},
		{"productId", fmt.Sprintf("0x%04X", info.ProductID)},
		{"matrix.rows", info.Rows},
		{"matrix.cols", info.Cols},
		{"layouts.keymap", keymap},
	} {
		if js, err = sjson.SetBytes(js, kv.path, kv.val); err != nil {
			return nil, fmt.Errorf("vial: definition %s: %w", kv.path, err)
		}
	}
	return js, nil
}
