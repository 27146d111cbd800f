package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"rmk/firmware/vial"
)

//go:embed vial.schema.json
var vialSchema []byte

const vialSchemaURL = "vial.schema.json"

var labelPos = regexp.MustCompile(`^(\d+),(\d+)`)

// Definition returns the Vial keyboard definition: the vial.json named by
// the description, checked against the matrix, or a generated one.
func (c *Config) Definition() ([]byte, error) {
	if c.Keyboard.VialJSON == "" {
		return vial.Definition(vial.DefinitionInfo{
			Name:      c.Keyboard.Name,
			VendorID:  c.Keyboard.VendorID,
			ProductID: c.Keyboard.ProductID,
			Rows:      c.Matrix.Rows,
			Cols:      c.Matrix.Cols,
		})
	}
	data, err := os.ReadFile(c.Keyboard.VialJSON)
	if err != nil {
		return nil, fmt.Errorf("config: vial json: %w", err)
	}
	if err := c.CheckDefinition(data); err != nil {
		return nil, err
	}
	return data, nil
}

// CheckDefinition validates a vial.json document and checks every key label
// in its layout names a position inside the matrix.
func (c *Config) CheckDefinition(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(vialSchemaURL, bytes.NewReader(vialSchema)); err != nil {
		return fmt.Errorf("config: vial schema: %w", err)
	}
	schema, err := compiler.Compile(vialSchemaURL)
	if err != nil {
		return fmt.Errorf("config: vial schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: vial json: %v", ErrInvalid, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: vial json: %v", ErrInvalid, err)
	}

	js := gjson.ParseBytes(data)
	rows, cols := int(js.Get("matrix.rows").Int()), int(js.Get("matrix.cols").Int())
	if rows != c.Matrix.Rows || cols != c.Matrix.Cols {
		return fmt.Errorf("%w: vial json matrix %dx%d, description has %dx%d", ErrInvalid, rows, cols, c.Matrix.Rows, c.Matrix.Cols)
	}
	var bad error
	js.Get("layouts.keymap").ForEach(func(_, row gjson.Result) bool {
		row.ForEach(func(_, key gjson.Result) bool {
			if key.Type != gjson.String {
				// Objects carry KLE geometry for the next key.
				return true
			}
			m := labelPos.FindStringSubmatch(key.String())
			if m == nil {
				return true
			}
			r, _ := strconv.Atoi(m[1])
			col, _ := strconv.Atoi(m[2])
			if r >= rows || col >= cols {
				bad = fmt.Errorf("%w: vial json key %q outside the matrix", ErrInvalid, key.String())
				return false
			}
			return true
		})
		return bad == nil
	})
	return bad
}
