package ast

import (
	"encoding/json"
	"io"

	"tlog.app/go/errors"
)

// Parse reads a dumped style AST (JSON) from a reader.
func Parse(r io.Reader) (*Style, error) {
	var style Style
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&style); err != nil {
		return nil, errors.Wrap(err, "decode style ast")
	}
	return &style, nil
}

// ParseBytes parses a dumped style AST (JSON) from a byte slice.
func ParseBytes(data []byte) (*Style, error) {
	var style Style
	if err := json.Unmarshal(data, &style); err != nil {
		return nil, errors.Wrap(err, "decode style ast")
	}
	return &style, nil
}

// Marshal dumps the style AST as indented JSON.
func Marshal(s *Style) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode style ast")
	}
	return data, nil
}
