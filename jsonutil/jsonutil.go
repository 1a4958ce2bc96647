// Package jsonutil wraps goccy/go-json for the destination boundary's item
// payload encoding, grounded on kbukum-gokit's indirect goccy/go-json
// dependency — promoted to direct here since this module exercises it
// directly rather than only through a web framework's JSON renderer.
package jsonutil

import "github.com/goccy/go-json"

// Marshal encodes v using goccy/go-json.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes data into v using goccy/go-json.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// MarshalIndent encodes v with indentation, for debug output of yielded
// items.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return json.MarshalIndent(v, prefix, indent)
}
