package store

import (
	"encoding/json"
	"fmt"

	"github.com/weftworks/weft/internal/ir"
)

// marshalPayload converts a Record to canonical JSON text for storage.
// Canonical form keeps traces byte-stable across runs.
func marshalPayload(r ir.Record) (string, error) {
	if r == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(r)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses stored canonical JSON text back into a Record.
// Uses ir.Record.UnmarshalJSON, which decodes numbers via json.Number so
// large int64 values survive untouched.
func unmarshalPayload(data string) (ir.Record, error) {
	if data == "" || data == "{}" {
		return ir.Record{}, nil
	}
	var r ir.Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return r, nil
}
