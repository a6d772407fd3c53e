package store

import (
	"encoding/json"
	"fmt"

	"github.com/droverhq/drover/internal/ir"
)

// marshalArgs converts an ir.Object to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalArgs(args ir.Object) (string, error) {
	data, err := ir.MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// marshalOutput converts an ir.Object to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalOutput(output ir.Object) (string, error) {
	data, err := ir.MarshalCanonical(output)
	if err != nil {
		return "", fmt.Errorf("marshal output: %w", err)
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT to an ir.Object.
// Uses ir.Object.UnmarshalJSON which handles large integers via json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalObject(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}
