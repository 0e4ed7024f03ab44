package decoder

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeStrict unmarshals b into a T, rejecting unknown fields and trailing data.
func DecodeStrict[T any](b []byte) (T, error) {
	var out T

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode: %w", err)
	}

	if dec.More() {
		return out, fmt.Errorf("failed to decode: trailing data after value")
	}

	return out, nil
}
