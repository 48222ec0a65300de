package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Parse decodes tool-call arguments into a Script. Unknown fields at any
// level are rejected, strings are trimmed and the installation phase must be
// present.
func Parse(raw []byte) (*Script, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var s Script
	if err := dec.Decode(&s); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownField, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalid)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseString is Parse for string arguments.
func ParseString(raw string) (*Script, error) { return Parse([]byte(raw)) }

// Encode renders the script as compact JSON in field and insertion order.
func Encode(s *Script) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
