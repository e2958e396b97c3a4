package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexID is an identifier that upstream payloads send either as a JSON string or
// as a JSON number. It always holds the string form so comparisons never depend on
// the wire type.
type FlexID struct {
	Valid bool
	Value string
}

// NewFlexID returns a present identifier holding value unchanged, or an absent
// one when value is blank.
func NewFlexID(value string) FlexID {
	if strings.TrimSpace(value) == "" {
		return FlexID{}
	}
	return FlexID{Valid: true, Value: value}
}

// String implements fmt.Stringer.
func (f FlexID) String() string {
	if !f.Valid {
		return ""
	}
	return f.Value
}

// IsZero reports whether the identifier is absent. Used by the omitzero json option.
func (f FlexID) IsZero() bool {
	return !f.Valid
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = FlexID{}
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = NewFlexID(s)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err != nil {
		return fmt.Errorf("flex id must be a string or number: %w", err)
	}
	*f = NewFlexID(normalizeNumber(num.String()))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexID) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// normalizeNumber renders a JSON number the way a browser would stringify it,
// so 42, 42.0 and 4.2e1 all become "42".
func normalizeNumber(raw string) string {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if fl, err := strconv.ParseFloat(raw, 64); err == nil {
		return strconv.FormatFloat(fl, 'f', -1, 64)
	}
	return raw
}
