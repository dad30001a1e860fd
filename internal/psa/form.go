// Package psa validates the California Private School Affidavit form and
// measures how complete a draft is.
package psa

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Form is the flat PSA field set keyed by field name. Values are whatever
// the client sent: strings, numbers, booleans or null.
type Form map[string]any

// DecodeForm parses stored form JSON. Empty input yields an empty form.
func DecodeForm(raw []byte) (Form, error) {
	form := Form{}
	if len(raw) == 0 || string(raw) == "null" {
		return form, nil
	}
	if err := json.Unmarshal(raw, &form); err != nil {
		return nil, fmt.Errorf("decode psa form: %w", err)
	}
	return form, nil
}

// Merge returns a copy of f with every key of patch applied on top.
func (f Form) Merge(patch Form) Form {
	out := make(Form, len(f)+len(patch))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// String returns the trimmed text value of a field, or "" when it is not text.
func (f Form) String(field string) string {
	switch v := f[field].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Number returns a numeric field value, accepting numeric strings.
func (f Form) Number(field string) (float64, bool) {
	switch v := f[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Choice reports the explicit true/false value of a yes/no field. Both JSON
// booleans and the strings "true"/"false" count; anything else is unset.
func (f Form) Choice(field string) (value bool, ok bool) {
	switch v := f[field].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// IsTrue reports whether a yes/no field is explicitly true.
func (f Form) IsTrue(field string) bool {
	value, ok := f.Choice(field)
	return ok && value
}

// Filled reports whether a field carries a usable value. Blank strings,
// nulls and empty collections are not filled; zero is.
func (f Form) Filled(field string) bool {
	switch v := f[field].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}
