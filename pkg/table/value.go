package table

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind identifies what a cell holds.
type Kind uint8

const (
	KindMissing Kind = iota
	KindNumber
	KindString
)

// missingTokens are the cell spellings read as "no value", matching what
// common dataframe readers treat as NA by default.
var missingTokens = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

// Value is a single table cell: a number, a string or missing.
// The zero Value is missing.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Number returns a numeric value. NaN is stored as missing.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Missing()
	}
	return Value{kind: KindNumber, num: f}
}

// String returns a non-numeric value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Missing returns the absence marker.
func Missing() Value {
	return Value{}
}

// Parse converts raw cell text into a Value.
func Parse(s string) Value {
	t := strings.TrimSpace(s)
	if missingTokens[t] {
		return Missing()
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return Number(f)
	}
	return String(s)
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsMissing() bool {
	return v.kind == KindMissing
}

func (v Value) IsNumber() bool {
	return v.kind == KindNumber
}

// Float returns the numeric value and whether the cell is a number.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Text renders the value the way it is written to CSV. Missing is empty.
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return formatFloat(v.num)
	case KindString:
		return v.str
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.kind == KindMissing {
		return "<missing>"
	}
	return v.Text()
}

// MarshalJSON encodes numbers as JSON numbers, strings as strings and
// missing as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsInf(v.num, 0) {
			return json.Marshal(formatFloat(v.num))
		}
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts numbers, strings and null.
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Missing()
	case float64:
		*v = Number(x)
	case string:
		*v = Parse(x)
	case bool:
		*v = String(strconv.FormatBool(x))
	default:
		*v = String(string(b))
	}
	return nil
}

// MarshalYAML mirrors MarshalJSON for yaml output.
func (v Value) MarshalYAML() (any, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindString:
		return v.str, nil
	default:
		return nil, nil
	}
}

func formatFloat(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
