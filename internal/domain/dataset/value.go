package dataset

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind is the inferred type of a cell.
type Kind uint8

// Cell kinds. Missing cells are always KindString with empty text.
const (
	KindString Kind = iota
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// Value is a single immutable cell.
type Value struct {
	kind Kind
	text string
	i    int64
	f    float64
}

// Empty is the sentinel stored for every missing cell.
var Empty = Value{kind: KindString}

// StringValue builds a string cell.
func StringValue(s string) Value { return Value{kind: KindString, text: s} }

// IntValue builds an integer cell.
func IntValue(i int64) Value {
	return Value{kind: KindInt, text: strconv.FormatInt(i, 10), i: i, f: float64(i)}
}

// FloatValue builds a floating-point cell.
func FloatValue(f float64) Value {
	return Value{kind: KindFloat, text: strconv.FormatFloat(f, 'f', -1, 64), f: f}
}

// Kind reports the cell type.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether v is the missing-value sentinel.
func (v Value) IsEmpty() bool { return v.kind == KindString && v.text == "" }

// String returns the cell text.
func (v Value) String() string { return v.text }

// Float coerces v to a finite float64. Empty, non-numeric and non-finite
// cells report ok=false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInt, KindFloat:
		return v.f, true
	default:
		return parseFinite(v.text)
	}
}

// MarshalJSON encodes numbers as JSON numbers and everything else as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindFloat:
		return json.Marshal(v.f)
	default:
		return json.Marshal(v.text)
	}
}

func parseFinite(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseInt(s string) (int64, bool) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return i, err == nil
}
