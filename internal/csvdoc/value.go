// Package csvdoc renders tabular records into comma-separated documents.
package csvdoc

import (
	"strconv"
)

// Kind identifies which scalar a Value holds.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

// Value is a single scalar cell: a string, an integer, a float or a boolean.
// The zero Value is the empty string.
type Value struct {
	kind Kind
	str  string
	num  int64
	flt  float64
	bln  bool
}

// Row maps a column label to its value.
type Row map[string]Value

// String creates a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Int creates an integer value.
func Int(n int64) Value {
	return Value{kind: KindInt, num: n}
}

// Float creates a floating point value.
func Float(f float64) Value {
	return Value{kind: KindFloat, flt: f}
}

// Bool creates a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, bln: b}
}

// Kind returns the scalar kind of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// IsEmpty reports whether the value renders as an empty field.
func (v Value) IsEmpty() bool {
	return v.kind == KindString && v.str == ""
}

// String returns the textual form of the value.
// Numbers use the shortest decimal representation, booleans render as "true"/"false".
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.bln)
	default:
		return v.str
	}
}

// Strings converts plain strings into values, e.g. for header lines.
func Strings(values []string) []Value {
	out := make([]Value, len(values))
	for i, s := range values {
		out[i] = String(s)
	}
	return out
}
