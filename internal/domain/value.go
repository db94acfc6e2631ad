package domain

import (
	"fmt"
	"slices"
	"strconv"
)

// ValueKind identifies the type held by a Value.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindVector ValueKind = "vector"
)

// Value is one typed cell of a stored tuple.
type Value struct {
	Kind   ValueKind `json:"k"`
	Str    string    `json:"s,omitempty"`
	Int    int64     `json:"i,omitempty"`
	Float  float64   `json:"f,omitempty"`
	Vector []float32 `json:"v,omitempty"`
}

func StringValue(s string) Value    { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value        { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value    { return Value{Kind: KindFloat, Float: f} }
func VectorValue(v []float32) Value { return Value{Kind: KindVector, Vector: slices.Clone(v)} }

// ValueOf converts a plain Go value into a Value.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case string:
		return StringValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case float32:
		return FloatValue(float64(x)), nil
	case float64:
		return FloatValue(x), nil
	case []float32:
		return VectorValue(x), nil
	case []float64:
		out := make([]float32, len(x))
		for i, f := range x {
			out[i] = float32(f)
		}
		return Value{Kind: KindVector, Vector: out}, nil
	default:
		return Value{}, fmt.Errorf("unsupported tuple value type %T", v)
	}
}

// Row maps column names to values.
type Row map[string]Value

func (r Row) String(col string) (string, bool) {
	v, ok := r[col]
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

func (r Row) Vector(col string) ([]float32, bool) {
	v, ok := r[col]
	if !ok || v.Kind != KindVector {
		return nil, false
	}
	return v.Vector, true
}

func (r Row) Int(col string) (int64, bool) {
	v, ok := r[col]
	if !ok || v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}

// Matches compares a cell with a textual value; numeric cells match their decimal form.
func (r Row) Matches(col, value string) bool {
	v, ok := r[col]
	if !ok {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == value
	case KindInt:
		return strconv.FormatInt(v.Int, 10) == value
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64) == value
	}
	return false
}

// Tuple is an ordered set of values bound to field names.
type Tuple struct {
	Fields []string
	Values []Value
}

// Row converts the tuple into a column map.
func (t Tuple) Row() Row {
	row := make(Row, len(t.Fields))
	for i, f := range t.Fields {
		if i < len(t.Values) {
			row[f] = t.Values[i]
		}
	}
	return row
}

// NewTuple binds values to field names. The counts must match.
func NewTuple(fields []string, values ...any) (Tuple, error) {
	if len(fields) == 0 {
		return Tuple{}, &ConfigurationError{Field: "fields", Reason: "field names not set"}
	}
	if len(fields) != len(values) {
		return Tuple{}, &ConfigurationError{
			Field:  "values",
			Reason: fmt.Sprintf("expected %d values, got %d", len(fields), len(values)),
		}
	}
	t := Tuple{Fields: slices.Clone(fields), Values: make([]Value, len(values))}
	for i, v := range values {
		val, err := ValueOf(v)
		if err != nil {
			return Tuple{}, &ConfigurationError{Field: fields[i], Reason: err.Error()}
		}
		t.Values[i] = val
	}
	return t, nil
}
