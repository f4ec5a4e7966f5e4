package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
)

// Kind identifies the scalar type held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

// Value is a scalar template variable: a string, integer, float or bool.
// The zero Value is invalid and renders as an empty string.
type Value struct {
	s    string
	i    int64
	f    float64
	kind Kind
	b    bool
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// ValueOf converts a Go scalar into a Value.
// Nested objects, slices and nil are rejected with ErrInvalidVariable.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(int64(val)), nil
	case int8:
		return Int(int64(val)), nil
	case int16:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(int64(val)), nil
	case uint16:
		return Int(int64(val)), nil
	case uint32:
		return Int(int64(val)), nil
	case uint:
		return unsignedValue(uint64(val))
	case uint64:
		return unsignedValue(val)
	case float32:
		return Float(float64(val)), nil
	case float64:
		return Float(val), nil
	case json.Number:
		return numberValue(val)
	case fmt.Stringer:
		return String(val.String()), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidVariable, v)
	}
}

func unsignedValue(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("%w: %d overflows int64", ErrInvalidVariable, u)
	}
	return Int(int64(u)), nil
}

// Kind reports the scalar type of v.
func (v Value) Kind() Kind { return v.kind }

// String formats the value for substitution into a template.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Any returns the underlying Go value.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// MarshalJSON encodes the value as a plain JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInvalid {
		return nil, fmt.Errorf("%w: zero value", ErrInvalidVariable)
	}
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes a JSON scalar. Integral numbers become KindInt.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func numberValue(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidVariable, err)
	}
	return Float(f), nil
}

// Vars is the variable set merged into a template render context.
type Vars map[string]Value

// VarsFromMap converts loosely typed input into Vars.
func VarsFromMap(m map[string]any) (Vars, error) {
	out := make(Vars, len(m))
	for k, raw := range m {
		val, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, k)
		}
		out[k] = val
	}
	return out, nil
}

// Merge returns a new Vars holding v overlaid with override.
// Keys present in override win.
func (v Vars) Merge(override Vars) Vars {
	out := make(Vars, len(v)+len(override))
	maps.Copy(out, v)
	maps.Copy(out, override)
	return out
}

// Lookup returns the string form of the named variable.
func (v Vars) Lookup(name string) (string, bool) {
	val, ok := v[name]
	if !ok {
		return "", false
	}
	return val.String(), true
}
