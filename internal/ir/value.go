package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface over the argument types a routine step may
// carry. Only String, Int, Number, Bool, List and Object implement it. There
// is no null.
type Value interface {
	irValue()
}

// String is a string argument.
type String string

func (String) irValue() {}

// Int is an integral argument.
type Int int64

func (Int) irValue() {}

// Number is a non-integral argument such as an angle or a distance. It must
// be finite.
type Number float64

func (Number) irValue() {}

// Bool is a boolean argument.
type Bool bool

func (Bool) irValue() {}

// List is an ordered list of values.
type List []Value

func (List) irValue() {}

// Object maps keys to values. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) irValue() {}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's native string order compares UTF-8 bytes, which differs for
// characters outside the BMP.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}

// Float returns the numeric argument at key. Int values are widened.
func (o Object) Float(key string) (float64, bool) {
	switch v := o[key].(type) {
	case Number:
		return float64(v), true
	case Int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int returns the integral argument at key.
func (o Object) Int(key string) (int64, bool) {
	v, ok := o[key].(Int)
	return int64(v), ok
}

// Text returns the string argument at key.
func (o Object) Text(key string) (string, bool) {
	v, ok := o[key].(String)
	return string(v), ok
}

// Flag returns the boolean argument at key.
func (o Object) Flag(key string) (bool, bool) {
	v, ok := o[key].(Bool)
	return bool(v), ok
}

// FromGo converts decoded data (as produced by encoding/json, yaml.v3 or a
// CUE Decode into any) into a Value. nil is rejected, as are non-finite
// floats. Floats with an integral value become Int.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid argument")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of range: %d", val)
		}
		return Int(val), nil
	case float64:
		return fromFloat(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := strconv.ParseFloat(string(val), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", val, err)
		}
		return fromFloat(f)
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			ev, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(val))
		for k, elem := range val {
			ev, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported argument type: %T", v)
	}
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number: %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return Int(int64(f)), nil
	}
	return Number(f), nil
}

// ObjectFromGo converts a decoded map into an Object.
func ObjectFromGo(m map[string]any) (Object, error) {
	if m == nil {
		return nil, nil
	}
	v, err := FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(Object), nil
}

// ToGo converts v back to plain Go data, for encoding/json and templates.
func ToGo(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON writes the object in canonical form.
func (o Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(o)
}
