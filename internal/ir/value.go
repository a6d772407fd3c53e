package ir

import (
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the constrained value types.
// Only Null, String, Int, Bool, Array, and Object implement it.
// There is no float type: floats are forbidden in the IR because
// their serialization is not stable across platforms.
type Value interface {
	irValue()
}

// Null represents a JSON null. It exists so that data read back from
// older stores can round-trip; new records never contain it.
type Null struct{}

func (Null) irValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// String is a string value.
type String string

func (String) irValue() {}

// Int is an integer value. Always int64, never float64.
type Int int64

func (Int) irValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) irValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) irValue() {}

// Object maps string keys to values. Use SortedKeys for deterministic
// iteration.
type Object map[string]Value

func (Object) irValue() {}

// Str returns the string held by key, or "" if absent or not a string.
func (o Object) Str(key string) string {
	if s, ok := o[key].(String); ok {
		return string(s)
	}
	return ""
}

// Num returns the integer held by key, or 0 if absent or not an int.
func (o Object) Num(key string) int64 {
	if n, ok := o[key].(Int); ok {
		return int64(n)
	}
	return 0
}

// Flag returns the boolean held by key, or false if absent or not a bool.
func (o Object) Flag(key string) bool {
	if b, ok := o[key].(Bool); ok {
		return bool(b)
	}
	return false
}

// SortedKeys returns keys in RFC 8785 canonical order, which sorts by
// UTF-16 code units. Go's sort.Strings compares UTF-8 bytes and can
// produce a different order for strings outside the BMP.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 compares two strings by UTF-16 code units as RFC 8785
// requires. utf16.Encode handles surrogate pairs correctly.
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

// FromGo converts plain Go values (as produced by json.Unmarshal into
// any, or built by hand) into IR values. Floats and nils are rejected.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in IR values")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case bool:
		return Bool(val), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are forbidden in IR values: %v", val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			iv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = iv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			iv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = iv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported IR value type: %T", v)
	}
}

// ObjectFromGo converts a map of plain Go values into an Object.
func ObjectFromGo(m map[string]any) (Object, error) {
	obj := make(Object, len(m))
	for k, v := range m {
		iv, err := FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		obj[k] = iv
	}
	return obj, nil
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (o *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = make(Object, len(raw))
	for k, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*o)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (a *Array) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = make(Array, len(raw))
	for i, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("array index %d: %w", i, err)
		}
		(*a)[i] = val
	}
	return nil
}

// unmarshalValue decodes a raw JSON value into the matching IR type.
// JSON numbers with a fractional part or exponent are rejected;
// null round-trips as Null so stored records can be read back.
func unmarshalValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		return Null{}, nil

	case '[':
		var arr Array
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil

	case '{':
		var obj Object
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil

	default:
		// Must be a number. Only integers are representable.
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("non-integer number %q is forbidden in IR values", data)
		}
		return Int(n), nil
	}
}
