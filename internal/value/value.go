// Package value implements the dynamically typed document model shared by
// the B+-tree index, the journal, and the snapshot codec.
package value

import "fmt"

// Kind identifies the concrete shape a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a tagged variant over the seven document shapes. The zero Value
// is null. Object, Array and Clone deep copy their input; a plain copy of
// a Value, and the results of Field and Index, share the underlying
// object/array storage, which no exported method mutates.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	obj  map[string]Value
	arr  []Value
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps a signed 64-bit integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps an IEEE-754 64-bit float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps an opaque byte sequence treated as UTF-8.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Object builds an object Value from a map, deep copying every entry.
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v.Clone()
	}
	return Value{kind: KindObject, obj: obj}
}

// EmptyObject returns a fresh, empty object Value.
func EmptyObject() Value {
	return Value{kind: KindObject, obj: make(map[string]Value)}
}

// Array builds an array Value from a slice, deep copying every element.
func Array(items []Value) Value {
	arr := make([]Value, len(items))
	for i, v := range items {
		arr[i] = v.Clone()
	}
	return Value{kind: KindArray, arr: arr}
}

// Kind reports which shape this Value holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsObject reports whether v is an object Value.
func (v Value) IsObject() bool { return v.kind == KindObject }

// IsArray reports whether v is an array Value.
func (v Value) IsArray() bool { return v.kind == KindArray }

// AsBool returns the boolean payload, or an error if v is not a bool.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("value: expected bool, got %s", v.kind)
	}
	return v.b, nil
}

// AsInt returns the integer payload, or an error if v is not an int.
func (v Value) AsInt() (int64, error) {
	if v.kind != KindInt {
		return 0, fmt.Errorf("value: expected int, got %s", v.kind)
	}
	return v.i, nil
}

// AsFloat returns the float payload, or an error if v is not a float.
func (v Value) AsFloat() (float64, error) {
	if v.kind != KindFloat {
		return 0, fmt.Errorf("value: expected float, got %s", v.kind)
	}
	return v.f, nil
}

// AsString returns the string payload, or an error if v is not a string.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("value: expected string, got %s", v.kind)
	}
	return v.s, nil
}

// Field returns the value stored at key within an object Value.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[key]
	return f, ok
}

// Keys returns the field names of an object Value in unspecified order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of fields/elements of an object/array Value.
func (v Value) Len() int {
	switch v.kind {
	case KindObject:
		return len(v.obj)
	case KindArray:
		return len(v.arr)
	default:
		return 0
	}
}

// Index returns the element at position i of an array Value.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Value{}, false
	}
	return v.arr[i], true
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindObject:
		obj := make(map[string]Value, len(v.obj))
		for k, f := range v.obj {
			obj[k] = f.Clone()
		}
		return Value{kind: KindObject, obj: obj}
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i, e := range v.arr {
			arr[i] = e.Clone()
		}
		return Value{kind: KindArray, arr: arr}
	default:
		return v
	}
}

// Equal reports structural equality between two Values.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
