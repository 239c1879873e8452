// Package jsonvalue provides a tagged-union representation of decoded JSON
// that keeps object key order, plus the helpers used to dig structured
// payloads out of loosely typed chatbot output.
package jsonvalue

import (
	"encoding/json"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable JSON value. The zero Value is JSON null.
type Value struct {
	kind Kind
	b    bool
	n    json.Number
	s    string
	arr  []Value
	obj  *object
}

// object keeps insertion order so field iteration matches the source text.
type object struct {
	keys   []string
	fields map[string]Value
}

// Member is one key/value pair used to build objects.
type Member struct {
	Key   string
	Value Value
}

func NullValue() Value           { return Value{} }
func BoolValue(b bool) Value     { return Value{kind: Bool, b: b} }
func StringValue(s string) Value { return Value{kind: String, s: s} }

func NumberValue(n json.Number) Value { return Value{kind: Number, n: n} }

func IntValue(i int64) Value {
	return Value{kind: Number, n: json.Number(strconv.FormatInt(i, 10))}
}

func ArrayValue(items ...Value) Value {
	return Value{kind: Array, arr: append([]Value(nil), items...)}
}

// ObjectValue builds an object. A repeated key keeps its first position and
// its last value, as JSON.parse does.
func ObjectValue(members ...Member) Value {
	o := &object{fields: make(map[string]Value, len(members))}
	for _, m := range members {
		o.set(m.Key, m.Value)
	}
	return Value{kind: Object, obj: o}
}

func (o *object) set(key string, v Value) {
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == Null }
func (v Value) IsString() bool { return v.kind == String }
func (v Value) IsArray() bool  { return v.kind == Array }
func (v Value) IsObject() bool { return v.kind == Object }
func (v Value) IsNumber() bool { return v.kind == Number }
func (v Value) IsBool() bool   { return v.kind == Bool }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// NonEmptyString reports whether v is a string with at least one character.
func (v Value) NonEmptyString() bool {
	return v.kind == String && v.s != ""
}

// Items returns the elements of an array, or nil.
func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	return v.arr
}

// Len is the element count for arrays and the field count for objects.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.obj.keys)
	}
	return 0
}

// Keys returns object keys in source order.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	return v.obj.keys
}

// Get returns the field stored under key. Non-objects have no fields.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	f, ok := v.obj.fields[key]
	return f, ok
}

// Field is Get without the presence flag; missing fields read as null.
func (v Value) Field(key string) Value {
	f, _ := v.Get(key)
	return f
}

// Truthy follows JavaScript truthiness: null, false, 0, NaN and "" are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case Null:
		return false
	case Bool:
		return v.b
	case Number:
		f, err := v.n.Float64()
		return err == nil && f != 0
	case String:
		return v.s != ""
	default:
		return true
	}
}

// Equal compares two values structurally. Object key order is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == o.b
	case Number:
		if v.n == o.n {
			return true
		}
		a, errA := v.n.Float64()
		b, errB := o.n.Float64()
		return errA == nil && errB == nil && a == b
	case String:
		return v.s == o.s
	case Array:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(v.obj.keys) != len(o.obj.keys) {
			return false
		}
		for k, fv := range v.obj.fields {
			ov, ok := o.obj.fields[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}
