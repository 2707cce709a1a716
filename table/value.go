package table

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/exp/constraints"
)

// Kind is the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a JSON-native attribute value: null, string, number, bool,
// nested map or list. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	m    map[string]Value
	l    []Value
}

// Null is the zero Value.
func Null() Value { return Value{} }

// String builds a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number builds a number Value. Numbers are held as float64.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool builds a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int builds a number Value from any integer type.
func Int[T constraints.Integer](v T) Value { return Value{kind: KindNumber, num: float64(v)} }

// Float builds a number Value from any float type.
func Float[T constraints.Float](v T) Value { return Value{kind: KindNumber, num: float64(v)} }

// Map builds a map Value. A nil map is stored as an empty map.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

// List builds a list Value. No items gives an empty list, not null.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, l: items}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

func (v Value) AsList() ([]Value, bool) { return v.l, v.kind == KindList }

// Interface returns the native Go representation: nil, string, float64,
// bool, map[string]any or []any.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	case KindList:
		out := make([]any, len(v.l))
		for i, item := range v.l {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// String renders the value the way it reads in a key column: strings
// verbatim, numbers without exponent, null as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNull:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%s>", v.kind)
		}
		return string(b)
	}
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, item := range v.m {
			other, ok := o.m[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	case KindList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	switch v.kind {
	case KindMap:
		m := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			m[k] = item.Clone()
		}
		return Value{kind: KindMap, m: m}
	case KindList:
		l := make([]Value, len(v.l))
		for i, item := range v.l {
			l[i] = item.Clone()
		}
		return Value{kind: KindList, l: l}
	default:
		return v
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("marshal value: unsupported number %v", v.num)
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		return json.Marshal(v.m)
	case KindList:
		return json.Marshal(v.l)
	default:
		return nil, fmt.Errorf("marshal value: unknown kind %d", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a native Go value into a Value. Supported inputs are
// nil, Value, strings, bools, every integer and float type, json.Number,
// fmt.Stringer, and maps with string keys or slices of any of these.
// Pointers are dereferenced; a nil pointer becomes null.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case int:
		return Int(t), nil
	case int64:
		return Int(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("value of json number %q: %w", t, err)
		}
		return Number(f), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			val, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("value of map entry %q: %w", k, err)
			}
			m[k] = val
		}
		return Map(m), nil
	case map[string]Value:
		return Map(t), nil
	case []any:
		l := make([]Value, len(t))
		for i, item := range t {
			val, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("value of list index %d: %w", i, err)
			}
			l[i] = val
		}
		return List(l...), nil
	}
	return valueOfReflect(reflect.ValueOf(x))
}

// MustValueOf is ValueOf that panics on unsupported input. Meant for
// literals in tests and fixtures.
func MustValueOf(x any) Value {
	v, err := ValueOf(x)
	if err != nil {
		panic(err)
	}
	return v
}

func valueOfReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Int(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("value of %s: map keys must be strings", rv.Type())
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			val, err := ValueOf(iter.Value().Interface())
			if err != nil {
				return Value{}, err
			}
			m[iter.Key().String()] = val
		}
		return Map(m), nil
	case reflect.Slice, reflect.Array:
		l := make([]Value, rv.Len())
		for i := range l {
			val, err := ValueOf(rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			l[i] = val
		}
		return List(l...), nil
	}
	if s, ok := rv.Interface().(fmt.Stringer); ok {
		return String(s.String()), nil
	}
	return Value{}, fmt.Errorf("value of %s: unsupported type", rv.Type())
}

// Attributes holds the curated attribute values of a row.
type Attributes map[string]Value

// AttributesOf converts a plain map into Attributes.
func AttributesOf(m map[string]any) (Attributes, error) {
	out := make(Attributes, len(m))
	for k, item := range m {
		val, err := ValueOf(item)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// Clone returns a deep copy. Cloning nil yields an empty, non-nil map.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v.Clone()
	}
	return out
}

// Names returns the attribute names in ascending order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Native returns the attributes as plain Go values.
func (a Attributes) Native() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v.Interface()
	}
	return out
}

// ParseScalar interprets command-line style text: true/false, numbers,
// null, everything else as a string.
func ParseScalar(s string) Value {
	switch strings.TrimSpace(s) {
	case "null":
		return Null()
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return Number(f)
	}
	return String(s)
}
