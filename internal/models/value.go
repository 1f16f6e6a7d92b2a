package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind identifies which variant a Value holds.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

// String returns the JSON type name of the kind.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "null"
	}
}

// Value is a loosely typed JSON value used for node, step and task
// configuration maps. Numbers keep their original decimal text.
type Value struct {
	kind ValueKind
	str  string
	num  json.Number
	b    bool
	obj  map[string]Value
	arr  []Value
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue returns a number Value from its decimal text.
func NumberValue(n json.Number) Value { return Value{kind: KindNumber, num: n} }

// IntValue returns a number Value.
func IntValue(i int64) Value { return NumberValue(json.Number(strconv.FormatInt(i, 10))) }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ObjectValue returns an object Value.
func ObjectValue(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }

// ArrayValue returns an array Value.
func ArrayValue(a []Value) Value { return Value{kind: KindArray, arr: a} }

// ValueOf converts a decoded JSON value (as produced by encoding/json, with or
// without UseNumber) into a Value.
func ValueOf(v interface{}) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Value{}, nil
	case string:
		return StringValue(t), nil
	case json.Number:
		return NumberValue(t), nil
	case float64:
		return NumberValue(json.Number(strconv.FormatFloat(t, 'f', -1, 64))), nil
	case int:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case bool:
		return BoolValue(t), nil
	case map[string]interface{}:
		m, err := ValueMapOf(t)
		if err != nil {
			return Value{}, err
		}
		return ObjectValue(m), nil
	case []interface{}:
		arr := make([]Value, 0, len(t))
		for i, item := range t {
			iv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			arr = append(arr, iv)
		}
		return ArrayValue(arr), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

// ValueMapOf converts a decoded JSON object into a map of Values.
func ValueMapOf(m map[string]interface{}) (map[string]Value, error) {
	out := make(map[string]Value, len(m))
	for k, item := range m {
		iv, err := ValueOf(item)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = iv
	}
	return out, nil
}

// Kind reports the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// Str returns the string variant and whether v holds one.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Number returns the number variant and whether v holds one.
func (v Value) Number() (json.Number, bool) { return v.num, v.kind == KindNumber }

// Bool returns the boolean variant and whether v holds one.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Object returns the object variant and whether v holds one.
func (v Value) Object() (map[string]Value, bool) { return v.obj, v.kind == KindObject }

// Array returns the array variant and whether v holds one.
func (v Value) Array() ([]Value, bool) { return v.arr, v.kind == KindArray }

// Interface converts v back into the plain Go representation used by encoding/json.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindObject:
		m := make(map[string]interface{}, len(v.obj))
		for k, item := range v.obj {
			m[k] = item.Interface()
		}
		return m
	case KindArray:
		a := make([]interface{}, len(v.arr))
		for i, item := range v.arr {
			a[i] = item.Interface()
		}
		return a
	default:
		return nil
	}
}

// String renders scalars as their plain text and containers as compact JSON,
// which is how configuration values are displayed.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num.String()
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindObject, KindArray:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return "null"
	}
}

// MarshalJSON implements json.Marshaler. Object keys are written in sorted order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if v.num == "" {
			return []byte("0"), nil
		}
		return []byte(v.num), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
