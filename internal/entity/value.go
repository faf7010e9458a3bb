// Package entity defines the typed entity model: definitions, behavior
// sets, dynamic metadata values, and the asset entity built from them.
package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindReal
	KindBool
	KindJSON
)

// String returns the storage type name for the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindReal:
		return "real"
	case KindBool:
		return "boolean"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// KindOf maps a field type name to its Kind. Unknown names fall back
// to KindString.
func KindOf(fieldType string) Kind {
	switch fieldType {
	case "integer":
		return KindInt
	case "real":
		return KindReal
	case "boolean":
		return KindBool
	case "json":
		return KindJSON
	default:
		return KindString
	}
}

// Value is a tagged union for dynamic metadata. Exactly one variant is
// meaningful, selected by Kind.
type Value struct {
	kind Kind
	str  string
	num  int64
	real float64
	b    bool
	raw  json.RawMessage
}

// String wraps a string value.
func String(v string) Value { return Value{kind: KindString, str: v} }

// Int wraps an integer value.
func Int(v int64) Value { return Value{kind: KindInt, num: v} }

// Real wraps a floating point value.
func Real(v float64) Value { return Value{kind: KindReal, real: v} }

// Bool wraps a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// JSON wraps a raw JSON document.
func JSON(v json.RawMessage) Value { return Value{kind: KindJSON, raw: v} }

// FromAny converts a dynamically typed value into a Value. Integers of
// any width become KindInt, floats KindReal, and anything else is
// marshaled to JSON.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return String(""), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float32:
		return Real(float64(x)), nil
	case float64:
		return Real(x), nil
	case json.RawMessage:
		return JSON(x), nil
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return Value{}, fmt.Errorf("unsupported value type %T: %w", v, err)
		}
		return JSON(raw), nil
	}
}

// Kind returns the variant the value holds.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string variant.
func (v Value) Str() string { return v.str }

// Int returns the integer variant.
func (v Value) Int() int64 { return v.num }

// Real returns the float variant.
func (v Value) Real() float64 { return v.real }

// Bool returns the boolean variant.
func (v Value) Bool() bool { return v.b }

// Raw returns the JSON variant.
func (v Value) Raw() json.RawMessage { return v.raw }

// Text renders the value as a display string regardless of kind.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindReal:
		return strconv.FormatFloat(v.real, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindJSON:
		return string(v.raw)
	default:
		return ""
	}
}

// Coerce converts the value to the target kind where a lossless or
// conventional conversion exists. Booleans round-trip through integers
// because that is how they are stored.
func (v Value) Coerce(target Kind) (Value, error) {
	if v.kind == target {
		return v, nil
	}
	switch target {
	case KindString:
		return String(v.Text()), nil
	case KindInt:
		switch v.kind {
		case KindBool:
			if v.b {
				return Int(1), nil
			}
			return Int(0), nil
		case KindReal:
			return Int(int64(v.real)), nil
		case KindString:
			n, err := strconv.ParseInt(v.str, 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("cannot coerce %q to integer: %w", v.str, err)
			}
			return Int(n), nil
		}
	case KindReal:
		switch v.kind {
		case KindInt:
			return Real(float64(v.num)), nil
		case KindString:
			f, err := strconv.ParseFloat(v.str, 64)
			if err != nil {
				return Value{}, fmt.Errorf("cannot coerce %q to real: %w", v.str, err)
			}
			return Real(f), nil
		}
	case KindBool:
		switch v.kind {
		case KindInt:
			return Bool(v.num != 0), nil
		case KindString:
			b, err := strconv.ParseBool(v.str)
			if err != nil {
				return Value{}, fmt.Errorf("cannot coerce %q to boolean: %w", v.str, err)
			}
			return Bool(b), nil
		}
	case KindJSON:
		raw, err := json.Marshal(v.Text())
		if err != nil {
			return Value{}, err
		}
		return JSON(raw), nil
	}
	return Value{}, fmt.Errorf("cannot coerce %s to %s", v.kind, target)
}
