// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnsupportedValueType is returned when a datatype tag or kind has
	// no value handler. It is a configuration error.
	ErrUnsupportedValueType = errors.New("unsupported value type")

	// ErrMalformedValue is returned when a literal cannot be parsed as the
	// expected kind. It is a data error.
	ErrMalformedValue = errors.New("malformed value")

	// ErrKindMismatch is returned when two values of different kinds meet
	// in an operation that requires one kind.
	ErrKindMismatch = errors.New("value kind mismatch")
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindDouble
	KindInt
	KindBool
	KindString
	KindDuration
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindDouble:
		return "double"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindDuration:
		return "duration"
	default:
		return "invalid"
	}
}

// IsNumeric returns true for double and int.
func (k Kind) IsNumeric() bool {
	return k == KindDouble || k == KindInt
}

// ParseKind parses a kind name as produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "double":
		return KindDouble, nil
	case "int":
		return KindInt, nil
	case "bool":
		return KindBool, nil
	case "string":
		return KindString, nil
	case "duration":
		return KindDuration, nil
	}
	return KindInvalid, fmt.Errorf("%w: kind %q", ErrUnsupportedValueType, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k == KindInvalid {
		return nil, fmt.Errorf("%w: invalid kind", ErrUnsupportedValueType)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value is a typed scalar. The zero Value has KindInvalid.
//
// Value is comparable; two values are == when kind and payload match.
// Durations share the integer slot with ints, keyed apart by kind.
type Value struct {
	kind Kind
	f    float64
	i    int64
	b    bool
	s    string
}

// DoubleValue returns a double value.
func DoubleValue(f float64) Value { return Value{kind: KindDouble, f: f} }

// IntValue returns an int value.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// BoolValue returns a bool value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// StringValue returns a string value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// DurationValue returns a duration value.
func DurationValue(d time.Duration) Value { return Value{kind: KindDuration, i: int64(d)} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsValid returns false for the zero Value.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Float returns the double payload, or 0 for other kinds.
func (v Value) Float() float64 {
	if v.kind != KindDouble {
		return 0
	}
	return v.f
}

// Int returns the int payload, or 0 for other kinds.
func (v Value) Int() int64 {
	if v.kind != KindInt {
		return 0
	}
	return v.i
}

// Bool returns the bool payload, or false for other kinds.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Text returns the string payload, or "" for other kinds.
func (v Value) Text() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// Duration returns the duration payload, or 0 for other kinds.
func (v Value) Duration() time.Duration {
	if v.kind != KindDuration {
		return 0
	}
	return time.Duration(v.i)
}

// Numeric returns the value as float64 for double and int kinds.
func (v Value) Numeric() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// Equal reports whether two values have the same kind and payload.
//
// NaN doubles compare equal to each other so that a NaN reading does not
// make a cache key unstable.
func (v Value) Equal(o Value) bool {
	if v.kind == KindDouble && o.kind == KindDouble && math.IsNaN(v.f) && math.IsNaN(o.f) {
		return true
	}
	return v == o
}

// String renders the payload. Doubles use the shortest round-trip form.
func (v Value) String() string {
	switch v.kind {
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	case KindDuration:
		return time.Duration(v.i).String()
	default:
		return "<invalid>"
	}
}

type valueJSON struct {
	Type  Kind            `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value as {"type":"double","value":1.5}.
func (v Value) MarshalJSON() ([]byte, error) {
	raw, err := v.scalarJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Type: v.kind, Value: raw})
}

// UnmarshalJSON decodes the typed object form.
func (v *Value) UnmarshalJSON(b []byte) error {
	var wire valueJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}
	parsed, err := ScalarFromJSON(wire.Type, wire.Value)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) scalarJSON() (json.RawMessage, error) {
	switch v.kind {
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return json.Marshal(v.String())
		}
		return json.Marshal(v.f)
	case KindInt:
		return json.Marshal(v.i)
	case KindBool:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.s)
	case KindDuration:
		return json.Marshal(time.Duration(v.i).String())
	default:
		return nil, fmt.Errorf("%w: invalid value", ErrUnsupportedValueType)
	}
}

// ScalarFromJSON decodes a bare JSON scalar as the given kind. Numbers may
// also be given as strings; durations are Go duration strings.
func ScalarFromJSON(kind Kind, raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Value{}, fmt.Errorf("%w: missing %s value", ErrMalformedValue, kind)
	}
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
		}
	} else {
		text = string(raw)
	}
	switch kind {
	case KindDouble:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: double %q", ErrMalformedValue, text)
		}
		return DoubleValue(f), nil
	case KindInt:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: int %q", ErrMalformedValue, text)
		}
		return IntValue(i), nil
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, fmt.Errorf("%w: bool %q", ErrMalformedValue, text)
		}
		return BoolValue(b), nil
	case KindString:
		if raw[0] != '"' {
			return Value{}, fmt.Errorf("%w: string must be quoted", ErrMalformedValue)
		}
		return StringValue(text), nil
	case KindDuration:
		d, err := time.ParseDuration(text)
		if err != nil {
			return Value{}, fmt.Errorf("%w: duration %q", ErrMalformedValue, text)
		}
		return DurationValue(d), nil
	default:
		return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedValueType, kind)
	}
}
