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
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEffect is returned by ParseEffect.
var ErrUnknownEffect = errors.New("unknown effect")

// Effect is the direction a reconfiguration pushes a parameter.
type Effect uint8

const (
	EffectNone Effect = iota
	ValueIncrease
	ValueDecrease
)

// String returns "none", "increase" or "decrease".
func (e Effect) String() string {
	switch e {
	case ValueIncrease:
		return "increase"
	case ValueDecrease:
		return "decrease"
	default:
		return "none"
	}
}

// Sign returns +1 for increase, -1 for decrease and 0 otherwise.
func (e Effect) Sign() int {
	switch e {
	case ValueIncrease:
		return 1
	case ValueDecrease:
		return -1
	default:
		return 0
	}
}

// Opposite swaps increase and decrease.
func (e Effect) Opposite() Effect {
	switch e {
	case ValueIncrease:
		return ValueDecrease
	case ValueDecrease:
		return ValueIncrease
	default:
		return EffectNone
	}
}

// ParseEffect accepts "increase", "value_increase", "ValueIncrease" and the
// decrease forms, case-insensitively. The empty string is EffectNone.
func ParseEffect(s string) (Effect, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	switch norm {
	case "", "none":
		return EffectNone, nil
	case "increase", "valueincrease", "up":
		return ValueIncrease, nil
	case "decrease", "valuedecrease", "down":
		return ValueDecrease, nil
	}
	return EffectNone, fmt.Errorf("%w: %q", ErrUnknownEffect, s)
}

// MarshalText implements encoding.TextMarshaler.
func (e Effect) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Effect) UnmarshalText(b []byte) error {
	parsed, err := ParseEffect(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ActionKind selects the Action variant.
type ActionKind uint8

const (
	// Actuation drives an actuator to a discrete state.
	Actuation ActionKind = iota + 1
	// Reconfiguration sets a configurable parameter to a new value.
	Reconfiguration
)

func (k ActionKind) String() string {
	switch k {
	case Actuation:
		return "actuation"
	case Reconfiguration:
		return "reconfiguration"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ActionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ActionKind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "actuation":
		*k = Actuation
	case "reconfiguration":
		*k = Reconfiguration
	default:
		return fmt.Errorf("unknown action kind %q", string(b))
	}
	return nil
}

// Action is a candidate action: an actuation or a reconfiguration.
//
// Target names the actuator (actuation) or the configurable parameter
// (reconfiguration). Value is the new state or new parameter value.
// Effect is only meaningful for reconfiguration and drives candidate
// enumeration.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Name   string     `json:"name"`
	Target string     `json:"target"`
	Value  Value      `json:"value"`
	Effect Effect     `json:"effect,omitempty"`
}

// NewActuation returns an actuation action.
func NewActuation(name, actuator string, state Value) Action {
	return Action{Kind: Actuation, Name: name, Target: actuator, Value: state}
}

// NewReconfiguration returns a reconfiguration action.
func NewReconfiguration(name, parameter string, v Value, effect Effect) Action {
	return Action{Kind: Reconfiguration, Name: name, Target: parameter, Value: v, Effect: effect}
}

// WithValue returns a copy of a holding v.
func (a Action) WithValue(v Value) Action {
	a.Value = v
	return a
}

// Equal compares kind, target and value.
func (a Action) Equal(o Action) bool {
	return a.Kind == o.Kind && a.Target == o.Target && a.Value.Equal(o.Value)
}

// Key is a stable identity string consistent with Equal.
func (a Action) Key() string {
	return fmt.Sprintf("%s:%s=%s:%s", a.Kind, a.Target, a.Value.Kind(), a.Value)
}

func (a Action) String() string {
	if a.Name != "" {
		return fmt.Sprintf("%s(%s=%s)", a.Name, a.Target, a.Value)
	}
	return fmt.Sprintf("%s(%s=%s)", a.Kind, a.Target, a.Value)
}

// ActionKeys joins the keys of a tuple of actions, in order.
func ActionKeys(actions []Action) string {
	keys := make([]string, len(actions))
	for i, a := range actions {
		keys[i] = a.Key()
	}
	return strings.Join(keys, ";")
}
