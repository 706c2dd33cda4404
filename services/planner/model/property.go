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
	"encoding/json"
	"fmt"
)

// Property is a named observable value of the twin.
//
// OwlType is the datatype tag the value was declared with; Kind is derived
// from it. Value.Kind must agree with KindFromOwlType(OwlType).
type Property struct {
	Name    string
	OwlType string
	Value   Value
}

// NewProperty builds a Property whose OwlType is the canonical tag for the
// value's kind.
func NewProperty(name string, v Value) Property {
	return Property{Name: name, OwlType: OwlType(v.Kind()), Value: v}
}

// Kind resolves the property's declared datatype.
func (p Property) Kind() (Kind, error) {
	return KindFromOwlType(p.OwlType)
}

// WithValue returns a copy of p holding v.
func (p Property) WithValue(v Value) Property {
	p.Value = v
	return p
}

type propertyJSON struct {
	Name    string          `json:"name"`
	OwlType string          `json:"owlType"`
	Value   json.RawMessage `json:"value"`
}

// MarshalJSON writes the value as a bare scalar next to its datatype tag.
func (p Property) MarshalJSON() ([]byte, error) {
	raw, err := p.Value.scalarJSON()
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", p.Name, err)
	}
	return json.Marshal(propertyJSON{Name: p.Name, OwlType: p.OwlType, Value: raw})
}

// UnmarshalJSON parses the scalar according to owlType.
func (p *Property) UnmarshalJSON(b []byte) error {
	var wire propertyJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}
	kind, err := KindFromOwlType(wire.OwlType)
	if err != nil {
		return fmt.Errorf("property %s: %w", wire.Name, err)
	}
	v, err := ScalarFromJSON(kind, wire.Value)
	if err != nil {
		return fmt.Errorf("property %s: %w", wire.Name, err)
	}
	*p = Property{Name: wire.Name, OwlType: wire.OwlType, Value: v}
	return nil
}

// ConfigurableParameter is a Property the planner may reconfigure within
// [LowerLimit, UpperLimit]. ValueIncrements is the step used when no range
// granularity is requested. All three bounds share the property's kind.
type ConfigurableParameter struct {
	Property
	LowerLimit      Value
	UpperLimit      Value
	ValueIncrements Value
}

// WithValue returns a copy of the parameter holding v.
func (p ConfigurableParameter) WithValue(v Value) ConfigurableParameter {
	p.Value = v
	return p
}

type parameterJSON struct {
	propertyJSON
	LowerLimit      json.RawMessage `json:"lowerLimit"`
	UpperLimit      json.RawMessage `json:"upperLimit"`
	ValueIncrements json.RawMessage `json:"valueIncrements,omitempty"`
}

// MarshalJSON flattens the embedded property next to the limits.
func (p ConfigurableParameter) MarshalJSON() ([]byte, error) {
	var wire parameterJSON
	var err error
	wire.Name, wire.OwlType = p.Name, p.OwlType
	if wire.Value, err = p.Value.scalarJSON(); err != nil {
		return nil, fmt.Errorf("parameter %s value: %w", p.Name, err)
	}
	if wire.LowerLimit, err = p.LowerLimit.scalarJSON(); err != nil {
		return nil, fmt.Errorf("parameter %s lowerLimit: %w", p.Name, err)
	}
	if wire.UpperLimit, err = p.UpperLimit.scalarJSON(); err != nil {
		return nil, fmt.Errorf("parameter %s upperLimit: %w", p.Name, err)
	}
	if p.ValueIncrements.IsValid() {
		if wire.ValueIncrements, err = p.ValueIncrements.scalarJSON(); err != nil {
			return nil, fmt.Errorf("parameter %s valueIncrements: %w", p.Name, err)
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON parses value and limits according to owlType.
func (p *ConfigurableParameter) UnmarshalJSON(b []byte) error {
	var wire parameterJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}
	kind, err := KindFromOwlType(wire.OwlType)
	if err != nil {
		return fmt.Errorf("parameter %s: %w", wire.Name, err)
	}
	out := ConfigurableParameter{Property: Property{Name: wire.Name, OwlType: wire.OwlType}}
	if out.Value, err = ScalarFromJSON(kind, wire.Value); err != nil {
		return fmt.Errorf("parameter %s value: %w", wire.Name, err)
	}
	if out.LowerLimit, err = ScalarFromJSON(kind, wire.LowerLimit); err != nil {
		return fmt.Errorf("parameter %s lowerLimit: %w", wire.Name, err)
	}
	if out.UpperLimit, err = ScalarFromJSON(kind, wire.UpperLimit); err != nil {
		return fmt.Errorf("parameter %s upperLimit: %w", wire.Name, err)
	}
	if len(wire.ValueIncrements) > 0 {
		if out.ValueIncrements, err = ScalarFromJSON(kind, wire.ValueIncrements); err != nil {
			return fmt.Errorf("parameter %s valueIncrements: %w", wire.Name, err)
		}
	}
	*p = out
	return nil
}
