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
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrUnknownProperty is returned when an edit names a property or
// parameter that is not in the cache.
var ErrUnknownProperty = errors.New("unknown property")

// PropertyCache is an immutable snapshot of the twin's observable
// properties and configurable parameters.
//
// Thread Safety: Safe for concurrent reads. There are no mutators; use
// Edit to derive a new snapshot.
type PropertyCache struct {
	properties map[string]Property
	parameters map[string]ConfigurableParameter
}

// NewPropertyCache builds a snapshot. Later entries with the same name win.
func NewPropertyCache(props []Property, params []ConfigurableParameter) *PropertyCache {
	c := &PropertyCache{
		properties: make(map[string]Property, len(props)),
		parameters: make(map[string]ConfigurableParameter, len(params)),
	}
	for _, p := range props {
		c.properties[p.Name] = p
	}
	for _, p := range params {
		c.parameters[p.Name] = p
	}
	return c
}

// Property returns an observable property by name.
func (c *PropertyCache) Property(name string) (Property, bool) {
	if c == nil {
		return Property{}, false
	}
	p, ok := c.properties[name]
	return p, ok
}

// Parameter returns a configurable parameter by name.
func (c *PropertyCache) Parameter(name string) (ConfigurableParameter, bool) {
	if c == nil {
		return ConfigurableParameter{}, false
	}
	p, ok := c.parameters[name]
	return p, ok
}

// Lookup returns the named entry from either map, properties first.
func (c *PropertyCache) Lookup(name string) (Property, bool) {
	if p, ok := c.Property(name); ok {
		return p, true
	}
	if p, ok := c.Parameter(name); ok {
		return p.Property, true
	}
	return Property{}, false
}

// Properties returns all observable properties sorted by name.
func (c *PropertyCache) Properties() []Property {
	if c == nil {
		return nil
	}
	out := make([]Property, 0, len(c.properties))
	for _, name := range slices.Sorted(maps.Keys(c.properties)) {
		out = append(out, c.properties[name])
	}
	return out
}

// Parameters returns all configurable parameters sorted by name.
func (c *PropertyCache) Parameters() []ConfigurableParameter {
	if c == nil {
		return nil
	}
	out := make([]ConfigurableParameter, 0, len(c.parameters))
	for _, name := range slices.Sorted(maps.Keys(c.parameters)) {
		out = append(out, c.parameters[name])
	}
	return out
}

// Names returns every property and parameter name, sorted.
func (c *PropertyCache) Names() []string {
	if c == nil {
		return nil
	}
	names := slices.AppendSeq(make([]string, 0, c.Len()), maps.Keys(c.properties))
	names = slices.AppendSeq(names, maps.Keys(c.parameters))
	slices.Sort(names)
	return names
}

// Len returns the total number of entries.
func (c *PropertyCache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.properties) + len(c.parameters)
}

// Equal reports whether two snapshots hold the same entries.
func (c *PropertyCache) Equal(o *PropertyCache) bool {
	if c.Len() != o.Len() {
		return false
	}
	for name, p := range c.properties {
		q, ok := o.properties[name]
		if !ok || q.OwlType != p.OwlType || !q.Value.Equal(p.Value) {
			return false
		}
	}
	for name, p := range c.parameters {
		q, ok := o.parameters[name]
		if !ok || q.OwlType != p.OwlType || !q.Value.Equal(p.Value) ||
			q.LowerLimit != p.LowerLimit || q.UpperLimit != p.UpperLimit ||
			q.ValueIncrements != p.ValueIncrements {
			return false
		}
	}
	return true
}

// String renders name=value pairs sorted by name, for logs.
func (c *PropertyCache) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, p := range c.Properties() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%s", p.Name, p.Value)
	}
	for _, p := range c.Parameters() {
		if sb.Len() > 1 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%s", p.Name, p.Value)
	}
	sb.WriteByte('}')
	return sb.String()
}

// Edit returns a builder over a copy of this snapshot.
func (c *PropertyCache) Edit() *CacheBuilder {
	b := &CacheBuilder{
		next: &PropertyCache{
			properties: map[string]Property{},
			parameters: map[string]ConfigurableParameter{},
		},
	}
	if c != nil {
		maps.Copy(b.next.properties, c.properties)
		maps.Copy(b.next.parameters, c.parameters)
	}
	return b
}

type cacheJSON struct {
	Properties []Property              `json:"properties"`
	Parameters []ConfigurableParameter `json:"parameters"`
}

// MarshalJSON encodes both maps as name-sorted arrays.
func (c *PropertyCache) MarshalJSON() ([]byte, error) {
	return json.Marshal(cacheJSON{Properties: c.Properties(), Parameters: c.Parameters()})
}

// UnmarshalJSON decodes the array form produced by MarshalJSON.
func (c *PropertyCache) UnmarshalJSON(b []byte) error {
	var wire cacheJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*c = *NewPropertyCache(wire.Properties, wire.Parameters)
	return nil
}

// CacheBuilder accumulates edits for a new PropertyCache. The first error
// sticks and is returned by Build.
//
// Thread Safety: Not safe for concurrent use.
type CacheBuilder struct {
	next *PropertyCache
	err  error
}

// SetProperty inserts or replaces an observable property.
func (b *CacheBuilder) SetProperty(p Property) *CacheBuilder {
	if b.err == nil {
		b.next.properties[p.Name] = p
	}
	return b
}

// SetParameter inserts or replaces a configurable parameter.
func (b *CacheBuilder) SetParameter(p ConfigurableParameter) *CacheBuilder {
	if b.err == nil {
		b.next.parameters[p.Name] = p
	}
	return b
}

// SetValue replaces the value of an existing entry, property or parameter.
// The new value must have the entry's kind.
func (b *CacheBuilder) SetValue(name string, v Value) *CacheBuilder {
	if b.err != nil {
		return b
	}
	if p, ok := b.next.properties[name]; ok {
		if p.Value.Kind() != v.Kind() {
			b.err = fmt.Errorf("%w: %s is %s, got %s", ErrKindMismatch, name, p.Value.Kind(), v.Kind())
			return b
		}
		b.next.properties[name] = p.WithValue(v)
		return b
	}
	if p, ok := b.next.parameters[name]; ok {
		if p.Value.Kind() != v.Kind() {
			b.err = fmt.Errorf("%w: %s is %s, got %s", ErrKindMismatch, name, p.Value.Kind(), v.Kind())
			return b
		}
		b.next.parameters[name] = p.WithValue(v)
		return b
	}
	b.err = fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	return b
}

// Build publishes the edited snapshot. The builder must not be reused.
func (b *CacheBuilder) Build() (*PropertyCache, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := b.next
	b.next = nil
	return out, nil
}
