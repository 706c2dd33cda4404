// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package casebase

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/valuehandler"
)

// QuantizedProperty is a property snapped onto the quantization grid.
type QuantizedProperty struct {
	Name    string      `json:"name"`
	OwlType string      `json:"owlType,omitempty"`
	Value   model.Value `json:"value"`
}

// QuantizedCondition is an optimal condition reduced to its canonical
// constraint strings. Literals are kept as written.
type QuantizedCondition struct {
	Name        string   `json:"name"`
	Property    string   `json:"property"`
	Constraints []string `json:"constraints"`
}

// Quantizer maps snapshots onto case keys.
//
// Widths sets the grid width per kind; kinds without an entry keep their
// exact value. Kinds whose handler cannot quantize, such as durations, also
// keep their exact value.
type Quantizer struct {
	Widths map[model.Kind]float64
}

// DefaultQuantizer buckets doubles to half units and leaves everything else
// exact.
func DefaultQuantizer() Quantizer {
	return Quantizer{Widths: map[model.Kind]float64{model.KindDouble: 0.5}}
}

// Value quantizes one value.
func (q Quantizer) Value(v model.Value) model.Value {
	width, ok := q.Widths[v.Kind()]
	if !ok || width <= 0 {
		return v
	}
	h, err := valuehandler.For(v.Kind())
	if err != nil {
		return v
	}
	out, err := h.Quantize(v, width)
	if err != nil {
		return v
	}
	return out
}

// Properties quantizes every property and parameter of cache, sorted by
// name. Parameters shadowed by a property of the same name are skipped.
func (q Quantizer) Properties(cache *model.PropertyCache) []QuantizedProperty {
	out := make([]QuantizedProperty, 0, cache.Len())
	seen := make(map[string]bool, cache.Len())
	for _, p := range cache.Properties() {
		seen[p.Name] = true
		out = append(out, QuantizedProperty{Name: p.Name, OwlType: p.OwlType, Value: q.Value(p.Value)})
	}
	for _, p := range cache.Parameters() {
		if seen[p.Name] {
			continue
		}
		out = append(out, QuantizedProperty{Name: p.Name, OwlType: p.OwlType, Value: q.Value(p.Value)})
	}
	slices.SortFunc(out, func(a, b QuantizedProperty) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Conditions canonicalizes optimal conditions, sorted by name then
// property.
func Conditions(optimal []constraint.OptimalCondition) []QuantizedCondition {
	out := make([]QuantizedCondition, 0, len(optimal))
	for _, oc := range optimal {
		exprs := make([]string, len(oc.Constraints))
		for i, e := range oc.Constraints {
			exprs[i] = constraint.String(e)
		}
		out = append(out, QuantizedCondition{Name: oc.Name, Property: oc.Property, Constraints: exprs})
	}
	slices.SortFunc(out, func(a, b QuantizedCondition) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Property, b.Property))
	})
	return out
}

// Key identifies a stored case: the quantized situation, the goals, the
// lookahead shape, and which tick of the plan the case holds.
type Key struct {
	Properties                []QuantizedProperty  `json:"properties"`
	Conditions                []QuantizedCondition `json:"conditions"`
	LookAheadCycles           int                  `json:"lookAheadCycles"`
	SimulationDurationSeconds int64                `json:"simulationDurationSeconds"`
	Index                     int                  `json:"index"`
}

// WithIndex returns a copy of k for another tick.
func (k Key) WithIndex(i int) Key {
	k.Index = i
	return k
}

// Digest returns the hex SHA-256 of the key's canonical JSON. Two keys
// have the same digest exactly when their contents are equal.
func (k Key) Digest() (string, error) {
	raw, err := json.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("encode case key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
