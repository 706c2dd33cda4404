// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package valuehandler implements the kind-specific behavior of model.Value:
// ordering, textual round-trip, quantization for case keys, candidate
// enumeration for reconfigurable parameters, and evaluation of atomic
// constraints.
//
// There is one Handler per model.Kind. Callers resolve a handler from a
// property's datatype tag with ForProperty or ForOwlType and never switch
// on the kind themselves.
//
// # Thread Safety
//
// Handlers are stateless and safe for concurrent use.
package valuehandler

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

// DefaultRangeGranularity is the number of evenly spaced candidates
// generated across a parameter's range when none is configured.
const DefaultRangeGranularity = 10

var (
	// ErrUnsupportedValueType is returned when no handler exists for a kind.
	ErrUnsupportedValueType = model.ErrUnsupportedValueType

	// ErrMalformedValue is returned by Parse and by Satisfies when the
	// literal cannot be parsed.
	ErrMalformedValue = model.ErrMalformedValue

	// ErrKindMismatch is returned when an argument has the wrong kind.
	ErrKindMismatch = model.ErrKindMismatch

	// ErrUnsupportedOperation is returned for operations a kind does not
	// support, such as enumerating string candidates.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidRange is returned when a parameter's limits are inverted or
	// neither a granularity nor a value increment is usable.
	ErrInvalidRange = errors.New("invalid parameter range")
)

// Handler implements kind-specific value behavior.
type Handler interface {
	// Kind returns the kind this handler serves.
	Kind() model.Kind

	// CompareMagnitude returns -1, 0 or +1 as a is less than, equal to or
	// greater than b.
	CompareMagnitude(a, b model.Value) (int, error)

	// IsAtLeast reports v >= bound.
	IsAtLeast(v, bound model.Value) (bool, error)

	// IsAtMost reports v <= bound.
	IsAtMost(v, bound model.Value) (bool, error)

	// Format renders v so that Parse(Format(v)) == v.
	Format(v model.Value) (string, error)

	// Parse reads a textual literal.
	Parse(s string) (model.Value, error)

	// Quantize snaps v onto a grid of the given width. Width <= 0 returns v.
	Quantize(v model.Value, width float64) (model.Value, error)

	// EnumerateCandidates returns the values a reconfiguration of p may
	// move to in the direction of effect, ascending, followed by the
	// current value.
	EnumerateCandidates(p model.ConfigurableParameter, effect model.Effect, granularity int) ([]model.Value, error)

	// Satisfies evaluates "v op literal" for an atomic operator.
	Satisfies(op model.ConstraintType, v model.Value, literal string) (bool, error)
}

var (
	doubles   = doubleHandler{}
	ints      = intHandler{}
	bools     = boolHandler{}
	strs      = stringHandler{}
	durations = durationHandler{}
)

// For returns the handler for a kind.
func For(kind model.Kind) (Handler, error) {
	switch kind {
	case model.KindDouble:
		return doubles, nil
	case model.KindInt:
		return ints, nil
	case model.KindBool:
		return bools, nil
	case model.KindString:
		return strs, nil
	case model.KindDuration:
		return durations, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedValueType, kind)
	}
}

// ForOwlType returns the handler for a datatype tag.
func ForOwlType(tag string) (Handler, error) {
	kind, err := model.KindFromOwlType(tag)
	if err != nil {
		return nil, err
	}
	return For(kind)
}

// ForProperty resolves a handler from the property's declared datatype,
// falling back to the value's kind when no tag is set.
func ForProperty(p model.Property) (Handler, error) {
	if p.OwlType == "" {
		return For(p.Value.Kind())
	}
	return ForOwlType(p.OwlType)
}

func expectKind(want model.Kind, values ...model.Value) error {
	for _, v := range values {
		if v.Kind() != want {
			return fmt.Errorf("%w: want %s, got %s", ErrKindMismatch, want, v.Kind())
		}
	}
	return nil
}

// holds maps a three-way comparison of value against literal onto an
// atomic operator.
func holds(op model.ConstraintType, c int) (bool, error) {
	switch op {
	case model.EqualTo:
		return c == 0, nil
	case model.NotEqualTo:
		return c != 0, nil
	case model.GreaterThan:
		return c > 0, nil
	case model.GreaterThanOrEqualTo:
		return c >= 0, nil
	case model.LessThan:
		return c < 0, nil
	case model.LessThanOrEqualTo:
		return c <= 0, nil
	case model.And, model.Or:
		return false, fmt.Errorf("%w: %s is not atomic", model.ErrUnsupportedConstraint, op)
	default:
		return false, fmt.Errorf("%w: %d", model.ErrUnsupportedConstraint, op)
	}
}

// directional keeps the ascending candidates strictly beyond current in the
// direction of effect and appends current.
func directional(sorted []model.Value, current model.Value, effect model.Effect, cmp func(a, b model.Value) int) []model.Value {
	out := make([]model.Value, 0, len(sorted)+1)
	for _, v := range sorted {
		c := cmp(v, current)
		if (effect == model.ValueIncrease && c > 0) || (effect == model.ValueDecrease && c < 0) {
			out = append(out, v)
		}
	}
	return append(out, current)
}
