// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package constraint

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/valuehandler"
)

// Condition is a goal on one property: every constraint must hold.
// ReachedInMaximumSeconds is the horizon within which the goal should be
// met; zero means no deadline.
type Condition struct {
	Name                    string
	Property                string
	Constraints             []Expression
	ReachedInMaximumSeconds int64
}

// String renders the constraints joined by AND, in order.
func (c Condition) String() string {
	parts := make([]string, len(c.Constraints))
	for i, e := range c.Constraints {
		parts[i] = String(e)
	}
	return c.Property + " " + strings.Join(parts, " AND ")
}

// OptimalCondition is a Condition used for Euclidean scoring. The value
// type is the datatype tag the constraints are written in.
// UnsatisfiedAtomicConstraints is filled by EvaluateOptimal.
type OptimalCondition struct {
	Condition
	ConstraintValueType          string
	UnsatisfiedAtomicConstraints []Atomic
}

// Result is the outcome of evaluating one condition.
type Result struct {
	Condition   Condition
	Value       model.Value
	Satisfied   bool
	Unsatisfied []Atomic
}

// EvaluateCondition checks cond against the snapshot. A condition whose
// property is missing yields ErrPropertyNotFound.
func EvaluateCondition(cond Condition, cache *model.PropertyCache) (Result, error) {
	prop, ok := cache.Lookup(cond.Property)
	if !ok {
		return Result{}, fmt.Errorf("condition %q: %w: %s", cond.Name, ErrPropertyNotFound, cond.Property)
	}
	h, err := valuehandler.ForProperty(prop)
	if err != nil {
		return Result{}, fmt.Errorf("condition %q: %w", cond.Name, err)
	}
	return evaluateWith(cond, prop.Value, h)
}

func evaluateWith(cond Condition, v model.Value, h valuehandler.Handler) (Result, error) {
	res := Result{Condition: cond, Value: v}
	for _, e := range cond.Constraints {
		unsat, err := Evaluate(e, v, h)
		if err != nil {
			return Result{}, fmt.Errorf("condition %q: %w", cond.Name, err)
		}
		res.Unsatisfied = appendUnique(res.Unsatisfied, unsat...)
	}
	res.Satisfied = len(res.Unsatisfied) == 0
	return res, nil
}

// EvaluateOptimal returns a copy of oc with UnsatisfiedAtomicConstraints
// set from the snapshot. The constraint value type, when set, selects the
// handler; otherwise the property's own type does.
func EvaluateOptimal(oc OptimalCondition, cache *model.PropertyCache) (OptimalCondition, error) {
	prop, ok := cache.Lookup(oc.Property)
	if !ok {
		return oc, fmt.Errorf("optimal condition %q: %w: %s", oc.Name, ErrPropertyNotFound, oc.Property)
	}
	tag := oc.ConstraintValueType
	if tag == "" {
		tag = prop.OwlType
	}
	h, err := valuehandler.ForOwlType(tag)
	if err != nil {
		return oc, fmt.Errorf("optimal condition %q: %w", oc.Name, err)
	}
	res, err := evaluateWith(oc.Condition, prop.Value, h)
	if err != nil {
		return oc, err
	}
	oc.UnsatisfiedAtomicConstraints = res.Unsatisfied
	return oc, nil
}

// Bound is one side of a numeric interval.
type Bound struct {
	Value     float64
	Inclusive bool
}

// Bounds is a numeric interval with optional sides.
type Bounds struct {
	Lower *Bound
	Upper *Bound
}

// NumericBounds extracts an interval from constraints that are single
// lower or upper comparisons, or an AND of one lower and one upper
// comparison. At most one bound per side is accepted. Any other shape
// returns ok=false.
func NumericBounds(exprs []Expression) (Bounds, bool) {
	var b Bounds
	for _, e := range exprs {
		var atoms []Atomic
		switch x := e.(type) {
		case Atomic:
			atoms = []Atomic{x}
		case Nested:
			l, lok := x.Left.(Atomic)
			r, rok := x.Right.(Atomic)
			if x.Op != model.And || !lok || !rok {
				return Bounds{}, false
			}
			atoms = []Atomic{l, r}
		default:
			return Bounds{}, false
		}
		for _, a := range atoms {
			f, err := strconv.ParseFloat(strings.TrimSpace(a.Right), 64)
			if err != nil {
				return Bounds{}, false
			}
			switch a.Op {
			case model.GreaterThan, model.GreaterThanOrEqualTo:
				if b.Lower != nil {
					return Bounds{}, false
				}
				b.Lower = &Bound{Value: f, Inclusive: a.Op == model.GreaterThanOrEqualTo}
			case model.LessThan, model.LessThanOrEqualTo:
				if b.Upper != nil {
					return Bounds{}, false
				}
				b.Upper = &Bound{Value: f, Inclusive: a.Op == model.LessThanOrEqualTo}
			default:
				return Bounds{}, false
			}
		}
	}
	if b.Lower == nil && b.Upper == nil {
		return Bounds{}, false
	}
	return b, true
}
