// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package constraint models goal conditions as trees of atomic comparisons
// joined by AND/OR, and evaluates them against property values.
//
// Evaluation does not just answer satisfied/unsatisfied: it returns the set
// of atomic constraints that are violated, which drives corrective-action
// selection and Euclidean scoring.
//
//	expr := constraint.MustNested(model.And,
//	    constraint.MustAtomic(model.GreaterThan, "10.1"),
//	    constraint.MustAtomic(model.LessThanOrEqualTo, "28.5"))
//	unsat, _ := constraint.Evaluate(expr, model.DoubleValue(1.02), h)
//	// unsat == [> 10.1]
package constraint

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/valuehandler"
)

var (
	// ErrUnsupportedConstraint is returned for operators that do not fit
	// the expression shape (a combinator on an atom, or the reverse).
	ErrUnsupportedConstraint = model.ErrUnsupportedConstraint

	// ErrPropertyNotFound is returned when a condition names a property
	// absent from the snapshot. It aborts the planning round.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrNilExpression is returned when an expression tree has a nil child.
	ErrNilExpression = errors.New("nil constraint expression")
)

// Expression is an Atomic or a Nested constraint.
type Expression interface {
	// Type returns the operator at the root of the expression.
	Type() model.ConstraintType

	// String renders the canonical textual form.
	String() string

	sealed()
}

// Atomic compares the property value against a literal:
// "value Op Right".
type Atomic struct {
	Op    model.ConstraintType `json:"op"`
	Right string               `json:"right"`
}

// NewAtomic validates that op is a comparison.
func NewAtomic(op model.ConstraintType, right string) (Atomic, error) {
	if !op.IsAtomic() {
		return Atomic{}, fmt.Errorf("%w: %s is not a comparison", ErrUnsupportedConstraint, op)
	}
	return Atomic{Op: op, Right: right}, nil
}

// MustAtomic is like NewAtomic but panics on error.
func MustAtomic(op model.ConstraintType, right string) Atomic {
	a, err := NewAtomic(op, right)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Atomic) Type() model.ConstraintType { return a.Op }

func (a Atomic) String() string { return a.Op.String() + " " + a.Right }

func (Atomic) sealed() {}

// Nested joins two expressions with AND or OR.
type Nested struct {
	Op    model.ConstraintType
	Left  Expression
	Right Expression
}

// NewNested validates that op is a combinator and both sides are set.
func NewNested(op model.ConstraintType, left, right Expression) (Nested, error) {
	if !op.IsCombinator() {
		return Nested{}, fmt.Errorf("%w: %s is not AND/OR", ErrUnsupportedConstraint, op)
	}
	if left == nil || right == nil {
		return Nested{}, ErrNilExpression
	}
	return Nested{Op: op, Left: left, Right: right}, nil
}

// MustNested is like NewNested but panics on error.
func MustNested(op model.ConstraintType, left, right Expression) Nested {
	n, err := NewNested(op, left, right)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Nested) Type() model.ConstraintType { return n.Op }

func (n Nested) String() string {
	return "(" + String(n.Left) + " " + n.Op.String() + " " + String(n.Right) + ")"
}

func (Nested) sealed() {}

// String renders an expression, tolerating nil.
func String(e Expression) string {
	if e == nil {
		return "<nil>"
	}
	return e.String()
}

// Atoms lists the atomic leaves of e, left to right.
func Atoms(e Expression) []Atomic {
	switch x := e.(type) {
	case Atomic:
		return []Atomic{x}
	case Nested:
		return append(Atoms(x.Left), Atoms(x.Right)...)
	default:
		return nil
	}
}

// Evaluate returns the atomic constraints of expr violated by v. An empty
// result means expr is satisfied.
//
// A Nested expression that holds contributes nothing even if one side is
// violated (an OR with one satisfied branch). A Nested expression that
// fails contributes the union of both sides' violations, left first,
// without duplicates.
func Evaluate(expr Expression, v model.Value, h valuehandler.Handler) ([]Atomic, error) {
	_, unsat, err := evaluate(expr, v, h)
	return unsat, err
}

func evaluate(expr Expression, v model.Value, h valuehandler.Handler) (bool, []Atomic, error) {
	switch e := expr.(type) {
	case Atomic:
		ok, err := h.Satisfies(e.Op, v, e.Right)
		if err != nil {
			return false, nil, fmt.Errorf("evaluate %s: %w", e, err)
		}
		if ok {
			return true, nil, nil
		}
		return false, []Atomic{e}, nil
	case Nested:
		if e.Left == nil || e.Right == nil {
			return false, nil, ErrNilExpression
		}
		lok, lun, err := evaluate(e.Left, v, h)
		if err != nil {
			return false, nil, err
		}
		rok, run, err := evaluate(e.Right, v, h)
		if err != nil {
			return false, nil, err
		}
		var ok bool
		switch e.Op {
		case model.And:
			ok = lok && rok
		case model.Or:
			ok = lok || rok
		default:
			return false, nil, fmt.Errorf("%w: %s in nested expression", ErrUnsupportedConstraint, e.Op)
		}
		if ok {
			return true, nil, nil
		}
		return false, appendUnique(lun, run...), nil
	case nil:
		return false, nil, ErrNilExpression
	default:
		return false, nil, fmt.Errorf("%w: %T", ErrUnsupportedConstraint, expr)
	}
}

func appendUnique(dst []Atomic, src ...Atomic) []Atomic {
	for _, a := range src {
		dup := false
		for _, b := range dst {
			if a == b {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, a)
		}
	}
	return dst
}

// CorrectiveEffects returns the parameter effects that move v toward
// satisfying atom. It returns nil when atom already holds with equality.
func CorrectiveEffects(atom Atomic, v model.Value, h valuehandler.Handler) ([]model.Effect, error) {
	switch atom.Op {
	case model.LessThan, model.LessThanOrEqualTo:
		return []model.Effect{model.ValueDecrease}, nil
	case model.GreaterThan, model.GreaterThanOrEqualTo:
		return []model.Effect{model.ValueIncrease}, nil
	case model.NotEqualTo:
		return []model.Effect{model.ValueIncrease, model.ValueDecrease}, nil
	case model.EqualTo:
		lit, err := h.Parse(atom.Right)
		if err != nil {
			return nil, err
		}
		c, err := h.CompareMagnitude(v, lit)
		if err != nil {
			return nil, err
		}
		switch {
		case c < 0:
			return []model.Effect{model.ValueIncrease}, nil
		case c > 0:
			return []model.Effect{model.ValueDecrease}, nil
		default:
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConstraint, atom.Op)
	}
}
