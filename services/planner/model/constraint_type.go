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

// ErrUnsupportedConstraint is returned for an unknown constraint operator.
var ErrUnsupportedConstraint = errors.New("unsupported constraint type")

// ConstraintType is a comparison or boolean combinator in a constraint
// expression.
type ConstraintType uint8

const (
	ConstraintInvalid ConstraintType = iota
	EqualTo
	NotEqualTo
	GreaterThan
	GreaterThanOrEqualTo
	LessThan
	LessThanOrEqualTo
	And
	Or
)

var constraintSymbols = [...]string{
	ConstraintInvalid:    "?",
	EqualTo:              "==",
	NotEqualTo:           "!=",
	GreaterThan:          ">",
	GreaterThanOrEqualTo: ">=",
	LessThan:             "<",
	LessThanOrEqualTo:    "<=",
	And:                  "AND",
	Or:                   "OR",
}

// String returns the operator symbol.
func (t ConstraintType) String() string {
	if int(t) < len(constraintSymbols) {
		return constraintSymbols[t]
	}
	return "?"
}

// IsAtomic reports whether t compares a value against a literal.
func (t ConstraintType) IsAtomic() bool {
	return t >= EqualTo && t <= LessThanOrEqualTo
}

// IsCombinator reports whether t is AND or OR.
func (t ConstraintType) IsCombinator() bool {
	return t == And || t == Or
}

// ParseConstraintType accepts the operator symbols and the long names
// ("greaterThan", "LESS_THAN_OR_EQUAL_TO", ...).
func ParseConstraintType(s string) (ConstraintType, error) {
	trimmed := strings.TrimSpace(s)
	for t, sym := range constraintSymbols {
		if t != int(ConstraintInvalid) && strings.EqualFold(trimmed, sym) {
			return ConstraintType(t), nil
		}
	}
	switch strings.ToLower(strings.ReplaceAll(trimmed, "_", "")) {
	case "equalto", "eq", "=":
		return EqualTo, nil
	case "notequalto", "ne":
		return NotEqualTo, nil
	case "greaterthan", "gt":
		return GreaterThan, nil
	case "greaterthanorequalto", "ge", "gte":
		return GreaterThanOrEqualTo, nil
	case "lessthan", "lt":
		return LessThan, nil
	case "lessthanorequalto", "le", "lte":
		return LessThanOrEqualTo, nil
	case "&&":
		return And, nil
	case "||":
		return Or, nil
	}
	return ConstraintInvalid, fmt.Errorf("%w: %q", ErrUnsupportedConstraint, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t ConstraintType) MarshalText() ([]byte, error) {
	if t == ConstraintInvalid || int(t) >= len(constraintSymbols) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedConstraint, t)
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ConstraintType) UnmarshalText(b []byte) error {
	parsed, err := ParseConstraintType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
