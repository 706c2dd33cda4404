// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package valuehandler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

type boolHandler struct{}

func (boolHandler) Kind() model.Kind { return model.KindBool }

// CompareMagnitude orders false before true.
func (boolHandler) CompareMagnitude(a, b model.Value) (int, error) {
	if err := expectKind(model.KindBool, a, b); err != nil {
		return 0, err
	}
	switch {
	case a.Bool() == b.Bool():
		return 0, nil
	case b.Bool():
		return -1, nil
	default:
		return 1, nil
	}
}

func (h boolHandler) IsAtLeast(v, bound model.Value) (bool, error) {
	c, err := h.CompareMagnitude(v, bound)
	return c >= 0, err
}

func (h boolHandler) IsAtMost(v, bound model.Value) (bool, error) {
	c, err := h.CompareMagnitude(v, bound)
	return c <= 0, err
}

func (boolHandler) Format(v model.Value) (string, error) {
	if err := expectKind(model.KindBool, v); err != nil {
		return "", err
	}
	return strconv.FormatBool(v.Bool()), nil
}

func (boolHandler) Parse(s string) (model.Value, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return model.Value{}, fmt.Errorf("%w: bool %q", ErrMalformedValue, s)
	}
	return model.BoolValue(b), nil
}

func (boolHandler) Quantize(v model.Value, _ float64) (model.Value, error) {
	if err := expectKind(model.KindBool, v); err != nil {
		return model.Value{}, err
	}
	return v, nil
}

// EnumerateCandidates flips the flag when the flip moves in the requested
// direction. Limits are ignored.
func (boolHandler) EnumerateCandidates(p model.ConfigurableParameter, effect model.Effect, _ int) ([]model.Value, error) {
	if err := expectKind(model.KindBool, p.Value); err != nil {
		return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
	}
	cur := p.Value.Bool()
	switch {
	case effect == model.ValueIncrease && !cur:
		return []model.Value{model.BoolValue(true), p.Value}, nil
	case effect == model.ValueDecrease && cur:
		return []model.Value{model.BoolValue(false), p.Value}, nil
	default:
		return []model.Value{p.Value}, nil
	}
}

func (h boolHandler) Satisfies(op model.ConstraintType, v model.Value, literal string) (bool, error) {
	lit, err := h.Parse(literal)
	if err != nil {
		return false, err
	}
	c, err := h.CompareMagnitude(v, lit)
	if err != nil {
		return false, err
	}
	return holds(op, c)
}

type stringHandler struct{}

func (stringHandler) Kind() model.Kind { return model.KindString }

func (stringHandler) CompareMagnitude(a, b model.Value) (int, error) {
	if err := expectKind(model.KindString, a, b); err != nil {
		return 0, err
	}
	return strings.Compare(a.Text(), b.Text()), nil
}

func (h stringHandler) IsAtLeast(v, bound model.Value) (bool, error) {
	c, err := h.CompareMagnitude(v, bound)
	return c >= 0, err
}

func (h stringHandler) IsAtMost(v, bound model.Value) (bool, error) {
	c, err := h.CompareMagnitude(v, bound)
	return c <= 0, err
}

func (stringHandler) Format(v model.Value) (string, error) {
	if err := expectKind(model.KindString, v); err != nil {
		return "", err
	}
	return v.Text(), nil
}

func (stringHandler) Parse(s string) (model.Value, error) {
	return model.StringValue(s), nil
}

func (stringHandler) Quantize(v model.Value, _ float64) (model.Value, error) {
	if err := expectKind(model.KindString, v); err != nil {
		return model.Value{}, err
	}
	return v, nil
}

func (stringHandler) EnumerateCandidates(p model.ConfigurableParameter, _ model.Effect, _ int) ([]model.Value, error) {
	return nil, fmt.Errorf("%w: enumerate string parameter %s", ErrUnsupportedOperation, p.Name)
}

func (h stringHandler) Satisfies(op model.ConstraintType, v model.Value, literal string) (bool, error) {
	c, err := h.CompareMagnitude(v, model.StringValue(literal))
	if err != nil {
		return false, err
	}
	return holds(op, c)
}

// durationHandler rejects every operation. Durations may appear in a
// snapshot but cannot be constrained, quantized or reconfigured.
type durationHandler struct{}

func (durationHandler) Kind() model.Kind { return model.KindDuration }

func (durationHandler) CompareMagnitude(_, _ model.Value) (int, error) {
	return 0, fmt.Errorf("%w: compare duration", ErrUnsupportedOperation)
}

func (durationHandler) IsAtLeast(_, _ model.Value) (bool, error) {
	return false, fmt.Errorf("%w: compare duration", ErrUnsupportedOperation)
}

func (durationHandler) IsAtMost(_, _ model.Value) (bool, error) {
	return false, fmt.Errorf("%w: compare duration", ErrUnsupportedOperation)
}

func (durationHandler) Format(_ model.Value) (string, error) {
	return "", fmt.Errorf("%w: format duration", ErrUnsupportedOperation)
}

func (durationHandler) Parse(_ string) (model.Value, error) {
	return model.Value{}, fmt.Errorf("%w: parse duration", ErrUnsupportedOperation)
}

func (durationHandler) Quantize(_ model.Value, _ float64) (model.Value, error) {
	return model.Value{}, fmt.Errorf("%w: quantize duration", ErrUnsupportedOperation)
}

func (durationHandler) EnumerateCandidates(_ model.ConfigurableParameter, _ model.Effect, _ int) ([]model.Value, error) {
	return nil, fmt.Errorf("%w: enumerate duration", ErrUnsupportedOperation)
}

func (durationHandler) Satisfies(_ model.ConstraintType, _ model.Value, _ string) (bool, error) {
	return false, fmt.Errorf("%w: evaluate duration", ErrUnsupportedOperation)
}
