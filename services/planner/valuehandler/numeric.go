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
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

// rangeGrid returns granularity evenly spaced points across [lower, upper].
// The last point is pinned to upper so that rounding never drops the limit.
// With granularity <= 0 it steps from lower by increment instead.
func rangeGrid(lower, upper float64, granularity int, increment float64) ([]float64, error) {
	if upper < lower {
		return nil, fmt.Errorf("%w: lower %g > upper %g", ErrInvalidRange, lower, upper)
	}
	switch {
	case granularity == 1:
		return []float64{lower}, nil
	case granularity > 1:
		interval := (upper - lower) / float64(granularity-1)
		out := make([]float64, granularity)
		for i := range out {
			out[i] = lower + float64(i)*interval
		}
		out[granularity-1] = upper
		return out, nil
	case increment > 0 && !math.IsInf(increment, 0):
		steps := int(math.Floor((upper-lower)/increment + 1e-9))
		out := make([]float64, 0, steps+1)
		for i := 0; i <= steps; i++ {
			out = append(out, lower+float64(i)*increment)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: granularity %d with increment %g", ErrInvalidRange, granularity, increment)
	}
}

type doubleHandler struct{}

func (doubleHandler) Kind() model.Kind { return model.KindDouble }

func (doubleHandler) CompareMagnitude(a, b model.Value) (int, error) {
	if err := expectKind(model.KindDouble, a, b); err != nil {
		return 0, err
	}
	return cmp.Compare(a.Float(), b.Float()), nil
}

func (h doubleHandler) IsAtLeast(v, bound model.Value) (bool, error) {
	c, err := h.CompareMagnitude(v, bound)
	return c >= 0, err
}

func (h doubleHandler) IsAtMost(v, bound model.Value) (bool, error) {
	c, err := h.CompareMagnitude(v, bound)
	return c <= 0, err
}

func (doubleHandler) Format(v model.Value) (string, error) {
	if err := expectKind(model.KindDouble, v); err != nil {
		return "", err
	}
	return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
}

func (doubleHandler) Parse(s string) (model.Value, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return model.Value{}, fmt.Errorf("%w: double %q", ErrMalformedValue, s)
	}
	return model.DoubleValue(f), nil
}

// Quantize rounds to the nearest multiple of width; a remainder of exactly
// half a width goes to the lower bucket.
func (doubleHandler) Quantize(v model.Value, width float64) (model.Value, error) {
	if err := expectKind(model.KindDouble, v); err != nil {
		return model.Value{}, err
	}
	f := v.Float()
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) || math.IsNaN(f) || math.IsInf(f, 0) {
		return v, nil
	}
	q := math.Floor(f / width)
	if f-q*width > width/2 {
		q++
	}
	// Adding zero folds -0 into 0 so both encode the same way.
	return model.DoubleValue(q*width + 0), nil
}

func (h doubleHandler) EnumerateCandidates(p model.ConfigurableParameter, effect model.Effect, granularity int) ([]model.Value, error) {
	if err := expectKind(model.KindDouble, p.Value, p.LowerLimit, p.UpperLimit); err != nil {
		return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
	}
	if effect == model.EffectNone {
		return []model.Value{p.Value}, nil
	}
	grid, err := rangeGrid(p.LowerLimit.Float(), p.UpperLimit.Float(), granularity, p.ValueIncrements.Float())
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
	}
	values := make([]model.Value, len(grid))
	for i, f := range grid {
		values[i] = model.DoubleValue(f)
	}
	return directional(values, p.Value, effect, func(a, b model.Value) int {
		return cmp.Compare(a.Float(), b.Float())
	}), nil
}

func (h doubleHandler) Satisfies(op model.ConstraintType, v model.Value, literal string) (bool, error) {
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

type intHandler struct{}

func (intHandler) Kind() model.Kind { return model.KindInt }

func (intHandler) CompareMagnitude(a, b model.Value) (int, error) {
	if err := expectKind(model.KindInt, a, b); err != nil {
		return 0, err
	}
	return cmp.Compare(a.Int(), b.Int()), nil
}

func (h intHandler) IsAtLeast(v, bound model.Value) (bool, error) {
	c, err := h.CompareMagnitude(v, bound)
	return c >= 0, err
}

func (h intHandler) IsAtMost(v, bound model.Value) (bool, error) {
	c, err := h.CompareMagnitude(v, bound)
	return c <= 0, err
}

func (intHandler) Format(v model.Value) (string, error) {
	if err := expectKind(model.KindInt, v); err != nil {
		return "", err
	}
	return strconv.FormatInt(v.Int(), 10), nil
}

func (intHandler) Parse(s string) (model.Value, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return model.Value{}, fmt.Errorf("%w: int %q", ErrMalformedValue, s)
	}
	return model.IntValue(i), nil
}

// Quantize uses the width rounded to the nearest integer. Widths below 2
// leave the value unchanged.
func (intHandler) Quantize(v model.Value, width float64) (model.Value, error) {
	if err := expectKind(model.KindInt, v); err != nil {
		return model.Value{}, err
	}
	if math.IsNaN(width) || width < 1.5 || width > math.MaxInt64 {
		return v, nil
	}
	w := int64(math.Round(width))
	x := v.Int()
	q := x / w
	if x%w != 0 && x < 0 {
		q--
	}
	r := x - q*w
	if 2*r <= w {
		return model.IntValue(q * w), nil
	}
	return model.IntValue((q + 1) * w), nil
}

func (h intHandler) EnumerateCandidates(p model.ConfigurableParameter, effect model.Effect, granularity int) ([]model.Value, error) {
	if err := expectKind(model.KindInt, p.Value, p.LowerLimit, p.UpperLimit); err != nil {
		return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
	}
	if effect == model.EffectNone {
		return []model.Value{p.Value}, nil
	}
	grid, err := rangeGrid(float64(p.LowerLimit.Int()), float64(p.UpperLimit.Int()), granularity, float64(p.ValueIncrements.Int()))
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
	}
	values := make([]model.Value, 0, len(grid))
	for _, f := range grid {
		v := model.IntValue(int64(math.Round(f)))
		if n := len(values); n > 0 && values[n-1] == v {
			continue
		}
		values = append(values, v)
	}
	return directional(values, p.Value, effect, func(a, b model.Value) int {
		return cmp.Compare(a.Int(), b.Int())
	}), nil
}

func (h intHandler) Satisfies(op model.ConstraintType, v model.Value, literal string) (bool, error) {
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
