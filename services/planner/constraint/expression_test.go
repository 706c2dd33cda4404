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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/valuehandler"
)

func doubleHandler(t *testing.T) valuehandler.Handler {
	t.Helper()
	h, err := valuehandler.For(model.KindDouble)
	require.NoError(t, err)
	return h
}

func comfortBand() Nested {
	return MustNested(model.And,
		MustAtomic(model.GreaterThan, "10.1"),
		MustAtomic(model.LessThanOrEqualTo, "28.5"))
}

func TestEvaluate_AndReportsOnlyViolatedSide(t *testing.T) {
	h := doubleHandler(t)
	unsat, err := Evaluate(comfortBand(), model.DoubleValue(1.02), h)
	require.NoError(t, err)
	assert.Equal(t, []Atomic{MustAtomic(model.GreaterThan, "10.1")}, unsat)

	unsat, err = Evaluate(comfortBand(), model.DoubleValue(30), h)
	require.NoError(t, err)
	assert.Equal(t, []Atomic{MustAtomic(model.LessThanOrEqualTo, "28.5")}, unsat)

	unsat, err = Evaluate(comfortBand(), model.DoubleValue(20), h)
	require.NoError(t, err)
	assert.Empty(t, unsat)
}

func TestEvaluate_OrWithOneSatisfiedBranchHolds(t *testing.T) {
	h := doubleHandler(t)
	expr := MustNested(model.Or,
		MustAtomic(model.LessThan, "5"),
		MustAtomic(model.GreaterThan, "25"))

	unsat, err := Evaluate(expr, model.DoubleValue(30), h)
	require.NoError(t, err)
	assert.Empty(t, unsat)

	unsat, err = Evaluate(expr, model.DoubleValue(10), h)
	require.NoError(t, err)
	assert.Equal(t, []Atomic{
		MustAtomic(model.LessThan, "5"),
		MustAtomic(model.GreaterThan, "25"),
	}, unsat)
}

func TestEvaluate_DeduplicatesByValue(t *testing.T) {
	h := doubleHandler(t)
	atom := MustAtomic(model.GreaterThan, "10")
	expr := MustNested(model.And, atom, MustNested(model.Or, atom, MustAtomic(model.LessThan, "0")))

	unsat, err := Evaluate(expr, model.DoubleValue(5), h)
	require.NoError(t, err)
	assert.Equal(t, []Atomic{atom, MustAtomic(model.LessThan, "0")}, unsat)
}

func TestEvaluate_Idempotent(t *testing.T) {
	h := doubleHandler(t)
	expr := comfortBand()
	first, err := Evaluate(expr, model.DoubleValue(1.02), h)
	require.NoError(t, err)
	for range 5 {
		again, err := Evaluate(expr, model.DoubleValue(1.02), h)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	h := doubleHandler(t)
	_, err := Evaluate(MustAtomic(model.GreaterThan, "warm"), model.DoubleValue(1), h)
	assert.ErrorIs(t, err, valuehandler.ErrMalformedValue)

	_, err = Evaluate(nil, model.DoubleValue(1), h)
	assert.ErrorIs(t, err, ErrNilExpression)

	_, err = NewAtomic(model.And, "1")
	assert.ErrorIs(t, err, ErrUnsupportedConstraint)

	_, err = NewNested(model.GreaterThan, MustAtomic(model.LessThan, "1"), MustAtomic(model.LessThan, "2"))
	assert.ErrorIs(t, err, ErrUnsupportedConstraint)
}

func TestString(t *testing.T) {
	assert.Equal(t, "(> 10.1 AND <= 28.5)", comfortBand().String())
	assert.Equal(t, "<nil>", String(nil))
	assert.Len(t, Atoms(comfortBand()), 2)
}

func TestCorrectiveEffects(t *testing.T) {
	h := doubleHandler(t)
	v := model.DoubleValue(20)
	tests := []struct {
		atom Atomic
		want []model.Effect
	}{
		{MustAtomic(model.LessThan, "18"), []model.Effect{model.ValueDecrease}},
		{MustAtomic(model.LessThanOrEqualTo, "18"), []model.Effect{model.ValueDecrease}},
		{MustAtomic(model.GreaterThan, "22"), []model.Effect{model.ValueIncrease}},
		{MustAtomic(model.GreaterThanOrEqualTo, "22"), []model.Effect{model.ValueIncrease}},
		{MustAtomic(model.EqualTo, "25"), []model.Effect{model.ValueIncrease}},
		{MustAtomic(model.EqualTo, "15"), []model.Effect{model.ValueDecrease}},
		{MustAtomic(model.EqualTo, "20"), nil},
		{MustAtomic(model.NotEqualTo, "20"), []model.Effect{model.ValueIncrease, model.ValueDecrease}},
	}
	for _, tt := range tests {
		got, err := CorrectiveEffects(tt.atom, v, h)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.atom.String())
	}
}
