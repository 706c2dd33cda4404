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
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

func snapshot(temp float64) *model.PropertyCache {
	return model.NewPropertyCache(
		[]model.Property{
			model.NewProperty("temperature", model.DoubleValue(temp)),
			model.NewProperty("heater", model.StringValue("off")),
			model.NewProperty("uptime", model.DurationValue(90*time.Second)),
		},
		[]model.ConfigurableParameter{{
			Property:   model.NewProperty("setpoint", model.DoubleValue(21)),
			LowerLimit: model.DoubleValue(16),
			UpperLimit: model.DoubleValue(26),
		}},
	)
}

func comfortBand() []constraint.OptimalCondition {
	return []constraint.OptimalCondition{{
		Condition: constraint.Condition{
			Name:     "comfort",
			Property: "temperature",
			Constraints: []constraint.Expression{
				constraint.MustNested(model.And,
					constraint.MustAtomic(model.GreaterThanOrEqualTo, "20"),
					constraint.MustAtomic(model.LessThanOrEqualTo, "23.5"),
				),
			},
		},
	}}
}

func TestQuantizer_Properties(t *testing.T) {
	q := DefaultQuantizer()
	got := q.Properties(snapshot(21.2))

	require.Len(t, got, 4)
	names := []string{got[0].Name, got[1].Name, got[2].Name, got[3].Name}
	assert.Equal(t, []string{"heater", "setpoint", "temperature", "uptime"}, names)
	assert.Equal(t, model.DoubleValue(21.0), got[2].Value)
	assert.Equal(t, model.DurationValue(90*time.Second), got[3].Value)
}

func TestQuantizer_UnsupportedKindKeepsRawValue(t *testing.T) {
	q := Quantizer{Widths: map[model.Kind]float64{model.KindDuration: 60}}
	v := model.DurationValue(95 * time.Second)
	assert.Equal(t, v, q.Value(v))
}

func TestConditions_Canonical(t *testing.T) {
	got := Conditions(comfortBand())
	require.Len(t, got, 1)
	assert.Equal(t, []string{"(>= 20 AND <= 23.5)"}, got[0].Constraints)
}

func TestKey_Digest(t *testing.T) {
	m := NewMemoizer(NewMemoryStore())
	key := func(temp float64, cycles int) Key {
		return m.Key(snapshot(temp), comfortBand(), cycles, 5*time.Minute)
	}
	digest := func(k Key) string {
		d, err := k.Digest()
		require.NoError(t, err)
		return d
	}

	same := digest(key(21.1, 4))
	assert.Len(t, same, 64)
	assert.Equal(t, same, digest(key(21.2, 4)), "same bucket")
	assert.NotEqual(t, same, digest(key(21.4, 4)), "next bucket")
	assert.NotEqual(t, same, digest(key(21.1, 3)), "different horizon")
	assert.NotEqual(t, same, digest(key(21.1, 4).WithIndex(1)), "different tick")
	assert.Equal(t, int64(300), key(21.1, 4).SimulationDurationSeconds)
}

func TestKey_DigestNegativeZeroSharesBucket(t *testing.T) {
	m := NewMemoizer(NewMemoryStore())
	digest := func(temp float64) string {
		d, err := m.Key(snapshot(temp), comfortBand(), 4, 5*time.Minute).Digest()
		require.NoError(t, err)
		return d
	}
	assert.Equal(t, digest(0), digest(math.Copysign(0, -1)))
	assert.Equal(t, digest(0), digest(0.1))
}
