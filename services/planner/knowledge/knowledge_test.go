// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

const roomDocument = `
conditions:
  - name: comfort
    property: temperature
    expression: value >= 20 && value <= 24
    reached_in_seconds: 600
optimal_conditions:
  - name: ideal
    property: temperature
    expression: value >= 21 && value <= 22
    value_type: xsd:double
actuators:
  - name: heater
    states: ["on", "off"]
    effects:
      - {property: temperature, when: "on", effect: increase}
  - name: cooler
    states: ["on", "off"]
    effects:
      - {property: temperature, when: "on", effect: decrease}
  - name: window
    state_type: xsd:boolean
    states: ["true", "false"]
    effects:
      - {property: co2, when: "true", effect: decrease}
parameters:
  - name: setpoint
    effects:
      - {property: temperature, effect: increase}
  - name: blinds
    effects:
      - {property: temperature, effect: decrease}
`

func roomCache(temp float64, withSetpoint bool) *model.PropertyCache {
	var params []model.ConfigurableParameter
	if withSetpoint {
		params = append(params, model.ConfigurableParameter{
			Property:        model.NewProperty("setpoint", model.DoubleValue(21)),
			LowerLimit:      model.DoubleValue(16),
			UpperLimit:      model.DoubleValue(26),
			ValueIncrements: model.DoubleValue(0.5),
		})
	}
	return model.NewPropertyCache([]model.Property{
		model.NewProperty("temperature", model.DoubleValue(temp)),
	}, params)
}

func mustParse(t *testing.T) *FileKnowledge {
	t.Helper()
	k, err := Parse([]byte(roomDocument))
	require.NoError(t, err)
	return k
}

func TestParse_Document(t *testing.T) {
	k := mustParse(t)
	ctx := context.Background()

	conds, err := k.Conditions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, conds, 1)
	assert.Equal(t, "temperature (>= 20 AND <= 24)", conds[0].String())
	assert.Equal(t, int64(600), conds[0].ReachedInMaximumSeconds)

	optimal, err := k.OptimalConditions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, optimal, 1)
	assert.Equal(t, "xsd:double", optimal[0].ConstraintValueType)
	b, ok := constraint.NumericBounds(optimal[0].Constraints)
	require.True(t, ok)
	require.NotNil(t, b.Lower)
	require.NotNil(t, b.Upper)
	assert.Equal(t, 21.0, b.Lower.Value)
	assert.Equal(t, 22.0, b.Upper.Value)

	assert.Equal(t, []string{"heater", "cooler", "window"}, k.Actuators())
	assert.Equal(t, []model.Value{model.BoolValue(true), model.BoolValue(false)}, k.States("window"))
	assert.Nil(t, k.States("fan"))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing property", "conditions: [{name: c, expression: value > 1}]", "Property"},
		{"bad effect", "parameters: [{name: p, effects: [{property: t, effect: sideways}]}]", "Effect"},
		{"no states", "actuators: [{name: a, states: []}]", "States"},
		{"unsupported expression", "conditions: [{name: c, property: t, expression: value * 2 > 1}]", "unsupported"},
		{"undeclared state", `actuators: [{name: a, states: ["on"], effects: [{property: t, when: "off", effect: increase}]}]`, "undeclared state"},
		{"bad state type", "actuators: [{name: a, state_type: xsd:hexBinary, states: [x]}]", "actuator a"},
		{"not yaml", "conditions: [", "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func actionNames(actions []model.Action) []string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.Name
	}
	return names
}

func TestRelevantActions(t *testing.T) {
	k := mustParse(t)
	ctx := context.Background()

	t.Run("too cold offers heating", func(t *testing.T) {
		actions, err := k.RelevantActions(ctx, roomCache(18, true))
		require.NoError(t, err)
		// blinds is declared but not configurable in this room.
		assert.Equal(t, []string{"heater:on", "heater:off", "setpoint:increase"}, actionNames(actions))
		assert.Equal(t, model.ValueIncrease, actions[2].Effect)
	})

	t.Run("too hot offers cooling", func(t *testing.T) {
		actions, err := k.RelevantActions(ctx, roomCache(27, false))
		require.NoError(t, err)
		assert.Equal(t, []string{"cooler:on", "cooler:off"}, actionNames(actions))
		assert.Equal(t, model.Actuation, actions[0].Kind)
		assert.Equal(t, model.StringValue("on"), actions[0].Value)
	})

	t.Run("comfortable offers nothing", func(t *testing.T) {
		actions, err := k.RelevantActions(ctx, roomCache(22, true))
		require.NoError(t, err)
		assert.Empty(t, actions)
	})

	t.Run("missing property", func(t *testing.T) {
		empty := model.NewPropertyCache(nil, nil)
		_, err := k.RelevantActions(ctx, empty)
		assert.ErrorIs(t, err, constraint.ErrPropertyNotFound)
	})
}

func TestRelevantActions_ReconfigurationDirection(t *testing.T) {
	doc := strings.Replace(roomDocument, "name: blinds", "name: setpoint_alt", 1)
	k, err := Parse([]byte(doc))
	require.NoError(t, err)

	cache, err := roomCache(27, true).Edit().SetParameter(model.ConfigurableParameter{
		Property:        model.NewProperty("setpoint_alt", model.DoubleValue(50)),
		LowerLimit:      model.DoubleValue(0),
		UpperLimit:      model.DoubleValue(100),
		ValueIncrements: model.DoubleValue(10),
	}).Build()
	require.NoError(t, err)

	actions, err := k.RelevantActions(context.Background(), cache)
	require.NoError(t, err)

	byName := map[string]model.Action{}
	for _, a := range actions {
		byName[a.Name] = a
	}
	// setpoint raises temperature, so cooling needs it lowered.
	require.Contains(t, byName, "setpoint:decrease")
	assert.Equal(t, model.ValueDecrease, byName["setpoint:decrease"].Effect)
	// setpoint_alt lowers temperature, so it is raised.
	require.Contains(t, byName, "setpoint_alt:increase")
	assert.Equal(t, model.ValueIncrease, byName["setpoint_alt:increase"].Effect)
}

func writeDocument(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoad_ReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "room.yaml")
	writeDocument(t, path, roomDocument)

	k, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, k.Path())

	writeDocument(t, path, "conditions: [{name: c}]")
	assert.Error(t, k.Reload())
	assert.Len(t, k.Actuators(), 3, "previous document stays in effect")

	writeDocument(t, path, strings.Replace(roomDocument, "- name: window", "- name: vent", 1))
	require.NoError(t, k.Reload())
	assert.Equal(t, []string{"heater", "cooler", "vent"}, k.Actuators())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "room.yaml")
	writeDocument(t, path, roomDocument)
	k, err := Load(path)
	require.NoError(t, err)

	reloaded := make(chan error, 4)
	w, err := NewWatcher(k, slog.New(slog.NewTextHandler(io.Discard, nil)), func(err error) { reloaded <- err })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Unrelated files in the directory are ignored.
	writeDocument(t, filepath.Join(filepath.Dir(path), "notes.txt"), "hello")
	writeDocument(t, path, strings.Replace(roomDocument, "- name: cooler", "- name: chiller", 1))

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("knowledge was not reloaded")
	}
	assert.Eventually(t, func() bool {
		return k.States("chiller") != nil
	}, time.Second, 10*time.Millisecond)
}

func TestNewWatcher_RequiresFile(t *testing.T) {
	_, err := NewWatcher(mustParse(t), nil, nil)
	assert.Error(t, err)
}
