// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package simtree

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

var (
	on  = model.StringValue("on")
	off = model.StringValue("off")
)

func roomSnapshot() *model.PropertyCache {
	return model.NewPropertyCache(
		[]model.Property{model.NewProperty("temperature", model.DoubleValue(18))},
		[]model.ConfigurableParameter{{
			Property:   model.NewProperty("setpoint", model.DoubleValue(20)),
			LowerLimit: model.DoubleValue(16),
			UpperLimit: model.DoubleValue(24),
		}},
	)
}

// roomStep applies reconfigurations to the snapshot and warms the room by
// one degree per tick while the heater is on.
func roomStep(_ context.Context, cache *model.PropertyCache, actions []model.Action, _ time.Duration) (*model.PropertyCache, error) {
	temp, _ := cache.Property("temperature")
	b := cache.Edit()
	delta := -0.5
	for _, a := range actions {
		switch {
		case a.Kind == model.Reconfiguration:
			b.SetValue(a.Target, a.Value)
		case a.Target == "heater" && a.Value == on:
			delta = 1
		}
	}
	b.SetValue("temperature", model.DoubleValue(temp.Value.Float()+delta))
	return b.Build()
}

func heaterCatalog() []model.Action {
	return []model.Action{
		model.NewActuation("heat", "heater", on),
		model.NewActuation("idle", "heater", off),
	}
}

func newTestBuilder(t *testing.T, stepper Stepper, cycles int, opts ...Option) *Builder {
	t.Helper()
	cfg := DefaultConfig()
	cfg.LookAheadCycles = cycles
	cfg.TickDuration = time.Minute
	b, err := NewBuilder(stepper, cfg, opts...)
	require.NoError(t, err)
	return b
}

func TestBuild_BinaryTreeCounts(t *testing.T) {
	b := newTestBuilder(t, StepFunc(roomStep), 4)
	tree, err := b.Build(context.Background(), roomSnapshot(), heaterCatalog())
	require.NoError(t, err)

	assert.False(t, tree.Truncated)
	assert.Equal(t, 30, tree.Root.ChildrenCount())
	assert.Equal(t, 4, tree.Root.Depth())
	assert.Equal(t, 4, tree.Stats.Levels)
	assert.Equal(t, 30, tree.Stats.StepsAttempted)

	paths := tree.Paths()
	require.Len(t, paths, 16)
	for _, p := range paths {
		require.Len(t, p, 5)
		require.NoError(t, p.Validate())
	}

	first := paths[0]
	assert.Equal(t, "[heater=on] -> [heater=on] -> [heater=on] -> [heater=on]", first.String())
	final, _ := first.Final().Result.Property("temperature")
	assert.Equal(t, 22.0, final.Value.Float())
}

func TestBuild_BranchingFactorCounts(t *testing.T) {
	catalog := append(heaterCatalog(),
		model.NewActuation("fan on", "fan", on),
		model.NewActuation("fan off", "fan", off),
		model.NewActuation("fan boost", "fan", model.StringValue("boost")),
	)
	b := newTestBuilder(t, StepFunc(roomStep), 2)
	tree, err := b.Build(context.Background(), roomSnapshot(), catalog)
	require.NoError(t, err)

	assert.Equal(t, 6+36, tree.Root.ChildrenCount())
	assert.Len(t, tree.Paths(), 36)
}

func TestBuild_RootAndInitializationActions(t *testing.T) {
	b := newTestBuilder(t, StepFunc(roomStep), 2)
	snap := roomSnapshot()
	tree, err := b.Build(context.Background(), snap, heaterCatalog())
	require.NoError(t, err)

	assert.Equal(t, 0, tree.Root.Item.Index)
	assert.Empty(t, tree.Root.Item.Actions)
	assert.Same(t, snap, tree.Root.Item.Result)

	child := tree.Root.Children[0]
	assert.Empty(t, child.Item.InitializationActions)
	grandchild := child.Children[1]
	assert.Equal(t, child.Item.Actions, grandchild.Item.InitializationActions)
	assert.Equal(t, []model.Action{model.NewActuation("idle", "heater", off)}, grandchild.Item.Actions)
}

func TestBuild_ActuatorRegistryOverridesCatalogStates(t *testing.T) {
	states := StaticStates{"heater": {off, on, model.StringValue("eco")}}
	b := newTestBuilder(t, StepFunc(roomStep), 1, WithActuatorStates(states))
	tree, err := b.Build(context.Background(), roomSnapshot(), []model.Action{model.NewActuation("heat", "heater", on)})
	require.NoError(t, err)

	require.Len(t, tree.Root.Children, 3)
	assert.Equal(t, off, tree.Root.Children[0].Item.Actions[0].Value)
	assert.Equal(t, "heat", tree.Root.Children[1].Item.Actions[0].Name)
	assert.Equal(t, model.StringValue("eco"), tree.Root.Children[2].Item.Actions[0].Value)
}

func TestBuild_ReconfigurationCandidatesFollowParent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LookAheadCycles = 2
	cfg.TickDuration = time.Minute
	cfg.RangeGranularity = 5
	b, err := NewBuilder(StepFunc(roomStep), cfg)
	require.NoError(t, err)

	catalog := []model.Action{
		model.NewReconfiguration("raise setpoint", "setpoint", model.Value{}, model.ValueIncrease),
	}
	tree, err := b.Build(context.Background(), roomSnapshot(), catalog)
	require.NoError(t, err)

	require.Len(t, tree.Root.Children, 3)
	values := []model.Value{}
	for _, c := range tree.Root.Children {
		values = append(values, c.Item.Actions[0].Value)
	}
	assert.Equal(t, []model.Value{model.DoubleValue(22), model.DoubleValue(24), model.DoubleValue(20)}, values)

	assert.Len(t, tree.Root.Children[0].Children, 2, "from 22 only 24 and 22 remain")
	assert.Len(t, tree.Root.Children[1].Children, 1, "24 is the upper limit")
	assert.Len(t, tree.Root.Children[2].Children, 3)
}

func TestBuild_UnknownParameter(t *testing.T) {
	b := newTestBuilder(t, StepFunc(roomStep), 1)
	_, err := b.Build(context.Background(), roomSnapshot(), []model.Action{
		model.NewReconfiguration("valve", "valve_opening", model.Value{}, model.ValueIncrease),
	})
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestBuild_StepFailurePrunesBranch(t *testing.T) {
	boom := errors.New("solver diverged")
	failing := StepFunc(func(ctx context.Context, cache *model.PropertyCache, actions []model.Action, d time.Duration) (*model.PropertyCache, error) {
		temp, _ := cache.Property("temperature")
		if actions[0].Value == on && temp.Value.Float() > 18 {
			return nil, boom
		}
		return roomStep(ctx, cache, actions, d)
	})
	b := newTestBuilder(t, failing, 2)
	tree, err := b.Build(context.Background(), roomSnapshot(), heaterCatalog())
	require.NoError(t, err)

	// heater=on at tick 1 warms the room, so every heater=on at tick 2
	// fails below it; the off branch keeps both children.
	assert.Equal(t, 1, tree.Stats.StepsFailed)
	require.Len(t, tree.Root.Children, 2)
	assert.Len(t, tree.Root.Children[0].Children, 1)
	assert.Len(t, tree.Root.Children[1].Children, 2)
	assert.Len(t, tree.Paths(), 3)
}

func TestBuild_DeadEndsArePrunedUpward(t *testing.T) {
	failing := StepFunc(func(ctx context.Context, cache *model.PropertyCache, actions []model.Action, d time.Duration) (*model.PropertyCache, error) {
		temp, _ := cache.Property("temperature")
		if temp.Value.Float() > 18 {
			return nil, errors.New("too warm to simulate")
		}
		return roomStep(ctx, cache, actions, d)
	})
	b := newTestBuilder(t, failing, 2)
	tree, err := b.Build(context.Background(), roomSnapshot(), heaterCatalog())
	require.NoError(t, err)

	require.Len(t, tree.Root.Children, 1)
	assert.Equal(t, off, tree.Root.Children[0].Item.Actions[0].Value)
	assert.Equal(t, 1, tree.Stats.Pruned)
	for _, p := range tree.Paths() {
		assert.Len(t, p, 3)
	}
}

func TestBuild_AllStepsFailLeavesRootOnly(t *testing.T) {
	failing := StepFunc(func(context.Context, *model.PropertyCache, []model.Action, time.Duration) (*model.PropertyCache, error) {
		return nil, errors.New("twin offline")
	})
	b := newTestBuilder(t, failing, 3)
	tree, err := b.Build(context.Background(), roomSnapshot(), heaterCatalog())
	require.NoError(t, err)
	assert.Empty(t, tree.Root.Children)
	assert.Empty(t, tree.Paths())
}

func TestBuild_EmptyCatalog(t *testing.T) {
	b := newTestBuilder(t, StepFunc(roomStep), 3)
	tree, err := b.Build(context.Background(), roomSnapshot(), nil)
	require.NoError(t, err)
	assert.Empty(t, tree.Paths())
	assert.False(t, tree.Truncated)
}

func TestBuild_NodeBudgetTruncatesAtLevelBoundary(t *testing.T) {
	b := newTestBuilder(t, StepFunc(roomStep), 4, WithBudget(BudgetConfig{MaxNodes: 6}))
	tree, err := b.Build(context.Background(), roomSnapshot(), heaterCatalog())
	require.NoError(t, err)

	assert.True(t, tree.Truncated)
	assert.Equal(t, "nodes", tree.TruncatedBy)
	assert.Equal(t, 2, tree.Root.Depth())
	assert.Len(t, tree.Paths(), 4)
}

func TestBuild_NodeBudgetDiscardsPartialLevel(t *testing.T) {
	b := newTestBuilder(t, StepFunc(roomStep), 3, WithBudget(BudgetConfig{MaxNodes: 4}))
	tree, err := b.Build(context.Background(), roomSnapshot(), heaterCatalog())
	require.NoError(t, err)

	assert.True(t, tree.Truncated)
	assert.Equal(t, 1, tree.Root.Depth())
	assert.Len(t, tree.Paths(), 2)
}

func TestBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := newTestBuilder(t, StepFunc(roomStep), 3)
	tree, err := b.Build(ctx, roomSnapshot(), heaterCatalog())
	require.NoError(t, err)
	assert.True(t, tree.Truncated)
	assert.Equal(t, "context", tree.TruncatedBy)
	assert.Empty(t, tree.Paths())
}

func TestBuild_ParallelMatchesSequential(t *testing.T) {
	catalog := append(heaterCatalog(),
		model.NewReconfiguration("raise setpoint", "setpoint", model.Value{}, model.ValueIncrease),
		model.NewReconfiguration("lower setpoint", "setpoint", model.Value{}, model.ValueDecrease),
	)
	seq := newTestBuilder(t, StepFunc(roomStep), 3)
	seqTree, err := seq.Build(context.Background(), roomSnapshot(), catalog)
	require.NoError(t, err)

	cfg := seq.Config()
	cfg.Workers = 8
	par, err := NewBuilder(StepFunc(roomStep), cfg)
	require.NoError(t, err)
	parTree, err := par.Build(context.Background(), roomSnapshot(), catalog)
	require.NoError(t, err)

	seqPaths, parPaths := seqTree.Paths(), parTree.Paths()
	require.Equal(t, len(seqPaths), len(parPaths))
	for i := range seqPaths {
		assert.Equal(t, seqPaths[i].String(), parPaths[i].String())
		assert.True(t, seqPaths[i].Final().Result.Equal(parPaths[i].Final().Result))
	}
}

func TestNewBuilder_InvalidConfig(t *testing.T) {
	_, err := NewBuilder(StepFunc(roomStep), Config{LookAheadCycles: -1, TickDuration: time.Second})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewBuilder(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuild_ZeroLookaheadIsRootOnly(t *testing.T) {
	calls := 0
	step := StepFunc(func(ctx context.Context, c *model.PropertyCache, a []model.Action, d time.Duration) (*model.PropertyCache, error) {
		calls++
		return roomStep(ctx, c, a, d)
	})
	b := newTestBuilder(t, step, 0)
	snap := roomSnapshot()
	tree, err := b.Build(context.Background(), snap, heaterCatalog())
	require.NoError(t, err)

	assert.Same(t, snap, tree.Root.Item.Result)
	assert.Empty(t, tree.Root.Children)
	assert.False(t, tree.Truncated)
	assert.Zero(t, tree.Stats.Levels)
	assert.Empty(t, tree.Paths())
	assert.Zero(t, calls)
}
