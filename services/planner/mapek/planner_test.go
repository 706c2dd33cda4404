// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mapek

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTwin/services/planner/casebase"
	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/scoring"
	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
)

var (
	heaterOn  = model.StringValue("on")
	heaterOff = model.StringValue("off")
)

// roomKnowledge wants 20..24 degrees and offers the heater whenever the
// band is violated.
type roomKnowledge struct {
	property string
	err      error
}

func (k roomKnowledge) band() []constraint.Expression {
	return []constraint.Expression{constraint.MustNested(model.And,
		constraint.MustAtomic(model.GreaterThanOrEqualTo, "20"),
		constraint.MustAtomic(model.LessThanOrEqualTo, "24"),
	)}
}

func (k roomKnowledge) prop() string {
	if k.property != "" {
		return k.property
	}
	return "temperature"
}

func (k roomKnowledge) Conditions(context.Context, *model.PropertyCache) ([]constraint.Condition, error) {
	if k.err != nil {
		return nil, k.err
	}
	return []constraint.Condition{{Name: "comfort", Property: k.prop(), Constraints: k.band()}}, nil
}

func (k roomKnowledge) OptimalConditions(context.Context, *model.PropertyCache) ([]constraint.OptimalCondition, error) {
	return []constraint.OptimalCondition{{
		Condition: constraint.Condition{Name: "comfort", Property: k.prop(), Constraints: k.band()},
	}}, nil
}

func (k roomKnowledge) RelevantActions(_ context.Context, cache *model.PropertyCache) ([]model.Action, error) {
	res, err := constraint.EvaluateCondition(constraint.Condition{Name: "comfort", Property: k.prop(), Constraints: k.band()}, cache)
	if err != nil || res.Satisfied {
		return nil, err
	}
	return []model.Action{
		model.NewActuation("heat", "heater", heaterOn),
		model.NewActuation("idle", "heater", heaterOff),
	}, nil
}

func room(temp float64) *model.PropertyCache {
	return model.NewPropertyCache([]model.Property{model.NewProperty("temperature", model.DoubleValue(temp))}, nil)
}

type countingStepper struct {
	calls int
	fail  bool
}

func (s *countingStepper) Step(_ context.Context, cache *model.PropertyCache, actions []model.Action, _ time.Duration) (*model.PropertyCache, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("twin offline")
	}
	temp, _ := cache.Property("temperature")
	delta := -0.5
	for _, a := range actions {
		if a.Target == "heater" && a.Value == heaterOn {
			delta = 1
		}
	}
	return cache.Edit().SetValue("temperature", model.DoubleValue(temp.Value.Float()+delta)).Build()
}

func newPlanner(t *testing.T, stepper simtree.Stepper, k Knowledge, opts ...PlannerOption) *Planner {
	t.Helper()
	return newPlannerWithCycles(t, stepper, k, 2, opts...)
}

func newPlannerWithCycles(t *testing.T, stepper simtree.Stepper, k Knowledge, cycles int, opts ...PlannerOption) *Planner {
	t.Helper()
	cfg := simtree.DefaultConfig()
	cfg.LookAheadCycles = cycles
	cfg.TickDuration = time.Minute
	b, err := simtree.NewBuilder(stepper, cfg)
	require.NoError(t, err)
	return NewPlanner(k, b, opts...)
}

func TestPlan_HeatsColdRoom(t *testing.T) {
	p := newPlanner(t, &countingStepper{}, roomKnowledge{})

	plan, err := p.Plan(context.Background(), room(18))
	require.NoError(t, err)

	require.False(t, plan.Empty())
	assert.Equal(t, heaterOn, plan.FirstActions[0].Value)
	assert.Equal(t, 0.0, plan.Score, "heating twice reaches 20")
	assert.Equal(t, 4, plan.Candidates)
	assert.Equal(t, scoring.NameEuclidean, plan.Strategy)
	assert.NotEmpty(t, plan.RoundID)
	require.Len(t, plan.Violations, 1)
	assert.Equal(t, []string{">= 20"}, plan.Violations[0].Atoms)
	assert.NoError(t, plan.Path.Validate())
}

func TestPlan_SatisfiedRoomIsEmpty(t *testing.T) {
	stepper := &countingStepper{}
	p := newPlanner(t, stepper, roomKnowledge{})

	plan, err := p.Plan(context.Background(), room(22))
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, ReasonSatisfied, plan.Reason)
	assert.Zero(t, stepper.calls)
}

func TestPlan_DirectionalStrategy(t *testing.T) {
	p := newPlanner(t, &countingStepper{}, roomKnowledge{},
		WithStrategy(scoring.NameDirectional, scoring.PropertyChange{Property: "temperature", Direction: model.ValueDecrease}))

	plan, err := p.Plan(context.Background(), room(30))
	require.NoError(t, err)
	assert.Equal(t, heaterOff, plan.FirstActions[0].Value)
	assert.Equal(t, -29.0, plan.Score)
}

func TestPlan_MissingPropertyAbortsRound(t *testing.T) {
	p := newPlanner(t, &countingStepper{}, roomKnowledge{property: "humidity"})

	_, err := p.Plan(context.Background(), room(18))
	assert.ErrorIs(t, err, ErrRoundAborted)
	assert.ErrorIs(t, err, constraint.ErrPropertyNotFound)
}

func TestPlan_KnowledgeErrorAbortsRound(t *testing.T) {
	broken := errors.New("ontology unavailable")
	p := newPlanner(t, &countingStepper{}, roomKnowledge{err: broken})

	_, err := p.Plan(context.Background(), room(18))
	assert.ErrorIs(t, err, ErrRoundAborted)
	assert.ErrorIs(t, err, broken)

	_, err = p.Plan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilSnapshot)
}

func TestPlan_NoSurvivingPaths(t *testing.T) {
	p := newPlanner(t, &countingStepper{fail: true}, roomKnowledge{})

	plan, err := p.Plan(context.Background(), room(18))
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, ReasonNoPaths, plan.Reason)
}

func TestPlan_UnknownStrategy(t *testing.T) {
	p := newPlanner(t, &countingStepper{}, roomKnowledge{}, WithStrategy("greedy"))

	_, err := p.Plan(context.Background(), room(18))
	assert.ErrorIs(t, err, scoring.ErrUnknownStrategy)
}

func TestPlan_ReplaysMemoizedCase(t *testing.T) {
	stepper := &countingStepper{}
	store := casebase.NewMemoryStore()
	p := newPlanner(t, stepper, roomKnowledge{}, WithMemoizer(casebase.NewMemoizer(store)))
	ctx := context.Background()

	first, err := p.Plan(ctx, room(18))
	require.NoError(t, err)
	assert.False(t, first.FromCase)
	assert.Equal(t, 2, store.Len())
	stepsAfterFirst := stepper.calls

	// 18.1 lands in the same quantization bucket.
	second, err := p.Plan(ctx, room(18.1))
	require.NoError(t, err)
	assert.True(t, second.FromCase)
	assert.Equal(t, stepsAfterFirst, stepper.calls, "no simulation on a hit")
	assert.Equal(t, model.ActionKeys(first.FirstActions), model.ActionKeys(second.FirstActions))
	assert.NotEqual(t, first.RoundID, second.RoundID)
}

// slowStepper delays every step and stops early when ctx is done.
type slowStepper struct {
	countingStepper
	delay time.Duration
}

func (s *slowStepper) Step(ctx context.Context, cache *model.PropertyCache, actions []model.Action, d time.Duration) (*model.PropertyCache, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.countingStepper.Step(ctx, cache, actions, d)
}

func TestPlan_DeadlineScoresPartialTree(t *testing.T) {
	store := casebase.NewMemoryStore()
	p := newPlannerWithCycles(t, &slowStepper{delay: 20 * time.Millisecond}, roomKnowledge{}, 6,
		WithMemoizer(casebase.NewMemoizer(store)))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	plan, err := p.Plan(ctx, room(18))
	require.NoError(t, err)

	assert.True(t, plan.Truncated)
	require.False(t, plan.Empty(), "reason: %s", plan.Reason)
	assert.Empty(t, plan.Reason)
	assert.Positive(t, plan.Candidates)
	assert.Equal(t, heaterOn, plan.FirstActions[0].Value)
	assert.NoError(t, plan.Path.Validate())
	assert.Zero(t, store.Len(), "partial lookahead is not memoized")
}

func TestPlan_ZeroLookahead(t *testing.T) {
	stepper := &countingStepper{}
	p := newPlannerWithCycles(t, stepper, roomKnowledge{}, 0)

	plan, err := p.Plan(context.Background(), room(18))
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, ReasonNoLookahead, plan.Reason)
	assert.Zero(t, plan.Candidates)
	assert.Zero(t, stepper.calls)
	require.Len(t, plan.Violations, 1)
}
