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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

type recordingRecorder struct {
	mu    sync.Mutex
	plans []*Plan
	err   error
}

func (r *recordingRecorder) Record(_ context.Context, plan *Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, plan)
	return r.err
}

func (r *recordingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plans)
}

func TestLoop_RunOnceExecutesFirstActions(t *testing.T) {
	var executed []model.Action
	exec := ExecutorFunc(func(_ context.Context, plan *Plan, _ *model.PropertyCache) error {
		executed = append(executed, plan.FirstActions...)
		return nil
	})
	rec := &recordingRecorder{}
	monitor := MonitorFunc(func(context.Context) (*model.PropertyCache, error) { return room(18), nil })

	l := NewLoop(monitor, newPlanner(t, &countingStepper{}, roomKnowledge{}), exec, time.Second, WithRecorder(rec))
	plan, err := l.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, executed, 1)
	assert.Equal(t, heaterOn, executed[0].Value)
	assert.Equal(t, 1, rec.count())
	assert.Same(t, plan, rec.plans[0])
}

func TestLoop_RunOnceSkipsExecutorForEmptyPlan(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, *Plan, *model.PropertyCache) error {
		t.Fatal("executor must not run for an empty plan")
		return nil
	})
	rec := &recordingRecorder{err: errors.New("influx down")}
	monitor := MonitorFunc(func(context.Context) (*model.PropertyCache, error) { return room(22), nil })

	l := NewLoop(monitor, newPlanner(t, &countingStepper{}, roomKnowledge{}), exec, 0, WithRecorder(rec))
	plan, err := l.RunOnce(context.Background())
	require.NoError(t, err, "recorder errors are logged only")
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, rec.count())
}

func TestLoop_RunOnceStageErrors(t *testing.T) {
	down := errors.New("sensor bus down")
	monitor := MonitorFunc(func(context.Context) (*model.PropertyCache, error) { return nil, down })
	l := NewLoop(monitor, newPlanner(t, &countingStepper{}, roomKnowledge{}), nil, 0)

	_, err := l.RunOnce(context.Background())
	assert.ErrorIs(t, err, down)

	refused := errors.New("actuator refused")
	monitor = func(context.Context) (*model.PropertyCache, error) { return room(18), nil }
	exec := ExecutorFunc(func(context.Context, *Plan, *model.PropertyCache) error { return refused })
	l = NewLoop(monitor, newPlanner(t, &countingStepper{}, roomKnowledge{}), exec, 0)

	plan, err := l.RunOnce(context.Background())
	assert.ErrorIs(t, err, refused)
	assert.NotNil(t, plan)
}

func TestLoop_RunContinuesAfterFailuresUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	rounds := 0
	monitor := MonitorFunc(func(context.Context) (*model.PropertyCache, error) {
		mu.Lock()
		defer mu.Unlock()
		rounds++
		if rounds == 3 {
			cancel()
		}
		if rounds%2 == 1 {
			return nil, errors.New("flaky sensor")
		}
		return room(22), nil
	})

	l := NewLoop(monitor, newPlanner(t, &countingStepper{}, roomKnowledge{}), nil, time.Millisecond)
	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, rounds)
}
