// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mapek runs the Monitor, Plan and Execute stages of the twin's
// control loop over a shared Knowledge base.
//
// Planner performs one planning round on a snapshot. Loop repeats
// Monitor -> Plan -> Execute -> Record at a fixed pace.
package mapek

import (
	"context"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

// Knowledge supplies goals and candidate actions for a snapshot.
type Knowledge interface {
	// Conditions returns the goals that must hold.
	Conditions(ctx context.Context, cache *model.PropertyCache) ([]constraint.Condition, error)

	// OptimalConditions returns the goals used to rank simulated futures.
	OptimalConditions(ctx context.Context, cache *model.PropertyCache) ([]constraint.OptimalCondition, error)

	// RelevantActions returns the actions that may correct the currently
	// violated conditions. An empty result means nothing needs doing.
	RelevantActions(ctx context.Context, cache *model.PropertyCache) ([]model.Action, error)
}

// Monitor observes the twin.
type Monitor interface {
	Monitor(ctx context.Context) (*model.PropertyCache, error)
}

// Executor applies a plan. Only plan.FirstActions are applied; later ticks
// are re-planned next round.
type Executor interface {
	Execute(ctx context.Context, plan *Plan, cache *model.PropertyCache) error
}

// Recorder keeps an audit trail of rounds.
type Recorder interface {
	Record(ctx context.Context, plan *Plan) error
}

// MonitorFunc adapts a function to Monitor.
type MonitorFunc func(ctx context.Context) (*model.PropertyCache, error)

// Monitor implements Monitor.
func (f MonitorFunc) Monitor(ctx context.Context) (*model.PropertyCache, error) { return f(ctx) }

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, plan *Plan, cache *model.PropertyCache) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, plan *Plan, cache *model.PropertyCache) error {
	return f(ctx, plan, cache)
}
