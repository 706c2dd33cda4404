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
	"time"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

// Stepper advances the twin by one tick.
//
// Step must not modify cache; it returns the snapshot after applying
// actions for duration. Implementations must be safe for concurrent use
// when the builder runs with more than one worker.
type Stepper interface {
	Step(ctx context.Context, cache *model.PropertyCache, actions []model.Action, duration time.Duration) (*model.PropertyCache, error)
}

// StepFunc adapts a function to Stepper.
type StepFunc func(ctx context.Context, cache *model.PropertyCache, actions []model.Action, duration time.Duration) (*model.PropertyCache, error)

// Step calls f.
func (f StepFunc) Step(ctx context.Context, cache *model.PropertyCache, actions []model.Action, duration time.Duration) (*model.PropertyCache, error) {
	return f(ctx, cache, actions, duration)
}

// ActuatorStates reports the discrete states an actuator can be driven to.
// An empty result means the actuator is not registered.
type ActuatorStates interface {
	States(actuator string) []model.Value
}

// StaticStates is a fixed ActuatorStates registry.
type StaticStates map[string][]model.Value

// States implements ActuatorStates.
func (s StaticStates) States(actuator string) []model.Value {
	return s[actuator]
}
