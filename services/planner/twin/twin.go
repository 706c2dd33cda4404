// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package twin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianTwin/services/planner/mapek"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

// MaxCatchUp bounds how much simulated time a single observation may
// integrate after a long pause.
const MaxCatchUp = time.Hour

// Twin is a live zone driven by a ThermalModel. It serves as the Monitor
// and the Executor of a control loop: Monitor advances the zone by the
// wall time elapsed since the previous observation and Execute applies a
// plan's first actions to the zone.
//
// Thread Safety: Safe for concurrent use.
type Twin struct {
	model  *ThermalModel
	logger *slog.Logger
	now    func() time.Time
	speed  float64

	mu       sync.Mutex
	state    *model.PropertyCache
	observed time.Time
}

// TwinOption configures a Twin.
type TwinOption func(*Twin)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) TwinOption {
	return func(t *Twin) { t.now = now }
}

// WithSpeed makes simulated time run factor times faster than wall time.
func WithSpeed(factor float64) TwinOption {
	return func(t *Twin) {
		if factor > 0 {
			t.speed = factor
		}
	}
}

// WithTwinLogger sets the logger.
func WithTwinLogger(logger *slog.Logger) TwinOption {
	return func(t *Twin) { t.logger = logger }
}

// New creates a live twin starting from initial.
func New(m *ThermalModel, initial *model.PropertyCache, opts ...TwinOption) *Twin {
	t := &Twin{
		model:  m,
		logger: slog.Default(),
		now:    time.Now,
		speed:  1,
		state:  initial,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.observed = t.now()
	return t
}

// InitialSnapshot returns a zone at temperature with the heater, cooler
// and fan idle.
func InitialSnapshot(temperature float64) *model.PropertyCache {
	return model.NewPropertyCache(
		[]model.Property{
			model.NewProperty(PropertyTemperature, model.DoubleValue(temperature)),
			model.NewProperty(PropertyEnergy, model.DoubleValue(0)),
			model.NewProperty(ActuatorHeater, model.StringValue(StateOff)),
			model.NewProperty(ActuatorCooler, model.StringValue(StateOff)),
		},
		[]model.ConfigurableParameter{{
			Property:        model.NewProperty(ParameterFanSpeed, model.IntValue(0)),
			LowerLimit:      model.IntValue(0),
			UpperLimit:      model.IntValue(100),
			ValueIncrements: model.IntValue(25),
		}},
	)
}

// Snapshot returns the current state without advancing time.
func (t *Twin) Snapshot() *model.PropertyCache {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Monitor implements mapek.Monitor.
func (t *Twin) Monitor(ctx context.Context) (*model.PropertyCache, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	elapsed := time.Duration(float64(now.Sub(t.observed)) * t.speed)
	t.observed = now
	if elapsed > MaxCatchUp {
		t.logger.Warn("twin paused, clamping catch-up",
			slog.Duration("elapsed", elapsed),
			slog.Duration("max", MaxCatchUp),
		)
		elapsed = MaxCatchUp
	}
	if elapsed <= 0 {
		return t.state, nil
	}
	next, err := t.model.Step(ctx, t.state, nil, elapsed)
	if err != nil {
		return nil, fmt.Errorf("advance twin: %w", err)
	}
	t.state = next
	return next, nil
}

// Execute implements mapek.Executor. Actions apply to the live state, not
// to the snapshot the plan was made from.
func (t *Twin) Execute(ctx context.Context, plan *mapek.Plan, _ *model.PropertyCache) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := t.model.Step(ctx, t.state, plan.FirstActions, 0)
	if err != nil {
		return fmt.Errorf("apply round %s: %w", plan.RoundID, err)
	}
	t.state = next
	for _, a := range plan.FirstActions {
		t.logger.Info("twin actuated",
			slog.String("round_id", plan.RoundID),
			slog.String("target", a.Target),
			slog.String("value", a.Value.String()),
		)
	}
	return nil
}
