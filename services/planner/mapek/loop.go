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
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Loop drives Monitor -> Plan -> Execute -> Record.
type Loop struct {
	monitor  Monitor
	planner  *Planner
	executor Executor
	recorder Recorder
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithRecorder records every round.
func WithRecorder(r Recorder) LoopOption {
	return func(l *Loop) { l.recorder = r }
}

// WithLoopLogger sets the logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) { l.logger = logger }
}

// NewLoop creates a loop that starts at most one round per interval. The
// first round starts immediately.
func NewLoop(monitor Monitor, planner *Planner, executor Executor, interval time.Duration, opts ...LoopOption) *Loop {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	l := &Loop{
		monitor:  monitor,
		planner:  planner,
		executor: executor,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run repeats rounds until ctx is done. Round failures are logged and do
// not stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("control loop started", slog.String("strategy", l.planner.Strategy()))
	defer l.logger.Info("control loop stopped")

	for {
		if err := l.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("loop pacing: %w", err)
		}
		if _, err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Error("control round failed", slog.String("error", err.Error()))
		}
	}
}

// RunOnce performs a single round and returns its plan. Recording errors
// are logged, not returned.
func (l *Loop) RunOnce(ctx context.Context) (*Plan, error) {
	cache, err := l.monitor.Monitor(ctx)
	if err != nil {
		loopStagesTotal.WithLabelValues("monitor").Inc()
		return nil, fmt.Errorf("monitor: %w", err)
	}

	plan, err := l.planner.Plan(ctx, cache)
	if err != nil {
		loopStagesTotal.WithLabelValues("plan").Inc()
		return nil, fmt.Errorf("plan: %w", err)
	}

	if !plan.Empty() {
		if err := l.executor.Execute(ctx, plan, cache); err != nil {
			loopStagesTotal.WithLabelValues("execute").Inc()
			return plan, fmt.Errorf("execute round %s: %w", plan.RoundID, err)
		}
		actionsExecuted.Add(float64(len(plan.FirstActions)))
	}

	if l.recorder != nil {
		if err := l.recorder.Record(ctx, plan); err != nil && !errors.Is(err, context.Canceled) {
			loopStagesTotal.WithLabelValues("record").Inc()
			l.logger.Warn("round not recorded",
				slog.String("round_id", plan.RoundID),
				slog.String("error", err.Error()),
			)
		}
	}
	return plan, nil
}
