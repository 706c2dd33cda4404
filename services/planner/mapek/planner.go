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

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianTwin/services/planner/casebase"
	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/scoring"
	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
)

const mapekTracerName = "aleutiantwin.mapek"

var (
	// ErrRoundAborted wraps any error that stops a planning round before a
	// plan could be made.
	ErrRoundAborted = errors.New("planning round aborted")

	// ErrNilSnapshot is returned when Plan is called without a snapshot.
	ErrNilSnapshot = errors.New("nil snapshot")
)

// Planner runs one planning round per call.
//
// Thread Safety: Safe for concurrent use if its Knowledge, Builder stepper
// and case store are.
type Planner struct {
	knowledge Knowledge
	builder   *simtree.Builder
	memo      *casebase.Memoizer
	strategy  string
	changes   []scoring.PropertyChange
	logger    *slog.Logger
	tracer    trace.Tracer
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithMemoizer enables case-based memoization.
func WithMemoizer(m *casebase.Memoizer) PlannerOption {
	return func(p *Planner) { p.memo = m }
}

// WithStrategy selects the scoring strategy by name. changes are only used
// by the directional strategy.
func WithStrategy(name string, changes ...scoring.PropertyChange) PlannerOption {
	return func(p *Planner) {
		p.strategy = name
		p.changes = changes
	}
}

// WithPlannerLogger sets the logger.
func WithPlannerLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) { p.logger = logger }
}

// WithTracerProvider sets the span source. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) PlannerOption {
	return func(p *Planner) { p.tracer = tp.Tracer(mapekTracerName) }
}

// NewPlanner creates a Planner. The default strategy is Euclidean.
func NewPlanner(knowledge Knowledge, builder *simtree.Builder, opts ...PlannerOption) *Planner {
	p := &Planner{
		knowledge: knowledge,
		builder:   builder,
		strategy:  scoring.NameEuclidean,
		logger:    slog.Default(),
		tracer:    otel.Tracer(mapekTracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Strategy returns the configured strategy name.
func (p *Planner) Strategy() string { return p.strategy }

// Plan performs one planning round.
//
// Description:
//
//	Evaluates the conditions against cache, fetches the relevant actions,
//	then either replays a memoized plan or builds the simulation tree and
//	selects a path with the configured strategy. Newly selected paths are
//	memoized. Missing properties, malformed values and unsupported
//	constraints abort the round with ErrRoundAborted.
//
// Inputs:
//
//	ctx - Cancels tree expansion and store I/O.
//	cache - The observed snapshot. Not modified.
//
// Outputs:
//
//	*Plan - Never nil when err is nil. May be empty.
//	error - Wraps ErrRoundAborted.
func (p *Planner) Plan(ctx context.Context, cache *model.PropertyCache) (plan *Plan, err error) {
	if cache == nil {
		return nil, fmt.Errorf("%w: %w", ErrRoundAborted, ErrNilSnapshot)
	}
	start := time.Now()
	plan = &Plan{RoundID: uuid.NewString(), CreatedAt: start.UTC(), Strategy: p.strategy}

	ctx, span := p.tracer.Start(ctx, "mapek.plan",
		trace.WithAttributes(
			attribute.String("mapek.round_id", plan.RoundID),
			attribute.String("mapek.strategy", p.strategy),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			planRoundsTotal.WithLabelValues("aborted").Inc()
		} else {
			span.SetAttributes(
				attribute.Int("mapek.first_actions", len(plan.FirstActions)),
				attribute.Bool("mapek.from_case", plan.FromCase),
				attribute.Float64("mapek.score", plan.Score),
			)
			planRoundsTotal.WithLabelValues(planOutcome(plan)).Inc()
		}
		planDuration.Observe(time.Since(start).Seconds())
		span.End()
	}()
	logger := simtree.LoggerWithTrace(ctx, p.logger).With(slog.String("round_id", plan.RoundID))

	unsatisfied, err := p.evaluateConditions(ctx, cache)
	if err != nil {
		return nil, err
	}
	plan.Unsatisfied = unsatisfied
	plan.Violations = violations(unsatisfied)
	for _, v := range plan.Violations {
		logger.InfoContext(ctx, "condition violated",
			slog.String("condition", v.Condition),
			slog.String("property", v.Property),
			slog.String("value", v.Value),
			slog.Any("atoms", v.Atoms),
		)
	}

	optimal, err := p.evaluateOptimal(ctx, cache)
	if err != nil {
		return nil, err
	}

	catalog, err := p.knowledge.RelevantActions(ctx, cache)
	if err != nil {
		return nil, fmt.Errorf("%w: relevant actions: %w", ErrRoundAborted, err)
	}
	if len(catalog) == 0 {
		plan.Reason = ReasonNoActions
		if len(unsatisfied) == 0 {
			plan.Reason = ReasonSatisfied
		}
		logger.InfoContext(ctx, "no action planned", slog.String("reason", plan.Reason))
		return plan, nil
	}
	logger.DebugContext(ctx, "relevant actions", slog.String("actions", model.ActionKeys(catalog)))

	strategy, err := scoring.New(p.strategy, scoring.Options{Changes: p.changes, Optimal: optimal, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRoundAborted, err)
	}

	cfg := p.builder.Config()
	if p.memo != nil {
		if path, ok := p.memo.LookupPlan(ctx, cache, optimal, cfg.LookAheadCycles, cfg.TickDuration); ok {
			plan.FromCase = true
			plan.Candidates = 1
			p.choose(ctx, logger, plan, strategy, []simtree.Path{path})
			return plan, nil
		}
	}

	tree, err := p.builder.Build(ctx, cache, catalog)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRoundAborted, err)
	}
	plan.Truncated = tree.Truncated
	paths := tree.Paths()
	plan.Candidates = len(paths)
	logger.InfoContext(ctx, "simulation tree built",
		slog.Int("paths", len(paths)),
		slog.Int("steps", tree.Stats.StepsAttempted),
		slog.Int("steps_failed", tree.Stats.StepsFailed),
		slog.Bool("truncated", tree.Truncated),
	)
	if len(paths) == 0 {
		plan.Reason = ReasonNoPaths
		if cfg.LookAheadCycles == 0 {
			plan.Reason = ReasonNoLookahead
		}
		logger.WarnContext(ctx, "no action planned", slog.String("reason", plan.Reason))
		return plan, nil
	}

	// A tree cut short by the deadline is still scored.
	scoreCtx := ctx
	if tree.Truncated {
		scoreCtx = context.WithoutCancel(ctx)
	}
	if !p.choose(scoreCtx, logger, plan, strategy, paths) {
		return plan, nil
	}
	// Cases are keyed by the configured lookahead, so partial trees are not stored.
	if p.memo != nil && !tree.Truncated {
		p.memo.StorePlan(ctx, cache, optimal, cfg.LookAheadCycles, cfg.TickDuration, plan.Path)
	}
	return plan, nil
}

// choose runs the strategy and fills the plan. A selection failure leaves
// the plan empty and returns false.
func (p *Planner) choose(ctx context.Context, logger *slog.Logger, plan *Plan, strategy scoring.Strategy, paths []simtree.Path) bool {
	sel, err := strategy.Select(ctx, paths)
	if err != nil {
		plan.Reason = ReasonNoSelection
		logger.WarnContext(ctx, "path selection failed", slog.String("error", err.Error()))
		return false
	}
	plan.Path = sel.Path
	plan.FirstActions = sel.Path.FirstActions()
	plan.Score = sel.Score
	logger.InfoContext(ctx, "path selected",
		slog.String("strategy", strategy.Name()),
		slog.Int("index", sel.Index),
		slog.Float64("score", sel.Score),
		slog.Bool("from_case", plan.FromCase),
		slog.String("path", sel.Path.String()),
	)
	return true
}

func (p *Planner) evaluateConditions(ctx context.Context, cache *model.PropertyCache) ([]constraint.Result, error) {
	conds, err := p.knowledge.Conditions(ctx, cache)
	if err != nil {
		return nil, fmt.Errorf("%w: conditions: %w", ErrRoundAborted, err)
	}
	var unsatisfied []constraint.Result
	for _, c := range conds {
		res, err := constraint.EvaluateCondition(c, cache)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRoundAborted, err)
		}
		if !res.Satisfied {
			unsatisfied = append(unsatisfied, res)
		}
	}
	return unsatisfied, nil
}

func (p *Planner) evaluateOptimal(ctx context.Context, cache *model.PropertyCache) ([]constraint.OptimalCondition, error) {
	optimal, err := p.knowledge.OptimalConditions(ctx, cache)
	if err != nil {
		return nil, fmt.Errorf("%w: optimal conditions: %w", ErrRoundAborted, err)
	}
	out := make([]constraint.OptimalCondition, len(optimal))
	for i, oc := range optimal {
		if out[i], err = constraint.EvaluateOptimal(oc, cache); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRoundAborted, err)
		}
	}
	return out, nil
}

func planOutcome(plan *Plan) string {
	switch {
	case plan.FromCase:
		return "cached"
	case plan.Empty():
		return "empty"
	default:
		return "planned"
	}
}
