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
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianTwin/services/planner/combinator"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/valuehandler"
)

var (
	// ErrInvalidConfig is returned by NewBuilder.
	ErrInvalidConfig = errors.New("invalid simulation tree config")

	// ErrNilCache is returned when Build is called without a snapshot.
	ErrNilCache = errors.New("nil property cache")

	// ErrUnknownTarget is returned when a reconfiguration names a parameter
	// absent from the snapshot being expanded.
	ErrUnknownTarget = errors.New("action target not in snapshot")

	// ErrNilResult is recorded when a stepper returns neither a snapshot
	// nor an error.
	ErrNilResult = errors.New("stepper returned nil snapshot")
)

// Config controls the shape of the lookahead.
type Config struct {
	// LookAheadCycles is the tree depth k. Zero yields a root-only tree.
	LookAheadCycles int

	// TickDuration is the simulated time advanced per tick.
	TickDuration time.Duration

	// RangeGranularity is passed to candidate enumeration for
	// reconfigurations. Zero steps by each parameter's value increment.
	RangeGranularity int

	// Workers bounds concurrent Step calls within a level.
	Workers int
}

// DefaultConfig returns a four-tick lookahead of five minutes per tick.
func DefaultConfig() Config {
	return Config{
		LookAheadCycles:  4,
		TickDuration:     5 * time.Minute,
		RangeGranularity: valuehandler.DefaultRangeGranularity,
		Workers:          1,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.LookAheadCycles < 0 {
		return fmt.Errorf("%w: lookahead cycles must be >= 0, got %d", ErrInvalidConfig, c.LookAheadCycles)
	}
	if c.TickDuration <= 0 {
		return fmt.Errorf("%w: tick duration must be positive, got %v", ErrInvalidConfig, c.TickDuration)
	}
	if c.RangeGranularity < 0 {
		return fmt.Errorf("%w: range granularity must be >= 0, got %d", ErrInvalidConfig, c.RangeGranularity)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}

// Builder expands simulation trees.
//
// Thread Safety: Safe for concurrent use; each Build has its own budget.
type Builder struct {
	stepper Stepper
	config  Config
	budget  BudgetConfig
	states  ActuatorStates
	logger  *slog.Logger
	tracer  *Tracer
}

// Option configures a Builder.
type Option func(*Builder)

// WithActuatorStates sets the actuator state registry.
func WithActuatorStates(states ActuatorStates) Option {
	return func(b *Builder) { b.states = states }
}

// WithBudget sets per-build limits.
func WithBudget(config BudgetConfig) Option {
	return func(b *Builder) { b.budget = config }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// WithTracer sets the tracer.
func WithTracer(tracer *Tracer) Option {
	return func(b *Builder) { b.tracer = tracer }
}

// NewBuilder creates a Builder around stepper.
func NewBuilder(stepper Stepper, config Config, opts ...Option) (*Builder, error) {
	if stepper == nil {
		return nil, fmt.Errorf("%w: nil stepper", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	b := &Builder{
		stepper: stepper,
		config:  config,
		budget:  DefaultBudgetConfig(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.tracer == nil {
		b.tracer = NewTracer(nil, b.logger, false)
	}
	return b, nil
}

// Config returns the builder's config.
func (b *Builder) Config() Config { return b.config }

// Build expands the lookahead tree from cache.
//
// Description:
//
//	Level by level, every frontier node gets one child per combination
//	of candidate actions, each child holding the snapshot produced by
//	stepping the twin from the parent's snapshot. Candidates are
//	recomputed per parent because reconfiguration candidates depend on
//	the parent's current parameter values.
//
// Inputs:
//   - ctx: Cancellation; checked at level boundaries and before each step.
//   - cache: The observed snapshot; becomes the root (index 0).
//   - catalog: Relevant actions. Actions sharing a target are alternatives.
//
// Outputs:
//   - *Tree: A tree whose surviving leaves all share one depth. Branches
//     whose step failed are pruned, as are frontier nodes left without
//     children. If the budget or ctx stops a level, that level is
//     discarded and Truncated is set.
//   - error: Candidate generation errors (unknown parameter, unsupported
//     value type). Step failures are not errors.
func (b *Builder) Build(ctx context.Context, cache *model.PropertyCache, catalog []model.Action) (tree *Tree, err error) {
	if cache == nil {
		return nil, ErrNilCache
	}
	budget := NewBudget(b.budget)
	start := time.Now()
	ctx, span := b.tracer.StartBuild(ctx, b.config, len(catalog))
	defer func() {
		b.tracer.EndBuild(ctx, span, tree, budget, err)
		buildDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			result := "complete"
			if tree.Truncated {
				result = sanitizeTruncation(tree.TruncatedBy)
			}
			buildsTotal.WithLabelValues(result).Inc()
			treePaths.Observe(float64(len(tree.Paths())))
		}
	}()

	root := &Node{Item: Simulation{Index: 0, Result: cache}}
	tree = &Tree{Root: root}
	if len(catalog) == 0 || b.config.LookAheadCycles == 0 {
		return tree, nil
	}

	logger := LoggerWithTrace(ctx, b.logger)
	frontier := []*Node{root}
	completed := 0
	for depth := 1; depth <= b.config.LookAheadCycles; depth++ {
		if reason := stopReason(ctx, budget, depth); reason != "" {
			tree.Truncated, tree.TruncatedBy = true, reason
			break
		}
		next, reason, err := b.expandLevel(ctx, logger, budget, tree, frontier, catalog, depth)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			tree.Truncated, tree.TruncatedBy = true, reason
			logger.Warn("lookahead level discarded",
				slog.Int("depth", depth),
				slog.String("reason", reason),
			)
			break
		}
		completed = depth
		tree.Stats.Levels = depth
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	_, tree.Stats.Pruned = prune(root, 0, completed)
	return tree, nil
}

func stopReason(ctx context.Context, budget *Budget, depth int) string {
	switch {
	case ctx.Err() != nil:
		return "context"
	case budget.CheckDepth(depth) != nil:
		return "depth"
	case budget.Exhausted():
		return budget.ExhaustedBy()
	default:
		return ""
	}
}

type stepJob struct {
	parent  int
	actions []model.Action
}

// expandLevel steps every combination for every frontier node. Results are
// written to pre-indexed slots so the child order does not depend on
// worker scheduling. Children are attached only if the whole level ran.
func (b *Builder) expandLevel(
	ctx context.Context,
	logger *slog.Logger,
	budget *Budget,
	tree *Tree,
	frontier []*Node,
	catalog []model.Action,
	depth int,
) ([]*Node, string, error) {
	var jobs []stepJob
	for i, parent := range frontier {
		seqs, err := b.candidates(parent.Item.Result, catalog)
		if err != nil {
			return nil, "", err
		}
		for combo := range combinator.All(seqs) {
			jobs = append(jobs, stepJob{parent: i, actions: combo})
		}
	}

	levelCtx, span := b.tracer.StartLevel(ctx, depth, len(frontier), len(jobs))
	results := make([]*Node, len(jobs))
	var attempted, failed atomic.Int64
	var interrupted atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(max(1, b.config.Workers))
	for idx := range jobs {
		g.Go(func() error {
			if interrupted.Load() {
				return nil
			}
			if ctx.Err() != nil || budget.Exhausted() {
				interrupted.Store(true)
				return nil
			}
			job := jobs[idx]
			parent := frontier[job.parent]

			attempted.Add(1)
			stepCtx, stepSpan := b.tracer.StartStep(levelCtx, depth, job.actions)
			res, err := b.stepper.Step(stepCtx, parent.Item.Result, job.actions, b.config.TickDuration)
			if err == nil && res == nil {
				err = ErrNilResult
			}
			b.tracer.EndStep(stepSpan, err)

			if err != nil {
				if ctx.Err() != nil {
					interrupted.Store(true)
					return nil
				}
				failed.Add(1)
				if !errors.Is(err, ErrCircuitOpen) {
					stepsTotal.WithLabelValues("failed").Inc()
				}
				logger.Warn("twin step failed, pruning branch",
					slog.Int("depth", depth),
					slog.String("actions", model.ActionKeys(job.actions)),
					slog.String("error", err.Error()),
				)
				return nil
			}

			stepsTotal.WithLabelValues("ok").Inc()
			budget.RecordNodeExplored()
			results[idx] = &Node{Item: Simulation{
				Index:                 depth,
				Actions:               job.actions,
				InitializationActions: parent.Item.Actions,
				Result:                res,
			}}
			return nil
		})
	}
	_ = g.Wait()

	tree.Stats.StepsAttempted += int(attempted.Load())
	tree.Stats.StepsFailed += int(failed.Load())

	if interrupted.Load() {
		b.tracer.EndLevel(span, 0, int(failed.Load()), true)
		if ctx.Err() != nil {
			return nil, "context", nil
		}
		return nil, budget.ExhaustedBy(), nil
	}

	next := make([]*Node, 0, len(jobs))
	for idx, n := range results {
		if n == nil {
			continue
		}
		p := frontier[jobs[idx].parent]
		p.Children = append(p.Children, n)
		next = append(next, n)
	}
	b.tracer.EndLevel(span, len(next), int(failed.Load()), false)
	logger.Debug("lookahead level expanded",
		slog.Int("depth", depth),
		slog.Int("frontier", len(frontier)),
		slog.Int("combinations", len(jobs)),
		slog.Int("created", len(next)),
		slog.Int64("failed", failed.Load()),
	)
	return next, "", nil
}

// candidates returns one alternative sequence per target, in first-seen
// catalog order, evaluated against the parent's snapshot.
func (b *Builder) candidates(cache *model.PropertyCache, catalog []model.Action) ([][]model.Action, error) {
	type groupKey struct {
		kind   model.ActionKind
		target string
	}
	groups := make(map[groupKey][]model.Action)
	var order []groupKey
	for _, a := range catalog {
		k := groupKey{a.Kind, a.Target}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], a)
	}

	seqs := make([][]model.Action, 0, len(order))
	for _, k := range order {
		group := groups[k]
		switch k.kind {
		case model.Actuation:
			seqs = append(seqs, b.actuationCandidates(k.target, group))
		case model.Reconfiguration:
			cands, err := b.reconfigurationCandidates(cache, k.target, group)
			if err != nil {
				return nil, err
			}
			seqs = append(seqs, cands)
		default:
			return nil, fmt.Errorf("%w: action %q has kind %s", ErrInvalidConfig, group[0].Name, k.kind)
		}
	}
	return seqs, nil
}

// actuationCandidates returns one action per registered state. Without a
// registration, the distinct states present in the catalog are used.
func (b *Builder) actuationCandidates(actuator string, group []model.Action) []model.Action {
	var states []model.Value
	if b.states != nil {
		states = b.states.States(actuator)
	}
	if len(states) == 0 {
		seen := make(map[model.Value]bool, len(group))
		for _, a := range group {
			if !seen[a.Value] {
				seen[a.Value] = true
				states = append(states, a.Value)
			}
		}
	}
	out := make([]model.Action, len(states))
	for i, s := range states {
		name := group[0].Name
		for _, a := range group {
			if a.Value.Equal(s) {
				name = a.Name
				break
			}
		}
		out[i] = model.NewActuation(name, actuator, s)
	}
	return out
}

// reconfigurationCandidates enumerates new values for one parameter. Each
// requested effect contributes its candidates; an action without an
// effect contributes its explicit value. The current value comes last.
func (b *Builder) reconfigurationCandidates(cache *model.PropertyCache, parameter string, group []model.Action) ([]model.Action, error) {
	param, ok := cache.Parameter(parameter)
	if !ok {
		return nil, fmt.Errorf("%w: parameter %s", ErrUnknownTarget, parameter)
	}
	h, err := valuehandler.ForProperty(param.Property)
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", parameter, err)
	}

	seen := map[model.Value]bool{param.Value: true}
	var out []model.Action
	for _, a := range group {
		if a.Effect == model.EffectNone {
			if !a.Value.IsValid() || seen[a.Value] {
				continue
			}
			if a.Value.Kind() != param.Value.Kind() {
				return nil, fmt.Errorf("parameter %s: %w: action %q sets %s", parameter, model.ErrKindMismatch, a.Name, a.Value.Kind())
			}
			seen[a.Value] = true
			out = append(out, a)
			continue
		}
		values, err := h.EnumerateCandidates(param, a.Effect, b.config.RangeGranularity)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", parameter, err)
		}
		for _, v := range values {
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, model.NewReconfiguration(a.Name, parameter, v, a.Effect))
		}
	}
	return append(out, model.NewReconfiguration(group[0].Name, parameter, param.Value, model.EffectNone)), nil
}

// prune removes nodes above target depth that have no children, bottom
// up. It reports whether n survives and how many nodes were removed.
func prune(n *Node, depth, target int) (bool, int) {
	if depth >= target {
		return true, 0
	}
	removed := 0
	kept := n.Children[:0]
	for _, c := range n.Children {
		keep, r := prune(c, depth+1, target)
		removed += r
		if keep {
			kept = append(kept, c)
		} else {
			removed++
		}
	}
	if len(kept) == 0 {
		n.Children = nil
		return false, removed
	}
	n.Children = kept
	return true, removed
}
