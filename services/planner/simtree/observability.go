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
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

const simtreeTracerName = "aleutiantwin.simtree"

// Tracer emits spans and structured logs for tree builds.
//
// When disabled every Start method returns a no-op span, so callers do not
// branch on whether tracing is on.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewTracer creates a Tracer. A nil provider uses the global one.
func NewTracer(provider trace.TracerProvider, logger *slog.Logger, enabled bool) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{
		tracer:  provider.Tracer(simtreeTracerName),
		logger:  logger,
		enabled: enabled,
	}
}

// StartBuild opens the simtree.build span.
func (t *Tracer) StartBuild(ctx context.Context, cfg Config, catalogSize int) (context.Context, trace.Span) {
	t.logger.DebugContext(ctx, "simulation tree build started",
		slog.Int("lookahead_cycles", cfg.LookAheadCycles),
		slog.Duration("tick", cfg.TickDuration),
		slog.Int("catalog_size", catalogSize),
		slog.Int("workers", cfg.Workers),
	)
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "simtree.build",
		trace.WithAttributes(
			attribute.Int("simtree.lookahead_cycles", cfg.LookAheadCycles),
			attribute.String("simtree.tick", cfg.TickDuration.String()),
			attribute.Int("simtree.catalog_size", catalogSize),
			attribute.Int("simtree.workers", cfg.Workers),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndBuild closes the build span with the tree shape and budget usage.
func (t *Tracer) EndBuild(ctx context.Context, span trace.Span, tree *Tree, budget *Budget, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	report := budget.Report()
	span.SetAttributes(
		attribute.Int64("simtree.result.nodes_explored", report.NodesExplored),
		attribute.String("simtree.result.elapsed", report.Elapsed.String()),
	)
	if tree != nil {
		span.SetAttributes(
			attribute.Int("simtree.result.depth", tree.Root.Depth()),
			attribute.Int("simtree.result.paths", len(tree.Paths())),
			attribute.Bool("simtree.result.truncated", tree.Truncated),
			attribute.Int("simtree.result.steps_failed", tree.Stats.StepsFailed),
		)
	}
	span.End()

	if tree != nil {
		LoggerWithTrace(ctx, t.logger).InfoContext(ctx, "simulation tree built",
			slog.Int("depth", tree.Root.Depth()),
			slog.Int("nodes", tree.Root.ChildrenCount()),
			slog.Int("paths", len(tree.Paths())),
			slog.Int("steps_failed", tree.Stats.StepsFailed),
			slog.Bool("truncated", tree.Truncated),
			slog.String("truncated_by", tree.TruncatedBy),
			slog.Duration("elapsed", report.Elapsed),
		)
	}
}

// StartLevel opens a simtree.level span.
func (t *Tracer) StartLevel(ctx context.Context, depth, frontier, jobs int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "simtree.level",
		trace.WithAttributes(
			attribute.Int("simtree.depth", depth),
			attribute.Int("simtree.frontier", frontier),
			attribute.Int("simtree.jobs", jobs),
		),
	)
}

// EndLevel closes a level span.
func (t *Tracer) EndLevel(span trace.Span, created, failed int, interrupted bool) {
	span.SetAttributes(
		attribute.Int("simtree.level.created", created),
		attribute.Int("simtree.level.failed", failed),
		attribute.Bool("simtree.level.interrupted", interrupted),
	)
	span.End()
}

// StartStep opens a simtree.step span.
func (t *Tracer) StartStep(ctx context.Context, depth int, actions []model.Action) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "simtree.step",
		trace.WithAttributes(
			attribute.Int("simtree.depth", depth),
			attribute.String("simtree.actions", truncateForObs(model.ActionKeys(actions), 200)),
		),
	)
}

// EndStep closes a step span, recording err if set.
func (t *Tracer) EndStep(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func truncateForObs(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// LoggerWithTrace returns logger with trace_id and span_id when ctx carries
// a valid span.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
