// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/AleutianAI/AleutianTwin/pkg/logging"
	"github.com/AleutianAI/AleutianTwin/pkg/telemetry"
	"github.com/AleutianAI/AleutianTwin/services/planner/casebase"
	"github.com/AleutianAI/AleutianTwin/services/planner/config"
	"github.com/AleutianAI/AleutianTwin/services/planner/knowledge"
	"github.com/AleutianAI/AleutianTwin/services/planner/mapek"
	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
	storebadger "github.com/AleutianAI/AleutianTwin/services/planner/storage/badger"
	"github.com/AleutianAI/AleutianTwin/services/planner/twin"
)

// app holds the components shared by serve and plan.
type app struct {
	cfg       config.Config
	logger    *logging.Logger
	knowledge *knowledge.FileKnowledge
	thermal   *twin.ThermalModel
	stepper   *simtree.BreakingStepper
	planner   *mapek.Planner

	closers []func(context.Context) error
}

// newLogger writes to out, or stderr when out is nil.
func newLogger(cfg config.ObservabilityConfig, out io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.LogDir,
		Service: cfg.ServiceName,
		JSON:    cfg.LogJSON,
		Output:  out,
	}), nil
}

// newApp wires telemetry, knowledge, the thermal twin, the simulation
// tree, the case store and the planner. Components created here are
// released by close, in reverse order.
func newApp(ctx context.Context, cfg config.Config, logger *logging.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()
	slogger := logger.Slog()

	exporter := telemetry.ExporterNone
	if cfg.Observability.TracingEnabled {
		exporter = cfg.Observability.Exporter
	}
	tp, shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: Version,
		Exporter:       exporter,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		OTLPInsecure:   true,
		SampleRate:     cfg.Observability.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	a.knowledge, err = knowledge.Load(cfg.Knowledge.Path)
	if err != nil {
		return nil, fmt.Errorf("load knowledge: %w", err)
	}

	a.thermal = twin.NewThermalModel(cfg.Twin.Thermal)
	a.stepper = simtree.NewBreakingStepper(a.thermal, cfg.CircuitBreaker)

	builder, err := simtree.NewBuilder(a.stepper, cfg.Planner.Tree(),
		simtree.WithActuatorStates(a.knowledge),
		simtree.WithBudget(cfg.Budget.ToTreeBudgetConfig()),
		simtree.WithLogger(slogger),
		simtree.WithTracer(simtree.NewTracer(tp, slogger, cfg.Observability.TracingEnabled)),
	)
	if err != nil {
		return nil, fmt.Errorf("simulation tree: %w", err)
	}

	opts := []mapek.PlannerOption{
		mapek.WithStrategy(cfg.Planner.Strategy, cfg.Planner.Changes...),
		mapek.WithPlannerLogger(slogger),
		mapek.WithTracerProvider(tp),
	}
	store, err := openStore(ctx, cfg.Casebase, slogger)
	if err != nil {
		return nil, fmt.Errorf("open case store: %w", err)
	}
	if store != nil {
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		opts = append(opts, mapek.WithMemoizer(casebase.NewMemoizer(store,
			casebase.WithQuantizer(cfg.Casebase.Quantizer()),
			casebase.WithLogger(slogger),
		)))
	}

	a.planner = mapek.NewPlanner(a.knowledge, builder, opts...)
	slogger.Info("planner ready",
		slog.String("strategy", cfg.Planner.Strategy),
		slog.Int("lookahead_cycles", cfg.Planner.LookAheadCycles),
		slog.String("casebase", cfg.Casebase.Backend),
		slog.String("knowledge", cfg.Knowledge.Path),
	)
	return a, nil
}

// openStore returns nil for the "none" backend.
func openStore(ctx context.Context, cfg config.CasebaseConfig, logger *slog.Logger) (casebase.Store, error) {
	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		return casebase.NewMemoryStore(), nil
	case config.BackendBadger:
		bcfg := storebadger.DefaultConfig(cfg.Path)
		bcfg.Logger = logger
		return casebase.OpenBadgerStore(bcfg)
	case config.BackendSQLite:
		return casebase.OpenSQLiteStore(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
