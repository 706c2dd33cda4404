// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package casebase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
)

var (
	lookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twin",
			Subsystem: "casebase",
			Name:      "lookups_total",
			Help:      "Plan lookups by result (hit, partial, miss, error)",
		},
		[]string{"result"},
	)

	storesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twin",
			Subsystem: "casebase",
			Name:      "stores_total",
			Help:      "Case writes by result (ok, error)",
		},
		[]string{"result"},
	)
)

// Memoizer reads and writes whole plans as one case per tick.
//
// Thread Safety: Safe for concurrent use. Identical concurrent lookups are
// collapsed into one round of store reads.
type Memoizer struct {
	store     Store
	quantizer Quantizer
	logger    *slog.Logger
	group     singleflight.Group
}

// MemoizerOption configures a Memoizer.
type MemoizerOption func(*Memoizer)

// WithQuantizer replaces DefaultQuantizer.
func WithQuantizer(q Quantizer) MemoizerOption {
	return func(m *Memoizer) { m.quantizer = q }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) MemoizerOption {
	return func(m *Memoizer) { m.logger = logger }
}

// NewMemoizer creates a Memoizer over store.
func NewMemoizer(store Store, opts ...MemoizerOption) *Memoizer {
	m := &Memoizer{store: store, quantizer: DefaultQuantizer(), logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key builds the tick-0 key for a planning situation.
func (m *Memoizer) Key(cache *model.PropertyCache, optimal []constraint.OptimalCondition, cycles int, tick time.Duration) Key {
	return Key{
		Properties:                m.quantizer.Properties(cache),
		Conditions:                Conditions(optimal),
		LookAheadCycles:           cycles,
		SimulationDurationSeconds: int64(tick / time.Second),
	}
}

// LookupPlan returns a memoized path for the situation.
//
// Description:
//
//	Reads the cases for ticks 1..cycles and stops at the first miss. The
//	returned path starts with a root simulation holding cache, followed by
//	the contiguous run of stored ticks. It is a hit only when tick 1 is
//	stored. Store errors are logged and treated as a miss.
//
// Outputs:
//
//	simtree.Path - Root plus stored ticks. Nil on a miss.
//	bool - True on a hit.
func (m *Memoizer) LookupPlan(ctx context.Context, cache *model.PropertyCache, optimal []constraint.OptimalCondition, cycles int, tick time.Duration) (simtree.Path, bool) {
	base := m.Key(cache, optimal, cycles, tick)
	flightKey, err := base.Digest()
	if err != nil {
		m.logger.WarnContext(ctx, "case key not encodable, skipping lookup", slog.String("error", err.Error()))
		lookupsTotal.WithLabelValues("error").Inc()
		return nil, false
	}

	v, err, _ := m.group.Do(flightKey, func() (any, error) {
		return m.readTicks(ctx, base, cycles)
	})
	if err != nil {
		m.logger.WarnContext(ctx, "case lookup failed, treating as miss", slog.String("error", err.Error()))
		lookupsTotal.WithLabelValues("error").Inc()
		return nil, false
	}
	ticks := v.([]simtree.Simulation)
	if len(ticks) == 0 {
		lookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	result := "hit"
	if len(ticks) < cycles {
		result = "partial"
	}
	lookupsTotal.WithLabelValues(result).Inc()
	m.logger.DebugContext(ctx, "case lookup",
		slog.String("result", result),
		slog.Int("ticks", len(ticks)),
		slog.Int("cycles", cycles),
	)

	path := make(simtree.Path, 0, len(ticks)+1)
	path = append(path, simtree.Simulation{Index: 0, Result: cache})
	return append(path, ticks...), true
}

func (m *Memoizer) readTicks(ctx context.Context, base Key, cycles int) ([]simtree.Simulation, error) {
	var ticks []simtree.Simulation
	for i := 1; i <= cycles; i++ {
		c, err := m.store.Lookup(ctx, base.WithIndex(i))
		if errors.Is(err, ErrCaseNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		sim := c.Simulation
		sim.Index = i
		ticks = append(ticks, sim)
	}
	return ticks, nil
}

// StorePlan writes one case per tick of path, keyed by the situation the
// plan was made in. Failures are logged and skipped. It returns the number
// of cases written.
func (m *Memoizer) StorePlan(ctx context.Context, cache *model.PropertyCache, optimal []constraint.OptimalCondition, cycles int, tick time.Duration, path simtree.Path) int {
	base := m.Key(cache, optimal, cycles, tick)
	written := 0
	for _, sim := range path.Ticks() {
		c := NewCase(base.WithIndex(sim.Index), sim)
		if err := m.store.Store(ctx, c); err != nil {
			storesTotal.WithLabelValues("error").Inc()
			m.logger.WarnContext(ctx, "case store failed",
				slog.Int("index", sim.Index),
				slog.String("error", err.Error()),
			)
			continue
		}
		storesTotal.WithLabelValues("ok").Inc()
		written++
	}
	return written
}
