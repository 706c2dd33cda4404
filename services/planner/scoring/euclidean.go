// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scoring

import (
	"context"
	"log/slog"
	"math"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
)

// EuclideanStrategy ranks paths by how far their final state lies from the
// optimal-condition intervals. Each condition contributes a distance in
// [0, 1]; the aggregate is the Euclidean norm and the minimum wins.
//
// Conditions whose constraints are not a simple numeric interval, and
// properties that are not doubles, contribute 0.
type EuclideanStrategy struct {
	conditions []euclideanTarget
	logger     *slog.Logger
}

type euclideanTarget struct {
	name      string
	property  string
	bounds    constraint.Bounds
	supported bool
}

// NewEuclidean creates a EuclideanStrategy. Unsupported condition shapes
// are logged once here.
func NewEuclidean(optimal []constraint.OptimalCondition, logger *slog.Logger) *EuclideanStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	targets := make([]euclideanTarget, 0, len(optimal))
	for _, oc := range optimal {
		b, ok := constraint.NumericBounds(oc.Constraints)
		if !ok {
			logger.Warn("optimal condition is not a numeric interval, distance fixed at 0",
				slog.String("condition", oc.Name),
				slog.String("property", oc.Property),
			)
		}
		targets = append(targets, euclideanTarget{
			name:      oc.Name,
			property:  oc.Property,
			bounds:    b,
			supported: ok,
		})
	}
	return &EuclideanStrategy{conditions: targets, logger: logger}
}

// Name implements Strategy.
func (s *EuclideanStrategy) Name() string { return NameEuclidean }

// Distance returns the aggregate distance of the path's final state.
func (s *EuclideanStrategy) Distance(p simtree.Path) float64 {
	final := p.Final().Result
	sum := 0.0
	for _, t := range s.conditions {
		if !t.supported {
			continue
		}
		prop, ok := final.Lookup(t.property)
		if !ok || prop.Value.Kind() != model.KindDouble {
			s.logger.Debug("property not scored",
				slog.String("condition", t.name),
				slog.String("property", t.property),
				slog.Bool("present", ok),
			)
			continue
		}
		d := IntervalDistance(t.bounds, prop.Value.Float())
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Select implements Strategy.
func (s *EuclideanStrategy) Select(ctx context.Context, paths []simtree.Path) (Selection, error) {
	if err := checkPaths(paths); err != nil {
		return Selection{}, err
	}
	best, bestDist := 0, s.Distance(paths[0])
	for i := 1; i < len(paths); i++ {
		if err := ctx.Err(); err != nil {
			return Selection{}, err
		}
		if d := s.Distance(paths[i]); d < bestDist {
			best, bestDist = i, d
		}
	}

	s.logger.DebugContext(ctx, "euclidean selection",
		slog.Int("candidates", len(paths)),
		slog.Int("index", best),
		slog.Float64("distance", bestDist),
		slog.String("path", paths[best].String()),
	)
	return Selection{Path: paths[best], Index: best, Score: bestDist}, nil
}

// IntervalDistance is the bounded distance of v from an interval: 0 inside
// or on a bound, otherwise the relative gap to the violated bound capped
// at 1. A bound of 0 uses the absolute gap. NaN is maximally distant.
func IntervalDistance(b constraint.Bounds, v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	if b.Lower != nil && v < b.Lower.Value {
		return boundDistance(b.Lower.Value, v)
	}
	if b.Upper != nil && v > b.Upper.Value {
		return boundDistance(b.Upper.Value, v)
	}
	return 0
}

func boundDistance(bound, v float64) float64 {
	gap := math.Abs(bound - v)
	if bound == 0 {
		return math.Min(1, gap)
	}
	return math.Min(1, gap/math.Abs(bound))
}
