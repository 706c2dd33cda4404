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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
	"github.com/AleutianAI/AleutianTwin/services/planner/valuehandler"
)

// PropertyChange names a property and the direction it should move.
type PropertyChange struct {
	Property  string       `json:"property" yaml:"property"`
	Direction model.Effect `json:"direction" yaml:"direction"`
}

// DirectionalStrategy ranks paths by the final values of the configured
// properties.
//
// Each change contributes Direction.Sign() times the magnitude comparison
// of the two final values; the path with the greatest total wins.
type DirectionalStrategy struct {
	changes []PropertyChange
	logger  *slog.Logger
}

// NewDirectional creates a DirectionalStrategy.
func NewDirectional(changes []PropertyChange, logger *slog.Logger) *DirectionalStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectionalStrategy{changes: changes, logger: logger}
}

// Name implements Strategy.
func (s *DirectionalStrategy) Name() string { return NameDirectional }

// Compare returns a positive number when x is preferred over y, negative
// when y is preferred and zero when neither is.
//
// Inputs:
//   - x, y: Non-empty paths whose final results hold every changed property.
//
// Outputs:
//   - int: Sum of sign * CompareMagnitude(final x, final y) over changes.
//   - error: constraint.ErrPropertyNotFound or a handler error.
func (s *DirectionalStrategy) Compare(x, y simtree.Path) (int, error) {
	fx, fy := x.Final().Result, y.Final().Result
	total := 0
	for _, c := range s.changes {
		sign := c.Direction.Sign()
		if sign == 0 {
			continue
		}
		px, ok := fx.Lookup(c.Property)
		if !ok {
			return 0, fmt.Errorf("%w: %s", constraint.ErrPropertyNotFound, c.Property)
		}
		py, ok := fy.Lookup(c.Property)
		if !ok {
			return 0, fmt.Errorf("%w: %s", constraint.ErrPropertyNotFound, c.Property)
		}
		h, err := valuehandler.ForProperty(px)
		if err != nil {
			return 0, err
		}
		cmp, err := h.CompareMagnitude(px.Value, py.Value)
		if err != nil {
			return 0, fmt.Errorf("compare %s: %w", c.Property, err)
		}
		total += sign * cmp
	}
	return total, nil
}

// Select implements Strategy. It keeps the comparator maximum; a later
// path replaces the current best only when strictly preferred.
func (s *DirectionalStrategy) Select(ctx context.Context, paths []simtree.Path) (Selection, error) {
	if err := checkPaths(paths); err != nil {
		return Selection{}, err
	}
	best := 0
	for i := 1; i < len(paths); i++ {
		if err := ctx.Err(); err != nil {
			return Selection{}, err
		}
		cmp, err := s.Compare(paths[i], paths[best])
		if err != nil {
			return Selection{}, fmt.Errorf("path %d: %w", i, err)
		}
		if cmp > 0 {
			best = i
		}
	}

	sel := Selection{Path: paths[best], Index: best, Score: s.score(paths[best])}
	s.logger.DebugContext(ctx, "directional selection",
		slog.Int("candidates", len(paths)),
		slog.Int("index", best),
		slog.Float64("score", sel.Score),
		slog.String("path", sel.Path.String()),
	)
	return sel, nil
}

// score is the signed sum of the numeric final values, for reporting only.
func (s *DirectionalStrategy) score(p simtree.Path) float64 {
	final := p.Final().Result
	total := 0.0
	for _, c := range s.changes {
		prop, ok := final.Lookup(c.Property)
		if !ok {
			continue
		}
		if f, ok := prop.Value.Numeric(); ok {
			total += float64(c.Direction.Sign()) * f
		}
	}
	return total
}
