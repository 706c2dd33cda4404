// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scoring selects the best simulated path out of a lookahead tree.
//
// Two strategies are provided. DirectionalStrategy prefers paths that move
// chosen properties in a desired direction. EuclideanStrategy prefers
// paths whose final state is closest to the optimal-condition intervals.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
)

const (
	// NameDirectional selects DirectionalStrategy in New.
	NameDirectional = "directional"

	// NameEuclidean selects EuclideanStrategy in New.
	NameEuclidean = "euclidean"
)

var (
	// ErrNoPaths is returned by Select when there is nothing to choose from.
	ErrNoPaths = errors.New("no candidate paths")

	// ErrUnknownStrategy is returned by New for an unrecognized name.
	ErrUnknownStrategy = errors.New("unknown scoring strategy")

	// ErrEmptyPath is returned when a candidate path has no simulations.
	ErrEmptyPath = errors.New("empty path")
)

// Selection is the outcome of a Select call.
//
// Index is the position of Path in the input slice. Score is
// strategy-specific: directional scores grow with preference, Euclidean
// scores are distances and shrink with preference.
type Selection struct {
	Path  simtree.Path `json:"path"`
	Index int          `json:"index"`
	Score float64      `json:"score"`
}

// Strategy picks one path among candidates.
type Strategy interface {
	// Name returns the strategy identifier used in configs and plans.
	Name() string

	// Select returns the preferred path. Ties resolve to the earliest
	// candidate so selection is deterministic for a given input order.
	Select(ctx context.Context, paths []simtree.Path) (Selection, error)
}

// Options carries the inputs any strategy might need.
type Options struct {
	// Changes drive DirectionalStrategy.
	Changes []PropertyChange

	// Optimal drives EuclideanStrategy.
	Optimal []constraint.OptimalCondition

	Logger *slog.Logger
}

// New builds a strategy by name.
func New(name string, opts Options) (Strategy, error) {
	switch name {
	case NameDirectional:
		return NewDirectional(opts.Changes, opts.Logger), nil
	case NameEuclidean:
		return NewEuclidean(opts.Optimal, opts.Logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

func checkPaths(paths []simtree.Path) error {
	if len(paths) == 0 {
		return ErrNoPaths
	}
	for i, p := range paths {
		if len(p) == 0 {
			return fmt.Errorf("%w at position %d", ErrEmptyPath, i)
		}
	}
	return nil
}
