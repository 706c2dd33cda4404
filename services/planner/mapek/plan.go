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
	"time"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
)

// Plan is the outcome of one planning round.
//
// An empty plan (no FirstActions) means the round decided not to act:
// every condition held, no action was relevant, or no simulated path
// survived.
type Plan struct {
	RoundID      string              `json:"round_id"`
	CreatedAt    time.Time           `json:"created_at"`
	Path         simtree.Path        `json:"path,omitempty"`
	FirstActions []model.Action      `json:"first_actions"`
	FromCase     bool                `json:"from_case"`
	Score        float64             `json:"score"`
	Strategy     string              `json:"strategy"`
	Unsatisfied  []constraint.Result `json:"-"`
	Violations   []Violation         `json:"violations,omitempty"`
	Candidates   int                 `json:"candidates"`
	Truncated    bool                `json:"truncated"`
	Reason       string              `json:"reason,omitempty"`
}

// Violation is the serializable form of an unsatisfied condition.
type Violation struct {
	Condition string   `json:"condition"`
	Property  string   `json:"property"`
	Value     string   `json:"value"`
	Atoms     []string `json:"atoms"`
}

// Empty reports whether the plan has nothing to execute.
func (p *Plan) Empty() bool {
	return p == nil || len(p.FirstActions) == 0
}

// Reasons an empty plan was produced.
const (
	ReasonSatisfied   = "all conditions satisfied"
	ReasonNoActions   = "no relevant actions"
	ReasonNoPaths     = "no surviving paths"
	ReasonNoLookahead = "lookahead disabled"
	ReasonNoSelection = "path selection failed"
)

func violations(results []constraint.Result) []Violation {
	out := make([]Violation, 0, len(results))
	for _, r := range results {
		atoms := make([]string, len(r.Unsatisfied))
		for i, a := range r.Unsatisfied {
			atoms[i] = a.String()
		}
		out = append(out, Violation{
			Condition: r.Condition.Name,
			Property:  r.Condition.Property,
			Value:     r.Value.String(),
			Atoms:     atoms,
		})
	}
	return out
}
