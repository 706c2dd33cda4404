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
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

// ErrNonContiguousPath is returned by Path.Validate.
var ErrNonContiguousPath = errors.New("path simulations are not contiguous")

// Simulation is one tick of a simulated future.
//
// Index is the tick number; the root of a tree is index 0 and holds the
// observed snapshot with no actions. Actions were applied for this tick.
// InitializationActions were in effect when the tick started, i.e. the
// parent tick's actions.
type Simulation struct {
	Index                 int                  `json:"index"`
	Actions               []model.Action       `json:"actions"`
	InitializationActions []model.Action       `json:"initializationActions,omitempty"`
	Result                *model.PropertyCache `json:"result"`
}

// Path is a root-to-leaf sequence of simulations.
type Path []Simulation

// Final returns the last simulation. It panics on an empty path.
func (p Path) Final() Simulation {
	return p[len(p)-1]
}

// FirstActions returns the actions of tick 1, the ones to execute now.
func (p Path) FirstActions() []model.Action {
	if len(p) < 2 {
		return nil
	}
	return p[1].Actions
}

// Ticks returns the simulations after the root.
func (p Path) Ticks() []Simulation {
	if len(p) == 0 {
		return nil
	}
	return p[1:]
}

// Validate checks that indices run 0, 1, 2, ... without gaps.
func (p Path) Validate() error {
	for i, s := range p {
		if s.Index != i {
			return fmt.Errorf("%w: position %d has index %d", ErrNonContiguousPath, i, s.Index)
		}
	}
	return nil
}

// String renders the action sequence, e.g. "[heater=on] -> [heater=off]".
func (p Path) String() string {
	parts := make([]string, 0, len(p))
	for _, s := range p.Ticks() {
		acts := make([]string, len(s.Actions))
		for i, a := range s.Actions {
			acts[i] = a.Target + "=" + a.Value.String()
		}
		parts = append(parts, "["+strings.Join(acts, ", ")+"]")
	}
	return strings.Join(parts, " -> ")
}

// Node is a simulation and its successor simulations.
//
// Counts are derived from the structure on demand and never stored.
type Node struct {
	Item     Simulation
	Children []*Node
}

// ChildrenCount returns the number of descendants:
// sum over children of 1 + child.ChildrenCount().
func (n *Node) ChildrenCount() int {
	total := 0
	for _, c := range n.Children {
		total += 1 + c.ChildrenCount()
	}
	return total
}

// Leaves returns the number of nodes without children below and
// including n.
func (n *Node) Leaves() int {
	if len(n.Children) == 0 {
		return 1
	}
	total := 0
	for _, c := range n.Children {
		total += c.Leaves()
	}
	return total
}

// Depth returns the length of the longest downward chain from n.
func (n *Node) Depth() int {
	d := 0
	for _, c := range n.Children {
		d = max(d, 1+c.Depth())
	}
	return d
}

// Paths enumerates every root-to-leaf path starting at n, depth first,
// children in order. A childless node yields the single path [n].
func (n *Node) Paths() []Path {
	var out []Path
	var walk func(*Node, Path)
	walk = func(cur *Node, prefix Path) {
		prefix = append(prefix, cur.Item)
		if len(cur.Children) == 0 {
			out = append(out, append(Path(nil), prefix...))
			return
		}
		for _, c := range cur.Children {
			walk(c, prefix)
		}
	}
	walk(n, make(Path, 0, n.Depth()+1))
	return out
}

// BuildStats summarizes one Build call.
type BuildStats struct {
	Levels         int `json:"levels"`
	StepsAttempted int `json:"steps_attempted"`
	StepsFailed    int `json:"steps_failed"`
	Pruned         int `json:"pruned"`
}

// Tree is the result of a lookahead build.
//
// Truncated is set when the budget or the context stopped expansion early;
// the tree is then complete up to the last fully expanded level.
type Tree struct {
	Root        *Node
	Truncated   bool
	TruncatedBy string
	Stats       BuildStats
}

// Paths returns the candidate action sequences. A tree whose root has no
// children has no candidates.
func (t *Tree) Paths() []Path {
	if t == nil || t.Root == nil || len(t.Root.Children) == 0 {
		return nil
	}
	return t.Root.Paths()
}

// Format renders the tree for debugging.
func (t *Tree) Format() string {
	if t == nil || t.Root == nil {
		return "Empty tree"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Nodes: %d, Depth: %d, Paths: %d", t.Root.ChildrenCount()+1, t.Root.Depth(), t.Root.Leaves())
	if t.Truncated {
		fmt.Fprintf(&sb, " [TRUNCATED by %s]", t.TruncatedBy)
	}
	sb.WriteString("\n\n")
	formatNode(&sb, t.Root, "", true)
	return sb.String()
}

func formatNode(sb *strings.Builder, n *Node, prefix string, isLast bool) {
	branch := "├── "
	if isLast {
		branch = "└── "
	}
	label := "observed"
	if n.Item.Index > 0 {
		label = Path{{}, n.Item}.String()
	}
	fmt.Fprintf(sb, "%s%s[%d] %s\n", prefix, branch, n.Item.Index, label)

	childPrefix := prefix
	if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}
	for i, c := range n.Children {
		formatNode(sb, c, childPrefix, i == len(n.Children)-1)
	}
}
