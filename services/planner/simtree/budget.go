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
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrBudgetExhausted is returned once any limit has been hit.
	ErrBudgetExhausted = errors.New("tree budget exhausted")

	// ErrTimeLimitExceeded is returned when the wall clock limit is hit.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")

	// ErrNodeLimitExceeded is returned when the simulated node limit is hit.
	ErrNodeLimitExceeded = errors.New("node limit exceeded")

	// ErrDepthLimitExceeded is returned by CheckDepth.
	ErrDepthLimitExceeded = errors.New("depth limit exceeded")
)

// BudgetConfig bounds a single tree build. Zero disables a limit.
type BudgetConfig struct {
	MaxNodes  int           // Maximum simulated ticks across the tree
	MaxDepth  int           // Maximum lookahead depth, on top of the configured cycles
	TimeLimit time.Duration // Wall clock limit for the build
}

// DefaultBudgetConfig returns limits sized for interactive planning.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		MaxNodes:  50000,
		MaxDepth:  0,
		TimeLimit: 30 * time.Second,
	}
}

// Budget tracks consumption against a BudgetConfig.
//
// Thread Safety: Safe for concurrent use. The node counter is atomic and
// the exhaustion state is guarded by a mutex.
type Budget struct {
	config    BudgetConfig
	startTime time.Time

	nodesExplored int64

	mu          sync.RWMutex
	exhausted   bool
	exhaustedBy string
}

// NewBudget starts the clock.
func NewBudget(config BudgetConfig) *Budget {
	return &Budget{config: config, startTime: time.Now()}
}

// Config returns the limits.
func (b *Budget) Config() BudgetConfig { return b.config }

// NodesExplored returns the number of ticks simulated so far.
func (b *Budget) NodesExplored() int64 { return atomic.LoadInt64(&b.nodesExplored) }

// RecordNodeExplored increments the node counter and returns the new value.
func (b *Budget) RecordNodeExplored() int64 { return atomic.AddInt64(&b.nodesExplored, 1) }

// Elapsed returns time since the budget started.
func (b *Budget) Elapsed() time.Duration { return time.Since(b.startTime) }

// Exhausted checks the limits and latches once any is hit.
func (b *Budget) Exhausted() bool {
	b.mu.RLock()
	if b.exhausted {
		b.mu.RUnlock()
		return true
	}
	b.mu.RUnlock()
	return b.checkLimits() != nil
}

// ExhaustedBy returns "time" or "nodes" once exhausted, else "".
func (b *Budget) ExhaustedBy() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exhaustedBy
}

func (b *Budget) checkLimits() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.exhausted {
		return ErrBudgetExhausted
	}
	if b.config.TimeLimit > 0 && time.Since(b.startTime) >= b.config.TimeLimit {
		b.exhausted = true
		b.exhaustedBy = "time"
		return ErrTimeLimitExceeded
	}
	if b.config.MaxNodes > 0 && atomic.LoadInt64(&b.nodesExplored) >= int64(b.config.MaxNodes) {
		b.exhausted = true
		b.exhaustedBy = "nodes"
		return ErrNodeLimitExceeded
	}
	return nil
}

// CheckDepth returns ErrDepthLimitExceeded when depth is beyond MaxDepth.
func (b *Budget) CheckDepth(depth int) error {
	if b.config.MaxDepth > 0 && depth > b.config.MaxDepth {
		return ErrDepthLimitExceeded
	}
	return nil
}

// BudgetReport is a point-in-time snapshot for logs and spans.
type BudgetReport struct {
	Elapsed       time.Duration `json:"elapsed"`
	NodesExplored int64         `json:"nodes_explored"`
	Exhausted     bool          `json:"exhausted"`
	ExhaustedBy   string        `json:"exhausted_by,omitempty"`
}

// Report returns current usage.
func (b *Budget) Report() BudgetReport {
	return BudgetReport{
		Elapsed:       b.Elapsed(),
		NodesExplored: b.NodesExplored(),
		Exhausted:     b.Exhausted(),
		ExhaustedBy:   b.ExhaustedBy(),
	}
}

func (b *Budget) String() string {
	status := ""
	if b.Exhausted() {
		status = fmt.Sprintf(" [EXHAUSTED by %s]", b.ExhaustedBy())
	}
	return fmt.Sprintf("Budget{nodes=%d/%d, time=%v/%v}%s",
		b.NodesExplored(), b.config.MaxNodes,
		b.Elapsed().Round(time.Millisecond), b.config.TimeLimit,
		status)
}
