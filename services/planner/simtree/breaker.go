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
	"sync"
	"time"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

// ErrCircuitOpen is returned by a BreakingStepper while the twin backend is
// considered down. The builder treats it like any other step failure.
var ErrCircuitOpen = errors.New("twin circuit breaker open")

// CircuitState is the breaker state.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`

	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold"`

	// OpenDuration is how long the circuit stays open before probing.
	OpenDuration time.Duration `json:"open_duration" yaml:"open_duration"`

	// HalfOpenMax is the number of concurrent probes allowed.
	HalfOpenMax int `json:"half_open_max" yaml:"half_open_max"`
}

// DefaultCircuitBreakerConfig returns conservative defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenDuration:     10 * time.Second,
		HalfOpenMax:      1,
	}
}

// CircuitBreakerStats is a snapshot for the health endpoint.
type CircuitBreakerStats struct {
	State           string    `json:"state"`
	TotalCalls      int64     `json:"total_calls"`
	TotalFailures   int64     `json:"total_failures"`
	TotalRejections int64     `json:"total_rejections"`
	CurrentFailures int       `json:"current_failures"`
	LastStateChange time.Time `json:"last_state_change"`
}

// CircuitBreaker is a closed/open/half-open breaker.
//
// Thread Safety: Safe for concurrent use.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	now    func() time.Time

	mu              sync.RWMutex
	state           CircuitState
	failures        int
	successes       int
	lastStateChange time.Time
	halfOpenActive  int

	totalCalls      int64
	totalFailures   int64
	totalRejections int64
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{config: config, now: time.Now, state: CircuitClosed}
	cb.lastStateChange = cb.now()
	return cb
}

// State returns the current state without side effects.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Allow reports whether a call may proceed. The returned release func, if
// non-nil, must be called when a half-open probe finishes.
func (cb *CircuitBreaker) Allow() (bool, func()) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++
	switch cb.state {
	case CircuitClosed:
		return true, nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastStateChange) > cb.config.OpenDuration {
			cb.transitionTo(CircuitHalfOpen)
			return cb.tryHalfOpen()
		}
		cb.totalRejections++
		return false, nil
	case CircuitHalfOpen:
		return cb.tryHalfOpen()
	}
	return false, nil
}

func (cb *CircuitBreaker) tryHalfOpen() (bool, func()) {
	if cb.halfOpenActive >= cb.config.HalfOpenMax {
		cb.totalRejections++
		return false, nil
	}
	cb.halfOpenActive++
	return true, func() {
		cb.mu.Lock()
		cb.halfOpenActive--
		cb.mu.Unlock()
	}
}

// RecordSuccess resets the failure streak and may close a half-open circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == CircuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure extends the failure streak and may open the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.failures++
	cb.successes = 0

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(s CircuitState) {
	cb.state = s
	cb.lastStateChange = cb.now()
	cb.failures = 0
	cb.successes = 0
}

// Execute runs fn if allowed. Context cancellation is not counted as a
// backend failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	allowed, release := cb.Allow()
	if !allowed {
		return ErrCircuitOpen
	}
	if release != nil {
		defer release()
	}

	err := fn()
	switch {
	case err == nil:
		cb.RecordSuccess()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
	default:
		cb.RecordFailure()
	}
	return err
}

// Stats returns a snapshot of counters.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitBreakerStats{
		State:           cb.state.String(),
		TotalCalls:      cb.totalCalls,
		TotalFailures:   cb.totalFailures,
		TotalRejections: cb.totalRejections,
		CurrentFailures: cb.failures,
		LastStateChange: cb.lastStateChange,
	}
}

// BreakingStepper guards a Stepper with a CircuitBreaker so a dead twin
// backend fails branches fast instead of timing out on each one.
type BreakingStepper struct {
	next    Stepper
	breaker *CircuitBreaker
}

// NewBreakingStepper wraps next.
func NewBreakingStepper(next Stepper, config CircuitBreakerConfig) *BreakingStepper {
	return &BreakingStepper{next: next, breaker: NewCircuitBreaker(config)}
}

// Breaker exposes the underlying breaker for stats.
func (s *BreakingStepper) Breaker() *CircuitBreaker { return s.breaker }

// Step implements Stepper.
func (s *BreakingStepper) Step(ctx context.Context, cache *model.PropertyCache, actions []model.Action, duration time.Duration) (*model.PropertyCache, error) {
	var out *model.PropertyCache
	err := s.breaker.Execute(ctx, func() error {
		var err error
		out, err = s.next.Step(ctx, cache, actions, duration)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			stepsTotal.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}
	return out, nil
}
