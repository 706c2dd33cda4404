// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package casebase memoizes planning results per quantized situation.
//
// A case records which simulation a past planning round chose for one tick
// of its lookahead. When the planner meets the same quantized snapshot
// under the same goals and lookahead shape again, the stored ticks are
// replayed instead of rebuilding the simulation tree.
package casebase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
)

var (
	// ErrCaseNotFound is returned by Store.Lookup on a miss.
	ErrCaseNotFound = errors.New("case not found")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("case store closed")
)

// Case is one memoized tick.
type Case struct {
	ID         uuid.UUID          `json:"id"`
	Key        Key                `json:"key"`
	Simulation simtree.Simulation `json:"simulation"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// NewCase stamps a fresh ID and creation time.
func NewCase(key Key, sim simtree.Simulation) Case {
	return Case{ID: uuid.New(), Key: key, Simulation: sim, CreatedAt: time.Now().UTC()}
}

// Store persists cases. Stores are insert-only: a later Store with an
// equal key shadows the earlier one.
type Store interface {
	// Lookup returns the newest case for key or ErrCaseNotFound.
	Lookup(ctx context.Context, key Key) (Case, error)

	// Store records c.
	Store(ctx context.Context, c Case) error

	Close() error
}

// MemoryStore keeps cases in a map keyed by digest.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	cases  map[string]Case
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: make(map[string]Case)}
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(ctx context.Context, key Key) (Case, error) {
	if err := ctx.Err(); err != nil {
		return Case{}, err
	}
	digest, err := key.Digest()
	if err != nil {
		return Case{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Case{}, ErrStoreClosed
	}
	c, ok := s.cases[digest]
	if !ok {
		return Case{}, ErrCaseNotFound
	}
	return c, nil
}

// Store implements Store.
func (s *MemoryStore) Store(ctx context.Context, c Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	digest, err := c.Key.Digest()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.cases[digest] = c
	return nil
}

// Len returns the number of distinct keys held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
