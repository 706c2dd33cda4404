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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianTwin/services/planner/storage/badger"
)

const badgerNamespace = "case"

// BadgerStore keeps cases in BadgerDB under "case/<digest>".
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool
}

// NewBadgerStore wraps an open database. The caller keeps ownership of db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens a database from cfg owned by the store.
func OpenBadgerStore(cfg badger.Config) (*BadgerStore, error) {
	db, err := badger.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, ownsDB: true}, nil
}

// Lookup implements Store.
func (s *BadgerStore) Lookup(ctx context.Context, key Key) (Case, error) {
	digest, err := key.Digest()
	if err != nil {
		return Case{}, err
	}
	raw, err := s.db.Get(ctx, badgerNamespace, digest)
	if errors.Is(err, badger.ErrNotFound) {
		return Case{}, ErrCaseNotFound
	}
	if err != nil {
		return Case{}, fmt.Errorf("badger case lookup: %w", err)
	}
	var c Case
	if err := json.Unmarshal(raw, &c); err != nil {
		return Case{}, fmt.Errorf("decode case %s: %w", digest, err)
	}
	return c, nil
}

// Store implements Store.
func (s *BadgerStore) Store(ctx context.Context, c Case) error {
	digest, err := c.Key.Digest()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode case: %w", err)
	}
	if err := s.db.Put(ctx, badgerNamespace, digest, raw); err != nil {
		return fmt.Errorf("badger case store: %w", err)
	}
	return nil
}

// Count returns the number of stored keys.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	return s.db.Count(ctx, badgerNamespace)
}

// Close implements Store. It closes the database only when the store
// opened it.
func (s *BadgerStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
