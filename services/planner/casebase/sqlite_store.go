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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cases (
	id         TEXT NOT NULL,
	digest     TEXT NOT NULL,
	tick       INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	payload    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS cases_digest ON cases (digest);
`

// SQLiteStore keeps every case as an append-only row. Lookups return the
// newest row for a digest, which gives last-write-wins without updates.
//
// Thread Safety: Safe for concurrent use.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path. Use ":memory:"
// for a throwaway store.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create case schema: %w", err)
	}
	return &SQLiteStore{path: path, db: db}, nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	return s.db, nil
}

// Lookup implements Store.
func (s *SQLiteStore) Lookup(ctx context.Context, key Key) (Case, error) {
	db, err := s.getDB()
	if err != nil {
		return Case{}, err
	}
	digest, err := key.Digest()
	if err != nil {
		return Case{}, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx,
		`SELECT payload FROM cases WHERE digest = ? ORDER BY rowid DESC LIMIT 1`, digest,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, ErrCaseNotFound
	}
	if err != nil {
		return Case{}, fmt.Errorf("sqlite case lookup: %w", err)
	}

	var c Case
	if err := json.Unmarshal(payload, &c); err != nil {
		return Case{}, fmt.Errorf("decode case %s: %w", digest, err)
	}
	return c, nil
}

// Store implements Store.
func (s *SQLiteStore) Store(ctx context.Context, c Case) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	digest, err := c.Key.Digest()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode case: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO cases (id, digest, tick, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
		c.ID.String(), digest, c.Key.Index, c.CreatedAt.Format(time.RFC3339Nano), payload,
	)
	if err != nil {
		return fmt.Errorf("sqlite case store: %w", err)
	}
	return nil
}

// Rows returns the number of rows, including shadowed ones.
func (s *SQLiteStore) Rows(ctx context.Context) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases`).Scan(&n)
	return n, err
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
