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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
	"github.com/AleutianAI/AleutianTwin/services/planner/storage/badger"
)

type storeFactory struct {
	name string
	open func(t *testing.T) Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{"memory", func(*testing.T) Store { return NewMemoryStore() }},
		{"badger", func(t *testing.T) Store {
			s, err := OpenBadgerStore(badger.InMemoryConfig())
			require.NoError(t, err)
			return s
		}},
		{"sqlite", func(t *testing.T) Store {
			s, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "cases.db"))
			require.NoError(t, err)
			return s
		}},
	}
}

func heatTick(index int, temp float64) simtree.Simulation {
	return simtree.Simulation{
		Index:   index,
		Actions: []model.Action{model.NewActuation("heat", "heater", model.StringValue("on"))},
		Result:  snapshot(temp),
	}
}

func TestStores_RoundTrip(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			defer s.Close()
			ctx := context.Background()

			m := NewMemoizer(s)
			key := m.Key(snapshot(21.1), comfortBand(), 2, time.Minute).WithIndex(1)

			_, err := s.Lookup(ctx, key)
			require.ErrorIs(t, err, ErrCaseNotFound)

			c := NewCase(key, heatTick(1, 22))
			require.NoError(t, s.Store(ctx, c))

			got, err := s.Lookup(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, c.ID, got.ID)
			assert.Equal(t, c.Key, got.Key)
			assert.Equal(t, c.Simulation.Actions, got.Simulation.Actions)
			assert.True(t, c.Simulation.Result.Equal(got.Simulation.Result))
			assert.True(t, c.CreatedAt.Equal(got.CreatedAt))

			_, err = s.Lookup(ctx, key.WithIndex(2))
			assert.ErrorIs(t, err, ErrCaseNotFound)
		})
	}
}

func TestStores_LastWriteWins(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			defer s.Close()
			ctx := context.Background()

			key := NewMemoizer(s).Key(snapshot(19), comfortBand(), 1, time.Minute).WithIndex(1)
			first := NewCase(key, heatTick(1, 20))
			second := NewCase(key, heatTick(1, 20.5))
			require.NoError(t, s.Store(ctx, first))
			require.NoError(t, s.Store(ctx, second))

			got, err := s.Lookup(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, second.ID, got.ID)
		})
	}
}

func TestSQLiteStore_InsertOnly(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	key := NewMemoizer(s).Key(snapshot(19), nil, 1, time.Minute).WithIndex(1)
	for i := range 3 {
		require.NoError(t, s.Store(ctx, NewCase(key, heatTick(1, 20+float64(i)))))
	}
	rows, err := s.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	require.NoError(t, s.Close())
	_, err = s.Lookup(ctx, key)
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestBadgerStore_SharedDB(t *testing.T) {
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	s := NewBadgerStore(db)
	ctx := context.Background()
	key := NewMemoizer(s).Key(snapshot(19), nil, 1, time.Minute).WithIndex(1)
	require.NoError(t, s.Store(ctx, NewCase(key, heatTick(1, 20))))
	require.NoError(t, s.Close())

	n, err := s.Count(ctx)
	require.NoError(t, err, "closing the store leaves a shared database open")
	assert.Equal(t, 1, n)
}
