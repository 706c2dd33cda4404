// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemory_PutGet(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Put(ctx, "cases", "abc", []byte("payload")))

	got, err := db.Get(ctx, "cases", "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	_, err = db.Get(ctx, "cases", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, db.InMemory())
	assert.Empty(t, db.Path())
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = time.Hour

	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Put(context.Background(), "cases", "k", []byte("v")))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "second close is a no-op")

	db2, err := Open(cfg)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get(context.Background(), "cases", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, dir, db2.Path())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestWithTxn_RollsBackOnError(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	boom := errors.New("boom")
	err = db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(Key("cases", "x"), []byte("1")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = db.Get(ctx, "cases", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTxn_CancelledContext(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = db.WithTxn(ctx, func(*badger.Txn) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	err = db.WithReadTxn(ctx, func(*badger.Txn) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCount_IsNamespaced(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.Put(ctx, "cases", id, []byte(id)))
	}
	require.NoError(t, db.Put(ctx, "other", "a", []byte("a")))

	n, err := db.Count(ctx, "cases")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
