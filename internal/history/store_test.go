// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/modelrace/internal/compare"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func completedSession(prompt string, created time.Time) *compare.Session {
	sess := compare.NewSession(prompt, "", []compare.ModelRef{
		{ID: "llama3.2:3b"},
		{ID: "qwen2.5-coder:7b"},
	})
	sess.CreatedAt = created
	for _, u := range sess.Units {
		u.Response = "answer from " + u.ModelID
		u.State = compare.Completed()
		u.EndTime = created.Add(time.Second)
		u.ResponseTime = time.Second
	}
	sess.CompletedAt = created.Add(time.Second)
	return sess
}

// =============================================================================
// ROUND-TRIP TESTS
// =============================================================================

func TestSaveAndLoad(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	sess := completedSession("explain channels", time.Now().Truncate(time.Millisecond))
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)

	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, sess.Prompt, loaded.Prompt)
	require.Len(t, loaded.Units, 2)
	assert.Equal(t, "answer from llama3.2:3b", loaded.Units[0].Response)
	assert.True(t, loaded.Units[0].Succeeded())
	assert.Equal(t, time.Second, loaded.Units[0].ResponseTime)
	assert.True(t, loaded.IsCompleted())
}

func TestSavePreservesErrorState(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	sess := completedSession("p", time.Now())
	sess.Units[1].State = compare.Errored("timeout")
	sess.Units[1].ResponseTime = 0
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "timeout", loaded.Units[1].ErrorMessage())
	assert.False(t, loaded.Units[1].Succeeded())
}

func TestSaveIsUpsert(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	sess := completedSession("p", time.Now())
	require.NoError(t, store.Save(ctx, sess))

	sess.Units[0].Response = "revised"
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "revised", loaded.Units[0].Response)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoadMissing(t *testing.T) {
	store := testStore(t)
	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// LISTING TESTS
// =============================================================================

func TestListNewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	old := completedSession("oldest", base)
	mid := completedSession("middle", base.Add(time.Minute))
	new_ := completedSession("newest", base.Add(2*time.Minute))
	for _, sess := range []*compare.Session{old, mid, new_} {
		require.NoError(t, store.Save(ctx, sess))
	}

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "newest", list[0].Prompt)
	assert.Equal(t, "middle", list[1].Prompt)
	assert.Equal(t, "oldest", list[2].Prompt)
	assert.Equal(t, 2, list[0].ModelCount)
	assert.False(t, list[0].CompletedAt.IsZero())
}

func TestListLimit(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, completedSession("p", base.Add(time.Duration(i)*time.Second))))
	}

	list, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestListIncompleteSession(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	sess := compare.NewSession("still running", "", []compare.ModelRef{{ID: "m"}})
	require.NoError(t, store.Save(ctx, sess))

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].CompletedAt.IsZero())
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestDelete(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	sess := completedSession("p", time.Now())
	require.NoError(t, store.Save(ctx, sess))
	require.NoError(t, store.Delete(ctx, sess.ID))

	_, err := store.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, sess.ID), ErrNotFound)
}

func TestClear(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, completedSession("p", time.Now())))
	}
	require.NoError(t, store.Clear(ctx))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
