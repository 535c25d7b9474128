package boltgraph_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zero-day-ai/graphmap/graph"
	"github.com/zero-day-ai/graphmap/graph/boltgraph"
)

func seedLions(t *testing.T, store graph.Store) graph.FullTextIndex {
	t.Helper()
	ctx := context.Background()

	var idx graph.FullTextIndex
	update(t, store, func(tx graph.Tx) {
		var err error
		idx, err = tx.CreateFullTextIndex(ctx, "lion_name", "lion", []string{"name"})
		require.NoError(t, err)

		_, err = tx.CreateFullTextIndex(ctx, "lion_name", "lion", []string{"name"})
		assert.ErrorIs(t, err, graph.ErrIndexExists)
		_, err = tx.CreateFullTextIndex(ctx, "bad name", "lion", []string{"name"})
		assert.Error(t, err)

		for id, name := range map[int64]string{1: "Leo the Brave", 2: "Leonard", 3: "Nala"} {
			_, err := tx.CreateNode(ctx, "lion", map[string]any{"id": id, "name": name})
			require.NoError(t, err)
			require.NoError(t, idx.Add(ctx, tx, id, "name", name))
		}
		require.NoError(t, idx.Add(ctx, tx, 3, "nick", "queen"))
	})
	return idx
}

func query(t *testing.T, store graph.Store, idx graph.FullTextIndex, key, q string) []int64 {
	t.Helper()
	var ids []int64
	view(t, store, func(tx graph.Tx) {
		var err error
		ids, err = idx.Query(context.Background(), tx, key, q)
		require.NoError(t, err)
	})
	return ids
}

func TestFullText_Query(t *testing.T) {
	store := openStore(t)
	idx := seedLions(t, store)
	assert.Equal(t, "lion_name", idx.Name())

	tests := []struct {
		name  string
		key   string
		query string
		want  []int64
	}{
		{name: "term", key: "name", query: "leo", want: []int64{1}},
		{name: "case insensitive", key: "name", query: "NALA", want: []int64{3}},
		{name: "wildcard", key: "name", query: "Leo*", want: []int64{1, 2}},
		{name: "or terms", key: "name", query: "brave nala", want: []int64{1, 3}},
		{name: "second field", key: "nick", query: "queen", want: []int64{3}},
		{name: "field scoped", key: "nick", query: "leo", want: []int64{}},
		{name: "no match", key: "name", query: "simba", want: []int64{}},
		{name: "syntax is literal", key: "name", query: "(brave", want: []int64{1}},
		{name: "operators kept", key: "name", query: "+leo* -leonard", want: []int64{1}},
		{name: "field prefix stays scoped", key: "name", query: "nick:queen", want: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, query(t, store, idx, tt.key, tt.query))
		})
	}
}

func TestFullText_Remove(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	idx := seedLions(t, store)

	update(t, store, func(tx graph.Tx) {
		require.NoError(t, idx.Remove(ctx, tx, 1))

		ids, err := idx.Query(ctx, tx, "name", "leo")
		require.NoError(t, err)
		assert.Empty(t, ids, "removal is visible inside the transaction")
	})

	assert.Empty(t, query(t, store, idx, "name", "leo"))
	assert.Equal(t, []int64{2}, query(t, store, idx, "name", "leonard"))
}

func TestFullText_DeleteNodeDropsDocuments(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	idx := seedLions(t, store)

	update(t, store, func(tx graph.Tx) {
		require.NoError(t, tx.DeleteNode(ctx, 3))
	})
	assert.Empty(t, query(t, store, idx, "name", "nala"))
}

func TestFullText_RollbackDiscardsChanges(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	idx := seedLions(t, store)

	tx, err := store.Begin(ctx, graph.ReadWrite)
	require.NoError(t, err)
	_, err = tx.CreateNode(ctx, "lion", map[string]any{"id": 4, "name": "Simba"})
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, tx, 4, "name", "Simba"))
	require.NoError(t, tx.Rollback(ctx))

	assert.Empty(t, query(t, store, idx, "name", "simba"))
}

func TestFullText_Handles(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	seedLions(t, store)

	view(t, store, func(tx graph.Tx) {
		names, err := tx.FullTextIndexNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"lion_name"}, names)

		idx, err := tx.FullTextIndex(ctx, "lion_name")
		require.NoError(t, err)
		ids, err := idx.Query(ctx, tx, "name", "nala")
		require.NoError(t, err)
		assert.Equal(t, []int64{3}, ids)

		_, err = tx.FullTextIndex(ctx, "missing")
		assert.ErrorIs(t, err, graph.ErrNotFound)

		assert.ErrorIs(t, idx.Add(ctx, tx, 1, "name", "x"), graph.ErrReadOnly)
	})

	other := openStore(t)
	view(t, other, func(foreign graph.Tx) {
		view(t, store, func(tx graph.Tx) {
			idx, err := tx.FullTextIndex(ctx, "lion_name")
			require.NoError(t, err)
			_, err = idx.Query(ctx, foreign, "name", "leo")
			assert.Error(t, err)
		})
	})
}

func TestFullText_RebuildsMissingIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := boltgraph.Open(dir)
	require.NoError(t, err)
	seedLions(t, store)
	require.NoError(t, store.Close(ctx))

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "fulltext", "lion_name.bleve")))

	store, err = boltgraph.Open(dir)
	require.NoError(t, err)
	defer store.Close(ctx)

	view(t, store, func(tx graph.Tx) {
		idx, err := tx.FullTextIndex(ctx, "lion_name")
		require.NoError(t, err)
		ids, err := idx.Query(ctx, tx, "name", "leo*")
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ids)
	})
}
