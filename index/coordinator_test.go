package index_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zero-day-ai/graphmap/entity"
	"github.com/zero-day-ai/graphmap/graph"
	"github.com/zero-day-ai/graphmap/graph/boltgraph"
	"github.com/zero-day-ai/graphmap/index"
	"github.com/zero-day-ai/graphmap/mapperr"
)

type lion struct {
	entity.Base
	Name  string
	Title string
	Age   int
}

func (*lion) Declare() entity.Declaration[lion] {
	base := func(l *lion) *entity.Base { return &l.Base }
	return entity.Declaration[lion]{
		Identity: entity.BaseIdentity(base),
		Attributes: []entity.Attribute[lion]{
			entity.Field("GetName", func(l *lion) *string { return &l.Name }).WithFullTextIndex("lion_text"),
			entity.Field("GetTitle", func(l *lion) *string { return &l.Title }).WithFullTextIndex("lion_text"),
			entity.Field("GetAge", func(l *lion) *int { return &l.Age }).WithExactIndex(),
		},
	}
}

type plain struct {
	Value string
}

func (*plain) Declare() entity.Declaration[plain] {
	return entity.Declaration[plain]{
		Attributes: []entity.Attribute[plain]{
			entity.Field("Value", func(p *plain) *string { return &p.Value }),
		},
	}
}

func lionInfo(t *testing.T) *entity.TypeInfo {
	t.Helper()
	return entity.MustDescribe[lion](entity.NewRegistry()).Info()
}

func openStore(t *testing.T) *boltgraph.Store {
	t.Helper()
	store, err := boltgraph.Open(t.TempDir(), boltgraph.WithNoSync())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestEnsureIndexes(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	coord := index.NewCoordinator(store)
	info := lionInfo(t)

	require.NoError(t, coord.EnsureIndexes(ctx, info))
	assert.True(t, coord.Ensured(info.Type))

	tx, err := store.Begin(ctx, graph.ReadOnly)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	defs, err := tx.SchemaIndexes(ctx, "lion")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.True(t, defs[0].Covers("lion", "age"))

	names, err := tx.FullTextIndexNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lion_text"}, names, "attributes sharing a name share one index")

	registry := coord.Registry()
	require.NotNil(t, registry.FullTextIndex("lion_text"))
	assert.Nil(t, registry.FullTextIndex("missing"))

	handles := registry.FullTextIndexesForType(info.Type)
	require.Len(t, handles, 1)
	assert.Equal(t, "lion_text", handles[0].Name())
	assert.Equal(t, []string{"lion_text"}, registry.Names())
}

func TestEnsureIndexes_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	info := lionInfo(t)

	require.NoError(t, index.NewCoordinator(store).EnsureIndexes(ctx, info))

	// A fresh coordinator finds the existing indexes and only opens handles.
	coord := index.NewCoordinator(store)
	require.NoError(t, coord.EnsureIndexes(ctx, info))
	require.NoError(t, coord.EnsureIndexes(ctx, info))
	assert.NotNil(t, coord.Registry().FullTextIndex("lion_text"))

	tx, err := store.Begin(ctx, graph.ReadOnly)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	defs, err := tx.SchemaIndexes(ctx, "lion")
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestEnsureIndexes_NoIndexes(t *testing.T) {
	ctx := context.Background()
	coord := index.NewCoordinator(openStore(t))
	info := entity.MustDescribe[plain](entity.NewRegistry()).Info()

	require.NoError(t, coord.EnsureIndexes(ctx, info))
	assert.Empty(t, coord.Registry().FullTextIndexesForType(info.Type))
	assert.NotNil(t, coord.Registry().FullTextIndexesForType(reflect.TypeFor[int]()))
}

func TestEnsureOnce(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: openStore(t)}
	coord := index.NewCoordinator(store, index.WithRegistry(index.NewRegistry()))
	info := lionInfo(t)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, coord.EnsureOnce(ctx, info))
		}()
	}
	wg.Wait()

	before := store.begins()
	require.NoError(t, coord.EnsureOnce(ctx, info))
	assert.Equal(t, before, store.begins(), "reconciled types are not revisited")
}

func TestEnsureIndexes_FailureRegistersNothing(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: openStore(t), failFullText: true}
	coord := index.NewCoordinator(store)
	info := lionInfo(t)

	err := coord.EnsureIndexes(ctx, info)
	require.Error(t, err)
	assert.ErrorIs(t, err, mapperr.ErrStorage)
	assert.False(t, coord.Ensured(info.Type))
	assert.Nil(t, coord.Registry().FullTextIndex("lion_text"))

	// The exact index created before the failure was rolled back with it.
	tx, err := store.Begin(ctx, graph.ReadOnly)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	defs, err := tx.SchemaIndexes(ctx, "lion")
	require.NoError(t, err)
	assert.Empty(t, defs)

	// A later successful attempt registers the handle.
	store.failFullText = false
	require.NoError(t, coord.EnsureOnce(ctx, info))
	assert.NotNil(t, coord.Registry().FullTextIndex("lion_text"))
}

func TestEnsureIndexes_BeginFails(t *testing.T) {
	coord := index.NewCoordinator(&failingStore{Store: openStore(t), failBegin: true})
	err := coord.EnsureIndexes(context.Background(), lionInfo(t))
	assert.ErrorIs(t, err, mapperr.ErrStorage)
}

type countingStore struct {
	graph.Store
	mu    sync.Mutex
	count int
}

func (s *countingStore) Begin(ctx context.Context, mode graph.AccessMode) (graph.Tx, error) {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return s.Store.Begin(ctx, mode)
}

func (s *countingStore) begins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

var errInjected = errors.New("injected failure")

type failingStore struct {
	graph.Store
	failBegin    bool
	failFullText bool
}

func (s *failingStore) Begin(ctx context.Context, mode graph.AccessMode) (graph.Tx, error) {
	if s.failBegin {
		return nil, errInjected
	}
	tx, err := s.Store.Begin(ctx, mode)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, store: s}, nil
}

type failingTx struct {
	graph.Tx
	store *failingStore
}

func (t *failingTx) CreateFullTextIndex(ctx context.Context, name, label string, props []string) (graph.FullTextIndex, error) {
	if t.store.failFullText {
		return nil, errInjected
	}
	return t.Tx.CreateFullTextIndex(ctx, name, label, props)
}
