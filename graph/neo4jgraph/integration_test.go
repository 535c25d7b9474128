//go:build integration
// +build integration

package neo4jgraph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zero-day-ai/graphmap/graph"
)

// setupNeo4jContainer starts a Neo4j container and opens a store on it.
func setupNeo4jContainer(t *testing.T, ctx context.Context) *Store {
	t.Helper()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration test")
	}
	if err := provider.Health(ctx); err != nil {
		t.Skip("Docker not running, skipping integration test")
	}

	req := testcontainers.ContainerRequest{
		Image:        "neo4j:5",
		ExposedPorts: []string{"7687/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH": "none",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("7687/tcp"),
			wait.ForLog("Started."),
		).WithDeadline(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start Neo4j container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687")
	require.NoError(t, err)

	store, err := Open(ctx, Config{
		URI:                   fmt.Sprintf("bolt://%s:%s", host, port.Port()),
		MaxConnectionPoolSize: 10,
		ConnectionTimeout:     30 * time.Second,
	})
	require.NoError(t, err, "Failed to connect to Neo4j")
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func update(t *testing.T, store *Store, fn func(graph.Tx)) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx, graph.ReadWrite)
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit(ctx))
}

func TestIntegration_Store(t *testing.T) {
	ctx := context.Background()
	store := setupNeo4jContainer(t, ctx)

	t.Run("indexes are idempotent", func(t *testing.T) {
		update(t, store, func(tx graph.Tx) {
			require.NoError(t, tx.CreateSchemaIndex(ctx, "lion", "age"))
			_, err := tx.CreateFullTextIndex(ctx, "lion_name_ft", "lion", []string{"name"})
			require.NoError(t, err)
		})
		update(t, store, func(tx graph.Tx) {
			require.NoError(t, tx.CreateSchemaIndex(ctx, "lion", "age"))
			_, err := tx.CreateFullTextIndex(ctx, "lion_name_ft", "lion", []string{"name"})
			assert.ErrorIs(t, err, graph.ErrIndexExists)
		})
		require.NoError(t, store.AwaitIndexes(ctx, time.Minute))

		tx, err := store.Begin(ctx, graph.ReadOnly)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		defs, err := tx.SchemaIndexes(ctx, "lion")
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.True(t, defs[0].Covers("lion", "age"))

		names, err := tx.FullTextIndexNames(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, "lion_name_ft")
	})

	t.Run("nodes edges and search", func(t *testing.T) {
		update(t, store, func(tx graph.Tx) {
			_, err := tx.CreateNode(ctx, "lion", map[string]any{"id": int64(1), "name": "Leo", "age": 5})
			require.NoError(t, err)
			_, err = tx.CreateNode(ctx, "sheep", map[string]any{"id": int64(2), "name": "Dolly"})
			require.NoError(t, err)
			edge, err := tx.CreateEdge(ctx, 1, 2, "ROARS_AT")
			require.NoError(t, err)
			require.NoError(t, tx.SetEdgeProperty(ctx, edge.ID, "volume", 11))
		})

		tx, err := store.Begin(ctx, graph.ReadOnly)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		node, err := tx.NodeByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "lion", node.Label)
		assert.Equal(t, int64(5), node.Properties["age"])

		_, err = tx.NodeByID(ctx, 99)
		assert.ErrorIs(t, err, graph.ErrNotFound)

		nodes, err := tx.NodesByProperty(ctx, "lion", "age", 5)
		require.NoError(t, err)
		require.Len(t, nodes, 1)

		edges, err := tx.Edges(ctx, 2, "ROARS_AT", graph.Incoming)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, int64(1), edges[0].Start)
		assert.Equal(t, int64(11), edges[0].Properties["volume"])

		idx, err := tx.FullTextIndex(ctx, "lion_name_ft")
		require.NoError(t, err)
		ids, err := idx.Query(ctx, tx, "name", "leo")
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, ids)
	})

	t.Run("identities are unique across labels", func(t *testing.T) {
		rtx, err := store.Begin(ctx, graph.ReadOnly)
		require.NoError(t, err)
		records, err := rtx.(*tx).collect(ctx,
			"SHOW CONSTRAINTS YIELD name, labelsOrTypes, properties WHERE name = $name RETURN labelsOrTypes, properties",
			map[string]any{"name": identityConstraint})
		require.NoError(t, err)
		require.NoError(t, rtx.Rollback(ctx))
		require.Len(t, records, 1)
		labels, _ := records[0].Get("labelsOrTypes")
		assert.Equal(t, []string{NodeLabel}, stringList(labels))

		wtx, err := store.Begin(ctx, graph.ReadWrite)
		require.NoError(t, err)
		defer wtx.Rollback(ctx)
		_, err = wtx.CreateNode(ctx, "cub", map[string]any{"id": int64(2), "name": "Kion"})
		assert.ErrorIs(t, err, graph.ErrNodeExists)
	})

	t.Run("delete requires detached node", func(t *testing.T) {
		tx, err := store.Begin(ctx, graph.ReadWrite)
		require.NoError(t, err)

		err = tx.DeleteNode(ctx, 1)
		assert.ErrorIs(t, err, graph.ErrNodeHasRelationships)

		edges, err := tx.Edges(ctx, 1, "", graph.Both)
		require.NoError(t, err)
		for _, e := range edges {
			require.NoError(t, tx.DeleteEdge(ctx, e.ID))
		}
		require.NoError(t, tx.DeleteNode(ctx, 1))
		assert.ErrorIs(t, tx.DeleteNode(ctx, 1), graph.ErrNotFound)
		require.NoError(t, tx.Commit(ctx))
	})
}
