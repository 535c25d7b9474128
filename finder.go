package graphmap

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zero-day-ai/graphmap/entity"
	"github.com/zero-day-ai/graphmap/graph"
	"github.com/zero-day-ai/graphmap/mapperr"
)

// FindByID returns the T stored under id. A missing node, or a node with a
// different label, yields (nil, nil).
func FindByID[T any, PT entity.Entity[T]](ctx context.Context, m *Mapper, id int64) (_ *T, err error) {
	const op = "FindByID"

	desc, err := describe[T, PT](m)
	if err != nil {
		return nil, err
	}
	ctx, span := m.startSpan(ctx, op, desc.Label(), attribute.Int64("graphmap.id", id))
	defer func() { endSpan(span, err) }()

	tx, err := m.begin(ctx, op, graph.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer m.finish(ctx, op, tx, &err)

	node, err := tx.NodeByID(ctx, id)
	if errors.Is(err, graph.ErrNotFound) {
		m.logger.Debug("node not found", "label", desc.Label(), "id", id)
		return nil, nil
	}
	if err != nil {
		return nil, mapperr.Storage(op, err)
	}
	if node.Label != desc.Label() {
		m.logger.Debug("node has a different label", "label", desc.Label(), "actual", node.Label, "id", id)
		return nil, nil
	}
	return hydrate(desc, node)
}

// FindByProperty returns every T whose attribute key equals value. key may be
// the persisted key ("age") or the accessor name ("GetAge"). The result is
// empty, never nil, when nothing matches.
func FindByProperty[T any, PT entity.Entity[T]](ctx context.Context, m *Mapper, key string, value any) (_ []*T, err error) {
	const op = "FindByProperty"

	desc, err := describe[T, PT](m)
	if err != nil {
		return nil, err
	}
	key = entity.NormalizeAccessor(key)
	ctx, span := m.startSpan(ctx, op, desc.Label(), attribute.String("graphmap.key", key))
	defer func() { endSpan(span, err) }()

	tx, err := m.begin(ctx, op, graph.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer m.finish(ctx, op, tx, &err)

	nodes, err := tx.NodesByProperty(ctx, desc.Label(), key, value)
	if err != nil {
		return nil, mapperr.Storage(op, err)
	}

	out := make([]*T, 0, len(nodes))
	for _, node := range sortNodes(nodes) {
		e, err := hydrate(desc, node)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Search runs query against the key field of the named full-text index and
// returns the matching T values. A blank index name, key or query, or an
// index unknown to the mapper, yields an empty result.
func Search[T any, PT entity.Entity[T]](ctx context.Context, m *Mapper, indexName, key, query string) (_ []*T, err error) {
	const op = "Search"

	desc, err := describe[T, PT](m)
	if err != nil {
		return nil, err
	}
	key = entity.NormalizeAccessor(key)
	ctx, span := m.startSpan(ctx, op, desc.Label(),
		attribute.String("graphmap.index", indexName),
		attribute.String("graphmap.key", key),
	)
	defer func() { endSpan(span, err) }()

	out := make([]*T, 0)
	if strings.TrimSpace(indexName) == "" || key == "" || strings.TrimSpace(query) == "" {
		return out, nil
	}

	// Opens the handles of indexes created by an earlier process.
	if err := m.coord.EnsureOnce(ctx, desc.Info()); err != nil {
		return nil, err
	}

	h := m.coord.Registry().FullTextIndex(indexName)
	if h == nil {
		m.logger.Debug("unknown full-text index", "index", indexName, "label", desc.Label())
		return out, nil
	}

	tx, err := m.begin(ctx, op, graph.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer m.finish(ctx, op, tx, &err)

	ids, err := h.Query(ctx, tx, key, query)
	if err != nil {
		return nil, mapperr.Storage(op, err).WithContext(map[string]any{"index": indexName})
	}

	for _, id := range ids {
		node, err := tx.NodeByID(ctx, id)
		if errors.Is(err, graph.ErrNotFound) {
			m.logger.Debug("full-text hit without node", "index", indexName, "id", id)
			continue
		}
		if err != nil {
			return nil, mapperr.Storage(op, err)
		}
		if node.Label != desc.Label() {
			continue
		}
		e, err := hydrate(desc, node)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	span.SetAttributes(attribute.Int("graphmap.hits", len(out)))
	return out, nil
}

// Delete removes the T stored under id together with its relationships and
// full-text entries. Deleting a missing id, or a node of another label, logs
// a warning and succeeds.
func Delete[T any, PT entity.Entity[T]](ctx context.Context, m *Mapper, id int64) (err error) {
	const op = "Delete"

	desc, err := describe[T, PT](m)
	if err != nil {
		return err
	}
	ctx, span := m.startSpan(ctx, op, desc.Label(), attribute.Int64("graphmap.id", id))
	defer func() { endSpan(span, err) }()

	if err := m.coord.EnsureOnce(ctx, desc.Info()); err != nil {
		return err
	}

	deleted, err := deleteInTx(ctx, m, op, desc.Info(), func(tx graph.Tx) ([]*graph.Node, error) {
		node, err := tx.NodeByID(ctx, id)
		if errors.Is(err, graph.ErrNotFound) {
			m.logger.Warn("delete of missing node ignored", "label", desc.Label(), "id", id)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if node.Label != desc.Label() {
			m.logger.Warn("delete of node with a different label ignored",
				"label", desc.Label(), "actual", node.Label, "id", id)
			return nil, nil
		}
		return []*graph.Node{node}, nil
	})
	if err != nil {
		return err
	}
	m.metrics.recordDeleted(ctx, desc.Label(), deleted)
	return nil
}

// DeleteByProperty removes every T whose attribute key equals value and
// returns how many were deleted.
func DeleteByProperty[T any, PT entity.Entity[T]](ctx context.Context, m *Mapper, key string, value any) (_ int, err error) {
	const op = "DeleteByProperty"

	desc, err := describe[T, PT](m)
	if err != nil {
		return 0, err
	}
	key = entity.NormalizeAccessor(key)
	ctx, span := m.startSpan(ctx, op, desc.Label(), attribute.String("graphmap.key", key))
	defer func() { endSpan(span, err) }()

	if err := m.coord.EnsureOnce(ctx, desc.Info()); err != nil {
		return 0, err
	}

	deleted, err := deleteInTx(ctx, m, op, desc.Info(), func(tx graph.Tx) ([]*graph.Node, error) {
		nodes, err := tx.NodesByProperty(ctx, desc.Label(), key, value)
		if err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			m.logger.Warn("delete matched no nodes", "label", desc.Label(), "key", key)
		}
		return nodes, nil
	})
	if err != nil {
		return 0, err
	}
	m.metrics.recordDeleted(ctx, desc.Label(), deleted)
	return deleted, nil
}

// deleteInTx resolves nodes with match and detaches and deletes each of them
// in one transaction.
func deleteInTx(ctx context.Context, m *Mapper, op string, info *entity.TypeInfo, match func(graph.Tx) ([]*graph.Node, error)) (_ int, err error) {
	tx, err := m.begin(ctx, op, graph.ReadWrite)
	if err != nil {
		return 0, err
	}
	defer m.finish(ctx, op, tx, &err)

	nodes, err := match(tx)
	if err != nil {
		return 0, mapperr.Storage(op, err)
	}

	handles := m.coord.Registry().FullTextIndexesForType(info.Type)
	for _, node := range nodes {
		edges, err := tx.Edges(ctx, node.ID, "", graph.Both)
		if err != nil {
			return 0, mapperr.Storage(op, err)
		}
		for _, edge := range edges {
			if err := tx.DeleteEdge(ctx, edge.ID); err != nil {
				return 0, mapperr.Storage(op, err)
			}
		}
		for _, h := range handles {
			if err := h.Remove(ctx, tx, node.ID); err != nil {
				return 0, mapperr.Storage(op, err).WithContext(map[string]any{"index": h.Name()})
			}
		}
		if err := tx.DeleteNode(ctx, node.ID); err != nil {
			return 0, mapperr.Storage(op, err)
		}
		m.logger.Debug("deleted node", "label", info.Label, "id", node.ID, "relationships", len(edges))
	}
	return len(nodes), nil
}

func sortNodes(nodes []*graph.Node) []*graph.Node {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}
