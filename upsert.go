package graphmap

import (
	"context"
	"errors"
	"fmt"

	"github.com/zero-day-ai/graphmap/entity"
	"github.com/zero-day-ai/graphmap/graph"
	"github.com/zero-day-ai/graphmap/mapperr"
)

// CreateUnique persists e unless it already has an identity.
//
// When e carries an identity, the stored node is fetched and returned as a
// new value; nothing is written and e is left untouched. An identity with no
// stored node of T's label fails with ErrNotFound.
//
// When e has no identity, T's indexes are reconciled (once per mapper), a
// node is created with a freshly generated identity and every persistable
// attribute, its full-text attributes are indexed, and the identity is set
// on e, which is returned.
//
// The existence check and the creation run in separate transactions, so two
// concurrent calls for equal identity-less entities create two nodes.
func CreateUnique[T any, PT entity.Entity[T]](ctx context.Context, m *Mapper, e *T) (_ *T, err error) {
	const op = "CreateUnique"

	desc, err := describe[T, PT](m)
	if err != nil {
		return nil, err
	}
	ctx, span := m.startSpan(ctx, op, desc.Label())
	defer func() { endSpan(span, err) }()

	props, err := desc.Extract(e)
	if err != nil {
		return nil, err
	}

	if desc.Info().HasIdentity {
		id, ok, err := desc.Identity(e)
		if err != nil {
			return nil, err
		}
		if ok {
			return fetchExisting(ctx, m, desc, id)
		}
	}

	if err := m.coord.EnsureOnce(ctx, desc.Info()); err != nil {
		return nil, err
	}

	node, err := createInTx(ctx, m, desc, props)
	if err != nil {
		return nil, err
	}
	m.metrics.recordCreated(ctx, desc.Label(), 1)

	if desc.Info().HasIdentity {
		if err := desc.SetIdentity(e, node.ID); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func fetchExisting[T any](ctx context.Context, m *Mapper, desc *entity.Descriptor[T], id int64) (_ *T, err error) {
	const op = "CreateUnique"

	tx, err := m.begin(ctx, op, graph.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer m.finish(ctx, op, tx, &err)

	node, err := tx.NodeByID(ctx, id)
	switch {
	case errors.Is(err, graph.ErrNotFound):
		return nil, mapperr.NotFound(op, fmt.Errorf("%s %d: %w", desc.Label(), id, mapperr.ErrNotFound)).
			WithContext(map[string]any{"label": desc.Label(), "id": id})
	case err != nil:
		return nil, mapperr.Storage(op, err)
	case node.Label != desc.Label():
		return nil, mapperr.NotFound(op, fmt.Errorf("node %d is a %s, not a %s: %w", id, node.Label, desc.Label(), mapperr.ErrNotFound)).
			WithContext(map[string]any{"label": desc.Label(), "id": id})
	}
	return hydrate(desc, node)
}

func createInTx[T any](ctx context.Context, m *Mapper, desc *entity.Descriptor[T], props map[string]any) (_ *graph.Node, err error) {
	const op = "CreateUnique"

	tx, err := m.begin(ctx, op, graph.ReadWrite)
	if err != nil {
		return nil, err
	}
	defer m.finish(ctx, op, tx, &err)

	node, err := m.createNode(ctx, op, tx, desc.Info(), props)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("created node", "label", desc.Label(), "id", node.ID)
	return node, nil
}
