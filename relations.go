package graphmap

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zero-day-ai/graphmap/entity"
	"github.com/zero-day-ai/graphmap/graph"
	"github.com/zero-day-ai/graphmap/mapperr"
)

// Role is the side of a relationship an entity is looked at from.
type Role int

const (
	// StartRole is the entity the relationship was created from.
	StartRole Role = iota

	// EndRole is the entity the relationship points to.
	EndRole
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case StartRole:
		return "start"
	case EndRole:
		return "end"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// RelationType is a named relationship from entities of type S to entities of
// type E. Properties, when set, are written onto every edge created with it.
//
//	var Roars = graphmap.NewRelationType[Lion, Sheep]("ROARS_AT", map[string]any{"volume": 11})
type RelationType[S, E any] struct {
	Name       string
	Properties map[string]any
}

// NewRelationType returns a relation type with a copy of properties.
func NewRelationType[S, E any](name string, properties map[string]any) RelationType[S, E] {
	return RelationType[S, E]{Name: name, Properties: maps.Clone(properties)}
}

// WithProperties returns a copy of r carrying properties instead of its own.
func (r RelationType[S, E]) WithProperties(properties map[string]any) RelationType[S, E] {
	return RelationType[S, E]{Name: r.Name, Properties: maps.Clone(properties)}
}

// AddRelatives creates a Name edge from e to each relative, in one
// transaction. e must already be stored. Relatives without an identity are
// created first and receive their identity once the transaction commits.
//
// A relative whose identity refers to no stored node of type E fails the
// whole batch with ErrDBOperation.
func AddRelatives[S, E any, PS entity.Entity[S], PE entity.Entity[E]](ctx context.Context, m *Mapper, e *S, rel RelationType[S, E], relatives ...*E) (err error) {
	const op = "AddRelatives"

	descS, err := describe[S, PS](m)
	if err != nil {
		return err
	}
	descE, err := describe[E, PE](m)
	if err != nil {
		return err
	}

	ctx, span := m.startSpan(ctx, op, descS.Label(),
		attribute.String("graphmap.relationship", rel.Name),
		attribute.Int("graphmap.relatives", len(relatives)),
	)
	defer func() { endSpan(span, err) }()

	startID, ok, err := descS.Identity(e)
	if err != nil {
		return err
	}
	if !ok {
		return mapperr.Reflection(op, fmt.Errorf("%s has no identity; store it before adding relatives", descS.Label()))
	}
	if rel.Name == "" {
		return mapperr.DBOperation(op, errors.New("relationship type has no name"))
	}
	if len(relatives) == 0 {
		return mapperr.DBOperation(op, errors.New("no relatives given"))
	}
	for i, r := range relatives {
		if r == nil {
			return mapperr.DBOperation(op, fmt.Errorf("relative %d is nil", i)).
				WithContext(map[string]any{"relationship": rel.Name, "position": i})
		}
	}

	payload, err := graph.NormalizeProperties(rel.Properties)
	if err != nil {
		return mapperr.DBOperation(op, fmt.Errorf("relationship %s payload: %w", rel.Name, err))
	}

	if err := m.coord.EnsureOnce(ctx, descE.Info()); err != nil {
		return err
	}

	created, err := materialize(ctx, m, descS, descE, startID, rel.Name, payload, relatives)
	if err != nil {
		return err
	}

	for i, id := range created {
		if err := descE.SetIdentity(relatives[i], id); err != nil {
			return err
		}
	}
	m.metrics.recordCreated(ctx, descE.Label(), len(created))
	m.metrics.recordRelationships(ctx, rel.Name, len(relatives))
	return nil
}

// materialize runs the AddRelatives transaction and returns the identities
// of the relatives it created, keyed by their position.
func materialize[S, E any](ctx context.Context, m *Mapper, descS *entity.Descriptor[S], descE *entity.Descriptor[E], startID int64, relType string, payload map[string]any, relatives []*E) (_ map[int]int64, err error) {
	const op = "AddRelatives"

	tx, err := m.begin(ctx, op, graph.ReadWrite)
	if err != nil {
		return nil, err
	}
	defer m.finish(ctx, op, tx, &err)

	start, err := tx.NodeByID(ctx, startID)
	if errors.Is(err, graph.ErrNotFound) || (err == nil && start.Label != descS.Label()) {
		return nil, mapperr.NotFound(op, fmt.Errorf("%s %d: %w", descS.Label(), startID, mapperr.ErrNotFound)).
			WithContext(map[string]any{"label": descS.Label(), "id": startID})
	}
	if err != nil {
		return nil, mapperr.Storage(op, err)
	}

	created := make(map[int]int64)
	resolved := make(map[*E]*graph.Node, len(relatives))
	for i, r := range relatives {
		end, ok := resolved[r]
		if !ok {
			fresh := !hasIdentity(descE, r)
			end, err = resolveRelative(ctx, m, tx, descE, r)
			if err != nil {
				return nil, err
			}
			if end == nil {
				return nil, mapperr.DBOperation(op, fmt.Errorf("relative %d of type %s could not be resolved", i, descE.Label())).
					WithContext(map[string]any{"relationship": relType, "position": i})
			}
			resolved[r] = end
			if fresh {
				created[i] = end.ID
			}
		}

		edge, err := tx.CreateEdge(ctx, start.ID, end.ID, relType)
		if err != nil {
			return nil, mapperr.Storage(op, err).WithContext(map[string]any{"relationship": relType})
		}
		for key, value := range payload {
			if err := tx.SetEdgeProperty(ctx, edge.ID, key, value); err != nil {
				return nil, mapperr.Storage(op, err).WithContext(map[string]any{"relationship": relType, "key": key})
			}
		}
		m.logger.Debug("created relationship", "type", relType, "start", start.ID, "end", end.ID)
	}
	return created, nil
}

// resolveRelative returns the node of r, creating it when r has no identity.
// Created relatives implementing entity.Stamped are stamped first.
// A nil node means r names an identity that is not stored as an E.
func resolveRelative[E any](ctx context.Context, m *Mapper, tx graph.Tx, desc *entity.Descriptor[E], r *E) (*graph.Node, error) {
	const op = "AddRelatives"

	if desc.Info().HasIdentity {
		id, ok, err := desc.Identity(r)
		if err != nil {
			return nil, err
		}
		if ok {
			node, err := tx.NodeByID(ctx, id)
			if errors.Is(err, graph.ErrNotFound) {
				m.logger.Error("relative not found", "label", desc.Label(), "id", id)
				return nil, nil
			}
			if err != nil {
				return nil, mapperr.Storage(op, err)
			}
			if node.Label != desc.Label() {
				m.logger.Error("relative has a different label", "label", desc.Label(), "actual", node.Label, "id", id)
				return nil, nil
			}
			return node, nil
		}
	}

	if s, ok := any(r).(entity.Stamped); ok {
		s.Stamp(m.now())
	}
	props, err := desc.Extract(r)
	if err != nil {
		return nil, err
	}
	return m.createNode(ctx, op, tx, desc.Info(), props)
}

func hasIdentity[E any](desc *entity.Descriptor[E], r *E) bool {
	if !desc.Info().HasIdentity {
		return false
	}
	_, ok, err := desc.Identity(r)
	return err == nil && ok
}

// Relatives returns the E entities connected to e by rel edges in direction
// dir, each at most once, ordered by identity.
func Relatives[S, E any, PS entity.Entity[S], PE entity.Entity[E]](ctx context.Context, m *Mapper, e *S, rel RelationType[S, E], dir graph.Direction) ([]*E, error) {
	descS, err := describe[S, PS](m)
	if err != nil {
		return nil, err
	}
	descE, err := describe[E, PE](m)
	if err != nil {
		return nil, err
	}
	return traverse(ctx, m, "Relatives", StartRole, descS, descE, e, rel.Name, dir)
}

// InverseRelatives returns the S entities connected to e by rel edges in
// direction dir, looking from the end of the relationship. Use Incoming to
// find the entities that created rel edges towards e.
func InverseRelatives[S, E any, PS entity.Entity[S], PE entity.Entity[E]](ctx context.Context, m *Mapper, e *E, rel RelationType[S, E], dir graph.Direction) ([]*S, error) {
	descS, err := describe[S, PS](m)
	if err != nil {
		return nil, err
	}
	descE, err := describe[E, PE](m)
	if err != nil {
		return nil, err
	}
	return traverse(ctx, m, "InverseRelatives", EndRole, descE, descS, e, rel.Name, dir)
}

// traverse hydrates the other endpoint of every relType edge of from, as a
// Y. Endpoints stored under another label are skipped.
func traverse[X, Y any](ctx context.Context, m *Mapper, op string, role Role, descFrom *entity.Descriptor[X], descTo *entity.Descriptor[Y], from *X, relType string, dir graph.Direction) (_ []*Y, err error) {
	ctx, span := m.startSpan(ctx, op, descFrom.Label(),
		attribute.String("graphmap.relationship", relType),
		attribute.String("graphmap.role", role.String()),
		attribute.String("graphmap.direction", dir.String()),
	)
	defer func() { endSpan(span, err) }()

	id, ok, err := descFrom.Identity(from)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, mapperr.Reflection(op, fmt.Errorf("%s has no identity", descFrom.Label()))
	}

	tx, err := m.begin(ctx, op, graph.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer m.finish(ctx, op, tx, &err)

	out := make([]*Y, 0)
	node, err := tx.NodeByID(ctx, id)
	if errors.Is(err, graph.ErrNotFound) {
		m.logger.Debug("node not found", "label", descFrom.Label(), "id", id)
		return out, nil
	}
	if err != nil {
		return nil, mapperr.Storage(op, err)
	}
	if node.Label != descFrom.Label() {
		return out, nil
	}

	edges, err := tx.Edges(ctx, id, relType, dir)
	if err != nil {
		return nil, mapperr.Storage(op, err)
	}

	seen := make(map[int64]struct{}, len(edges))
	others := make([]*graph.Node, 0, len(edges))
	for _, edge := range edges {
		otherID := edge.Other(id)
		if _, dup := seen[otherID]; dup {
			continue
		}
		seen[otherID] = struct{}{}

		other, err := tx.NodeByID(ctx, otherID)
		if errors.Is(err, graph.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, mapperr.Storage(op, err)
		}
		if other.Label != descTo.Label() {
			continue
		}
		others = append(others, other)
	}

	for _, other := range sortNodes(others) {
		y, err := hydrate(descTo, other)
		if err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, nil
}
