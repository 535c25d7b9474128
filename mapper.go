package graphmap

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/graphmap/entity"
	"github.com/zero-day-ai/graphmap/graph"
	"github.com/zero-day-ai/graphmap/idgen"
	"github.com/zero-day-ai/graphmap/index"
	"github.com/zero-day-ai/graphmap/mapperr"
)

// Mapper maps entities onto a graph store. It owns the index coordinator and
// the full-text registry used by every operation on it.
//
// Mapper is safe for concurrent use.
type Mapper struct {
	store       graph.Store
	descriptors *entity.Registry
	coord       *index.Coordinator
	ids         idgen.Generator
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *mapperMetrics
	now         func() time.Time

	closers []func() error
}

// New creates a mapper over store.
//
// Example:
//
//	store, err := boltgraph.Open("/var/lib/zoo")
//	m, err := graphmap.New(store, graphmap.WithLogger(logger))
//	leo, err := graphmap.CreateUnique(ctx, m, &Lion{Name: "Leo", Age: 5})
func New(store graph.Store, opts ...Option) (*Mapper, error) {
	if store == nil {
		return nil, mapperr.Storage("New", errors.New("graph store is required"))
	}

	cfg := &mapperConfig{
		logger:        slog.Default(),
		tracer:        tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meterProvider: metricnoop.NewMeterProvider(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.descriptors == nil {
		cfg.descriptors = entity.Default()
	}
	if cfg.indexes == nil {
		cfg.indexes = index.NewRegistry()
	}
	if cfg.ids == nil {
		cfg.ids = idgen.NewClock(cfg.now)
	}

	metrics, err := newMapperMetrics(cfg.meterProvider)
	if err != nil {
		return nil, mapperr.Storage("New", err)
	}

	return &Mapper{
		store:       store,
		descriptors: cfg.descriptors,
		coord: index.NewCoordinator(store,
			index.WithLogger(cfg.logger),
			index.WithRegistry(cfg.indexes),
		),
		ids:     cfg.ids,
		logger:  cfg.logger,
		tracer:  cfg.tracer,
		metrics: metrics,
		now:     cfg.now,
	}, nil
}

// Store returns the underlying graph store.
func (m *Mapper) Store() graph.Store {
	return m.store
}

// Indexes returns the full-text index registry.
func (m *Mapper) Indexes() *index.Registry {
	return m.coord.Registry()
}

// Descriptors returns the entity descriptor registry.
func (m *Mapper) Descriptors() *entity.Registry {
	return m.descriptors
}

// Close closes the underlying store, and the identity generator when the
// mapper was built by Open.
func (m *Mapper) Close(ctx context.Context) error {
	var errs []error
	if err := m.store.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, c := range m.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return mapperr.Storage("Close", err)
	}
	return nil
}

// EnsureIndexes reconciles the indexes of every given type, in order,
// stopping at the first failure. Types must have been described through the
// mapper's registry (see Register).
func (m *Mapper) EnsureIndexes(ctx context.Context, infos ...*entity.TypeInfo) (err error) {
	ctx, span := m.startSpan(ctx, "EnsureIndexes", "", attribute.Int("graphmap.types", len(infos)))
	defer func() { endSpan(span, err) }()

	for _, info := range infos {
		if err := m.coord.EnsureIndexes(ctx, info); err != nil {
			return err
		}
	}
	return nil
}

// Register describes T and reconciles its indexes eagerly, so the first
// write does not pay for it. Typically called once per type at start-up.
func Register[T any, PT entity.Entity[T]](ctx context.Context, m *Mapper) error {
	desc, err := describe[T, PT](m)
	if err != nil {
		return err
	}
	return m.EnsureIndexes(ctx, desc.Info())
}

func describe[T any, PT entity.Entity[T]](m *Mapper) (*entity.Descriptor[T], error) {
	return entity.Describe[T, PT](m.descriptors)
}

// begin opens a transaction, wrapping failures as storage errors.
func (m *Mapper) begin(ctx context.Context, op string, mode graph.AccessMode) (graph.Tx, error) {
	tx, err := m.store.Begin(ctx, mode)
	if err != nil {
		return nil, mapperr.Storage(op, err)
	}
	return tx, nil
}

// finish commits tx when err is nil and rolls it back otherwise.
func (m *Mapper) finish(ctx context.Context, op string, tx graph.Tx, err *error) {
	if *err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			m.logger.Warn("rollback failed", "op", op, "error", rbErr)
		}
		return
	}
	if cErr := tx.Commit(ctx); cErr != nil {
		*err = mapperr.Storage(op, cErr)
	}
}

// createNode assigns a fresh identity, stores the node and feeds its
// full-text attributes to their indexes. The type's indexes must already be
// ensured.
func (m *Mapper) createNode(ctx context.Context, op string, tx graph.Tx, info *entity.TypeInfo, props map[string]any) (*graph.Node, error) {
	id, err := m.ids.NextID(ctx)
	if err != nil {
		return nil, mapperr.Storage(op, err)
	}
	props[entity.IdentityKey] = id

	node, err := tx.CreateNode(ctx, info.Label, props)
	if err != nil {
		return nil, mapperr.Storage(op, err).WithContext(map[string]any{"label": info.Label})
	}

	for key, name := range info.FullTextIndexes() {
		value, ok := props[key]
		if !ok {
			continue
		}
		h := m.coord.Registry().FullTextIndex(name)
		if h == nil {
			return nil, mapperr.Storage(op, errors.New("full-text index "+name+" is not registered"))
		}
		if err := h.Add(ctx, tx, node.ID, key, value); err != nil {
			return nil, mapperr.Storage(op, err).WithContext(map[string]any{"index": name})
		}
	}
	return node, nil
}

// hydrate converts a node into T.
func hydrate[T any](desc *entity.Descriptor[T], node *graph.Node) (*T, error) {
	return desc.Hydrate(node.Properties)
}
