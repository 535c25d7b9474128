// Package index reconciles the secondary indexes an entity type declares
// with the indexes present in the graph store, and keeps the resulting
// full-text handles in a Registry.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/zero-day-ai/graphmap/entity"
	"github.com/zero-day-ai/graphmap/graph"
	"github.com/zero-day-ai/graphmap/mapperr"
)

// Coordinator creates missing exact and full-text indexes for entity types.
type Coordinator struct {
	store    graph.Store
	registry *Registry
	logger   *slog.Logger

	mu      sync.Mutex
	ensured map[reflect.Type]struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithRegistry sets the registry handles are recorded in.
func WithRegistry(registry *Registry) Option {
	return func(c *Coordinator) {
		c.registry = registry
	}
}

// NewCoordinator creates a coordinator for store.
func NewCoordinator(store graph.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		logger:  slog.Default(),
		ensured: make(map[reflect.Type]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	return c
}

// Registry returns the registry full-text handles are recorded in.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// EnsureIndexes creates every index info declares that the store lacks, in
// a single transaction, and registers the type's full-text handles once the
// transaction has committed. On failure nothing is registered. Calling it
// again for the same type is harmless.
func (c *Coordinator) EnsureIndexes(ctx context.Context, info *entity.TypeInfo) error {
	const op = "EnsureIndexes"

	handles, err := c.reconcile(ctx, info)
	if err != nil {
		return mapperr.Storage(op, err).WithContext(map[string]any{"label": info.Label})
	}

	c.registry.Register(info.Type, handles...)

	c.mu.Lock()
	c.ensured[info.Type] = struct{}{}
	c.mu.Unlock()
	return nil
}

// EnsureOnce runs EnsureIndexes the first time it is called for a type and
// returns immediately afterwards. Failed attempts are retried on the next call.
func (c *Coordinator) EnsureOnce(ctx context.Context, info *entity.TypeInfo) error {
	c.mu.Lock()
	_, done := c.ensured[info.Type]
	c.mu.Unlock()
	if done {
		return nil
	}
	return c.EnsureIndexes(ctx, info)
}

// Ensured reports whether the indexes of t have been reconciled.
func (c *Coordinator) Ensured(t reflect.Type) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ensured[t]
	return ok
}

func (c *Coordinator) reconcile(ctx context.Context, info *entity.TypeInfo) (handles []graph.FullTextIndex, err error) {
	tx, err := c.store.Begin(ctx, graph.ReadWrite)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var (
		schema    []graph.IndexDefinition
		fullText  []string
		ftGroups  = make(map[string][]string)
		ftOrder   []string
		haveNames bool
	)

	for _, spec := range info.Indexes {
		switch spec.Kind {
		case entity.Exact:
			if schema == nil {
				if schema, err = tx.SchemaIndexes(ctx, info.Label); err != nil {
					return nil, fmt.Errorf("list schema indexes on %s: %w", info.Label, err)
				}
			}
			if covered(schema, info.Label, spec.Property) {
				continue
			}
			if err = tx.CreateSchemaIndex(ctx, info.Label, spec.Property); err != nil {
				return nil, fmt.Errorf("create exact index on %s.%s: %w", info.Label, spec.Property, err)
			}
			schema = append(schema, graph.IndexDefinition{Label: info.Label, Properties: []string{spec.Property}})
			c.logger.Info("created exact index", "label", info.Label, "property", spec.Property)

		case entity.FullText:
			if _, seen := ftGroups[spec.Name]; !seen {
				ftOrder = append(ftOrder, spec.Name)
			}
			ftGroups[spec.Name] = append(ftGroups[spec.Name], spec.Property)
		}
	}

	for _, name := range ftOrder {
		if !haveNames {
			if fullText, err = tx.FullTextIndexNames(ctx); err != nil {
				return nil, fmt.Errorf("list full-text indexes: %w", err)
			}
			haveNames = true
		}

		var h graph.FullTextIndex
		if slices.Contains(fullText, name) {
			h, err = tx.FullTextIndex(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("open full-text index %s: %w", name, err)
			}
		} else {
			h, err = tx.CreateFullTextIndex(ctx, name, info.Label, ftGroups[name])
			if err != nil {
				return nil, fmt.Errorf("create full-text index %s: %w", name, err)
			}
			fullText = append(fullText, name)
			c.logger.Info("created full-text index", "index", name, "label", info.Label, "properties", ftGroups[name])
		}
		handles = append(handles, h)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit index changes: %w", err)
	}
	return handles, nil
}

func covered(defs []graph.IndexDefinition, label, property string) bool {
	for _, d := range defs {
		if d.Covers(label, property) {
			return true
		}
	}
	return false
}
