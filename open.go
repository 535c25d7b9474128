package graphmap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/zero-day-ai/graphmap/config"
	"github.com/zero-day-ai/graphmap/graph"
	"github.com/zero-day-ai/graphmap/graph/boltgraph"
	"github.com/zero-day-ai/graphmap/graph/neo4jgraph"
	"github.com/zero-day-ai/graphmap/idgen"
	"github.com/zero-day-ai/graphmap/mapperr"
)

// Open builds a mapper from cfg: it opens the configured graph store and
// identity generator and applies opts on top. A nil cfg means
// config.Default(). Closing the mapper closes both.
//
// Without a WithLogger option, a text logger on stderr at cfg.Log.Level is used.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Mapper, error) {
	const op = "Open"

	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, mapperr.Storage(op, fmt.Errorf("invalid config: %w", err))
	}

	probe := &mapperConfig{}
	for _, opt := range opts {
		opt(probe)
	}
	logger := probe.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
		opts = append([]Option{WithLogger(logger)}, opts...)
	}

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, mapperr.Storage(op, err)
	}

	var closers []func() error
	if probe.ids == nil && cfg.IDs.Generator == config.GeneratorRedis {
		gen, err := idgen.NewRedis(idgen.RedisOptions{
			URL: cfg.IDs.Redis.URL,
			Key: cfg.IDs.Redis.Key,
		})
		if err != nil {
			closeWithLog(ctx, store, logger, "graph store")
			return nil, mapperr.Storage(op, err)
		}
		if floor := cfg.IDs.Redis.Floor; floor > 0 {
			if err := gen.Seed(ctx, floor); err != nil {
				_ = gen.Close()
				closeWithLog(ctx, store, logger, "graph store")
				return nil, mapperr.Storage(op, err)
			}
			logger.Debug("seeded id counter", "floor", floor)
		}
		opts = append(opts, WithIDGenerator(gen))
		closers = append(closers, gen.Close)
	}

	m, err := New(store, opts...)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		closeWithLog(ctx, store, logger, "graph store")
		return nil, err
	}
	m.closers = closers

	logger.Info("graph mapper opened",
		"driver", cfg.Store.Driver,
		"ids", cfg.IDs.Generator)
	return m, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (graph.Store, error) {
	switch cfg.Driver {
	case config.DriverNeo4j:
		return neo4jgraph.Open(ctx, neo4jgraph.Config{
			URI:                     cfg.Neo4j.URI,
			Username:                cfg.Neo4j.Username,
			Password:                cfg.Neo4j.Password,
			Database:                cfg.Neo4j.Database,
			MaxConnectionPoolSize:   cfg.Neo4j.GetMaxConnectionPoolSize(),
			ConnectionTimeout:       cfg.Neo4j.GetConnectionTimeout(),
			MaxTransactionRetryTime: cfg.Neo4j.GetMaxTransactionRetryTime(),
		}, neo4jgraph.WithLogger(logger))
	default:
		opts := []boltgraph.Option{boltgraph.WithLogger(logger)}
		if cfg.NoSync {
			opts = append(opts, boltgraph.WithNoSync())
		}
		return boltgraph.Open(cfg.Path, opts...)
	}
}
