// Package neo4jgraph implements graph.Store on a Neo4j database.
//
// Nodes are addressed by their integer id property rather than by Neo4j's
// internal element ids, so identities survive exports and restores. Every
// node also carries NodeLabel, whose id uniqueness constraint backs identity
// lookups. Exact
// indexes map to RANGE indexes and full-text indexes to Neo4j FULLTEXT
// indexes, which Neo4j maintains itself.
package neo4jgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/zero-day-ai/graphmap/graph"
)

// NodeLabel is added to every node the store creates. Open ensures the
// constraint making its id property unique.
const NodeLabel = "GraphmapNode"

// identityConstraint is the name of the uniqueness constraint on NodeLabel ids.
const identityConstraint = "graphmap_node_id"

// Config holds connection settings for the Neo4j driver.
type Config struct {
	// URI is the connection string (e.g., "neo4j://localhost:7687").
	URI string

	Username string
	Password string

	// Database selects the database; empty means the server default.
	Database string

	// MaxConnectionPoolSize is the maximum number of pooled connections.
	MaxConnectionPoolSize int

	// ConnectionTimeout bounds connection acquisition and each connect attempt.
	ConnectionTimeout time.Duration

	// MaxTransactionRetryTime is passed to the driver.
	MaxTransactionRetryTime time.Duration

	// ConnectRetries is the number of connection attempts made by Open.
	ConnectRetries int
}

// Validate checks that the configuration can be used to connect.
func (c Config) Validate() error {
	if c.URI == "" {
		return errors.New("neo4jgraph: URI is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.MaxConnectionPoolSize <= 0 {
		c.MaxConnectionPoolSize = 50
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	if c.MaxTransactionRetryTime <= 0 {
		c.MaxTransactionRetryTime = 30 * time.Second
	}
	if c.ConnectRetries <= 0 {
		c.ConnectRetries = 5
	}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for connection attempts.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store is a graph.Store backed by a Neo4j driver.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

var _ graph.Store = (*Store)(nil)

// Open connects to Neo4j, retrying with exponential backoff until
// connectivity is verified or the attempts are exhausted.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	s := &Store{database: cfg.Database, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driverConfig := func(config *neo4j.Config) {
		config.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		config.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
		config.MaxTransactionRetryTime = cfg.MaxTransactionRetryTime
	}

	var lastErr error
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < cfg.ConnectRetries; attempt++ {
		driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, driverConfig)
		if err == nil {
			err = driver.VerifyConnectivity(ctx)
			if err == nil {
				s.driver = driver
				if err := s.ensureIdentityConstraint(ctx); err != nil {
					_ = driver.Close(ctx)
					s.driver = nil
					return nil, err
				}
				return s, nil
			}
			_ = driver.Close(ctx)
		}
		lastErr = err
		s.logger.Debug("neo4j connection attempt failed", "attempt", attempt+1, "error", err)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("neo4jgraph: connection attempt cancelled: %w", ctx.Err())
		}

		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.ConnectionTimeout {
			delay = cfg.ConnectionTimeout
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("neo4jgraph: connection attempt cancelled: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("neo4jgraph: failed to connect after %d attempts: %w", cfg.ConnectRetries, lastErr)
}

// Begin starts an explicit transaction in a new session.
func (s *Store) Begin(ctx context.Context, mode graph.AccessMode) (graph.Tx, error) {
	if s.driver == nil {
		return nil, errors.New("neo4jgraph: driver not connected")
	}

	accessMode := neo4j.AccessModeWrite
	if mode == graph.ReadOnly {
		accessMode = neo4j.AccessModeRead
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   accessMode,
	})
	etx, err := session.BeginTransaction(ctx)
	if err != nil {
		_ = session.Close(ctx)
		return nil, fmt.Errorf("neo4jgraph: begin %s transaction: %w", mode, err)
	}

	return &tx{
		store:    s,
		session:  session,
		etx:      etx,
		writable: mode == graph.ReadWrite,
	}, nil
}

// ensureIdentityConstraint creates the unique constraint on NodeLabel ids,
// which also provides the index identity lookups use.
func (s *Store) ensureIdentityConstraint(ctx context.Context) error {
	cypher := fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		identityConstraint, NodeLabel, graph.IDProperty)
	_, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, nil,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
	)
	if err != nil {
		return fmt.Errorf("neo4jgraph: create identity constraint: %w", err)
	}
	return nil
}

// AwaitIndexes blocks until every index is online or timeout elapses.
// Indexes created in a committed transaction populate in the background.
func (s *Store) AwaitIndexes(ctx context.Context, timeout time.Duration) error {
	if s.driver == nil {
		return errors.New("neo4jgraph: driver not connected")
	}
	_, err := neo4j.ExecuteQuery(ctx, s.driver,
		"CALL db.awaitIndexes($seconds)",
		map[string]any{"seconds": int64(timeout.Seconds())},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
	)
	if err != nil {
		return fmt.Errorf("neo4jgraph: await indexes: %w", err)
	}
	return nil
}

// Close releases the driver and its connections.
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	if err := s.driver.Close(ctx); err != nil {
		return fmt.Errorf("neo4jgraph: close driver: %w", err)
	}
	s.driver = nil
	return nil
}
