package boltgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/zero-day-ai/graphmap/graph"
)

// Bucket names.
var (
	bucketNodes     = []byte("nodes")
	bucketLabels    = []byte("labels")
	bucketEdges     = []byte("edges")
	bucketAdjacency = []byte("adjacency")
	bucketSchema    = []byte("schema")
	bucketExact     = []byte("exact")
	bucketFullText  = []byte("fulltext")
	bucketFTDocs    = []byte("fulltext_docs")
)

var rootBuckets = [][]byte{
	bucketNodes, bucketLabels, bucketEdges, bucketAdjacency,
	bucketSchema, bucketExact, bucketFullText, bucketFTDocs,
}

const (
	dataFile    = "graph.db"
	fullTextDir = "fulltext"
)

// Store is an embedded graph store. Nodes, edges and exact indexes live in a
// single bbolt file; each full-text index is a bleve index next to it.
//
// bbolt serializes writers, so Store is safe for concurrent use: any number
// of read-only transactions may run alongside at most one read-write
// transaction.
type Store struct {
	dir    string
	db     *bolt.DB
	logger *slog.Logger

	mu      sync.Mutex
	indexes map[string]bleve.Index
	closed  bool
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	timeout time.Duration
	noSync  bool
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOpenTimeout bounds how long Open waits for the file lock.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithNoSync skips fsync on commit. Only suitable for tests and scratch data.
func WithNoSync() Option {
	return func(o *options) {
		o.noSync = true
	}
}

// Open opens, or creates, the store rooted at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	o := options{
		logger:  slog.Default(),
		timeout: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if dir == "" {
		return nil, errors.New("boltgraph: directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, fullTextDir), 0o755); err != nil {
		return nil, fmt.Errorf("boltgraph: create directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, dataFile), 0o600, &bolt.Options{Timeout: o.timeout})
	if err != nil {
		return nil, fmt.Errorf("boltgraph: open %s: %w", dir, err)
	}
	db.NoSync = o.noSync

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range rootBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltgraph: %w", err)
	}

	return &Store{
		dir:     dir,
		db:      db,
		logger:  o.logger,
		indexes: make(map[string]bleve.Index),
	}, nil
}

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context, mode graph.AccessMode) (graph.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, bolt.ErrDatabaseNotOpen
	}

	btx, err := s.db.Begin(mode == graph.ReadWrite)
	if err != nil {
		return nil, fmt.Errorf("boltgraph: begin: %w", err)
	}
	return &tx{
		store:    s,
		btx:      btx,
		writable: mode == graph.ReadWrite,
		pending:  make(map[string]*bleve.Batch),
	}, nil
}

// Close closes every full-text index and the data file.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for name, idx := range s.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close full-text index %s: %w", name, err))
		}
	}
	s.indexes = nil

	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close data file: %w", err))
	}
	return errors.Join(errs...)
}

// Path returns the directory the store is rooted at.
func (s *Store) Path() string {
	return s.dir
}

func (s *Store) fullTextPath(name string) string {
	return filepath.Join(s.dir, fullTextDir, name+".bleve")
}

// bleveIndex returns the open bleve index for name, opening it on first use.
// A missing index directory is recreated and refilled from the documents
// persisted in btx.
func (s *Store) bleveIndex(name string, btx *bolt.Tx) (bleve.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}

	idx, err := bleve.Open(s.fullTextPath(name))
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		s.logger.Warn("full-text index missing on disk, rebuilding", "index", name)
		idx, err = s.rebuild(name, btx)
	}
	if err != nil {
		return nil, fmt.Errorf("open full-text index %s: %w", name, err)
	}

	s.indexes[name] = idx
	return idx, nil
}

// createBleveIndex creates an empty bleve index for name, replacing any
// leftover directory.
func (s *Store) createBleveIndex(name string) (bleve.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if idx, ok := s.indexes[name]; ok {
		_ = idx.Close()
		delete(s.indexes, name)
	}

	path := s.fullTextPath(name)
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove stale full-text index %s: %w", name, err)
	}
	idx, err := bleve.New(path, bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create full-text index %s: %w", name, err)
	}
	s.indexes[name] = idx
	return idx, nil
}

// dropBleveIndex closes and removes the on-disk index for name.
func (s *Store) dropBleveIndex(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[name]; ok {
		_ = idx.Close()
		delete(s.indexes, name)
	}
	if err := os.RemoveAll(s.fullTextPath(name)); err != nil {
		s.logger.Warn("failed to remove full-text index directory", "index", name, "error", err)
	}
}

// rebuild is called with s.mu held.
func (s *Store) rebuild(name string, btx *bolt.Tx) (bleve.Index, error) {
	idx, err := bleve.New(s.fullTextPath(name), bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}

	batch := idx.NewBatch()
	prefix := ftDocPrefix(name)
	c := btx.Bucket(bucketFTDocs).Cursor()
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		var doc map[string]any
		if err := decode(v, &doc); err != nil {
			_ = idx.Close()
			return nil, err
		}
		if err := batch.Index(docID(keyID(k[len(prefix):])), doc); err != nil {
			_ = idx.Close()
			return nil, err
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}
