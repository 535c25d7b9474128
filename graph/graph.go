// Package graph defines the contract between the mapper and a labelled
// property-graph store.
//
// A Store hands out transactions. Every read and write the mapper performs
// goes through a Tx, and full-text index handles take the Tx they operate in
// so a handle obtained in one transaction can be used in later ones.
//
// Nodes are identified by their "id" property, which the mapper assigns
// before creating them. Edges are identified by an opaque, store-assigned
// string.
package graph

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by store implementations.
var (
	// ErrNotFound indicates the requested node, edge or index does not exist.
	ErrNotFound = errors.New("graph: not found")

	// ErrNodeHasRelationships indicates a node cannot be deleted while edges
	// still reference it.
	ErrNodeHasRelationships = errors.New("graph: node still has relationships")

	// ErrNodeExists indicates a node with the same id is already stored.
	ErrNodeExists = errors.New("graph: node already exists")

	// ErrIndexExists indicates a full-text index with the same name is already defined.
	ErrIndexExists = errors.New("graph: index already exists")

	// ErrTxDone indicates the transaction was already committed or rolled back.
	ErrTxDone = errors.New("graph: transaction already finished")

	// ErrReadOnly indicates a write was attempted in a read-only transaction.
	ErrReadOnly = errors.New("graph: transaction is read-only")

	// ErrUnsupportedValue indicates a property value the store cannot persist.
	ErrUnsupportedValue = errors.New("graph: unsupported property value")
)

// IDProperty is the node property carrying the node identity.
const IDProperty = "id"

// AccessMode selects between read-only and read-write transactions.
type AccessMode int

const (
	// ReadOnly transactions may run concurrently with each other.
	ReadOnly AccessMode = iota

	// ReadWrite transactions may mutate the graph.
	ReadWrite
)

// String returns the lower-case name of the access mode.
func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "read"
	case ReadWrite:
		return "write"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}

// Direction selects which edges of a node a traversal follows.
type Direction int

const (
	// Outgoing follows edges starting at the node.
	Outgoing Direction = iota

	// Incoming follows edges ending at the node.
	Incoming

	// Both follows edges in either direction.
	Both
)

// String returns the lower-case name of the direction.
func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Node is a stored, labelled node.
type Node struct {
	ID         int64
	Label      string
	Properties map[string]any
}

// Edge is a stored, typed, directed edge.
type Edge struct {
	ID         string
	Type       string
	Start      int64
	End        int64
	Properties map[string]any
}

// Other returns the endpoint of the edge opposite to nodeID.
func (e *Edge) Other(nodeID int64) int64 {
	if e.Start == nodeID {
		return e.End
	}
	return e.Start
}

// IndexDefinition describes an exact (schema) index.
type IndexDefinition struct {
	Name       string
	Label      string
	Properties []string
}

// Covers reports whether the index is a single-property index on label/property.
func (d IndexDefinition) Covers(label, property string) bool {
	return d.Label == label && len(d.Properties) == 1 && d.Properties[0] == property
}

// Store opens transactions against a graph database.
type Store interface {
	// Begin starts a transaction. The caller must finish it with Commit or Rollback.
	Begin(ctx context.Context, mode AccessMode) (Tx, error)

	// Close releases every resource held by the store.
	Close(ctx context.Context) error
}

// Tx is a single unit of work against the store. A Tx is not safe for
// concurrent use.
type Tx interface {
	// CreateNode stores a node. props must carry an integer IDProperty.
	CreateNode(ctx context.Context, label string, props map[string]any) (*Node, error)

	// NodeByID returns the node with the given id or ErrNotFound.
	NodeByID(ctx context.Context, id int64) (*Node, error)

	// NodesByProperty returns every node of label whose property key equals value.
	NodesByProperty(ctx context.Context, label, key string, value any) ([]*Node, error)

	// DeleteNode removes a node. It fails with ErrNodeHasRelationships while
	// edges still reference it.
	DeleteNode(ctx context.Context, id int64) error

	// CreateEdge stores an edge of relType from start to end.
	CreateEdge(ctx context.Context, start, end int64, relType string) (*Edge, error)

	// SetEdgeProperty sets one property on an existing edge.
	SetEdgeProperty(ctx context.Context, edgeID, key string, value any) error

	// Edges returns the edges of nodeID with type relType in direction dir.
	// An empty relType matches every type.
	Edges(ctx context.Context, nodeID int64, relType string, dir Direction) ([]*Edge, error)

	// DeleteEdge removes an edge.
	DeleteEdge(ctx context.Context, edgeID string) error

	// SchemaIndexes lists the exact indexes defined on label.
	SchemaIndexes(ctx context.Context, label string) ([]IndexDefinition, error)

	// CreateSchemaIndex defines an exact index on label/property.
	CreateSchemaIndex(ctx context.Context, label, property string) error

	// FullTextIndexNames lists every full-text index.
	FullTextIndexNames(ctx context.Context) ([]string, error)

	// CreateFullTextIndex defines a full-text index over the properties of label.
	CreateFullTextIndex(ctx context.Context, name, label string, properties []string) (FullTextIndex, error)

	// FullTextIndex opens an existing full-text index or returns ErrNotFound.
	FullTextIndex(ctx context.Context, name string) (FullTextIndex, error)

	// Commit makes the transaction's writes durable.
	Commit(ctx context.Context) error

	// Rollback discards the transaction's writes. Calling Rollback after
	// Commit is a no-op.
	Rollback(ctx context.Context) error
}

// FullTextIndex is a handle to a named full-text index. Handles outlive the
// transaction that produced them; each call takes the transaction it runs in.
type FullTextIndex interface {
	// Name returns the index name.
	Name() string

	// Add indexes value under key for nodeID.
	Add(ctx context.Context, tx Tx, nodeID int64, key string, value any) error

	// Remove drops every entry of nodeID.
	Remove(ctx context.Context, tx Tx, nodeID int64) error

	// Query returns the ids of nodes whose key matches query.
	Query(ctx context.Context, tx Tx, key, query string) ([]int64, error)
}
