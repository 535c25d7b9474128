package boltgraph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/zero-day-ai/graphmap/graph"
)

const (
	dirOut byte = 'o'
	dirIn  byte = 'i'
)

type tx struct {
	store    *Store
	btx      *bolt.Tx
	writable bool
	done     bool

	// pending holds full-text changes applied once the bolt transaction commits.
	pending map[string]*bleve.Batch

	// created lists full-text indexes created by this transaction.
	created []string
}

var _ graph.Tx = (*tx)(nil)

func (t *tx) check(write bool) error {
	if t.done {
		return graph.ErrTxDone
	}
	if write && !t.writable {
		return graph.ErrReadOnly
	}
	return nil
}

// Commit commits the bolt transaction, then applies queued full-text changes.
func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return graph.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		_ = t.Rollback(ctx)
		return err
	}
	t.done = true

	if !t.writable {
		return t.btx.Rollback()
	}
	if err := t.btx.Commit(); err != nil {
		t.dropCreated()
		return fmt.Errorf("boltgraph: commit: %w", err)
	}

	var errs []error
	for name, batch := range t.pending {
		if batch.Size() == 0 {
			continue
		}
		idx, err := t.store.bleveIndexOpen(name)
		if err == nil {
			err = idx.Batch(batch)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("apply full-text changes to %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Rollback discards the transaction. It is a no-op once the transaction has finished.
func (t *tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.dropCreated()
	if err := t.btx.Rollback(); err != nil {
		return fmt.Errorf("boltgraph: rollback: %w", err)
	}
	return nil
}

func (t *tx) dropCreated() {
	for _, name := range t.created {
		t.store.dropBleveIndex(name)
	}
	t.created = nil
}

// CreateNode stores a labelled node keyed by its id property.
func (t *tx) CreateNode(ctx context.Context, label string, props map[string]any) (*graph.Node, error) {
	if err := t.check(true); err != nil {
		return nil, err
	}
	if label == "" {
		return nil, errors.New("boltgraph: node label is required")
	}

	normalized, err := graph.NormalizeProperties(props)
	if err != nil {
		return nil, fmt.Errorf("boltgraph: create node: %w", err)
	}
	id, ok := graph.IDOf(normalized)
	if !ok {
		return nil, fmt.Errorf("boltgraph: create node: integer %q property is required", graph.IDProperty)
	}

	nodes := t.btx.Bucket(bucketNodes)
	key := idKey(id)
	if nodes.Get(key) != nil {
		return nil, fmt.Errorf("boltgraph: node %d: %w", id, graph.ErrNodeExists)
	}

	data, err := encode(nodeRecord{Label: label, Props: normalized})
	if err != nil {
		return nil, fmt.Errorf("boltgraph: encode node %d: %w", id, err)
	}
	if err := nodes.Put(key, data); err != nil {
		return nil, fmt.Errorf("boltgraph: put node %d: %w", id, err)
	}

	labels, err := t.btx.Bucket(bucketLabels).CreateBucketIfNotExists([]byte(label))
	if err != nil {
		return nil, fmt.Errorf("boltgraph: label bucket %s: %w", label, err)
	}
	if err := labels.Put(key, nil); err != nil {
		return nil, fmt.Errorf("boltgraph: label %s: %w", label, err)
	}

	if err := t.indexNode(label, id, normalized); err != nil {
		return nil, err
	}

	return &graph.Node{ID: id, Label: label, Properties: copyProps(normalized)}, nil
}

// NodeByID returns the node with the given id.
func (t *tx) NodeByID(ctx context.Context, id int64) (*graph.Node, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	data := t.btx.Bucket(bucketNodes).Get(idKey(id))
	if data == nil {
		return nil, fmt.Errorf("boltgraph: node %d: %w", id, graph.ErrNotFound)
	}
	return decodeNode(id, data)
}

// NodesByProperty returns the nodes of label whose key equals value, using an
// exact index when one is defined and a label scan otherwise.
func (t *tx) NodesByProperty(ctx context.Context, label, key string, value any) ([]*graph.Node, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}

	out := make([]*graph.Node, 0)

	if key == graph.IDProperty {
		id, ok := graph.IDOf(map[string]any{graph.IDProperty: value})
		if !ok {
			return out, nil
		}
		node, err := t.NodeByID(ctx, id)
		if errors.Is(err, graph.ErrNotFound) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if node.Label == label {
			out = append(out, node)
		}
		return out, nil
	}

	if ids, ok, err := t.lookupExact(label, key, value); err != nil {
		return nil, err
	} else if ok {
		for _, id := range ids {
			node, err := t.NodeByID(ctx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, node)
		}
		return out, nil
	}

	labels := t.btx.Bucket(bucketLabels).Bucket([]byte(label))
	if labels == nil {
		return out, nil
	}
	nodes := t.btx.Bucket(bucketNodes)
	err := labels.ForEach(func(k, _ []byte) error {
		id := keyID(k)
		node, err := decodeNode(id, nodes.Get(k))
		if err != nil {
			return err
		}
		if v, ok := node.Properties[key]; ok && graph.ValuesEqual(v, value) {
			out = append(out, node)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltgraph: scan %s: %w", label, err)
	}
	return out, nil
}

// DeleteNode removes a node that no edge references any more.
func (t *tx) DeleteNode(ctx context.Context, id int64) error {
	if err := t.check(true); err != nil {
		return err
	}
	node, err := t.NodeByID(ctx, id)
	if err != nil {
		return err
	}

	prefix := idKey(id)
	if k, _ := t.btx.Bucket(bucketAdjacency).Cursor().Seek(prefix); k != nil && hasPrefix(k, prefix) {
		return fmt.Errorf("boltgraph: node %d: %w", id, graph.ErrNodeHasRelationships)
	}

	if err := t.unindexNode(node.Label, id, node.Properties); err != nil {
		return err
	}
	if err := t.forgetFullTextDocs(id); err != nil {
		return err
	}
	if labels := t.btx.Bucket(bucketLabels).Bucket([]byte(node.Label)); labels != nil {
		if err := labels.Delete(prefix); err != nil {
			return fmt.Errorf("boltgraph: delete node %d: %w", id, err)
		}
	}
	if err := t.btx.Bucket(bucketNodes).Delete(prefix); err != nil {
		return fmt.Errorf("boltgraph: delete node %d: %w", id, err)
	}
	return nil
}

// CreateEdge stores a typed edge from start to end.
func (t *tx) CreateEdge(ctx context.Context, start, end int64, relType string) (*graph.Edge, error) {
	if err := t.check(true); err != nil {
		return nil, err
	}
	if relType == "" {
		return nil, errors.New("boltgraph: relationship type is required")
	}
	nodes := t.btx.Bucket(bucketNodes)
	for _, id := range []int64{start, end} {
		if nodes.Get(idKey(id)) == nil {
			return nil, fmt.Errorf("boltgraph: edge endpoint %d: %w", id, graph.ErrNotFound)
		}
	}

	id := uuid.NewString()
	rec := edgeRecord{Type: relType, Start: start, End: end}
	if err := t.putEdge(id, &rec); err != nil {
		return nil, err
	}

	adj := t.btx.Bucket(bucketAdjacency)
	if err := adj.Put(adjacencyKey(start, dirOut, id), nil); err != nil {
		return nil, fmt.Errorf("boltgraph: edge %s: %w", id, err)
	}
	if err := adj.Put(adjacencyKey(end, dirIn, id), nil); err != nil {
		return nil, fmt.Errorf("boltgraph: edge %s: %w", id, err)
	}

	return &graph.Edge{ID: id, Type: relType, Start: start, End: end, Properties: map[string]any{}}, nil
}

// SetEdgeProperty sets one edge property. A nil value removes it.
func (t *tx) SetEdgeProperty(ctx context.Context, edgeID, key string, value any) error {
	if err := t.check(true); err != nil {
		return err
	}
	_, rec, err := t.edge(edgeID)
	if err != nil {
		return err
	}

	n, err := graph.NormalizeValue(value)
	if err != nil {
		return fmt.Errorf("boltgraph: edge %s property %q: %w", edgeID, key, err)
	}
	if rec.Props == nil {
		rec.Props = make(map[string]any)
	}
	if n == nil {
		delete(rec.Props, key)
	} else {
		rec.Props[key] = n
	}
	return t.putEdge(edgeID, rec)
}

// Edges returns the edges of nodeID of relType in direction dir.
func (t *tx) Edges(ctx context.Context, nodeID int64, relType string, dir graph.Direction) ([]*graph.Edge, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	if t.btx.Bucket(bucketNodes).Get(idKey(nodeID)) == nil {
		return nil, fmt.Errorf("boltgraph: node %d: %w", nodeID, graph.ErrNotFound)
	}

	var dirs []byte
	switch dir {
	case graph.Outgoing:
		dirs = []byte{dirOut}
	case graph.Incoming:
		dirs = []byte{dirIn}
	case graph.Both:
		dirs = []byte{dirOut, dirIn}
	default:
		return nil, fmt.Errorf("boltgraph: unknown direction %v", dir)
	}

	out := make([]*graph.Edge, 0)
	seen := make(map[string]struct{})
	c := t.btx.Bucket(bucketAdjacency).Cursor()
	for _, d := range dirs {
		prefix := append(idKey(nodeID), d)
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			id := string(k[len(prefix):])
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			edge, _, err := t.edge(id)
			if err != nil {
				return nil, err
			}
			if relType != "" && edge.Type != relType {
				continue
			}
			out = append(out, edge)
		}
	}
	return out, nil
}

// DeleteEdge removes an edge and its adjacency entries.
func (t *tx) DeleteEdge(ctx context.Context, edgeID string) error {
	if err := t.check(true); err != nil {
		return err
	}
	edge, _, err := t.edge(edgeID)
	if err != nil {
		return err
	}

	adj := t.btx.Bucket(bucketAdjacency)
	if err := adj.Delete(adjacencyKey(edge.Start, dirOut, edgeID)); err != nil {
		return fmt.Errorf("boltgraph: delete edge %s: %w", edgeID, err)
	}
	if err := adj.Delete(adjacencyKey(edge.End, dirIn, edgeID)); err != nil {
		return fmt.Errorf("boltgraph: delete edge %s: %w", edgeID, err)
	}
	if err := t.btx.Bucket(bucketEdges).Delete([]byte(edgeID)); err != nil {
		return fmt.Errorf("boltgraph: delete edge %s: %w", edgeID, err)
	}
	return nil
}

func (t *tx) edge(id string) (*graph.Edge, *edgeRecord, error) {
	data := t.btx.Bucket(bucketEdges).Get([]byte(id))
	if data == nil {
		return nil, nil, fmt.Errorf("boltgraph: edge %s: %w", id, graph.ErrNotFound)
	}
	return decodeEdge(id, data)
}

func (t *tx) putEdge(id string, rec *edgeRecord) error {
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("boltgraph: encode edge %s: %w", id, err)
	}
	if err := t.btx.Bucket(bucketEdges).Put([]byte(id), data); err != nil {
		return fmt.Errorf("boltgraph: put edge %s: %w", id, err)
	}
	return nil
}

func adjacencyKey(nodeID int64, dir byte, edgeID string) []byte {
	key := make([]byte, 0, 9+len(edgeID))
	key = append(key, idKey(nodeID)...)
	key = append(key, dir)
	return append(key, edgeID...)
}

func hasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}

func sortedIDs(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
