package neo4jgraph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/zero-day-ai/graphmap/graph"
)

type tx struct {
	store    *Store
	session  neo4j.SessionWithContext
	etx      neo4j.ExplicitTransaction
	writable bool
	done     bool
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

func (t *tx) collect(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := t.etx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

// Commit commits the transaction and closes its session.
func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return graph.ErrTxDone
	}
	t.done = true
	defer t.session.Close(ctx)

	if err := t.etx.Commit(ctx); err != nil {
		return fmt.Errorf("neo4jgraph: commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction. It is a no-op once the transaction has finished.
func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.session.Close(ctx)

	if err := t.etx.Rollback(ctx); err != nil {
		return fmt.Errorf("neo4jgraph: rollback: %w", err)
	}
	return nil
}

// CreateNode creates a labelled node. props must carry the id property.
func (t *tx) CreateNode(ctx context.Context, label string, props map[string]any) (*graph.Node, error) {
	if err := t.check(true); err != nil {
		return nil, err
	}
	if label == "" {
		return nil, errors.New("neo4jgraph: node label is required")
	}
	if label == NodeLabel {
		return nil, fmt.Errorf("neo4jgraph: label %s is reserved", NodeLabel)
	}

	normalized, err := graph.NormalizeProperties(props)
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph: create node: %w", err)
	}
	id, ok := graph.IDOf(normalized)
	if !ok {
		return nil, fmt.Errorf("neo4jgraph: create node: integer %q property is required", graph.IDProperty)
	}

	existing, err := t.collect(ctx, "MATCH (n:"+NodeLabel+" {id: $id}) RETURN count(n) AS c", map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph: create node %d: %w", id, err)
	}
	if count(existing) > 0 {
		return nil, fmt.Errorf("neo4jgraph: node %d: %w", id, graph.ErrNodeExists)
	}

	cypher := fmt.Sprintf("CREATE (n:%s:%s) SET n = $props RETURN n", quote(label), NodeLabel)
	records, err := t.collect(ctx, cypher, map[string]any{"props": normalized})
	if isConstraintViolation(err) {
		return nil, fmt.Errorf("neo4jgraph: node %d: %w", id, graph.ErrNodeExists)
	}
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph: create node %d: %w", id, err)
	}
	if len(records) != 1 {
		return nil, fmt.Errorf("neo4jgraph: create node %d: no node returned", id)
	}
	return nodeFrom(records[0], "n")
}

// NodeByID returns the node whose id property equals id.
func (t *tx) NodeByID(ctx context.Context, id int64) (*graph.Node, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	records, err := t.collect(ctx, "MATCH (n:"+NodeLabel+" {id: $id}) RETURN n LIMIT 1", map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph: node %d: %w", id, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("neo4jgraph: node %d: %w", id, graph.ErrNotFound)
	}
	return nodeFrom(records[0], "n")
}

// NodesByProperty returns every node of label whose property key equals value.
func (t *tx) NodesByProperty(ctx context.Context, label, key string, value any) ([]*graph.Node, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	normalized, err := graph.NormalizeValue(value)
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph: lookup %s.%s: %w", label, key, err)
	}

	cypher := fmt.Sprintf("MATCH (n:%s) WHERE n.%s = $value RETURN n ORDER BY n.id", quote(label), quote(key))
	records, err := t.collect(ctx, cypher, map[string]any{"value": normalized})
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph: lookup %s.%s: %w", label, key, err)
	}

	nodes := make([]*graph.Node, 0, len(records))
	for _, record := range records {
		node, err := nodeFrom(record, "n")
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// DeleteNode deletes a node without relationships.
func (t *tx) DeleteNode(ctx context.Context, id int64) error {
	if err := t.check(true); err != nil {
		return err
	}

	records, err := t.collect(ctx,
		"MATCH (n:"+NodeLabel+" {id: $id}) OPTIONAL MATCH (n)-[r]-() RETURN count(DISTINCT n) AS nodes, count(r) AS c",
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("neo4jgraph: delete node %d: %w", id, err)
	}
	if len(records) == 0 || intValue(records[0], "nodes") == 0 {
		return fmt.Errorf("neo4jgraph: node %d: %w", id, graph.ErrNotFound)
	}
	if count(records) > 0 {
		return fmt.Errorf("neo4jgraph: node %d: %w", id, graph.ErrNodeHasRelationships)
	}

	if _, err := t.collect(ctx, "MATCH (n:"+NodeLabel+" {id: $id}) DELETE n", map[string]any{"id": id}); err != nil {
		return fmt.Errorf("neo4jgraph: delete node %d: %w", id, err)
	}
	return nil
}

// CreateEdge creates an edge of relType from start to end.
func (t *tx) CreateEdge(ctx context.Context, start, end int64, relType string) (*graph.Edge, error) {
	if err := t.check(true); err != nil {
		return nil, err
	}
	if relType == "" {
		return nil, errors.New("neo4jgraph: relationship type is required")
	}

	cypher := fmt.Sprintf(
		"MATCH (a:%[1]s {id: $start}), (b:%[1]s {id: $end}) CREATE (a)-[r:%[2]s]->(b) RETURN r, a.id AS start, b.id AS end",
		NodeLabel, quote(relType))
	records, err := t.collect(ctx, cypher, map[string]any{"start": start, "end": end})
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph: create %s edge: %w", relType, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("neo4jgraph: create %s edge %d->%d: %w", relType, start, end, graph.ErrNotFound)
	}
	return edgeFrom(records[0])
}

// SetEdgeProperty sets one property on an edge. A nil value removes it.
func (t *tx) SetEdgeProperty(ctx context.Context, edgeID, key string, value any) error {
	if err := t.check(true); err != nil {
		return err
	}

	var normalized any
	if value != nil {
		var err error
		if normalized, err = graph.NormalizeValue(value); err != nil {
			return fmt.Errorf("neo4jgraph: edge %s property %s: %w", edgeID, key, err)
		}
	}

	records, err := t.collect(ctx,
		"MATCH ()-[r]->() WHERE elementId(r) = $id SET r += $props RETURN count(r) AS c",
		map[string]any{"id": edgeID, "props": map[string]any{key: normalized}})
	if err != nil {
		return fmt.Errorf("neo4jgraph: edge %s property %s: %w", edgeID, key, err)
	}
	if count(records) == 0 {
		return fmt.Errorf("neo4jgraph: edge %s: %w", edgeID, graph.ErrNotFound)
	}
	return nil
}

// Edges returns the edges of nodeID with type relType in direction dir,
// ordered by element id.
func (t *tx) Edges(ctx context.Context, nodeID int64, relType string, dir graph.Direction) ([]*graph.Edge, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}

	cypher := "MATCH (n:" + NodeLabel + " {id: $id})" + edgePattern(relType, dir) +
		"() RETURN DISTINCT r, startNode(r).id AS start, endNode(r).id AS end"
	records, err := t.collect(ctx, cypher, map[string]any{"id": nodeID})
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph: edges of %d: %w", nodeID, err)
	}

	edges := make([]*graph.Edge, 0, len(records))
	for _, record := range records {
		edge, err := edgeFrom(record)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

// DeleteEdge deletes an edge by element id.
func (t *tx) DeleteEdge(ctx context.Context, edgeID string) error {
	if err := t.check(true); err != nil {
		return err
	}
	records, err := t.collect(ctx,
		"MATCH ()-[r]->() WHERE elementId(r) = $id DELETE r RETURN count(*) AS c",
		map[string]any{"id": edgeID})
	if err != nil {
		return fmt.Errorf("neo4jgraph: delete edge %s: %w", edgeID, err)
	}
	if count(records) == 0 {
		return fmt.Errorf("neo4jgraph: edge %s: %w", edgeID, graph.ErrNotFound)
	}
	return nil
}

// edgePattern renders the relationship part of a MATCH clause.
func edgePattern(relType string, dir graph.Direction) string {
	rel := "[r]"
	if relType != "" {
		rel = "[r:" + quote(relType) + "]"
	}
	switch dir {
	case graph.Outgoing:
		return "-" + rel + "->"
	case graph.Incoming:
		return "<-" + rel + "-"
	default:
		return "-" + rel + "-"
	}
}

// quote renders name as a Cypher identifier.
func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func nodeFrom(record *neo4j.Record, key string) (*graph.Node, error) {
	raw, ok := record.Get(key)
	if !ok {
		return nil, fmt.Errorf("neo4jgraph: %s not found in result", key)
	}
	n, ok := raw.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("neo4jgraph: %s is a %T, not a node", key, raw)
	}

	id, ok := graph.IDOf(n.Props)
	if !ok {
		return nil, fmt.Errorf("neo4jgraph: node %s has no %q property", n.ElementId, graph.IDProperty)
	}
	return &graph.Node{ID: id, Label: entityLabel(n.Labels), Properties: n.Props}, nil
}

// entityLabel returns the first label other than NodeLabel.
func entityLabel(labels []string) string {
	for _, label := range labels {
		if label != NodeLabel {
			return label
		}
	}
	return ""
}

func isConstraintViolation(err error) bool {
	var neoErr *neo4j.Neo4jError
	return errors.As(err, &neoErr) && neoErr.Code == "Neo.ClientError.Schema.ConstraintValidationFailed"
}

func edgeFrom(record *neo4j.Record) (*graph.Edge, error) {
	raw, ok := record.Get("r")
	if !ok {
		return nil, errors.New("neo4jgraph: r not found in result")
	}
	r, ok := raw.(neo4j.Relationship)
	if !ok {
		return nil, fmt.Errorf("neo4jgraph: r is a %T, not a relationship", raw)
	}

	props := r.Props
	if props == nil {
		props = map[string]any{}
	}
	return &graph.Edge{
		ID:         r.ElementId,
		Type:       r.Type,
		Start:      intValue(record, "start"),
		End:        intValue(record, "end"),
		Properties: props,
	}, nil
}

func intValue(record *neo4j.Record, key string) int64 {
	raw, ok := record.Get(key)
	if !ok {
		return 0
	}
	v, _ := raw.(int64)
	return v
}

// count reads the "c" column of a single-row count query.
func count(records []*neo4j.Record) int64 {
	if len(records) == 0 {
		return 0
	}
	return intValue(records[0], "c")
}
