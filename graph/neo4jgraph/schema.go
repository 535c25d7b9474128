package neo4jgraph

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/zero-day-ai/graphmap/graph"
)

var validIndexName = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// SchemaIndexes lists the RANGE indexes defined on label.
func (t *tx) SchemaIndexes(ctx context.Context, label string) ([]graph.IndexDefinition, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}

	records, err := t.collect(ctx,
		"SHOW RANGE INDEXES YIELD name, entityType, labelsOrTypes, properties "+
			"WHERE entityType = 'NODE' AND $label IN labelsOrTypes "+
			"RETURN name, labelsOrTypes, properties ORDER BY name",
		map[string]any{"label": label})
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph: show indexes on %s: %w", label, err)
	}

	defs := make([]graph.IndexDefinition, 0, len(records))
	for _, record := range records {
		name, _ := record.Get("name")
		props, _ := record.Get("properties")
		def := graph.IndexDefinition{Label: label, Properties: stringList(props)}
		def.Name, _ = name.(string)
		defs = append(defs, def)
	}
	return defs, nil
}

// CreateSchemaIndex creates a RANGE index on label/property unless one exists.
func (t *tx) CreateSchemaIndex(ctx context.Context, label, property string) error {
	if err := t.check(true); err != nil {
		return err
	}
	cypher := fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)",
		quote(schemaIndexName(label, property)), quote(label), quote(property))
	if _, err := t.collect(ctx, cypher, nil); err != nil {
		return fmt.Errorf("neo4jgraph: create index on %s.%s: %w", label, property, err)
	}
	return nil
}

func schemaIndexName(label, property string) string {
	return "idx_" + label + "_" + property
}

// FullTextIndexNames lists every full-text index, sorted.
func (t *tx) FullTextIndexNames(ctx context.Context) ([]string, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	records, err := t.collect(ctx, "SHOW FULLTEXT INDEXES YIELD name RETURN name", nil)
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph: show full-text indexes: %w", err)
	}

	names := make([]string, 0, len(records))
	for _, record := range records {
		if raw, ok := record.Get("name"); ok {
			if name, ok := raw.(string); ok {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// CreateFullTextIndex creates a FULLTEXT index over properties of label.
func (t *tx) CreateFullTextIndex(ctx context.Context, name, label string, properties []string) (graph.FullTextIndex, error) {
	if err := t.check(true); err != nil {
		return nil, err
	}
	if !validIndexName.MatchString(name) {
		return nil, fmt.Errorf("neo4jgraph: invalid full-text index name %q", name)
	}
	if label == "" || len(properties) == 0 {
		return nil, fmt.Errorf("neo4jgraph: full-text index %s needs a label and properties", name)
	}

	existing, err := t.FullTextIndexNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range existing {
		if n == name {
			return nil, fmt.Errorf("neo4jgraph: full-text index %s: %w", name, graph.ErrIndexExists)
		}
	}

	fields := make([]string, len(properties))
	for i, p := range properties {
		fields[i] = "n." + quote(p)
	}
	cypher := fmt.Sprintf("CREATE FULLTEXT INDEX %s FOR (n:%s) ON EACH [%s]",
		quote(name), quote(label), strings.Join(fields, ", "))
	if _, err := t.collect(ctx, cypher, nil); err != nil {
		return nil, fmt.Errorf("neo4jgraph: create full-text index %s: %w", name, err)
	}
	return &fullTextIndex{store: t.store, name: name}, nil
}

// FullTextIndex returns a handle to an existing full-text index.
func (t *tx) FullTextIndex(ctx context.Context, name string) (graph.FullTextIndex, error) {
	names, err := t.FullTextIndexNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if n == name {
			return &fullTextIndex{store: t.store, name: name}, nil
		}
	}
	return nil, fmt.Errorf("neo4jgraph: full-text index %s: %w", name, graph.ErrNotFound)
}

// fullTextIndex is a handle to a Neo4j FULLTEXT index. Neo4j indexes node
// properties on commit, so Add and Remove only validate their transaction.
type fullTextIndex struct {
	store *Store
	name  string
}

var _ graph.FullTextIndex = (*fullTextIndex)(nil)

func (f *fullTextIndex) Name() string {
	return f.name
}

func (f *fullTextIndex) own(gtx graph.Tx) (*tx, error) {
	t, ok := gtx.(*tx)
	if !ok || t.store != f.store {
		return nil, fmt.Errorf("neo4jgraph: full-text index %s used with a foreign transaction", f.name)
	}
	return t, nil
}

func (f *fullTextIndex) Add(_ context.Context, gtx graph.Tx, _ int64, _ string, _ any) error {
	t, err := f.own(gtx)
	if err != nil {
		return err
	}
	return t.check(true)
}

func (f *fullTextIndex) Remove(_ context.Context, gtx graph.Tx, _ int64) error {
	t, err := f.own(gtx)
	if err != nil {
		return err
	}
	return t.check(true)
}

// Query runs a Lucene query restricted to field key and returns the ids of
// the matching nodes in ascending order.
func (f *fullTextIndex) Query(ctx context.Context, gtx graph.Tx, key, query string) ([]int64, error) {
	t, err := f.own(gtx)
	if err != nil {
		return nil, err
	}
	if err := t.check(false); err != nil {
		return nil, err
	}

	lucene := fieldQuery(key, query)
	if lucene == "" {
		return []int64{}, nil
	}

	records, err := t.collect(ctx,
		"CALL db.index.fulltext.queryNodes($index, $query) YIELD node RETURN node.id AS id",
		map[string]any{"index": f.name, "query": lucene})
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph: query full-text index %s: %w", f.name, err)
	}

	ids := make([]int64, 0, len(records))
	for _, record := range records {
		if raw, ok := record.Get("id"); ok {
			if id, ok := raw.(int64); ok {
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// fieldQuery restricts every term of query to field key, keeping +/- operators.
func fieldQuery(key, query string) string {
	terms := strings.Fields(query)
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		op := ""
		if term[0] == '+' || term[0] == '-' {
			op, term = term[:1], term[1:]
		}
		term = escapeLucene(term)
		if term == "" {
			continue
		}
		out = append(out, op+key+":"+term)
	}
	return strings.Join(out, " ")
}

// escapeLucene escapes Lucene syntax characters except the * and ? wildcards.
func escapeLucene(term string) string {
	var b strings.Builder
	for _, r := range term {
		if strings.ContainsRune(`\+-!():^[]"{}~&|/`, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// stringList converts a Cypher list of strings.
func stringList(raw any) []string {
	list, _ := raw.([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
