package boltgraph

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/zero-day-ai/graphmap/graph"
)

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

func ftDocPrefix(name string) []byte {
	return []byte(name + "\x00")
}

func ftDocKey(name string, nodeID int64) []byte {
	return append(ftDocPrefix(name), idKey(nodeID)...)
}

func docID(nodeID int64) string {
	return strconv.FormatInt(nodeID, 10)
}

// FullTextIndexNames lists every full-text index in name order.
func (t *tx) FullTextIndexNames(ctx context.Context) ([]string, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	names := make([]string, 0)
	err := t.btx.Bucket(bucketFullText).ForEach(func(k, _ []byte) error {
		names = append(names, string(k))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltgraph: list full-text indexes: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// CreateFullTextIndex defines a new full-text index. The bleve index is
// created immediately and removed again if the transaction rolls back.
func (t *tx) CreateFullTextIndex(ctx context.Context, name, label string, properties []string) (graph.FullTextIndex, error) {
	if err := t.check(true); err != nil {
		return nil, err
	}
	if !indexNamePattern.MatchString(name) {
		return nil, fmt.Errorf("boltgraph: invalid full-text index name %q", name)
	}

	defs := t.btx.Bucket(bucketFullText)
	if defs.Get([]byte(name)) != nil {
		return nil, fmt.Errorf("boltgraph: full-text index %s: %w", name, graph.ErrIndexExists)
	}

	data, err := encode(fullTextRecord{Label: label, Properties: properties})
	if err != nil {
		return nil, fmt.Errorf("boltgraph: encode full-text index %s: %w", name, err)
	}
	if err := defs.Put([]byte(name), data); err != nil {
		return nil, fmt.Errorf("boltgraph: create full-text index %s: %w", name, err)
	}

	if _, err := t.store.createBleveIndex(name); err != nil {
		return nil, fmt.Errorf("boltgraph: %w", err)
	}
	t.created = append(t.created, name)

	return &fullTextIndex{store: t.store, name: name}, nil
}

// FullTextIndex returns a handle to an existing full-text index.
func (t *tx) FullTextIndex(ctx context.Context, name string) (graph.FullTextIndex, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	if t.btx.Bucket(bucketFullText).Get([]byte(name)) == nil {
		return nil, fmt.Errorf("boltgraph: full-text index %s: %w", name, graph.ErrNotFound)
	}
	if _, err := t.store.bleveIndex(name, t.btx); err != nil {
		return nil, fmt.Errorf("boltgraph: %w", err)
	}
	return &fullTextIndex{store: t.store, name: name}, nil
}

// batch returns the pending bleve batch for name, creating it on first use.
func (t *tx) batch(name string) (*bleve.Batch, error) {
	if b, ok := t.pending[name]; ok {
		return b, nil
	}
	idx, err := t.store.bleveIndex(name, t.btx)
	if err != nil {
		return nil, err
	}
	b := idx.NewBatch()
	t.pending[name] = b
	return b, nil
}

// forgetFullTextDocs drops the node from every full-text index.
func (t *tx) forgetFullTextDocs(nodeID int64) error {
	names, err := t.FullTextIndexNames(context.Background())
	if err != nil {
		return err
	}
	docs := t.btx.Bucket(bucketFTDocs)
	for _, name := range names {
		key := ftDocKey(name, nodeID)
		if docs.Get(key) == nil {
			continue
		}
		if err := docs.Delete(key); err != nil {
			return fmt.Errorf("boltgraph: full-text index %s: %w", name, err)
		}
		b, err := t.batch(name)
		if err != nil {
			return fmt.Errorf("boltgraph: %w", err)
		}
		b.Delete(docID(nodeID))
	}
	return nil
}

// bleveIndexOpen returns an index opened earlier in the store's lifetime.
func (s *Store) bleveIndexOpen(name string) (bleve.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[name]
	if !ok {
		return nil, fmt.Errorf("full-text index %s is not open: %w", name, graph.ErrNotFound)
	}
	return idx, nil
}

// fullTextIndex is a handle to one bleve index. Documents are keyed by node
// id and carry one text field per indexed property; the field values are
// mirrored in bolt so the bleve index can be rebuilt.
type fullTextIndex struct {
	store *Store
	name  string
}

var _ graph.FullTextIndex = (*fullTextIndex)(nil)

func (f *fullTextIndex) Name() string {
	return f.name
}

func (f *fullTextIndex) own(gtx graph.Tx, write bool) (*tx, error) {
	t, ok := gtx.(*tx)
	if !ok || t.store != f.store {
		return nil, errors.New("boltgraph: transaction belongs to a different store")
	}
	if err := t.check(write); err != nil {
		return nil, err
	}
	return t, nil
}

// Add indexes the text form of value under key for nodeID. The change
// becomes searchable once the transaction commits.
func (f *fullTextIndex) Add(ctx context.Context, gtx graph.Tx, nodeID int64, key string, value any) error {
	t, err := f.own(gtx, true)
	if err != nil {
		return err
	}

	docs := t.btx.Bucket(bucketFTDocs)
	dk := ftDocKey(f.name, nodeID)
	doc := make(map[string]any)
	if data := docs.Get(dk); data != nil {
		if err := decode(data, &doc); err != nil {
			return fmt.Errorf("boltgraph: full-text document %d: %w", nodeID, err)
		}
	}
	doc[key] = textOf(value)

	data, err := encode(doc)
	if err != nil {
		return fmt.Errorf("boltgraph: full-text document %d: %w", nodeID, err)
	}
	if err := docs.Put(dk, data); err != nil {
		return fmt.Errorf("boltgraph: full-text document %d: %w", nodeID, err)
	}

	b, err := t.batch(f.name)
	if err != nil {
		return fmt.Errorf("boltgraph: %w", err)
	}
	return b.Index(docID(nodeID), doc)
}

// Remove drops nodeID from the index.
func (f *fullTextIndex) Remove(ctx context.Context, gtx graph.Tx, nodeID int64) error {
	t, err := f.own(gtx, true)
	if err != nil {
		return err
	}
	if err := t.btx.Bucket(bucketFTDocs).Delete(ftDocKey(f.name, nodeID)); err != nil {
		return fmt.Errorf("boltgraph: full-text document %d: %w", nodeID, err)
	}
	b, err := t.batch(f.name)
	if err != nil {
		return fmt.Errorf("boltgraph: %w", err)
	}
	b.Delete(docID(nodeID))
	return nil
}

// Query matches query against the key field. Whitespace-separated terms are
// OR-ed; terms may use bleve query-string syntax such as wildcards ("le*"),
// fuzziness ("leo~1") or +/- prefixes. Ids are returned in ascending order.
func (f *fullTextIndex) Query(ctx context.Context, gtx graph.Tx, key, query string) ([]int64, error) {
	t, err := f.own(gtx, false)
	if err != nil {
		return nil, err
	}
	idx, err := t.store.bleveIndex(f.name, t.btx)
	if err != nil {
		return nil, fmt.Errorf("boltgraph: %w", err)
	}

	ids := make([]int64, 0)
	count, err := idx.DocCount()
	if err != nil {
		return nil, fmt.Errorf("boltgraph: full-text index %s: %w", f.name, err)
	}
	if count == 0 {
		return ids, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(fieldQuery(key, query)), int(count), 0, false)
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("boltgraph: query full-text index %s: %w", f.name, err)
	}

	docs := t.btx.Bucket(bucketFTDocs)
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		// Skip documents removed by this transaction but not yet applied.
		if docs.Get(ftDocKey(f.name, id)) == nil {
			continue
		}
		ids = append(ids, id)
	}
	return sortedIDs(ids), nil
}

// fieldQuery scopes every term of query to field, keeping +/- operators.
func fieldQuery(field, query string) string {
	terms := strings.Fields(query)
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		op := ""
		if term[0] == '+' || term[0] == '-' {
			op, term = term[:1], term[1:]
		}
		term = escapeQuery(term)
		if term == "" {
			continue
		}
		out = append(out, op+field+":"+term)
	}
	return strings.Join(out, " ")
}

// escapeQuery lowercases term and escapes query-string syntax, leaving the
// * and ? wildcards active.
func escapeQuery(term string) string {
	var b strings.Builder
	for _, r := range term {
		if strings.ContainsRune(`+-=&|><!(){}[]^"~:\/`, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
