package boltgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/zero-day-ai/graphmap/graph"
)

var present = []byte{1}

func schemaKey(label, property string) []byte {
	return []byte(label + "\x00" + property)
}

func schemaIndexName(label, property string) string {
	return "idx_" + label + "_" + property
}

// SchemaIndexes lists the exact indexes defined on label.
func (t *tx) SchemaIndexes(ctx context.Context, label string) ([]graph.IndexDefinition, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}

	out := make([]graph.IndexDefinition, 0)
	prefix := []byte(label + "\x00")
	c := t.btx.Bucket(bucketSchema).Cursor()
	for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
		property := string(k[len(prefix):])
		out = append(out, graph.IndexDefinition{
			Name:       schemaIndexName(label, property),
			Label:      label,
			Properties: []string{property},
		})
	}
	return out, nil
}

// CreateSchemaIndex defines an exact index on label/property and indexes the
// nodes already stored. Defining an existing index is a no-op.
func (t *tx) CreateSchemaIndex(ctx context.Context, label, property string) error {
	if err := t.check(true); err != nil {
		return err
	}
	if label == "" || property == "" || strings.ContainsRune(label, 0) || strings.ContainsRune(property, 0) {
		return fmt.Errorf("boltgraph: invalid index %q on %q", property, label)
	}

	schema := t.btx.Bucket(bucketSchema)
	key := schemaKey(label, property)
	if schema.Get(key) != nil {
		return nil
	}
	if err := schema.Put(key, present); err != nil {
		return fmt.Errorf("boltgraph: create index %s: %w", schemaIndexName(label, property), err)
	}

	entries, err := t.btx.Bucket(bucketExact).CreateBucketIfNotExists(key)
	if err != nil {
		return fmt.Errorf("boltgraph: create index %s: %w", schemaIndexName(label, property), err)
	}

	labels := t.btx.Bucket(bucketLabels).Bucket([]byte(label))
	if labels == nil {
		return nil
	}
	nodes := t.btx.Bucket(bucketNodes)
	return labels.ForEach(func(k, _ []byte) error {
		node, err := decodeNode(keyID(k), nodes.Get(k))
		if err != nil {
			return err
		}
		if v, ok := node.Properties[property]; ok {
			return putExact(entries, v, node.ID)
		}
		return nil
	})
}

// indexNode adds the node to every exact index of its label.
func (t *tx) indexNode(label string, id int64, props map[string]any) error {
	return t.eachExact(label, func(property string, entries *bolt.Bucket) error {
		if v, ok := props[property]; ok {
			return putExact(entries, v, id)
		}
		return nil
	})
}

// unindexNode removes the node from every exact index of its label.
func (t *tx) unindexNode(label string, id int64, props map[string]any) error {
	return t.eachExact(label, func(property string, entries *bolt.Bucket) error {
		v, ok := props[property]
		if !ok {
			return nil
		}
		vk, err := valueKey(v)
		if err != nil {
			return err
		}
		return entries.Delete(append(vk, idKey(id)...))
	})
}

func (t *tx) eachExact(label string, fn func(property string, entries *bolt.Bucket) error) error {
	prefix := []byte(label + "\x00")
	exact := t.btx.Bucket(bucketExact)
	c := t.btx.Bucket(bucketSchema).Cursor()
	for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
		entries := exact.Bucket(k)
		if entries == nil {
			continue
		}
		if err := fn(string(k[len(prefix):]), entries); err != nil {
			return fmt.Errorf("boltgraph: exact index %s: %w", schemaIndexName(label, string(k[len(prefix):])), err)
		}
	}
	return nil
}

// lookupExact returns the ids stored under value in the label/key index.
// ok is false when no such index is defined.
func (t *tx) lookupExact(label, key string, value any) (ids []int64, ok bool, err error) {
	entries := t.btx.Bucket(bucketExact).Bucket(schemaKey(label, key))
	if entries == nil {
		return nil, false, nil
	}

	prefix, err := valueKey(value)
	if errors.Is(err, graph.ErrUnsupportedValue) {
		return nil, true, nil
	}
	if err != nil {
		return nil, true, err
	}

	c := entries.Cursor()
	for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
		if len(k) != len(prefix)+8 {
			continue
		}
		ids = append(ids, keyID(k[len(prefix):]))
	}
	return ids, true, nil
}

func putExact(entries *bolt.Bucket, value any, id int64) error {
	vk, err := valueKey(value)
	if err != nil {
		return err
	}
	return entries.Put(append(vk, idKey(id)...), present)
}
