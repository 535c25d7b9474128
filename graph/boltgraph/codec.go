package boltgraph

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zero-day-ai/graphmap/graph"
)

// nodeRecord is the persisted form of a node.
type nodeRecord struct {
	Label string         `msgpack:"l"`
	Props map[string]any `msgpack:"p"`
}

// edgeRecord is the persisted form of an edge.
type edgeRecord struct {
	Type  string         `msgpack:"t"`
	Start int64          `msgpack:"s"`
	End   int64          `msgpack:"e"`
	Props map[string]any `msgpack:"p,omitempty"`
}

// fullTextRecord is the persisted definition of a full-text index.
type fullTextRecord struct {
	Label      string   `msgpack:"l"`
	Properties []string `msgpack:"p"`
}

func encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// decode unmarshals data into v. Integers decode as int64 and floats as
// float64 regardless of their wire width.
func decode(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

func decodeNode(id int64, data []byte) (*graph.Node, error) {
	var rec nodeRecord
	if err := decode(data, &rec); err != nil {
		return nil, fmt.Errorf("decode node %d: %w", id, err)
	}
	props, err := graph.NormalizeProperties(rec.Props)
	if err != nil {
		return nil, fmt.Errorf("decode node %d: %w", id, err)
	}
	return &graph.Node{ID: id, Label: rec.Label, Properties: props}, nil
}

func decodeEdge(id string, data []byte) (*graph.Edge, *edgeRecord, error) {
	var rec edgeRecord
	if err := decode(data, &rec); err != nil {
		return nil, nil, fmt.Errorf("decode edge %s: %w", id, err)
	}
	props, err := graph.NormalizeProperties(rec.Props)
	if err != nil {
		return nil, nil, fmt.Errorf("decode edge %s: %w", id, err)
	}
	rec.Props = props
	return &graph.Edge{
		ID:         id,
		Type:       rec.Type,
		Start:      rec.Start,
		End:        rec.End,
		Properties: copyProps(props),
	}, &rec, nil
}

// idKey encodes a node id so that keys sort in numeric order.
func idKey(id int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id)^(1<<63))
	return buf[:]
}

func keyID(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key) ^ (1 << 63))
}

// valueKey encodes a normalized property value for exact index lookups.
// Integral floats are folded onto int64 so 2 and 2.0 share an entry.
// msgpack encodings are self-delimiting, so no value key is a prefix of
// another.
func valueKey(v any) ([]byte, error) {
	n, err := graph.NormalizeValue(v)
	if err != nil {
		return nil, err
	}
	if f, ok := n.(float64); ok && f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
		n = int64(f)
	}
	return msgpack.Marshal(n)
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
