package index

import (
	"reflect"
	"sort"
	"sync"

	"github.com/zero-day-ai/graphmap/graph"
)

// Registry holds the full-text index handles known to a mapper, by index
// name and by entity type.
//
// Registry is safe for concurrent use. Handles registered together become
// visible together.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]graph.FullTextIndex
	byType map[reflect.Type]map[string]graph.FullTextIndex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]graph.FullTextIndex),
		byType: make(map[reflect.Type]map[string]graph.FullTextIndex),
	}
}

// Register records handles for entity type t. Registering a name again
// replaces the earlier handle.
func (r *Registry) Register(t reflect.Type, handles ...graph.FullTextIndex) {
	if len(handles) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	forType, ok := r.byType[t]
	if !ok {
		forType = make(map[string]graph.FullTextIndex, len(handles))
		r.byType[t] = forType
	}
	for _, h := range handles {
		r.byName[h.Name()] = h
		forType[h.Name()] = h
	}
}

// FullTextIndex returns the handle registered under name, or nil.
func (r *Registry) FullTextIndex(name string) graph.FullTextIndex {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// FullTextIndexesForType returns the handles registered for t in name order.
// The result is empty, never nil, for unknown types.
func (r *Registry) FullTextIndexesForType(t reflect.Type) []graph.FullTextIndex {
	r.mu.RLock()
	defer r.mu.RUnlock()

	forType := r.byType[t]
	out := make([]graph.FullTextIndex, 0, len(forType))
	for _, h := range forType {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns every registered index name in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
