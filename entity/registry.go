package entity

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ErrTypeNotDescribed indicates a lookup for a type that has never been described.
var ErrTypeNotDescribed = errors.New("entity type not described")

// Registry caches one descriptor per entity type. Descriptors are computed
// lazily on first use and never invalidated, which is sound because entity
// declarations are static.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]any
	infos   map[reflect.Type]*TypeInfo
	byLabel map[string][]*TypeInfo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]any),
		infos:   make(map[reflect.Type]*TypeInfo),
		byLabel: make(map[string][]*TypeInfo),
	}
}

// Describe returns the cached descriptor of T, computing it on first use.
//
// Example:
//
//	desc, err := entity.Describe[Lion](registry)
//	props, err := desc.Extract(&Lion{Name: "Leo", Age: 5})
//	// props = {"name": "Leo", "age": 5, "createdat": 0, "updatedat": 0}
func Describe[T any, PT Entity[T]](r *Registry) (*Descriptor[T], error) {
	t := reflect.TypeFor[T]()

	r.mu.RLock()
	cached, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return cached.(*Descriptor[T]), nil
	}

	d, err := newDescriptor(PT(new(T)).Declare())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have won the race; keep the first descriptor.
	if cached, ok := r.byType[t]; ok {
		return cached.(*Descriptor[T]), nil
	}
	r.byType[t] = d
	r.infos[t] = d.info
	r.byLabel[d.info.Label] = append(r.byLabel[d.info.Label], d.info)
	return d, nil
}

// MustDescribe is like Describe but panics on an invalid declaration.
// It is intended for package-level variables in model packages.
func MustDescribe[T any, PT Entity[T]](r *Registry) *Descriptor[T] {
	d, err := Describe[T, PT](r)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup returns the type info of an already described type.
func (r *Registry) Lookup(t reflect.Type) (*TypeInfo, error) {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.infos[t]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrTypeNotDescribed, t)
	}
	return info, nil
}

// TypesForLabel returns the described types sharing a label.
func (r *Registry) TypesForLabel(label string) []*TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := r.byLabel[label]
	out := make([]*TypeInfo, len(infos))
	copy(out, infos)
	return out
}

// All returns every described type ordered by label, then name.
func (r *Registry) All() []*TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TypeInfo, 0, len(r.infos))
	for _, info := range r.infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Name < out[j].Name
	})
	return out
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry used when no registry is supplied.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}
