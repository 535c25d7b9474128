package entity

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/zero-day-ai/graphmap/mapperr"
)

// IdentityKey is the property key under which identities are persisted.
const IdentityKey = "id"

// IndexSpec describes one declared secondary index.
type IndexSpec struct {
	Label    string
	Property string
	Kind     IndexKind
	// Name is set for FullText indexes only.
	Name string
}

// TypeInfo is the non-generic view of a descriptor, shared with the index
// coordinator and the full-text registry.
type TypeInfo struct {
	// Type is the described struct type.
	Type reflect.Type

	// Name is the type's simple name.
	Name string

	// Label is the resolved, lower-cased node label.
	Label string

	// HasIdentity reports whether the type declares an identity.
	HasIdentity bool

	// Keys lists the persistable attribute keys in sorted order.
	Keys []string

	// Indexes lists the declared secondary indexes in attribute order.
	Indexes []IndexSpec
}

// FullTextIndexes maps each full-text indexed key to its index name.
func (ti *TypeInfo) FullTextIndexes() map[string]string {
	out := make(map[string]string)
	for _, spec := range ti.Indexes {
		if spec.Kind == FullText {
			out[spec.Property] = spec.Name
		}
	}
	return out
}

// Descriptor is the resolved metadata of entity type T: its label, identity
// accessor and normalized attributes. Descriptors are immutable and safe for
// concurrent use.
type Descriptor[T any] struct {
	info     *TypeInfo
	identity *Identity[T]
	attrs    []boundAttribute[T]
	byKey    map[string]int
}

type boundAttribute[T any] struct {
	Attribute[T]
	key string
}

// Info returns the non-generic view of the descriptor.
func (d *Descriptor[T]) Info() *TypeInfo {
	return d.info
}

// Label returns the node label.
func (d *Descriptor[T]) Label() string {
	return d.info.Label
}

// newDescriptor validates a declaration and binds its attributes to keys.
func newDescriptor[T any](decl Declaration[T]) (*Descriptor[T], error) {
	const op = "Describe"
	t := reflect.TypeFor[T]()

	label, err := deriveLabel(decl.Label, t.Name())
	if err != nil {
		return nil, mapperr.LabelExtraction(op, fmt.Errorf("type %s: %w", t, err))
	}

	d := &Descriptor[T]{
		info: &TypeInfo{
			Type:        t,
			Name:        t.Name(),
			Label:       label,
			HasIdentity: decl.Identity != nil,
		},
		identity: decl.Identity,
		byKey:    make(map[string]int, len(decl.Attributes)),
	}

	if decl.Identity != nil && (decl.Identity.Get == nil || decl.Identity.Set == nil) {
		return nil, mapperr.Reflection(op, fmt.Errorf("type %s: identity requires both getter and setter", t))
	}

	for _, attr := range decl.Attributes {
		key := NormalizeAccessor(attr.Accessor)
		switch {
		case key == "":
			return nil, mapperr.Reflection(op, fmt.Errorf("type %s: attribute with empty accessor", t))
		case attr.Get == nil:
			return nil, mapperr.Reflection(op, fmt.Errorf("type %s: attribute %q has no getter", t, attr.Accessor))
		case key == IdentityKey && decl.Identity != nil:
			return nil, mapperr.Reflection(op, fmt.Errorf("type %s: attribute %q collides with the identity key", t, attr.Accessor))
		case attr.Index == FullText && attr.IndexName == "":
			return nil, mapperr.Reflection(op, fmt.Errorf("type %s: full-text attribute %q has no index name", t, attr.Accessor))
		}
		if prev, dup := d.byKey[key]; dup {
			return nil, mapperr.Reflection(op, fmt.Errorf("type %s: accessors %q and %q both normalize to %q",
				t, d.attrs[prev].Accessor, attr.Accessor, key))
		}

		d.byKey[key] = len(d.attrs)
		d.attrs = append(d.attrs, boundAttribute[T]{Attribute: attr, key: key})

		if !attr.Transient {
			d.info.Keys = append(d.info.Keys, key)
			if attr.Index != NotIndexed {
				d.info.Indexes = append(d.info.Indexes, IndexSpec{
					Label:    label,
					Property: key,
					Kind:     attr.Index,
					Name:     attr.IndexName,
				})
			}
		}
	}
	sort.Strings(d.info.Keys)

	return d, nil
}

// Extract returns the persistable properties of e keyed by normalized
// attribute name. Transient attributes and nil values are omitted and
// pointers are dereferenced. The identity is included under IdentityKey once
// assigned.
func (d *Descriptor[T]) Extract(e *T) (props map[string]any, err error) {
	const op = "Extract"
	if e == nil {
		return nil, mapperr.Reflection(op, errors.New("cannot extract properties from nil entity"))
	}
	defer recoverReflection(op, &err)

	props = make(map[string]any, len(d.attrs)+1)
	for _, attr := range d.attrs {
		if attr.Transient {
			continue
		}
		value := attr.Get(e)
		if isNil(value) {
			continue
		}
		props[attr.key] = deref(value)
	}

	if d.identity != nil {
		if id := d.identity.Get(e); id != nil {
			props[IdentityKey] = *id
		}
	}
	return props, nil
}

// Identity returns the identity of e and whether it has been assigned.
// Types without a declared identity yield a reflection error.
func (d *Descriptor[T]) Identity(e *T) (id int64, ok bool, err error) {
	const op = "Identity"
	if e == nil {
		return 0, false, mapperr.Reflection(op, errors.New("cannot read identity of nil entity"))
	}
	if d.identity == nil {
		return 0, false, mapperr.Reflection(op, fmt.Errorf("type %s declares no identity", d.info.Type))
	}
	defer recoverReflection(op, &err)

	p := d.identity.Get(e)
	if p == nil {
		return 0, false, nil
	}
	return *p, true, nil
}

// SetIdentity assigns the store identity to e.
func (d *Descriptor[T]) SetIdentity(e *T, id int64) (err error) {
	const op = "SetIdentity"
	if e == nil {
		return mapperr.Reflection(op, errors.New("cannot assign identity to nil entity"))
	}
	if d.identity == nil {
		return mapperr.Reflection(op, fmt.Errorf("type %s declares no identity", d.info.Type))
	}
	defer recoverReflection(op, &err)

	d.identity.Set(e, id)
	return nil
}

// Hydrate builds a new T from a node's property map. Keys without a matching
// attribute are ignored; attributes without a matching key keep their zero value.
func (d *Descriptor[T]) Hydrate(props map[string]any) (*T, error) {
	e := new(T)
	if err := d.Populate(e, props); err != nil {
		return nil, err
	}
	return e, nil
}

// Populate assigns matching properties onto an existing instance.
func (d *Descriptor[T]) Populate(e *T, props map[string]any) (err error) {
	const op = "Hydrate"
	if e == nil {
		return mapperr.Reflection(op, errors.New("cannot populate nil entity"))
	}
	defer recoverReflection(op, &err)

	for key, value := range props {
		if key == IdentityKey && d.identity != nil {
			id, ok := toInt64(value)
			if !ok {
				return mapperr.Reflection(op, fmt.Errorf("type %s: identity value %v (%T) is not an integer", d.info.Type, value, value))
			}
			d.identity.Set(e, id)
			continue
		}

		i, ok := d.byKey[key]
		if !ok || d.attrs[i].Set == nil {
			continue
		}
		if err := d.attrs[i].Set(e, value); err != nil {
			return mapperr.Reflection(op, fmt.Errorf("type %s: attribute %q: %w", d.info.Type, key, err))
		}
	}
	return nil
}

func recoverReflection(op string, err *error) {
	if r := recover(); r != nil {
		*err = mapperr.Reflection(op, fmt.Errorf("accessor panicked: %v", r))
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Interface()
}
