package entity

import "fmt"

// IndexKind is the kind of secondary index declared on an attribute.
type IndexKind int

const (
	// NotIndexed marks an attribute without a secondary index.
	NotIndexed IndexKind = iota

	// Exact marks an attribute backed by a schema index supporting equality lookups.
	Exact

	// FullText marks an attribute added to a named full-text index.
	FullText
)

// String returns the lower-case name of the index kind.
func (k IndexKind) String() string {
	switch k {
	case NotIndexed:
		return "none"
	case Exact:
		return "exact"
	case FullText:
		return "full-text"
	default:
		return fmt.Sprintf("IndexKind(%d)", int(k))
	}
}

// Entity is the capability every mapped type provides. It is satisfied by the
// pointer type *T of a struct whose Declare method returns the static
// declaration of its label, identity and attributes.
//
// Declare is called once per type on a zero value; it must not depend on the
// receiver's state.
//
// Example:
//
//	type Lion struct {
//	    entity.Base
//	    Name string
//	    Age  int
//	}
//
//	func (*Lion) Declare() entity.Declaration[Lion] {
//	    return entity.Declaration[Lion]{
//	        Label:    "Lion",
//	        Identity: entity.BaseIdentity(func(l *Lion) *entity.Base { return &l.Base }),
//	        Attributes: []entity.Attribute[Lion]{
//	            entity.Field("GetName", func(l *Lion) *string { return &l.Name }).WithFullTextIndex("lion_name_ft"),
//	            entity.Field("GetAge", func(l *Lion) *int { return &l.Age }).WithExactIndex(),
//	        },
//	    }
//	}
type Entity[T any] interface {
	*T
	Declare() Declaration[T]
}

// Declaration is the static metadata of an entity type.
type Declaration[T any] struct {
	// Label is the explicit node label. When empty the type's simple name is used.
	// Either way the label is lower-cased.
	Label string

	// Identity describes how the entity carries its store-assigned identity.
	// Nil for types that are never looked up by identity.
	Identity *Identity[T]

	// Attributes lists every attribute known to the mapper.
	Attributes []Attribute[T]
}

// Identity reads and writes the store-assigned identity of an entity.
type Identity[T any] struct {
	// Get returns nil before the entity is first persisted.
	Get func(*T) *int64

	// Set assigns the identity after persistence.
	Set func(*T, int64)
}

// Attribute binds one entity attribute to its accessor name, getter, setter
// and index capabilities.
type Attribute[T any] struct {
	// Accessor is the accessor-style name ("GetName", "IsActive", "Age").
	// The persisted key is derived from it with NormalizeAccessor.
	Accessor string

	// Get returns the current value. Nil values are not persisted.
	Get func(*T) any

	// Set assigns a value read back from the store. Nil for read-only attributes.
	Set func(*T, any) error

	// Index selects the secondary index kind.
	Index IndexKind

	// IndexName names the full-text index. Required when Index is FullText.
	IndexName string

	// Transient attributes are hydrated but never persisted.
	Transient bool
}

// WithExactIndex returns a copy of the attribute backed by an exact index.
func (a Attribute[T]) WithExactIndex() Attribute[T] {
	a.Index = Exact
	a.IndexName = ""
	return a
}

// WithFullTextIndex returns a copy of the attribute added to the named full-text index.
func (a Attribute[T]) WithFullTextIndex(name string) Attribute[T] {
	a.Index = FullText
	a.IndexName = name
	return a
}

// AsTransient returns a copy of the attribute that is never persisted.
func (a Attribute[T]) AsTransient() Attribute[T] {
	a.Transient = true
	return a
}

// Field declares an attribute backed by a struct field reachable through ptr.
// The setter coerces between numeric kinds so values read back from a store
// (which usually widens integers to int64) land in narrower fields.
func Field[T any, V any](accessor string, ptr func(*T) *V) Attribute[T] {
	return Attribute[T]{
		Accessor: accessor,
		Get: func(e *T) any {
			return *ptr(e)
		},
		Set: func(e *T, value any) error {
			return Assign(ptr(e), value)
		},
	}
}
