// Package entity describes how application types map onto graph nodes.
//
// Instead of discovering attributes at runtime, every mapped type declares
// them explicitly by implementing Entity: a Declare method returning the
// type's label, identity accessor and attributes (name, getter, setter, index
// kind, transient flag). A Registry turns declarations into cached
// Descriptors, which provide the three operations the mapper needs:
//
//   - Extract: entity -> property map (persistable attributes only)
//   - Hydrate: property map -> new entity
//   - Identity / SetIdentity: read and assign the store identity
//
// # Keys and labels
//
// Attribute keys are derived from accessor-style names with NormalizeAccessor
// ("GetFirstName" -> "firstname"). Two attributes normalizing to the same key
// are rejected when the descriptor is built. Labels are the lower-cased
// explicit label or, failing that, the lower-cased type name.
//
// # Errors
//
// Invalid declarations and failing accessors surface as mapperr reflection
// errors; unresolvable labels as mapperr label extraction errors.
package entity
