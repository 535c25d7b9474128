// Package mapperr defines the error taxonomy shared by every graphmap package.
//
// Errors carry the operation that failed and a Kind. Sentinel errors allow
// callers to branch with errors.Is without inspecting messages:
//
//	lion, err := graphmap.CreateUnique(ctx, m, &Lion{Base: entity.Base{ID: &staleID}})
//	if errors.Is(err, mapperr.ErrNotFound) {
//	    // the supplied identity does not refer to a stored node
//	}
package mapperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the mapping layer.
var (
	// ErrLabelExtraction indicates an entity type carries no resolvable label
	// declaration. This is a programmer error and is never defaulted.
	ErrLabelExtraction = errors.New("label extraction failed")

	// ErrReflection indicates attribute extraction, hydration or identity
	// access failed for an entity value.
	ErrReflection = errors.New("entity reflection failed")

	// ErrDBOperation indicates a relationship operation was given null or
	// unsatisfiable relatives.
	ErrDBOperation = errors.New("illegal db operation")

	// ErrNotFound indicates an explicitly supplied identity does not refer
	// to a stored node.
	ErrNotFound = errors.New("not found")

	// ErrStorage indicates the graph store rejected an operation.
	ErrStorage = errors.New("storage operation failed")
)

// Error kinds categorize errors by their type.
const (
	KindLabelExtraction = "label_extraction"
	KindReflection      = "reflection"
	KindDBOperation     = "db_operation"
	KindNotFound        = "not_found"
	KindStorage         = "storage"
)

// Error is a structured error that wraps an underlying cause with the
// operation that failed and its category.
//
// Error supports errors.Is against both the kind sentinel and the wrapped
// cause, and errors.As for *Error.
type Error struct {
	// Op is the operation that failed (e.g., "CreateUnique", "AddRelatives").
	Op string

	// Kind categorizes the error (e.g., KindReflection).
	Kind string

	// Err is the underlying cause.
	Err error

	// Context carries optional debugging details such as labels or ids.
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("graphmap: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("graphmap: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("graphmap: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel for this error, another *Error of the same
// kind (and op, when the target names one), or the wrapped cause.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			return t.Op == "" || e.Op == t.Op
		}
		return false
	}

	if sentinel := sentinelFor(e.Kind); sentinel != nil && target == sentinel {
		return true
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with ctx merged into its context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	merged := make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}
	newErr.Context = merged
	return &newErr
}

func sentinelFor(kind string) error {
	switch kind {
	case KindLabelExtraction:
		return ErrLabelExtraction
	case KindReflection:
		return ErrReflection
	case KindDBOperation:
		return ErrDBOperation
	case KindNotFound:
		return ErrNotFound
	case KindStorage:
		return ErrStorage
	default:
		return nil
	}
}

// newError builds an Error, substituting the kind sentinel for a nil cause.
func newError(op, kind string, err error) *Error {
	if err == nil {
		err = sentinelFor(kind)
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// LabelExtraction creates an Error with KindLabelExtraction.
func LabelExtraction(op string, err error) *Error {
	return newError(op, KindLabelExtraction, err)
}

// Reflection creates an Error with KindReflection.
func Reflection(op string, err error) *Error {
	return newError(op, KindReflection, err)
}

// DBOperation creates an Error with KindDBOperation.
func DBOperation(op string, err error) *Error {
	return newError(op, KindDBOperation, err)
}

// NotFound creates an Error with KindNotFound.
func NotFound(op string, err error) *Error {
	return newError(op, KindNotFound, err)
}

// Storage creates an Error with KindStorage.
func Storage(op string, err error) *Error {
	return newError(op, KindStorage, err)
}
