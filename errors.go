package graphmap

import (
	"context"
	"log/slog"

	"github.com/zero-day-ai/graphmap/mapperr"
)

// Sentinel errors, re-exported from mapperr so callers can match them with
// errors.Is without a second import.
var (
	// ErrLabelExtraction indicates an entity type has no resolvable label.
	ErrLabelExtraction = mapperr.ErrLabelExtraction

	// ErrReflection indicates extraction, hydration or identity access failed.
	ErrReflection = mapperr.ErrReflection

	// ErrDBOperation indicates a relationship operation was given nil or
	// unresolvable relatives.
	ErrDBOperation = mapperr.ErrDBOperation

	// ErrNotFound indicates an explicitly supplied identity has no stored node.
	ErrNotFound = mapperr.ErrNotFound

	// ErrStorage indicates the graph store rejected an operation.
	ErrStorage = mapperr.ErrStorage
)

// Error is the structured error returned by every mapper operation.
type Error = mapperr.Error

// contextCloser is implemented by resources whose Close takes a context,
// such as graph stores.
type contextCloser interface {
	Close(ctx context.Context) error
}

// closeWithLog attempts to close the provided resource and logs any error
// at warning level. It is intended for cleanup paths where the original
// error is the one worth returning.
func closeWithLog(ctx context.Context, closer contextCloser, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(ctx); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
