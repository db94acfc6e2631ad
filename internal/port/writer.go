package port

import (
	"context"

	"cineast/internal/domain"
)

// Writer persists tuples into one entity. A Writer is used by a single goroutine at a time.
type Writer interface {
	// Open binds the writer to an entity. It fails when the entity does not exist.
	Open(ctx context.Context, entity string) error

	// SetFieldNames declares the column order used by GenerateTuple.
	SetFieldNames(names ...string)

	// GenerateTuple binds values to the declared field names.
	GenerateTuple(values ...any) (domain.Tuple, error)

	// Persist stores a tuple. Writes may be buffered until Close.
	Persist(ctx context.Context, t domain.Tuple) error

	// Exists reports whether a row with field == value is stored or pending.
	Exists(ctx context.Context, field string, value string) (bool, error)

	// IDExists is Exists on the "id" field.
	IDExists(ctx context.Context, id string) (bool, error)

	// Close flushes pending writes and releases the entity.
	Close() error
}

// WriterFactory hands out fresh, unopened writers.
type WriterFactory interface {
	NewWriter() Writer
}
