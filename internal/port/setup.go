package port

import (
	"context"

	"cineast/internal/domain"
)

// EntityCreator manages storage entities.
type EntityCreator interface {
	// CreateEntity creates def if it is missing. Creating an existing entity is not an error.
	CreateEntity(ctx context.Context, def domain.EntityDefinition) error

	DropEntity(ctx context.Context, name string) error

	ExistsEntity(ctx context.Context, name string) (bool, error)

	// Entities lists the names of all stored entities.
	Entities(ctx context.Context) ([]string, error)
}
