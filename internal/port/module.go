package port

import (
	"context"

	"cineast/internal/domain"
	"cineast/internal/query"
)

// Extractor turns segments into stored feature vectors.
type Extractor interface {
	Name() string

	// Init binds the extractor to a writer. A second call closes the previous writer.
	Init(w Writer) error

	// Process extracts and persists the features of one segment.
	// It does nothing when the segment is already stored.
	Process(ctx context.Context, seg SegmentContainer) error

	// Finish flushes and closes the held writer. Calling it again is a no-op.
	Finish() error
}

// Retriever answers similarity queries for one feature.
type Retriever interface {
	Name() string

	// InitSelector binds the retriever to a selector. A second call closes the previous selector.
	InitSelector(s Selector) error

	GetSimilar(ctx context.Context, seg SegmentContainer, cfg query.Config) ([]domain.RankedResult, error)

	GetSimilarByID(ctx context.Context, id string, cfg query.Config) ([]domain.RankedResult, error)

	Finish() error
}

// PersistentLayer is implemented by modules that store their own entities.
type PersistentLayer interface {
	Entities() []domain.EntityDefinition
}
