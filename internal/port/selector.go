package port

import (
	"context"

	"cineast/internal/domain"
	"cineast/internal/query"
)

// Selector answers similarity queries against one feature entity.
// Implementations are read-only and safe for concurrent use.
type Selector interface {
	Open(ctx context.Context, entity string) error
	Close() error

	// NearestNeighbours returns at most k results in ascending distance.
	NearestNeighbours(ctx context.Context, k int, vector []float32, column string, cfg query.Config) ([]domain.RankedResult, error)

	// NearestNeighbourRows is NearestNeighbours returning the full stored rows.
	NearestNeighbourRows(ctx context.Context, k int, vector []float32, column string, cfg query.Config) ([]domain.ScoredRow, error)

	// BatchedNearestNeighbours runs one search per (vector, config) pair and
	// concatenates the results in input order without deduplication.
	BatchedNearestNeighbours(ctx context.Context, k int, vectors [][]float32, column string, cfgs []query.Config) ([]domain.RankedResult, error)

	// CombinedNearestNeighbours merges the per-vector results into at most k results.
	CombinedNearestNeighbours(ctx context.Context, k int, vectors [][]float32, column string, cfgs []query.Config, op query.MergeOperation, opts query.MergeOptions) ([]domain.RankedResult, error)

	GetRows(ctx context.Context, field, value string) ([]domain.Row, error)
	GetAll(ctx context.Context) ([]domain.Row, error)
	Preview(ctx context.Context, n int) ([]domain.Row, error)
	ExistsEntity(ctx context.Context, name string) (bool, error)

	// FeatureVectors returns the vectors stored under column for rows where field == value.
	FeatureVectors(ctx context.Context, field, value, column string) ([][]float32, error)
}

// SelectorFactory hands out fresh, unopened selectors.
type SelectorFactory interface {
	NewSelector() Selector
}

// VectorEngine is the storage engine behind a Selector. Engines own the
// encoding of requests and rows; errors are reported as returned.
type VectorEngine interface {
	// Search returns the rows of req.Entity closest to req.Vector under req.Config.
	Search(ctx context.Context, req query.Request) ([]domain.ScoredRow, error)

	// Rows returns rows where field == value. An empty value with an empty field returns nothing.
	Rows(ctx context.Context, entity, field, value string) ([]domain.Row, error)

	// All returns up to limit rows of entity; limit <= 0 means all rows.
	All(ctx context.Context, entity string, limit int) ([]domain.Row, error)

	EntityExists(ctx context.Context, entity string) (bool, error)
}
