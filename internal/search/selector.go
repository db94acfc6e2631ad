// Package search implements the query-side Selector once, over any VectorEngine.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"cineast/internal/domain"
	"cineast/internal/port"
	"cineast/internal/query"
)

// Selector answers kNN queries for one entity through a VectorEngine.
// After Open it is read-only and safe for concurrent use.
type Selector struct {
	engine port.VectorEngine
	logger *slog.Logger

	mu     sync.RWMutex
	entity string
}

var _ port.Selector = (*Selector)(nil)

func NewSelector(engine port.VectorEngine, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Selector{engine: engine, logger: logger.With("component", "selector")}
}

// Open binds the selector to entity, which must exist.
func (s *Selector) Open(ctx context.Context, entity string) error {
	ok, err := s.engine.EntityExists(ctx, entity)
	if err != nil {
		return domain.NewStorageError("open", entity, err)
	}
	if !ok {
		return &domain.StorageError{Op: "open", Entity: entity, Err: domain.ErrEntityNotFound}
	}
	s.mu.Lock()
	s.entity = entity
	s.mu.Unlock()
	return nil
}

func (s *Selector) Close() error {
	s.mu.Lock()
	s.entity = ""
	s.mu.Unlock()
	return nil
}

// Entity returns the bound entity name, empty when closed.
func (s *Selector) Entity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entity
}

func (s *Selector) bound() (string, error) {
	entity := s.Entity()
	if entity == "" {
		return "", &domain.StorageError{Op: "query", Err: domain.ErrNotOpen}
	}
	return entity, nil
}

func (s *Selector) NearestNeighbours(ctx context.Context, k int, vector []float32, column string, cfg query.Config) ([]domain.RankedResult, error) {
	rows, err := s.NearestNeighbourRows(ctx, k, vector, column, cfg)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RankedResult, len(rows))
	for i, r := range rows {
		id, _ := r.ID()
		out[i] = domain.RankedResult{ID: id, Distance: r.Distance}
	}
	return out, nil
}

func (s *Selector) NearestNeighbourRows(ctx context.Context, k int, vector []float32, column string, cfg query.Config) ([]domain.ScoredRow, error) {
	if k < 0 {
		return nil, &domain.ConfigurationError{Field: "k", Reason: fmt.Sprintf("must be >= 0, got %d", k)}
	}
	if k == 0 {
		return []domain.ScoredRow{}, nil
	}
	if err := cfg.Validate(len(vector)); err != nil {
		return nil, err
	}
	entity, err := s.bound()
	if err != nil {
		return nil, err
	}
	for _, h := range []string{query.HintLSH, query.HintVA, query.HintInexact} {
		if _, ok := cfg.Hint(h); ok {
			s.logger.Debug("ignoring engine hint", "hint", h, "entity", entity)
		}
	}

	rows, err := s.engine.Search(ctx, query.Request{
		Entity: entity,
		Column: column,
		Vector: vector,
		K:      k,
		Config: cfg,
	})
	if err != nil {
		return nil, domain.NewStorageError("search", entity, err)
	}
	for _, r := range rows {
		if _, ok := r.ID(); !ok {
			return nil, &domain.StorageError{Op: "search", Entity: entity, Err: errors.New("malformed row: missing id")}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i].ID()
		b, _ := rows[j].ID()
		return domain.LessResult(
			domain.RankedResult{ID: a, Distance: rows[i].Distance},
			domain.RankedResult{ID: b, Distance: rows[j].Distance},
		)
	})
	if len(rows) > k {
		rows = rows[:k]
	}
	return rows, nil
}

func (s *Selector) BatchedNearestNeighbours(ctx context.Context, k int, vectors [][]float32, column string, cfgs []query.Config) ([]domain.RankedResult, error) {
	lists, err := s.fanOut(ctx, k, vectors, column, cfgs)
	if err != nil {
		return nil, err
	}
	var out []domain.RankedResult
	for _, l := range lists {
		out = append(out, l...)
	}
	if out == nil {
		out = []domain.RankedResult{}
	}
	return out, nil
}

func (s *Selector) CombinedNearestNeighbours(ctx context.Context, k int, vectors [][]float32, column string, cfgs []query.Config, op query.MergeOperation, opts query.MergeOptions) ([]domain.RankedResult, error) {
	lists, err := s.fanOut(ctx, k, vectors, column, cfgs)
	if err != nil {
		return nil, err
	}
	return query.Merge(lists, k, op, opts)
}

// fanOut runs one search per (vector, config) pair in parallel and returns the lists in input order.
func (s *Selector) fanOut(ctx context.Context, k int, vectors [][]float32, column string, cfgs []query.Config) ([][]domain.RankedResult, error) {
	if len(vectors) != len(cfgs) {
		return nil, &domain.MergeInputError{Vectors: len(vectors), Configs: len(cfgs)}
	}
	lists := make([][]domain.RankedResult, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	for i := range vectors {
		g.Go(func() error {
			res, err := s.NearestNeighbours(gctx, k, vectors[i], column, cfgs[i])
			if err != nil {
				return err
			}
			lists[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

func (s *Selector) GetRows(ctx context.Context, field, value string) ([]domain.Row, error) {
	entity, err := s.bound()
	if err != nil {
		return nil, err
	}
	rows, err := s.engine.Rows(ctx, entity, field, value)
	if err != nil {
		return nil, domain.NewStorageError("rows", entity, err)
	}
	return rows, nil
}

func (s *Selector) GetAll(ctx context.Context) ([]domain.Row, error) {
	return s.Preview(ctx, 0)
}

// Preview returns up to n rows; n <= 0 returns all rows.
func (s *Selector) Preview(ctx context.Context, n int) ([]domain.Row, error) {
	entity, err := s.bound()
	if err != nil {
		return nil, err
	}
	rows, err := s.engine.All(ctx, entity, n)
	if err != nil {
		return nil, domain.NewStorageError("all", entity, err)
	}
	return rows, nil
}

func (s *Selector) ExistsEntity(ctx context.Context, name string) (bool, error) {
	ok, err := s.engine.EntityExists(ctx, name)
	if err != nil {
		return false, domain.NewStorageError("exists", name, err)
	}
	return ok, nil
}

func (s *Selector) FeatureVectors(ctx context.Context, field, value, column string) ([][]float32, error) {
	rows, err := s.GetRows(ctx, field, value)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.Vector(column); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Factory builds selectors sharing one engine.
type Factory struct {
	Engine port.VectorEngine
	Logger *slog.Logger
}

func (f Factory) NewSelector() port.Selector { return NewSelector(f.Engine, f.Logger) }

var _ port.SelectorFactory = Factory{}
