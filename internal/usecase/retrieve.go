package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cineast/internal/domain"
	"cineast/internal/port"
	"cineast/internal/query"
)

// Category groups weighted retrieval modules under one merge operation.
type Category struct {
	Modules map[string]float64
	Merge   query.MergeOperation
}

// RetrieveUseCase answers category queries by fanning out to modules and merging their lists.
type RetrieveUseCase struct {
	retrievers map[string]port.Retriever
	categories map[string]Category
	base       query.Config
	logger     *slog.Logger
	newID      func() string
}

// NewRetrieveUseCase validates that every category names known modules.
func NewRetrieveUseCase(
	retrievers []port.Retriever,
	categories map[string]Category,
	base query.Config,
	logger *slog.Logger,
) (*RetrieveUseCase, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	u := &RetrieveUseCase{
		retrievers: make(map[string]port.Retriever, len(retrievers)),
		categories: categories,
		base:       base,
		logger:     logger.With("component", "retrieve"),
		newID:      uuid.NewString,
	}
	for _, r := range retrievers {
		u.retrievers[r.Name()] = r
	}
	for name, cat := range categories {
		if len(cat.Modules) == 0 {
			return nil, &domain.ConfigurationError{Field: "categories." + name, Reason: "no modules"}
		}
		for m := range cat.Modules {
			if _, ok := u.retrievers[m]; !ok {
				return nil, &domain.ConfigurationError{Field: "categories." + name, Reason: fmt.Sprintf("module %q is not enabled", m)}
			}
		}
	}
	return u, nil
}

// Categories returns the configured category names, sorted.
func (u *RetrieveUseCase) Categories() []string {
	names := make([]string, 0, len(u.categories))
	for n := range u.categories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Query selects what a retrieval asks for: a stored segment id or an example segment.
type Query struct {
	SegmentID string
	Example   port.SegmentContainer
	// Limit overrides the configured per-module limit when positive.
	Limit int
}

func (q Query) describe() string {
	if q.Example != nil {
		return "example:" + q.Example.ID()
	}
	return "id:" + q.SegmentID
}

// Retrieve runs the query for each category, in the given order.
// No categories means all configured ones.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, q Query, categories ...string) (*domain.ResultBatch, error) {
	if q.Example == nil && q.SegmentID == "" {
		return nil, &domain.ConfigurationError{Field: "query", Reason: "segment id or example required"}
	}
	if len(categories) == 0 {
		categories = u.Categories()
	}
	batch := &domain.ResultBatch{QueryID: u.newID(), Categories: categories}
	for _, name := range categories {
		cat, ok := u.categories[name]
		if !ok {
			return nil, &domain.ConfigurationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", name)}
		}
		content, err := u.category(ctx, q, cat)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", name, err)
		}
		batch.Results = append(batch.Results, domain.CategoryResult{
			QueryID:  batch.QueryID,
			Category: name,
			Content:  content,
		})
		u.logger.Debug("category done", "query", batch.QueryID, "category", name, "target", q.describe(), "results", len(content))
	}
	return batch, nil
}

// Module runs the query against a single enabled module.
func (u *RetrieveUseCase) Module(ctx context.Context, q Query, module string) ([]domain.RankedResult, error) {
	r, ok := u.retrievers[module]
	if !ok {
		return nil, &domain.ConfigurationError{Field: "module", Reason: fmt.Sprintf("module %q is not enabled", module)}
	}
	return u.ask(ctx, r, q)
}

func (u *RetrieveUseCase) category(ctx context.Context, q Query, cat Category) ([]domain.RankedResult, error) {
	names := make([]string, 0, len(cat.Modules))
	for m := range cat.Modules {
		names = append(names, m)
	}
	sort.Strings(names)

	lists := make([][]domain.RankedResult, len(names))
	weights := make([]float64, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range names {
		weights[i] = cat.Modules[m]
		g.Go(func() error {
			res, err := u.ask(gctx, u.retrievers[m], q)
			if err != nil {
				return fmt.Errorf("%s: %w", m, err)
			}
			lists[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return query.Merge(lists, u.limit(q), cat.Merge, query.MergeOptions{Weights: weights})
}

func (u *RetrieveUseCase) limit(q Query) int {
	if q.Limit > 0 {
		return q.Limit
	}
	return u.base.Limit()
}

func (u *RetrieveUseCase) ask(ctx context.Context, r port.Retriever, q Query) ([]domain.RankedResult, error) {
	cfg := u.base.WithLimit(u.limit(q))
	if q.Example != nil {
		return r.GetSimilar(ctx, q.Example, cfg)
	}
	return r.GetSimilarByID(ctx, q.SegmentID, cfg)
}
