// Package feature holds the feature modules: extractors that turn segments
// into stored vectors and retrievers that query them.
package feature

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"cineast/internal/domain"
	"cineast/internal/port"
	"cineast/internal/query"
)

// Module is a feature that can be both extracted and retrieved.
type Module interface {
	port.Extractor
	port.Retriever
	port.PersistentLayer
}

// base carries the port ownership shared by all modules.
type base struct {
	name   string
	def    domain.EntityDefinition
	column string
	logger *slog.Logger

	mu       sync.RWMutex
	writer   port.Writer
	selector port.Selector
}

func (b *base) configure(name string, def domain.EntityDefinition, column string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b.name = name
	b.def = def
	b.column = column
	b.logger = logger.With("component", "feature", "module", name)
}

func (b *base) Name() string { return b.name }

func (b *base) Entities() []domain.EntityDefinition {
	return []domain.EntityDefinition{b.def}
}

// Init binds a writer, closing a previously bound one first.
func (b *base) Init(w port.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writer != nil {
		if err := b.writer.Close(); err != nil {
			b.logger.Warn("closing previous writer", "error", err)
		}
		b.writer = nil
	}
	if err := w.Open(context.Background(), b.def.Name); err != nil {
		return err
	}
	w.SetFieldNames(b.def.Fields...)
	b.writer = w
	return nil
}

// InitSelector binds a selector, closing a previously bound one first.
func (b *base) InitSelector(s port.Selector) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selector != nil {
		if err := b.selector.Close(); err != nil {
			b.logger.Warn("closing previous selector", "error", err)
		}
		b.selector = nil
	}
	if err := s.Open(context.Background(), b.def.Name); err != nil {
		return err
	}
	b.selector = s
	return nil
}

// Finish flushes and releases both ports. Calling it again does nothing.
func (b *base) Finish() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	if b.writer != nil {
		errs = append(errs, b.writer.Close())
		b.writer = nil
	}
	if b.selector != nil {
		errs = append(errs, b.selector.Close())
		b.selector = nil
	}
	return errors.Join(errs...)
}

func (b *base) boundWriter() (port.Writer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.writer == nil {
		return nil, &domain.StorageError{Op: "extract", Entity: b.def.Name, Err: domain.ErrNotOpen}
	}
	return b.writer, nil
}

func (b *base) boundSelector() (port.Selector, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.selector == nil {
		return nil, &domain.StorageError{Op: "retrieve", Entity: b.def.Name, Err: domain.ErrNotOpen}
	}
	return b.selector, nil
}

// stored reports whether the segment already has a row.
func (b *base) stored(ctx context.Context, id string) (bool, error) {
	w, err := b.boundWriter()
	if err != nil {
		return false, err
	}
	return w.IDExists(ctx, id)
}

func (b *base) persist(ctx context.Context, values ...any) error {
	w, err := b.boundWriter()
	if err != nil {
		return err
	}
	t, err := w.GenerateTuple(values...)
	if err != nil {
		return err
	}
	return w.Persist(ctx, t)
}

// similar is a single-vector kNN on the module's feature column.
func (b *base) similar(ctx context.Context, vector []float32, cfg query.Config) ([]domain.RankedResult, error) {
	s, err := b.boundSelector()
	if err != nil {
		return nil, err
	}
	return s.NearestNeighbours(ctx, cfg.Limit(), vector, b.column, cfg)
}

// similarByID queries with the vector stored for id. Unknown ids give no results.
func (b *base) similarByID(ctx context.Context, id string, cfg query.Config) ([]domain.RankedResult, error) {
	s, err := b.boundSelector()
	if err != nil {
		return nil, err
	}
	vecs, err := s.FeatureVectors(ctx, "id", id, b.column)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return []domain.RankedResult{}, nil
	}
	return b.similar(ctx, vecs[0], cfg)
}
