package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"cineast/internal/domain"
	"cineast/internal/port"
	"cineast/internal/query"
)

type entity struct {
	def  domain.EntityDefinition
	rows []domain.Row
	ids  map[string][]int
}

// MemoryStore keeps entities in memory. It implements the engine, writer and
// creator ports and is used for tests and throwaway runs.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]*entity
}

var (
	_ port.VectorEngine  = (*MemoryStore)(nil)
	_ port.EntityCreator = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entities: make(map[string]*entity)}
}

func (s *MemoryStore) CreateEntity(_ context.Context, def domain.EntityDefinition) error {
	if def.Name == "" {
		return &domain.ConfigurationError{Field: "entity", Reason: "empty entity name"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[def.Name]; !ok {
		s.entities[def.Name] = &entity{def: def, ids: make(map[string][]int)}
	}
	return nil
}

func (s *MemoryStore) DropEntity(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, name)
	return nil
}

func (s *MemoryStore) ExistsEntity(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entities[name]
	return ok, nil
}

func (s *MemoryStore) Entities(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entities))
	for name := range s.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) EntityExists(ctx context.Context, name string) (bool, error) {
	return s.ExistsEntity(ctx, name)
}

func (s *MemoryStore) Search(_ context.Context, req query.Request) ([]domain.ScoredRow, error) {
	dist, err := req.Config.DistanceFunc(len(req.Vector))
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[req.Entity]
	if !ok {
		return nil, domain.ErrEntityNotFound
	}
	top := query.NewTopK(req.K)
	for _, row := range e.rows {
		if vec, ok := row.Vector(req.Column); ok && len(vec) == len(req.Vector) {
			top.Offer(row, dist(req.Vector, vec))
		}
	}
	return top.Rows(), nil
}

func (s *MemoryStore) Rows(_ context.Context, name, field, value string) ([]domain.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[name]
	if !ok {
		return nil, domain.ErrEntityNotFound
	}
	var out []domain.Row
	if field == "id" {
		for _, i := range e.ids[value] {
			out = append(out, e.rows[i])
		}
		return out, nil
	}
	for _, row := range e.rows {
		if row.Matches(field, value) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *MemoryStore) All(_ context.Context, name string, limit int) ([]domain.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[name]
	if !ok {
		return nil, domain.ErrEntityNotFound
	}
	rows := e.rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return slices.Clone(rows), nil
}

func (s *MemoryStore) insert(name string, row domain.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[name]
	if !ok {
		return domain.ErrEntityNotFound
	}
	id, hasID := row.String("id")
	if hasID && e.def.Unique && len(e.ids[id]) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateKey, id)
	}
	e.rows = append(e.rows, row)
	if hasID {
		e.ids[id] = append(e.ids[id], len(e.rows)-1)
	}
	return nil
}

func (s *MemoryStore) definition(name string) (domain.EntityDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[name]
	if !ok {
		return domain.EntityDefinition{}, false
	}
	return e.def, true
}

func (s *MemoryStore) Close() error {
	return nil
}

// Writer writes straight into a MemoryStore; there is nothing to buffer.
type Writer struct {
	store  *MemoryStore
	entity string
	fields []string
}

var _ port.Writer = (*Writer)(nil)

func (s *MemoryStore) NewWriter() port.Writer {
	return &Writer{store: s}
}

func (w *Writer) Open(_ context.Context, name string) error {
	def, ok := w.store.definition(name)
	if !ok {
		return &domain.StorageError{Op: "open", Entity: name, Err: domain.ErrEntityNotFound}
	}
	if w.fields == nil || w.entity != name {
		w.fields = slices.Clone(def.Fields)
	}
	w.entity = name
	return nil
}

func (w *Writer) SetFieldNames(names ...string) {
	w.fields = slices.Clone(names)
}

func (w *Writer) GenerateTuple(values ...any) (domain.Tuple, error) {
	return domain.NewTuple(w.fields, values...)
}

func (w *Writer) Persist(_ context.Context, t domain.Tuple) error {
	if w.entity == "" {
		return &domain.StorageError{Op: "persist", Err: domain.ErrNotOpen}
	}
	return domain.NewStorageError("persist", w.entity, w.store.insert(w.entity, t.Row()))
}

func (w *Writer) Exists(ctx context.Context, field, value string) (bool, error) {
	if w.entity == "" {
		return false, &domain.StorageError{Op: "exists", Err: domain.ErrNotOpen}
	}
	rows, err := w.store.Rows(ctx, w.entity, field, value)
	if err != nil {
		return false, domain.NewStorageError("exists", w.entity, err)
	}
	return len(rows) > 0, nil
}

func (w *Writer) IDExists(ctx context.Context, id string) (bool, error) {
	return w.Exists(ctx, "id", id)
}

func (w *Writer) Close() error {
	w.entity = ""
	return nil
}
