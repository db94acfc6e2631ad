package store

import (
	"context"
	"fmt"
	"slices"

	"go.etcd.io/bbolt"

	"cineast/internal/domain"
	"cineast/internal/port"
)

// DefaultBatchSize is the number of tuples a writer buffers before it commits.
const DefaultBatchSize = 100

// BoltWriter buffers tuples and commits them in a single transaction per batch.
type BoltWriter struct {
	store     *BoltStore
	batchSize int

	def     domain.EntityDefinition
	open    bool
	fields  []string
	pending []domain.Row
}

var _ port.Writer = (*BoltWriter)(nil)

func NewBoltWriter(store *BoltStore, batchSize int) *BoltWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BoltWriter{store: store, batchSize: batchSize}
}

func (w *BoltWriter) Open(_ context.Context, entity string) error {
	def, err := w.store.Definition(entity)
	if err != nil {
		return err
	}
	if w.open && w.def.Name != entity {
		if err := w.Close(); err != nil {
			return err
		}
	}
	if w.fields == nil || w.def.Name != entity {
		w.fields = slices.Clone(def.Fields)
	}
	w.def = def
	w.open = true
	return nil
}

func (w *BoltWriter) SetFieldNames(names ...string) {
	w.fields = slices.Clone(names)
}

func (w *BoltWriter) GenerateTuple(values ...any) (domain.Tuple, error) {
	return domain.NewTuple(w.fields, values...)
}

func (w *BoltWriter) Persist(ctx context.Context, t domain.Tuple) error {
	if !w.open {
		return &domain.StorageError{Op: "persist", Err: domain.ErrNotOpen}
	}
	row := t.Row()
	if w.def.Unique {
		if id, ok := row.String("id"); ok {
			exists, err := w.IDExists(ctx, id)
			if err != nil {
				return err
			}
			if exists {
				return &domain.StorageError{Op: "persist", Entity: w.def.Name, Err: fmt.Errorf("%w: %s", domain.ErrDuplicateKey, id)}
			}
		}
	}
	w.pending = append(w.pending, row)
	if len(w.pending) >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *BoltWriter) Exists(_ context.Context, field, value string) (bool, error) {
	if !w.open {
		return false, &domain.StorageError{Op: "exists", Err: domain.ErrNotOpen}
	}
	for _, row := range w.pending {
		if row.Matches(field, value) {
			return true, nil
		}
	}

	var found bool
	err := w.store.db.View(func(tx *bbolt.Tx) error {
		if field == "id" {
			b := tx.Bucket([]byte(w.def.Name))
			if b == nil {
				return domain.ErrEntityNotFound
			}
			found = hasID(b.Bucket(bucketIDs), value)
			return nil
		}
		rows, err := rowsBucket(tx, w.def.Name)
		if err != nil {
			return err
		}
		c := rows.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			row, err := decodeRow(v)
			if err != nil {
				return err
			}
			if row.Matches(field, value) {
				found = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, domain.NewStorageError("exists", w.def.Name, err)
	}
	return found, nil
}

func (w *BoltWriter) IDExists(ctx context.Context, id string) (bool, error) {
	return w.Exists(ctx, "id", id)
}

// Close flushes pending tuples. The writer can be reopened afterwards.
func (w *BoltWriter) Close() error {
	if !w.open {
		return nil
	}
	err := w.flush()
	w.open = false
	return err
}

func (w *BoltWriter) flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	err := w.store.db.Update(func(tx *bbolt.Tx) error {
		return insert(tx, w.def, w.pending)
	})
	if err != nil {
		return domain.NewStorageError("flush", w.def.Name, err)
	}
	w.store.logger.Debug("batch committed", "entity", w.def.Name, "rows", len(w.pending))
	w.pending = w.pending[:0]
	return nil
}

// WriterFactory hands out buffered writers over one store.
type WriterFactory struct {
	Store     *BoltStore
	BatchSize int
}

func (f WriterFactory) NewWriter() port.Writer { return NewBoltWriter(f.Store, f.BatchSize) }
