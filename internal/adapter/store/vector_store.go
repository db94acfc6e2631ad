package store

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"cineast/internal/domain"
	"cineast/internal/port"
	"cineast/internal/query"
)

// BoltVectorStore answers kNN requests by an exact scan over an entity's rows.
type BoltVectorStore struct {
	store *BoltStore
}

var _ port.VectorEngine = (*BoltVectorStore)(nil)

func NewBoltVectorStore(store *BoltStore) *BoltVectorStore {
	return &BoltVectorStore{store: store}
}

func (s *BoltVectorStore) Search(ctx context.Context, req query.Request) ([]domain.ScoredRow, error) {
	dist, err := req.Config.DistanceFunc(len(req.Vector))
	if err != nil {
		return nil, err
	}
	top := query.NewTopK(req.K)

	err = s.store.db.View(func(tx *bbolt.Tx) error {
		rows, err := rowsBucket(tx, req.Entity)
		if err != nil {
			return err
		}
		n := 0
		return rows.ForEach(func(_, v []byte) error {
			if n++; n%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			row, err := decodeRow(v)
			if err != nil {
				return err
			}
			vec, ok := row.Vector(req.Column)
			if !ok || len(vec) != len(req.Vector) {
				return nil
			}
			top.Offer(row, dist(req.Vector, vec))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s.%s: %w", req.Entity, req.Column, err)
	}
	return top.Rows(), nil
}

func (s *BoltVectorStore) Rows(_ context.Context, entity, field, value string) ([]domain.Row, error) {
	var out []domain.Row
	err := s.store.db.View(func(tx *bbolt.Tx) error {
		if field == "id" {
			rows, err := rowsByID(tx, entity, value)
			out = rows
			return err
		}
		rows, err := rowsBucket(tx, entity)
		if err != nil {
			return err
		}
		return rows.ForEach(func(_, v []byte) error {
			row, err := decodeRow(v)
			if err != nil {
				return err
			}
			if row.Matches(field, value) {
				out = append(out, row)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltVectorStore) All(_ context.Context, entity string, limit int) ([]domain.Row, error) {
	var out []domain.Row
	err := s.store.db.View(func(tx *bbolt.Tx) error {
		rows, err := rowsBucket(tx, entity)
		if err != nil {
			return err
		}
		c := rows.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			row, err := decodeRow(v)
			if err != nil {
				return err
			}
			out = append(out, row)
		}
		return nil
	})
	return out, err
}

func (s *BoltVectorStore) EntityExists(ctx context.Context, entity string) (bool, error) {
	return s.store.ExistsEntity(ctx, entity)
}
