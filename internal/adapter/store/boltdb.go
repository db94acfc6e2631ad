package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.etcd.io/bbolt"

	"cineast/internal/domain"
	"cineast/internal/port"
)

var (
	bucketMeta = []byte("__meta")
	bucketRows = []byte("rows")
	bucketIDs  = []byte("ids")

	entityKeyPrefix = "entity:"
)

// BoltStore keeps every entity in its own top-level bucket. Inside it, "rows"
// maps a big-endian sequence number to a JSON row and "ids" indexes id\x00seq.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger
}

var _ port.EntityCreator = (*BoltStore)(nil)

func NewBoltStore(path string, logger *slog.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketMeta, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BoltStore{db: db, logger: logger.With("component", "boltstore", "path", path)}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) CreateEntity(_ context.Context, def domain.EntityDefinition) error {
	if def.Name == "" || strings.HasPrefix(def.Name, "__") {
		return &domain.ConfigurationError{Field: "entity", Reason: fmt.Sprintf("invalid entity name %q", def.Name)}
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(def.Name))
		if err != nil {
			return err
		}
		if _, err := b.CreateBucketIfNotExists(bucketRows); err != nil {
			return err
		}
		if _, err := b.CreateBucketIfNotExists(bucketIDs); err != nil {
			return err
		}
		data, err := json.Marshal(def)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(entityKeyPrefix+def.Name), data)
	})
	if err != nil {
		return domain.NewStorageError("create", def.Name, err)
	}
	s.logger.Debug("entity created", "entity", def.Name, "fields", def.Fields)
	return nil
}

func (s *BoltStore) DropEntity(_ context.Context, name string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(name)) != nil {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Delete([]byte(entityKeyPrefix + name))
	})
	if err != nil {
		return domain.NewStorageError("drop", name, err)
	}
	return nil
}

func (s *BoltStore) ExistsEntity(_ context.Context, name string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(bucketMeta).Get([]byte(entityKeyPrefix+name)) != nil
		return nil
	})
	return ok, err
}

func (s *BoltStore) Entities(_ context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketMeta).Cursor()
		prefix := []byte(entityKeyPrefix)
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), entityKeyPrefix); k, _ = c.Next() {
			names = append(names, strings.TrimPrefix(string(k), entityKeyPrefix))
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

// Definition returns the stored definition of an entity.
func (s *BoltStore) Definition(name string) (domain.EntityDefinition, error) {
	var def domain.EntityDefinition
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get([]byte(entityKeyPrefix + name))
		if data == nil {
			return domain.ErrEntityNotFound
		}
		return json.Unmarshal(data, &def)
	})
	if err != nil {
		return def, domain.NewStorageError("definition", name, err)
	}
	return def, nil
}

// Count returns the number of rows stored in an entity.
func (s *BoltStore) Count(name string) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		rows, err := rowsBucket(tx, name)
		if err != nil {
			return err
		}
		n = rows.Stats().KeyN
		return nil
	})
	return n, err
}

// insert appends rows to an entity inside tx. Unique entities reject a second row per id.
func insert(tx *bbolt.Tx, def domain.EntityDefinition, rows []domain.Row) error {
	b := tx.Bucket([]byte(def.Name))
	if b == nil {
		return domain.ErrEntityNotFound
	}
	rb, ib := b.Bucket(bucketRows), b.Bucket(bucketIDs)
	for _, row := range rows {
		id, _ := row.String("id")
		if def.Unique && id != "" && hasID(ib, id) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateKey, id)
		}
		seq, err := rb.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		key := seqKey(seq)
		if err := rb.Put(key, data); err != nil {
			return err
		}
		if id != "" {
			if err := ib.Put(idKey(id, key), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func rowsBucket(tx *bbolt.Tx, entity string) (*bbolt.Bucket, error) {
	b := tx.Bucket([]byte(entity))
	if b == nil {
		return nil, domain.ErrEntityNotFound
	}
	return b.Bucket(bucketRows), nil
}

// rowsByID resolves the id index into rows.
func rowsByID(tx *bbolt.Tx, entity, id string) ([]domain.Row, error) {
	b := tx.Bucket([]byte(entity))
	if b == nil {
		return nil, domain.ErrEntityNotFound
	}
	rb, c := b.Bucket(bucketRows), b.Bucket(bucketIDs).Cursor()
	prefix := idPrefix(id)
	var out []domain.Row
	for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
		data := rb.Get(k[len(prefix):])
		if data == nil {
			continue
		}
		row, err := decodeRow(data)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func hasID(ids *bbolt.Bucket, id string) bool {
	prefix := idPrefix(id)
	k, _ := ids.Cursor().Seek(prefix)
	return k != nil && strings.HasPrefix(string(k), string(prefix))
}

func decodeRow(data []byte) (domain.Row, error) {
	var row domain.Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("malformed row: %w", err)
	}
	return row, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func idPrefix(id string) []byte {
	return append([]byte(id), 0)
}

func idKey(id string, seq []byte) []byte {
	return append(idPrefix(id), seq...)
}
