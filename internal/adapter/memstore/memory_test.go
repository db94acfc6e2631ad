package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cineast/internal/domain"
	"cineast/internal/query"
	"cineast/internal/search"
)

func seed(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateEntity(ctx, domain.EntityDefinition{Name: "features_x", Fields: []string{"id", "feature"}, Unique: true}))

	w := s.NewWriter()
	require.NoError(t, w.Open(ctx, "features_x"))
	for id, v := range map[string][]float32{"a": {0, 1}, "b": {0, 2}, "c": {0, 3}} {
		tup, err := w.GenerateTuple(id, v)
		require.NoError(t, err)
		require.NoError(t, w.Persist(ctx, tup))
	}
	require.NoError(t, w.Close())
	return s
}

func TestSelectorOverMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	sel := search.NewSelector(s, nil)
	require.NoError(t, sel.Open(ctx, "features_x"))

	got, err := sel.NearestNeighbours(ctx, 2, []float32{0, 2.2}, "feature", query.NewConfig())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
	assert.InDelta(t, 0.2, got[0].Distance, 1e-6)

	vecs, err := sel.FeatureVectors(ctx, "id", "c", "feature")
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 3}}, vecs)
}

func TestWriterIdempotencyAndUniqueness(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	w := s.NewWriter()
	require.NoError(t, w.Open(ctx, "features_x"))

	ok, err := w.IDExists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	tup, err := w.GenerateTuple("a", []float32{9, 9})
	require.NoError(t, err)
	err = w.Persist(ctx, tup)
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestUnknownEntity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	assert.ErrorIs(t, s.NewWriter().Open(ctx, "nope"), domain.ErrEntityNotFound)
	_, err := s.Search(ctx, query.Request{Entity: "nope", Vector: []float32{1}, K: 1, Config: query.NewConfig()})
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}

func TestSearchSkipsOtherArities(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	w := s.NewWriter()
	require.NoError(t, w.Open(ctx, "features_x"))
	tup, err := w.GenerateTuple("odd", []float32{0, 2, 0})
	require.NoError(t, err)
	require.NoError(t, w.Persist(ctx, tup))

	rows, err := s.Search(ctx, query.Request{Entity: "features_x", Column: "feature", Vector: []float32{0, 2}, K: 10, Config: query.NewConfig()})
	require.NoError(t, err)
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i], _ = r.ID()
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}
