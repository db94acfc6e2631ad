package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cineast/config"
	"cineast/internal/domain"
	"cineast/internal/query"
)

var featureDef = domain.EntityDefinition{Name: "features_test", Fields: []string{"id", "feature"}, Unique: true}

func newStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateEntity(context.Background(), featureDef))
	return s
}

func persist(t *testing.T, w *BoltWriter, id string, vec []float32) {
	t.Helper()
	tup, err := w.GenerateTuple(id, vec)
	require.NoError(t, err)
	require.NoError(t, w.Persist(context.Background(), tup))
}

func TestEntityLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ok, err := s.ExistsEntity(ctx, "features_test")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.CreateEntity(ctx, featureDef), "create is idempotent")
	require.NoError(t, s.CreateEntity(ctx, domain.EntityDefinition{Name: "b", Fields: []string{"id"}}))
	names, err := s.Entities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "features_test"}, names)

	require.NoError(t, s.DropEntity(ctx, "b"))
	ok, err = s.ExistsEntity(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.CreateEntity(ctx, domain.EntityDefinition{Name: "__meta"}), domain.ErrConfiguration)
}

func TestWriterBuffersAndSeesPending(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	w := NewBoltWriter(s, 10)
	require.NoError(t, w.Open(ctx, "features_test"))

	persist(t, w, "s1", []float32{1, 0})
	ok, err := w.IDExists(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok, "pending tuple must be visible")

	n, err := s.Count("features_test")
	require.NoError(t, err)
	assert.Zero(t, n, "nothing committed before flush")

	require.NoError(t, w.Close())
	n, err = s.Count("features_test")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, w.Open(ctx, "features_test"))
	ok, err = w.IDExists(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = w.IDExists(ctx, "s2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriterFlushesAtBatchSize(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	w := NewBoltWriter(s, 2)
	require.NoError(t, w.Open(ctx, "features_test"))

	persist(t, w, "a", []float32{0, 0})
	persist(t, w, "b", []float32{0, 0})
	n, err := s.Count("features_test")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWriterRejectsDuplicateInUniqueEntity(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	w := NewBoltWriter(s, 10)
	require.NoError(t, w.Open(ctx, "features_test"))

	persist(t, w, "a", []float32{0, 0})
	tup, err := w.GenerateTuple("a", []float32{1, 1})
	require.NoError(t, err)
	err = w.Persist(ctx, tup)
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestWriterErrors(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	w := NewBoltWriter(s, 0)

	assert.ErrorIs(t, w.Open(ctx, "missing"), domain.ErrEntityNotFound)
	_, err := w.IDExists(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotOpen)

	require.NoError(t, w.Open(ctx, "features_test"))
	_, err = w.GenerateTuple("only-one")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestVectorStoreSearch(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	w := NewBoltWriter(s, 100)
	require.NoError(t, w.Open(ctx, "features_test"))
	persist(t, w, "far", []float32{10, 10})
	persist(t, w, "near", []float32{1, 1})
	persist(t, w, "tie-b", []float32{2, 2})
	persist(t, w, "tie-a", []float32{2, 2})
	require.NoError(t, w.Close())

	vs := NewBoltVectorStore(s)
	rows, err := vs.Search(ctx, query.Request{
		Entity: "features_test",
		Column: "feature",
		Vector: []float32{0, 0},
		K:      3,
		Config: query.NewConfig().WithDistance(query.DistanceManhattan),
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i], _ = r.ID()
	}
	assert.Equal(t, []string{"near", "tie-a", "tie-b"}, ids)
	assert.InDelta(t, 2, rows[0].Distance, 1e-9)

	_, err = vs.Search(ctx, query.Request{Entity: "missing", Column: "feature", Vector: []float32{0}, K: 1, Config: query.NewConfig()})
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}

func TestVectorStoreSearchSkipsOtherArities(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	w := NewBoltWriter(s, 100)
	require.NoError(t, w.Open(ctx, "features_test"))
	persist(t, w, "short", []float32{0})
	persist(t, w, "long", []float32{0, 0, 0})
	persist(t, w, "ok", []float32{5, 5})
	require.NoError(t, w.Close())

	rows, err := NewBoltVectorStore(s).Search(ctx, query.Request{
		Entity: "features_test",
		Column: "feature",
		Vector: []float32{0, 0},
		K:      10,
		Config: query.NewConfig(),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	id, _ := rows[0].ID()
	assert.Equal(t, "ok", id)
	assert.False(t, math.IsInf(rows[0].Distance, 0))
}

func TestVectorStoreRowsAndAll(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.CreateEntity(ctx, domain.EntityDefinition{Name: "objects", Fields: []string{"id", "name", "width"}}))
	w := NewBoltWriter(s, 100)
	require.NoError(t, w.Open(ctx, "objects"))
	for _, o := range []struct {
		id, name string
		width    int
	}{{"v_a", "a", 640}, {"v_b", "b", 320}, {"v_c", "a", 640}} {
		tup, err := w.GenerateTuple(o.id, o.name, o.width)
		require.NoError(t, err)
		require.NoError(t, w.Persist(ctx, tup))
	}
	ok, err := w.Exists(ctx, "name", "b")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, w.Close())

	vs := NewBoltVectorStore(s)
	rows, err := vs.Rows(ctx, "objects", "id", "v_b")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	name, _ := rows[0].String("name")
	assert.Equal(t, "b", name)

	rows, err = vs.Rows(ctx, "objects", "width", "640")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	all, err := vs.All(ctx, "objects", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	all, err = vs.All(ctx, "objects", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMigrations(t *testing.T) {
	s := newStore(t)
	cfg := config.DefaultConfig()

	res, err := s.CheckMigration(cfg)
	require.NoError(t, err)
	assert.True(t, res.NeedsMigration)

	require.NoError(t, s.Migrate(cfg))
	res, err = s.CheckMigration(cfg)
	require.NoError(t, err)
	assert.False(t, res.NeedsMigration)
	assert.False(t, res.NeedsRebuild)

	cfg.Extraction.Modules = []string{"AverageColorRaster"}
	rebuild, reason, err := s.NeedsRebuild(cfg)
	require.NoError(t, err)
	assert.True(t, rebuild)
	assert.NotEmpty(t, reason)
}

func TestConfigHashIgnoresModuleOrder(t *testing.T) {
	a := config.DefaultConfig()
	b := config.DefaultConfig()
	b.Extraction.Modules = []string{a.Extraction.Modules[1], a.Extraction.Modules[0]}
	assert.Equal(t, ComputeConfigHash(a), ComputeConfigHash(b))
}

func TestClearKeepsEntities(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	w := NewBoltWriter(s, 1)
	require.NoError(t, w.Open(ctx, "features_test"))
	persist(t, w, "a", []float32{0, 0})
	require.NoError(t, w.Close())

	require.NoError(t, s.Clear())
	n, err := s.Count("features_test")
	require.NoError(t, err)
	assert.Zero(t, n)
	ok, err := s.ExistsEntity(ctx, "features_test")
	require.NoError(t, err)
	assert.True(t, ok)
}
