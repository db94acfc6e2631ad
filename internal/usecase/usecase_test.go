package usecase

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cineast/internal/adapter/memstore"
	"cineast/internal/domain"
	"cineast/internal/feature"
	"cineast/internal/port"
	"cineast/internal/query"
	"cineast/internal/search"
	"cineast/internal/segment"
)

type fakeSeg struct {
	id       string
	released atomic.Int32
}

func (s *fakeSeg) ID() string              { return s.id }
func (s *fakeSeg) Segment() domain.Segment { return domain.Segment{ID: s.id} }
func (s *fakeSeg) Release()                { s.released.Add(1) }
func (s *fakeSeg) AverageImage(context.Context) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

type fakeExtractor struct {
	name    string
	fail    string
	panicOn string
	initErr error

	mu       sync.Mutex
	seen     []string
	inits    int
	finished int

	active, peak atomic.Int32
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Init(port.Writer) error {
	f.inits++
	return f.initErr
}

func (f *fakeExtractor) Process(_ context.Context, seg port.SegmentContainer) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.seen = append(f.seen, seg.ID())
	f.mu.Unlock()
	switch seg.ID() {
	case f.fail:
		return errors.New("bad segment")
	case f.panicOn:
		panic("boom")
	}
	return nil
}

func (f *fakeExtractor) Finish() error {
	f.finished++
	return nil
}

func segs(ids ...string) ([]port.SegmentContainer, []*fakeSeg) {
	out := make([]port.SegmentContainer, len(ids))
	raw := make([]*fakeSeg, len(ids))
	for i, id := range ids {
		raw[i] = &fakeSeg{id: id}
		out[i] = raw[i]
	}
	return out, raw
}

func TestDispatcherOffersEverySegmentOnce(t *testing.T) {
	a := &fakeExtractor{name: "a", fail: "s2"}
	b := &fakeExtractor{name: "b", panicOn: "s3"}
	containers, raw := segs("s1", "s2", "s3", "s4", "s5", "s6")

	var progressed []int
	d := NewDispatcher([]port.Extractor{a, b}, FactoryInitializer(memstore.NewMemoryStore()), DispatcherOptions{Workers: 3}, nil)
	res, err := d.Run(context.Background(), containers, func(done, total int) {
		assert.Equal(t, 6, total)
		progressed = append(progressed, done)
	})
	require.NoError(t, err)

	for _, f := range []*fakeExtractor{a, b} {
		sort.Strings(f.seen)
		assert.Equal(t, []string{"s1", "s2", "s3", "s4", "s5", "s6"}, f.seen)
		assert.Equal(t, int32(1), f.peak.Load(), "module %s saw concurrent calls", f.name)
		assert.Equal(t, 1, f.inits)
		assert.Equal(t, 1, f.finished)
	}
	for _, s := range raw {
		assert.Equal(t, int32(1), s.released.Load())
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progressed)
	assert.Equal(t, 6, res.Segments)

	require.Len(t, res.Failures, 2)
	for _, f := range res.Failures {
		var ee *domain.ExtractionError
		require.ErrorAs(t, f, &ee)
		assert.ErrorIs(t, f, domain.ErrExtraction)
		switch ee.Module {
		case "a":
			assert.Equal(t, "s2", ee.SegmentID)
		case "b":
			assert.Equal(t, "s3", ee.SegmentID)
			assert.Contains(t, ee.Error(), "panic: boom")
		default:
			t.Fatalf("unexpected module %s", ee.Module)
		}
	}
}

func TestDispatcherCancelledStillFinishes(t *testing.T) {
	a := &fakeExtractor{name: "a"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	containers, _ := segs("s1", "s2")
	d := NewDispatcher([]port.Extractor{a}, FactoryInitializer(memstore.NewMemoryStore()), DispatcherOptions{}, nil)
	res, err := d.Run(ctx, containers, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, a.seen)
	assert.Equal(t, 1, a.finished)
}

func TestDispatcherInitFailure(t *testing.T) {
	a := &fakeExtractor{name: "a"}
	b := &fakeExtractor{name: "b"}
	calls := 0
	init := func(m port.Extractor) (port.Writer, error) {
		calls++
		if m.Name() == "b" {
			return nil, errors.New("no writer")
		}
		return memstore.NewMemoryStore().NewWriter(), nil
	}
	d := NewDispatcher([]port.Extractor{a, b}, init, DispatcherOptions{Workers: 1}, nil)
	_, err := d.Run(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "init b")
	assert.Equal(t, 1, a.finished, "already bound modules are finished")
	assert.Equal(t, 0, b.finished)
}

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

var swatches = map[string]color.RGBA{
	"red":   {R: 255, A: 255},
	"white": {R: 255, G: 255, B: 255, A: 255},
	"navy":  {B: 128, A: 255},
}

func extracted(t *testing.T) (*memstore.MemoryStore, []feature.Module) {
	t.Helper()
	ctx := context.Background()
	store := memstore.NewMemoryStore()
	mods, err := feature.DefaultRegistry().Resolve([]string{"AverageColorRaster", "AverageColorGrid8"}, nil)
	require.NoError(t, err)

	layers := make([]port.PersistentLayer, len(mods))
	extractors := make([]port.Extractor, len(mods))
	for i, m := range mods {
		layers[i], extractors[i] = m, m
	}
	require.NoError(t, SetupSequence{Layers: layers}.Run(ctx, store, nil))

	var containers []port.SegmentContainer
	for _, id := range []string{"navy", "red", "white"} {
		c, err := segment.FromImage(id, solid(swatches[id]))
		require.NoError(t, err)
		containers = append(containers, c)
	}

	d := NewDispatcher(extractors, FactoryInitializer(store), DispatcherOptions{Workers: 2}, nil)
	res, err := d.Run(ctx, containers, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 6, res.Written)

	res, err = d.Run(ctx, containers, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Written, "a second run writes nothing")
	return store, mods
}

func TestRetrieveByCategory(t *testing.T) {
	ctx := context.Background()
	store, mods := extracted(t)

	retrievers := make([]port.Retriever, len(mods))
	for i, m := range mods {
		require.NoError(t, m.InitSelector(search.NewSelector(store, nil)))
		retrievers[i] = m
	}
	u, err := NewRetrieveUseCase(retrievers, map[string]Category{
		"globalcolor": {
			Modules: map[string]float64{"AverageColorRaster": 1, "AverageColorGrid8": 0.5},
			Merge:   query.MergeWeightedSum,
		},
		"raster": {
			Modules: map[string]float64{"AverageColorRaster": 1},
			Merge:   query.MergeUnionMin,
		},
	}, query.NewConfig(), nil)
	require.NoError(t, err)
	u.newID = func() string { return "q1" }
	assert.Equal(t, []string{"globalcolor", "raster"}, u.Categories())

	batch, err := u.Retrieve(ctx, Query{SegmentID: "red"})
	require.NoError(t, err)
	assert.Equal(t, "q1", batch.QueryID)
	require.Len(t, batch.Results, 2)
	for _, r := range batch.Results {
		assert.Equal(t, "q1", r.QueryID)
		require.Len(t, r.Content, 3)
		assert.Equal(t, "red", r.Content[0].ID)
		assert.InDelta(t, 0, r.Content[0].Distance, 1e-4)
	}

	raster := batch.Results[1].Content
	assert.Equal(t, 1.0, raster[1].Distance)

	example, err := segment.FromImage("query", solid(swatches["white"]))
	require.NoError(t, err)
	batch, err = u.Retrieve(ctx, Query{Example: example, Limit: 1}, "raster")
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, []domain.RankedResult{{ID: "white", Distance: 0}}, batch.Results[0].Content)

	single, err := u.Module(ctx, Query{SegmentID: "navy", Limit: 2}, "AverageColorGrid8")
	require.NoError(t, err)
	require.Len(t, single, 2)
	assert.Equal(t, "navy", single[0].ID)

	_, err = u.Retrieve(ctx, Query{SegmentID: "red"}, "motion")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = u.Module(ctx, Query{SegmentID: "red"}, "SURF")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = u.Retrieve(ctx, Query{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRetrieveRejectsUnknownModules(t *testing.T) {
	_, err := NewRetrieveUseCase(nil, map[string]Category{
		"c": {Modules: map[string]float64{"AverageColorRaster": 1}, Merge: query.MergeAverage},
	}, query.NewConfig(), nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

type closeRecorder struct {
	port.Writer
	closed int
}

func (w *closeRecorder) Close() error {
	w.closed++
	return w.Writer.Close()
}

func TestDispatcherClosesWriterWhenInitFails(t *testing.T) {
	a := &fakeExtractor{name: "a", initErr: errors.New("bad column")}
	w := &closeRecorder{Writer: memstore.NewMemoryStore().NewWriter()}
	init := func(port.Extractor) (port.Writer, error) { return w, nil }

	d := NewDispatcher([]port.Extractor{a}, init, DispatcherOptions{Workers: 1}, nil)
	_, err := d.Run(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "init a")
	assert.Equal(t, 1, w.closed)
	assert.Equal(t, 0, a.finished)
}

type source struct {
	obj  domain.MultimediaObject
	segs []domain.Segment
}

func (s source) Object() domain.MultimediaObject     { return s.obj }
func (s source) Segments() ([]domain.Segment, error) { return s.segs, nil }

func TestCatalogWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore()
	require.NoError(t, SetupSequence{}.Run(ctx, store, nil))

	src := source{
		obj: domain.MultimediaObject{Name: "my clip", Type: domain.MediaTypeVideo},
		segs: []domain.Segment{
			{Frames: []string{"a.png", "b.png"}, Start: 0, End: 1, EndAbs: time.Second},
			{Frames: []string{"c.png"}, Start: 2, End: 2},
		},
	}
	c := NewCatalog(store)
	res, err := c.Write(ctx, src)
	require.NoError(t, err)
	assert.True(t, res.ObjectWritten)
	assert.Equal(t, 2, res.SegmentsWritten)
	assert.Equal(t, "v_my-clip", res.Object.ID)
	assert.Equal(t, 3, res.Object.FrameCount)
	assert.Equal(t, "v_my-clip_2", res.Segments[1].ID)

	rows, err := store.Rows(ctx, domain.EntitySegment, "id", "v_my-clip_1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	obj, _ := rows[0].String("objectid")
	assert.Equal(t, "v_my-clip", obj)
	end, _ := rows[0].Int("end")
	assert.Equal(t, int64(1), end)

	res, err = c.Write(ctx, src)
	require.NoError(t, err)
	assert.False(t, res.ObjectWritten)
	assert.Equal(t, 0, res.SegmentsWritten)

	_, err = c.Write(ctx, source{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestCatalogKeepsExplicitSegmentNumbers(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore()
	require.NoError(t, SetupSequence{}.Run(ctx, store, nil))

	src := source{
		obj: domain.MultimediaObject{Name: "clip", Type: domain.MediaTypeVideo},
		segs: []domain.Segment{
			{ID: "intro", Frames: []string{"a.png"}},
			{Frames: []string{"b.png"}},
			{Number: 7, Frames: []string{"c.png"}},
		},
	}
	res, err := NewCatalog(store).Write(ctx, src)
	require.NoError(t, err)
	require.Len(t, res.Segments, 3)
	assert.Equal(t, "intro", res.Segments[0].ID)
	assert.Equal(t, 0, res.Segments[0].Number)
	assert.Equal(t, "v_clip_2", res.Segments[1].ID)
	assert.Equal(t, 2, res.Segments[1].Number)
	assert.Equal(t, "v_clip_7", res.Segments[2].ID)
	assert.Equal(t, 7, res.Segments[2].Number)
}

type layer []domain.EntityDefinition

func (l layer) Entities() []domain.EntityDefinition { return l }

func TestSetupSequence(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore()
	extra := domain.EntityDefinition{Name: "features_x", Fields: []string{"id", "feature"}}
	seq := SetupSequence{Layers: []port.PersistentLayer{layer{extra}, layer{extra}}}

	defs := seq.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, domain.EntityMultimediaObject, defs[0].Name)
	assert.Equal(t, "features_x", defs[2].Name)

	require.NoError(t, seq.Run(ctx, store, nil))
	require.NoError(t, seq.Run(ctx, store, nil))
	require.NoError(t, store.CreateEntity(ctx, domain.EntityDefinition{Name: "stale", Fields: []string{"id"}}))

	w := store.NewWriter()
	require.NoError(t, w.Open(ctx, "features_x"))
	tup, err := w.GenerateTuple("a", []float32{1})
	require.NoError(t, err)
	require.NoError(t, w.Persist(ctx, tup))

	seq.Clean = true
	require.NoError(t, seq.Run(ctx, store, nil))
	names, err := store.Entities(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{domain.EntityMultimediaObject, domain.EntitySegment, "features_x"}, names)
	rows, err := store.All(ctx, "features_x", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
