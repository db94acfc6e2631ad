package feature

import (
	"context"
	"image"
	"log/slog"

	colorful "github.com/lucasb-eyer/go-colorful"

	"cineast/internal/domain"
	"cineast/internal/port"
	"cineast/internal/query"
)

const (
	gridSize  = 8
	gridCells = gridSize * gridSize
)

// cellOf returns the grid cell of pixel (x, y), indexed 8*column + row.
func cellOf(x, y, w, h int) int {
	cx := x * gridSize / w
	cy := y * gridSize / h
	return gridSize*cx + cy
}

// cellMeans returns the mean 8-bit RGBA of every grid cell. Empty cells stay zero.
func cellMeans(img *image.RGBA) [gridCells][4]float64 {
	var sums [gridCells][4]float64
	var counts [gridCells]int
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			c := cellOf(x, y, w, h)
			p := row[x*4 : x*4+4]
			sums[c][0] += float64(p[0])
			sums[c][1] += float64(p[1])
			sums[c][2] += float64(p[2])
			sums[c][3] += float64(p[3])
			counts[c]++
		}
	}
	for c := range sums {
		if counts[c] == 0 {
			continue
		}
		for k := range sums[c] {
			sums[c][k] /= float64(counts[c])
		}
	}
	return sums
}

const gridArity = gridCells * 3

// AverageColorGrid8 stores the mean L*a*b* colour of each cell of an 8x8 grid.
type AverageColorGrid8 struct {
	base
}

var _ Module = (*AverageColorGrid8)(nil)

func NewAverageColorGrid8(logger *slog.Logger) *AverageColorGrid8 {
	m := &AverageColorGrid8{}
	m.configure("AverageColorGrid8", domain.EntityDefinition{
		Name:   "features_AverageColorGrid8",
		Fields: []string{"id", "feature"},
		Unique: true,
	}, "feature", logger)
	return m
}

func (m *AverageColorGrid8) Process(ctx context.Context, seg port.SegmentContainer) error {
	done, err := m.stored(ctx, seg.ID())
	if err != nil || done {
		return err
	}
	img, err := seg.AverageImage(ctx)
	if err != nil {
		return err
	}
	vec, _ := gridPartition(img)
	return m.persist(ctx, seg.ID(), vec)
}

// GetSimilar weights every cell by its mean opacity.
func (m *AverageColorGrid8) GetSimilar(ctx context.Context, seg port.SegmentContainer, cfg query.Config) ([]domain.RankedResult, error) {
	img, err := seg.AverageImage(ctx)
	if err != nil {
		return nil, err
	}
	vec, weights := gridPartition(img)
	return m.similar(ctx, vec, cfg.WithWeights(weights))
}

func (m *AverageColorGrid8) GetSimilarByID(ctx context.Context, id string, cfg query.Config) ([]domain.RankedResult, error) {
	return m.similarByID(ctx, id, cfg)
}

// gridPartition returns the 192-dimensional L*a*b* grid vector and per-component alpha weights.
func gridPartition(img *image.RGBA) ([]float32, []float32) {
	var (
		labs   [gridCells][3]float64
		alphas [gridCells]float64
		counts [gridCells]int
	)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4]
			l, a, bb := toLab(p[0], p[1], p[2])
			c := cellOf(x, y, w, h)
			labs[c][0] += l
			labs[c][1] += a
			labs[c][2] += bb
			alphas[c] += float64(p[3]) / 255
			counts[c]++
		}
	}

	vec := make([]float32, gridArity)
	weights := make([]float32, gridArity)
	for c := 0; c < gridCells; c++ {
		if counts[c] == 0 {
			continue
		}
		n := float64(counts[c])
		alpha := float32(alphas[c] / n)
		for k := 0; k < 3; k++ {
			vec[3*c+k] = float32(labs[c][k] / n)
			weights[3*c+k] = alpha
		}
	}
	return vec, weights
}

// toLab converts 8-bit sRGB to L*a*b* with L in [0, 100].
func toLab(r, g, b uint8) (float64, float64, float64) {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	l, a, bb := c.Lab()
	return l * 100, a * 100, bb * 100
}
