package feature

import (
	"context"
	"fmt"
	"log/slog"

	colorful "github.com/lucasb-eyer/go-colorful"

	"cineast/internal/domain"
	"cineast/internal/port"
	"cineast/internal/query"
)

// recallFactor widens the coarse histogram recall before raster re-ranking.
const recallFactor = 5

// AverageColorRaster stores an 8x8 raster of canonical colours and its 15-bin histogram.
// Queries recall candidates by histogram and re-rank them by raster registration.
type AverageColorRaster struct {
	base
}

var _ Module = (*AverageColorRaster)(nil)

func NewAverageColorRaster(logger *slog.Logger) *AverageColorRaster {
	m := &AverageColorRaster{}
	m.configure("AverageColorRaster", domain.EntityDefinition{
		Name:   "features_AverageColorRaster",
		Fields: []string{"id", "hist", "raster"},
		Unique: true,
	}, "hist", logger)
	return m
}

func (m *AverageColorRaster) Process(ctx context.Context, seg port.SegmentContainer) error {
	done, err := m.stored(ctx, seg.ID())
	if err != nil || done {
		return err
	}
	hist, raster, err := computeRaster(ctx, seg)
	if err != nil {
		return err
	}
	return m.persist(ctx, seg.ID(), hist, raster)
}

func (m *AverageColorRaster) GetSimilar(ctx context.Context, seg port.SegmentContainer, cfg query.Config) ([]domain.RankedResult, error) {
	hist, raster, err := computeRaster(ctx, seg)
	if err != nil {
		return nil, err
	}
	return m.rank(ctx, hist, raster, cfg)
}

func (m *AverageColorRaster) GetSimilarByID(ctx context.Context, id string, cfg query.Config) ([]domain.RankedResult, error) {
	s, err := m.boundSelector()
	if err != nil {
		return nil, err
	}
	rows, err := s.GetRows(ctx, "id", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.RankedResult{}, nil
	}
	hist, ok1 := rows[0].Vector("hist")
	raster, ok2 := rows[0].Vector("raster")
	if !ok1 || !ok2 {
		return nil, &domain.StorageError{Op: "rows", Entity: m.def.Name, Err: fmt.Errorf("malformed row for %s", id)}
	}
	return m.rank(ctx, hist, raster, cfg)
}

// rank reports 1 - registration score as the distance, so perfect matches sort first.
func (m *AverageColorRaster) rank(ctx context.Context, hist, raster []float32, cfg query.Config) ([]domain.RankedResult, error) {
	limit := cfg.Limit()
	if limit == 0 {
		return []domain.RankedResult{}, nil
	}
	s, err := m.boundSelector()
	if err != nil {
		return nil, err
	}
	rows, err := s.NearestNeighbourRows(ctx, limit*recallFactor, hist, "hist", cfg)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RankedResult, 0, len(rows))
	for _, r := range rows {
		id, _ := r.ID()
		candidate, _ := r.Row.Vector("raster")
		out = append(out, domain.RankedResult{ID: id, Distance: 1 - Register(raster, candidate)})
	}
	domain.SortResults(out)
	if len(out) > limit {
		out = out[:limit]
	}
	m.logger.Debug("raster re-rank", "candidates", len(rows), "returned", len(out))
	return out, nil
}

// computeRaster quantizes each grid cell of the segment's average image.
func computeRaster(ctx context.Context, seg port.SegmentContainer) (hist, raster []float32, err error) {
	img, err := seg.AverageImage(ctx)
	if err != nil {
		return nil, nil, err
	}
	means := cellMeans(img)
	hist = make([]float32, numColors)
	raster = make([]float32, gridCells)
	for i, m := range means {
		c := Quantize(colorful.Color{R: m[0] / 255, G: m[1] / 255, B: m[2] / 255})
		raster[i] = float32(c)
		hist[c]++
	}
	return hist, raster, nil
}

// Register aligns two rasters under every shift of up to four cells in each
// direction and returns the best summed cell score divided by 64.
// Rasters with fewer than 64 cells score 0.
func Register(query, db []float32) float64 {
	if len(query) < gridCells || len(db) < gridCells {
		return 0
	}
	best := 0.0
	for xoff := -4; xoff <= 4; xoff++ {
		for yoff := -4; yoff <= 4; yoff++ {
			score := 0.0
			for x := 0; x < gridSize; x++ {
				x1 := x + xoff
				if x1 < 0 || x1 >= gridSize {
					continue
				}
				for y := 0; y < gridSize; y++ {
					y1 := y + yoff
					if y1 < 0 || y1 >= gridSize {
						continue
					}
					score += Score(query[gridSize*x+y], db[gridSize*x1+y1])
				}
			}
			best = max(best, score)
		}
	}
	return best / gridCells
}
