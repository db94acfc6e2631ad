package query

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cineast/internal/domain"
)

func TestConfigIsCopyOnWrite(t *testing.T) {
	base := NewConfig()
	weighted := base.WithWeights([]float32{1, 2, 3})
	limited := weighted.WithLimit(10).WithHint(HintExact, "true")

	assert.False(t, base.HasWeights())
	assert.Equal(t, DefaultLimit, base.Limit())
	assert.Equal(t, DefaultLimit, weighted.Limit())
	assert.Equal(t, 10, limited.Limit())
	_, ok := weighted.Hint(HintExact)
	assert.False(t, ok)

	w := limited.Weights()
	w[0] = 99
	assert.Equal(t, []float32{1, 2, 3}, limited.Weights())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		arity int
		ok    bool
	}{
		{"default", NewConfig(), 3, true},
		{"matching weights", NewConfig().WithWeights([]float32{1, 1, 1}), 3, true},
		{"short weights", NewConfig().WithWeights([]float32{1, 1}), 3, false},
		{"long weights", NewConfig().WithWeights([]float32{1, 1, 1, 1}), 3, false},
		{"zero norm", NewConfig().WithNorm(0), 3, false},
		{"negative norm", NewConfig().WithNorm(-1), 3, false},
		{"fractional norm", NewConfig().WithNorm(0.5), 3, true},
		{"negative limit", NewConfig().WithLimit(-1), 3, false},
		{"unknown metric", NewConfig().WithDistance("hamming"), 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.arity)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfiguration))
		})
	}
}

func TestParseDistance(t *testing.T) {
	d, err := ParseDistance(" Cosine ")
	require.NoError(t, err)
	assert.Equal(t, DistanceCosine, d)

	d, err = ParseDistance("l1")
	require.NoError(t, err)
	assert.Equal(t, DistanceManhattan, d)

	_, err = ParseDistance("jaccard")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDistanceFunc(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}

	tests := []struct {
		name string
		cfg  Config
		want float64
	}{
		{"euclidean", NewConfig(), 5},
		{"manhattan", NewConfig().WithDistance(DistanceManhattan), 7},
		{"minkowski p=2", NewConfig().WithNorm(2), 5},
		{"weighted euclidean", NewConfig().WithWeights([]float32{0, 1}), 4},
		{"chisquared", NewConfig().WithDistance(DistanceChiSquared), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := tt.cfg.DistanceFunc(2)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, fn(a, b), 1e-9)
		})
	}

	t.Run("cosine", func(t *testing.T) {
		fn, err := NewConfig().WithDistance(DistanceCosine).DistanceFunc(2)
		require.NoError(t, err)
		assert.InDelta(t, 0, fn([]float32{1, 1}, []float32{2, 2}), 1e-9)
		assert.InDelta(t, 1, fn([]float32{1, 0}, []float32{0, 1}), 1e-9)
		assert.InDelta(t, 1, fn([]float32{0, 0}, []float32{0, 1}), 1e-9)
	})

	t.Run("arity mismatch is infinitely far", func(t *testing.T) {
		fn, err := NewConfig().DistanceFunc(2)
		require.NoError(t, err)
		assert.True(t, math.IsInf(fn(a, []float32{1, 2, 3}), 1))
	})

	t.Run("weight mismatch is rejected", func(t *testing.T) {
		_, err := NewConfig().WithWeights([]float32{1}).DistanceFunc(2)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func TestFingerprintIsStable(t *testing.T) {
	a := NewConfig().WithHint("b", "2").WithHint("a", "1")
	b := NewConfig().WithHint("a", "1").WithHint("b", "2")
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), a.WithLimit(3).Fingerprint())
}

func row(id string) domain.Row {
	return domain.Row{"id": domain.StringValue(id)}
}

func TestTopKKeepsClosest(t *testing.T) {
	tk := NewTopK(3)
	for i, d := range []float64{5, 1, 4, 2, 3, 0.5} {
		tk.Offer(row(string(rune('a'+i))), d)
	}
	rows := tk.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, []float64{0.5, 1, 2}, []float64{rows[0].Distance, rows[1].Distance, rows[2].Distance})
	id, _ := rows[0].ID()
	assert.Equal(t, "f", id)
}

func TestTopKTieBreaksByID(t *testing.T) {
	tk := NewTopK(2)
	tk.Offer(row("c"), 1)
	tk.Offer(row("a"), 1)
	tk.Offer(row("b"), 1)
	rows := tk.Rows()
	require.Len(t, rows, 2)
	first, _ := rows[0].ID()
	second, _ := rows[1].ID()
	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
}

func TestTopKZero(t *testing.T) {
	tk := NewTopK(0)
	tk.Offer(row("a"), 1)
	assert.Empty(t, tk.Rows())
}

func results(pairs ...any) []domain.RankedResult {
	out := make([]domain.RankedResult, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, domain.RankedResult{ID: pairs[i].(string), Distance: pairs[i+1].(float64)})
	}
	return out
}

func TestMerge(t *testing.T) {
	a := results("x", 1.0, "y", 3.0)
	b := results("x", 2.0, "z", 0.5)

	tests := []struct {
		op   MergeOperation
		want []domain.RankedResult
	}{
		{MergeUnionMin, results("z", 0.5, "x", 1.0, "y", 3.0)},
		{MergeUnionMax, results("z", 0.5, "x", 2.0, "y", 3.0)},
		{MergeAverage, results("z", 0.5, "x", 1.5, "y", 3.0)},
		{MergeWeightedSum, results("z", 0.5, "x", 3.0, "y", 3.0)},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			got, err := Merge([][]domain.RankedResult{a, b}, 10, tt.op, MergeOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeWeightedSumWeights(t *testing.T) {
	a := results("x", 1.0)
	b := results("x", 2.0)
	c := results("x", 4.0)
	got, err := Merge([][]domain.RankedResult{a, b, c}, 5, MergeWeightedSum, MergeOptions{Weights: []float64{2, 0.5, 0.25}})
	require.NoError(t, err)
	assert.Equal(t, results("x", 4.0), got)
}

func TestMergeWeightedSumKeepsOneSidedIDs(t *testing.T) {
	got, err := Merge([][]domain.RankedResult{results("x", 1.0, "y", 3.0), results("x", 2.0)}, 10, MergeWeightedSum, MergeOptions{Weights: []float64{2, 1}})
	require.NoError(t, err)
	assert.Equal(t, results("y", 3.0, "x", 4.0), got)

	got, err = Merge([][]domain.RankedResult{results("x", 1.0), results("x", 2.0, "z", 3.0)}, 10, MergeWeightedSum, MergeOptions{Weights: []float64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, results("z", 3.0, "x", 5.0), got)

	got, err = Merge([][]domain.RankedResult{results("y", 3.0)}, 10, MergeWeightedSum, MergeOptions{Weights: []float64{2}})
	require.NoError(t, err)
	assert.Equal(t, results("y", 3.0), got)
}

func TestMergeSubstitute(t *testing.T) {
	sub := 10.0
	got, err := Merge([][]domain.RankedResult{results("x", 1.0), results("y", 2.0)}, 5, MergeAverage, MergeOptions{Substitute: &sub})
	require.NoError(t, err)
	assert.Equal(t, results("x", 5.5, "y", 6.0), got)
}

func TestMergeEdgeCases(t *testing.T) {
	got, err := Merge(nil, 5, MergeUnionMin, MergeOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Merge([][]domain.RankedResult{results("b", 1.0, "a", 1.0, "c", 0.1)}, 2, MergeWeightedSum, MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, results("c", 0.1, "a", 1.0), got)

	got, err = Merge([][]domain.RankedResult{results("a", 1.0)}, 0, MergeUnionMin, MergeOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Merge([][]domain.RankedResult{results("a", 1.0)}, 1, MergeWeightedSum, MergeOptions{Weights: []float64{1, 2}})
	assert.ErrorIs(t, err, domain.ErrMergeInput)

	_, err = Merge([][]domain.RankedResult{results("a", 1.0)}, 1, "MEDIAN", MergeOptions{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestParseMergeOperation(t *testing.T) {
	op, err := ParseMergeOperation("union-min")
	require.NoError(t, err)
	assert.Equal(t, MergeUnionMin, op)
	_, err = ParseMergeOperation("nope")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
