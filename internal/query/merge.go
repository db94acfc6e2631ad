package query

import (
	"fmt"
	"strings"

	"cineast/internal/domain"
)

// MergeOperation combines the distances one id received from two lists.
type MergeOperation string

const (
	MergeUnionMin    MergeOperation = "UNION_MIN"
	MergeAverage     MergeOperation = "AVERAGE"
	MergeWeightedSum MergeOperation = "WEIGHTED_SUM"
	MergeUnionMax    MergeOperation = "UNION_MAX"
)

// ParseMergeOperation accepts the canonical names in any case, with '-' or '_'.
func ParseMergeOperation(s string) (MergeOperation, error) {
	op := MergeOperation(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	switch op {
	case MergeUnionMin, MergeAverage, MergeWeightedSum, MergeUnionMax:
		return op, nil
	}
	return "", &domain.ConfigurationError{Field: "merge", Reason: fmt.Sprintf("unknown merge operation %q", s)}
}

// MergeOptions tunes a merge.
type MergeOptions struct {
	// Weights holds one weight per input list for WEIGHTED_SUM. Nil means all 1.
	Weights []float64
	// Substitute, when set, stands in for the distance of an id missing
	// from one operand, and the pair is combined as usual.
	Substitute *float64
}

// Merge folds lists pairwise from left to right into at most k results,
// ascending by distance with ties broken by id.
func Merge(lists [][]domain.RankedResult, k int, op MergeOperation, opts MergeOptions) ([]domain.RankedResult, error) {
	combine, err := combiner(op)
	if err != nil {
		return nil, err
	}
	if opts.Weights != nil && len(opts.Weights) != len(lists) {
		return nil, &domain.MergeInputError{
			Vectors: len(lists),
			Configs: len(opts.Weights),
			Reason:  fmt.Sprintf("%d merge weights for %d result lists", len(opts.Weights), len(lists)),
		}
	}
	if k < 0 {
		return nil, &domain.ConfigurationError{Field: "k", Reason: fmt.Sprintf("must be >= 0, got %d", k)}
	}
	if len(lists) == 0 || k == 0 {
		return []domain.RankedResult{}, nil
	}

	weight := func(i int) float64 {
		if opts.Weights == nil {
			return 1
		}
		return opts.Weights[i]
	}

	// The first list's weight applies on the first fold only; one-sided ids
	// keep their original distance unless a substitute is set.
	acc, order := index(lists[0])
	wAcc := weight(0)
	for i := 1; i < len(lists); i++ {
		next, nextOrder := index(lists[i])
		wi := weight(i)
		for _, id := range order {
			a := acc[id]
			b, ok := next[id]
			switch {
			case ok:
				acc[id] = combine(a, b, wAcc, wi)
			case opts.Substitute != nil:
				acc[id] = combine(a, *opts.Substitute, wAcc, wi)
			}
		}
		for _, id := range nextOrder {
			if _, seen := acc[id]; seen {
				continue
			}
			b := next[id]
			if opts.Substitute != nil {
				acc[id] = combine(*opts.Substitute, b, wAcc, wi)
			} else {
				acc[id] = b
			}
			order = append(order, id)
		}
		wAcc = 1
	}

	out := make([]domain.RankedResult, 0, len(order))
	for _, id := range order {
		out = append(out, domain.RankedResult{ID: id, Distance: acc[id]})
	}
	domain.SortResults(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

type combineFunc func(a, b, wa, wb float64) float64

func combiner(op MergeOperation) (combineFunc, error) {
	switch op {
	case MergeUnionMin:
		return func(a, b, _, _ float64) float64 { return min(a, b) }, nil
	case MergeUnionMax:
		return func(a, b, _, _ float64) float64 { return max(a, b) }, nil
	case MergeAverage:
		return func(a, b, _, _ float64) float64 { return (a + b) / 2 }, nil
	case MergeWeightedSum:
		return func(a, b, wa, wb float64) float64 { return wa*a + wb*b }, nil
	}
	return nil, &domain.ConfigurationError{Field: "merge", Reason: fmt.Sprintf("unknown merge operation %q", op)}
}

// index keeps the best distance per id, preserving first-seen order.
func index(list []domain.RankedResult) (map[string]float64, []string) {
	m := make(map[string]float64, len(list))
	order := make([]string, 0, len(list))
	for _, r := range list {
		if d, ok := m[r.ID]; ok {
			if r.Distance < d {
				m[r.ID] = r.Distance
			}
			continue
		}
		m[r.ID] = r.Distance
		order = append(order, r.ID)
	}
	return m, order
}
