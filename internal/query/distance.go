package query

import (
	"fmt"
	"math"

	"cineast/internal/domain"
)

// Func computes the distance between a query vector and a stored vector.
type Func func(query, stored []float32) float64

// DistanceFunc validates c against arity and returns the weighted distance function.
// Stored vectors of a different arity are infinitely far away.
func (c Config) DistanceFunc(arity int) (Func, error) {
	if err := c.Validate(arity); err != nil {
		return nil, err
	}
	w := c.Weights()
	if w == nil {
		w = make([]float32, arity)
		for i := range w {
			w[i] = 1
		}
	}

	var fn Func
	switch c.Distance() {
	case DistanceEuclidean:
		fn = func(a, b []float32) float64 { return minkowski(a, b, w, 2) }
	case DistanceManhattan:
		fn = func(a, b []float32) float64 { return minkowski(a, b, w, 1) }
	case DistanceMinkowski:
		p := c.Norm()
		fn = func(a, b []float32) float64 { return minkowski(a, b, w, p) }
	case DistanceChiSquared:
		fn = func(a, b []float32) float64 { return chiSquared(a, b, w) }
	case DistanceCosine:
		fn = func(a, b []float32) float64 { return cosine(a, b, w) }
	default:
		return nil, &domain.ConfigurationError{Field: "distance", Reason: fmt.Sprintf("unknown metric %q", c.distance)}
	}

	return func(a, b []float32) float64 {
		if len(a) != arity || len(b) != arity {
			return math.Inf(1)
		}
		return fn(a, b)
	}, nil
}

func minkowski(a, b, w []float32, p float64) float64 {
	var sum float64
	switch p {
	case 1:
		for i := range a {
			sum += float64(w[i]) * math.Abs(float64(a[i])-float64(b[i]))
		}
		return sum
	case 2:
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += float64(w[i]) * d * d
		}
		return math.Sqrt(sum)
	}
	for i := range a {
		sum += float64(w[i]) * math.Pow(math.Abs(float64(a[i])-float64(b[i])), p)
	}
	return math.Pow(sum, 1/p)
}

func chiSquared(a, b, w []float32) float64 {
	var sum float64
	for i := range a {
		s := float64(a[i]) + float64(b[i])
		if s == 0 {
			continue
		}
		d := float64(a[i]) - float64(b[i])
		sum += float64(w[i]) * d * d / math.Abs(s)
	}
	return sum
}

func cosine(a, b, w []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y, wi := float64(a[i]), float64(b[i]), float64(w[i])
		dot += wi * x * y
		na += wi * x * x
		nb += wi * y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
