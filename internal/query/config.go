// Package query holds the engine-neutral query model: distance configuration,
// search requests, top-k collection and result merging.
package query

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"cineast/internal/domain"
)

// Distance names a distance metric.
type Distance string

const (
	DistanceEuclidean  Distance = "euclidean"
	DistanceManhattan  Distance = "manhattan"
	DistanceMinkowski  Distance = "minkowski"
	DistanceChiSquared Distance = "chisquared"
	DistanceCosine     Distance = "cosine"
)

// Engine hints. Engines are free to ignore them.
const (
	HintExact   = "exact"
	HintInexact = "inexact"
	HintLSH     = "lsh"
	HintVA      = "va"
)

// DefaultLimit is the result limit of a fresh Config.
const DefaultLimit = 250

// ParseDistance parses a metric name, case-insensitively.
func ParseDistance(s string) (Distance, error) {
	switch d := Distance(strings.ToLower(strings.TrimSpace(s))); d {
	case DistanceEuclidean, DistanceManhattan, DistanceMinkowski, DistanceChiSquared, DistanceCosine:
		return d, nil
	case "l2":
		return DistanceEuclidean, nil
	case "l1":
		return DistanceManhattan, nil
	}
	return "", &domain.ConfigurationError{Field: "distance", Reason: fmt.Sprintf("unknown metric %q", s)}
}

// Config describes how a similarity query is evaluated. It is a value type:
// every With* method returns an independent copy and never mutates the receiver.
type Config struct {
	distance Distance
	norm     float64
	weights  []float32
	limit    int
	hints    map[string]string
}

// NewConfig returns the default configuration: euclidean distance, no weights, DefaultLimit.
func NewConfig() Config {
	return Config{
		distance: DistanceEuclidean,
		norm:     2,
		limit:    DefaultLimit,
	}
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.weights = slices.Clone(c.weights)
	out.hints = maps.Clone(c.hints)
	return out
}

func (c Config) Distance() Distance {
	if c.distance == "" {
		return DistanceEuclidean
	}
	return c.distance
}

// Norm is the Minkowski order p.
func (c Config) Norm() float64 {
	switch c.Distance() {
	case DistanceEuclidean:
		return 2
	case DistanceManhattan:
		return 1
	}
	return c.norm
}

// Weights returns a copy of the weight vector, nil when unweighted.
func (c Config) Weights() []float32 { return slices.Clone(c.weights) }

func (c Config) HasWeights() bool { return c.weights != nil }

func (c Config) Limit() int { return c.limit }

func (c Config) Hint(key string) (string, bool) {
	v, ok := c.hints[key]
	return v, ok
}

// Hints returns a copy of the hint map.
func (c Config) Hints() map[string]string { return maps.Clone(c.hints) }

func (c Config) WithDistance(d Distance) Config {
	out := c.Clone()
	out.distance = d
	if d == DistanceMinkowski && out.norm == 0 {
		out.norm = 2
	}
	return out
}

// WithNorm selects a Minkowski distance of order p.
func (c Config) WithNorm(p float64) Config {
	out := c.Clone()
	out.distance = DistanceMinkowski
	out.norm = p
	return out
}

func (c Config) WithWeights(w []float32) Config {
	out := c.Clone()
	out.weights = slices.Clone(w)
	return out
}

func (c Config) WithoutWeights() Config {
	out := c.Clone()
	out.weights = nil
	return out
}

func (c Config) WithLimit(k int) Config {
	out := c.Clone()
	out.limit = k
	return out
}

func (c Config) WithHint(key, value string) Config {
	out := c.Clone()
	if out.hints == nil {
		out.hints = make(map[string]string, 1)
	}
	out.hints[key] = value
	return out
}

// Validate checks the configuration against a feature arity.
func (c Config) Validate(arity int) error {
	switch c.Distance() {
	case DistanceEuclidean, DistanceManhattan, DistanceChiSquared, DistanceCosine:
	case DistanceMinkowski:
		if c.norm <= 0 {
			return &domain.ConfigurationError{Field: "norm", Reason: fmt.Sprintf("minkowski order must be > 0, got %g", c.norm)}
		}
	default:
		return &domain.ConfigurationError{Field: "distance", Reason: fmt.Sprintf("unknown metric %q", c.distance)}
	}
	if c.limit < 0 {
		return &domain.ConfigurationError{Field: "limit", Reason: fmt.Sprintf("must be >= 0, got %d", c.limit)}
	}
	if c.weights != nil && len(c.weights) != arity {
		return &domain.ConfigurationError{
			Field:  "weights",
			Reason: fmt.Sprintf("weight vector has %d entries, feature arity is %d", len(c.weights), arity),
		}
	}
	return nil
}

// Fingerprint is a stable textual form of the configuration, used as a cache key.
func (c Config) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%g/%d", c.Distance(), c.Norm(), c.limit)
	if c.weights != nil {
		fmt.Fprintf(&b, "/w%v", c.weights)
	}
	keys := slices.Collect(maps.Keys(c.hints))
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "/%s=%s", k, c.hints[k])
	}
	return b.String()
}

// Request is an engine-neutral kNN request built by the core.
type Request struct {
	Entity string
	Column string
	Vector []float32
	K      int
	Config Config
}
