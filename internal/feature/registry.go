package feature

import (
	"fmt"
	"log/slog"
	"sort"

	"cineast/internal/domain"
)

// Constructor builds a fresh module instance.
type Constructor func(logger *slog.Logger) Module

// Registry maps stable module names to constructors.
type Registry struct {
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// DefaultRegistry knows every bundled module.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("AverageColorRaster", func(l *slog.Logger) Module { return NewAverageColorRaster(l) })
	r.Register("AverageColorGrid8", func(l *slog.Logger) Module { return NewAverageColorGrid8(l) })
	return r
}

func (r *Registry) Register(name string, ctor Constructor) {
	r.ctors[name] = ctor
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve builds one module per name, in order.
func (r *Registry) Resolve(names []string, logger *slog.Logger) ([]Module, error) {
	out := make([]Module, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		ctor, ok := r.ctors[n]
		if !ok {
			return nil, &domain.ConfigurationError{Field: "modules", Reason: fmt.Sprintf("unknown module %q (known: %v)", n, r.Names())}
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, ctor(logger))
	}
	return out, nil
}
