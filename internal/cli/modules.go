package cli

import (
	"fmt"
	"log/slog"

	"cineast/config"
	"cineast/internal/feature"
	"cineast/internal/port"
	"cineast/internal/query"
	"cineast/internal/usecase"
)

func enabledModules(cfg *config.Config, logger *slog.Logger) ([]feature.Module, error) {
	return feature.DefaultRegistry().Resolve(cfg.Extraction.Modules, logger)
}

func layers(mods []feature.Module) []port.PersistentLayer {
	out := make([]port.PersistentLayer, len(mods))
	for i, m := range mods {
		out[i] = m
	}
	return out
}

// categories converts the retrieve section into use case categories.
func categories(cfg *config.Config) (map[string]usecase.Category, error) {
	out := make(map[string]usecase.Category, len(cfg.Retrieve.Categories))
	for name, c := range cfg.Retrieve.Categories {
		op, err := query.ParseMergeOperation(c.Merge)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", name, err)
		}
		out[name] = usecase.Category{Modules: c.Modules, Merge: op}
	}
	return out, nil
}
