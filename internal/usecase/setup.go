package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"cineast/internal/domain"
	"cineast/internal/port"
)

// BasicEntities are the catalog entities every database carries.
func BasicEntities() []domain.EntityDefinition {
	return []domain.EntityDefinition{
		{
			Name:   domain.EntityMultimediaObject,
			Fields: []string{"id", "type", "name", "path", "width", "height", "framecount", "duration"},
			Unique: true,
		},
		{
			Name:   domain.EntitySegment,
			Fields: []string{"id", "objectid", "number", "start", "end", "startabs", "endabs"},
			Unique: true,
		},
	}
}

// SetupSequence creates the basic entities followed by the entities of each layer.
// With Clean set, every existing entity is dropped first.
type SetupSequence struct {
	Clean  bool
	Layers []port.PersistentLayer
}

// Definitions lists what Run creates, in order. Repeated names keep the first definition.
func (s SetupSequence) Definitions() []domain.EntityDefinition {
	defs := BasicEntities()
	for _, l := range s.Layers {
		defs = append(defs, l.Entities()...)
	}
	seen := make(map[string]bool, len(defs))
	out := defs[:0]
	for _, d := range defs {
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		out = append(out, d)
	}
	return out
}

func (s SetupSequence) Run(ctx context.Context, creator port.EntityCreator, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "setup")

	if s.Clean {
		names, err := creator.Entities(ctx)
		if err != nil {
			return fmt.Errorf("list entities: %w", err)
		}
		for _, name := range names {
			if err := creator.DropEntity(ctx, name); err != nil {
				return fmt.Errorf("drop %s: %w", name, err)
			}
			logger.Info("entity dropped", "entity", name)
		}
	}

	for _, def := range s.Definitions() {
		exists, err := creator.ExistsEntity(ctx, def.Name)
		if err != nil {
			return err
		}
		if exists {
			logger.Debug("entity exists", "entity", def.Name)
			continue
		}
		if err := creator.CreateEntity(ctx, def); err != nil {
			return fmt.Errorf("create %s: %w", def.Name, err)
		}
		logger.Info("entity created", "entity", def.Name, "fields", def.Fields)
	}
	return nil
}
