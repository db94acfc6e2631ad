package cli

import (
	"context"
	"fmt"
	"log/slog"

	"cineast/config"
	"cineast/internal/adapter/memstore"
	"cineast/internal/adapter/store"
	"cineast/internal/port"
)

// backend bundles the storage ports of the configured engine.
type backend struct {
	engine  port.VectorEngine
	creator port.EntityCreator
	writers port.WriterFactory
	bolt    *store.BoltStore
	close   func() error
}

func openBackend(cfg *config.Config, dir string, logger *slog.Logger) (*backend, error) {
	if cfg.Database.Engine == "memory" {
		logger.Warn("memory engine selected, nothing is kept after this command")
		ms := memstore.NewMemoryStore()
		return &backend{engine: ms, creator: ms, writers: ms, close: ms.Close}, nil
	}

	if err := config.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create .cineast directory: %w", err)
	}
	st, err := store.NewBoltStore(cfg.DBPath(dir), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	migration, err := st.CheckMigration(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to check migration: %w", err)
	}
	switch {
	case migration.NeedsRebuild:
		logger.Warn("rebuild required, clearing stored features", "reason", migration.Reason)
		if err := st.Clear(); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to clear store: %w", err)
		}
		fallthrough
	case migration.NeedsMigration:
		logger.Info("updating schema", "reason", migration.Reason, "from", migration.OldVersion, "to", migration.NewVersion)
		if err := st.Migrate(cfg); err != nil {
			st.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	return &backend{
		engine:  store.NewBoltVectorStore(st),
		creator: st,
		writers: store.WriterFactory{Store: st, BatchSize: cfg.Extraction.WriterBatchSize},
		bolt:    st,
		close:   st.Close,
	}, nil
}

// count returns the number of rows of entity, or -1 when the engine cannot tell cheaply.
func (b *backend) count(ctx context.Context, entity string) int {
	if b.bolt != nil {
		n, err := b.bolt.Count(entity)
		if err == nil {
			return n
		}
		return -1
	}
	rows, err := b.engine.All(ctx, entity, 0)
	if err != nil {
		return -1
	}
	return len(rows)
}
