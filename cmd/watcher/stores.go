package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"contractWatch/internal/action"
	"contractWatch/internal/config"
	"contractWatch/internal/registry"
	"contractWatch/internal/storage"
	"contractWatch/internal/storage/postgres"
)

type stores struct {
	targets   storage.TargetStore
	snapshots storage.SnapshotStore
	close     func()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.Store {
	case "postgres":
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		logger.Info("using postgres store")
		return &stores{targets: pg, snapshots: pg, close: pg.Close}, nil
	default:
		logger.Info("using file store",
			zap.String("targets_file", cfg.TargetsFile),
			zap.String("events_file", cfg.EventsFile),
		)
		return &stores{
			targets:   storage.NewFileTargetStore(cfg.TargetsFile),
			snapshots: storage.NewFileSnapshotStore(cfg.EventsFile),
			close:     func() {},
		}, nil
	}
}

func builtinActions() []string {
	names := make([]string, 0, len(action.Builtin))
	for _, id := range action.Builtin {
		names = append(names, string(id))
	}
	return names
}

func newRegistry(st *stores, logger *zap.Logger) *registry.Registry {
	return registry.New(st.targets, builtinActions(), logger)
}
