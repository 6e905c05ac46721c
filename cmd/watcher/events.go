package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"contractWatch/internal/config"
	"contractWatch/internal/control"
	"contractWatch/internal/recent"
)

// runEvents prints the persisted recent-event snapshot, oldest first.
func runEvents(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	log := recent.NewLog(cfg.RecentSize)
	if err := recent.NewSnapshotter(log, st.snapshots, 0, logger).Restore(ctx); err != nil {
		return fmt.Errorf("load recent events: %w", err)
	}

	count, _ := cmd.Flags().GetInt("count")
	service := control.NewService(newRegistry(st, logger), log, nil, nil, cfg.AbiDir, logger)
	for _, entry := range service.GetRecentEvents(count) {
		fmt.Fprintln(cmd.OutOrStdout(), entry)
	}
	return nil
}
