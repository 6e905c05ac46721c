package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"contractWatch/internal/config"
	"contractWatch/internal/contractabi"
	"contractWatch/internal/control"
)

func newTargetCmd() *cobra.Command {
	targetCmd := &cobra.Command{
		Use:   "target",
		Short: "Manage tracking targets",
	}

	addCmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Add or update a tracking target",
		Args:  cobra.ExactArgs(1),
		RunE:  runTargetAdd,
	}
	addCmd.Flags().String("abi", "", "interface definition path, defaults to abi_<address>.json in abi-dir")
	addCmd.Flags().StringSlice("events", []string{"Transfer", "Approval"}, "events to track")
	addCmd.Flags().StringSlice("actions", []string{"log_event", "check_value"}, "actions to run for each event")
	addCmd.Flags().String("client-id", "", "owning client identifier")
	addCmd.Flags().String("extra", "", "extra info (comma-separated key=value)")
	addCmd.Flags().String("explorer-url", "https://api.basescan.org/api", "block explorer API for missing definitions")
	addCmd.Flags().String("explorer-api-key", "", "block explorer API key")

	removeCmd := &cobra.Command{
		Use:   "remove <address>",
		Short: "Remove a tracking target",
		Args:  cobra.ExactArgs(1),
		RunE:  runTargetRemove,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tracking targets",
		Args:  cobra.NoArgs,
		RunE:  runTargetList,
	}
	listCmd.Flags().String("client-id", "", "only list targets of this client")

	getCmd := &cobra.Command{
		Use:   "get <address>",
		Short: "Show one tracking target",
		Args:  cobra.ExactArgs(1),
		RunE:  runTargetGet,
	}

	targetCmd.AddCommand(addCmd, removeCmd, listCmd, getCmd)
	return targetCmd
}

// offlineService builds a control service without an engine for one-shot commands.
func offlineService(ctx context.Context, cmd *cobra.Command) (*control.Service, func(), error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}

	var fetcher control.ABIFetcher
	if cfg.ExplorerURL != "" {
		fetcher = contractabi.NewFetcher(cfg.ExplorerURL, cfg.ExplorerAPIKey, cfg.AbiDir, logger)
	}
	service := control.NewService(newRegistry(st, logger), nil, nil, fetcher, cfg.AbiDir, logger)

	cleanup := func() {
		st.close()
		logger.Sync()
	}
	return service, cleanup, nil
}

func runTargetAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	service, cleanup, err := offlineService(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	input, err := config.LoadTargetInput(cmd.Flags())
	if err != nil {
		return err
	}

	msg, err := service.AddOrUpdateTarget(ctx, control.TargetRequest{
		Address:   args[0],
		AbiPath:   input.AbiPath,
		Events:    input.Events,
		Actions:   input.Actions,
		ClientID:  input.ClientID,
		ExtraInfo: input.Extra,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runTargetRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	service, cleanup, err := offlineService(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	msg, err := service.RemoveTarget(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runTargetList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	service, cleanup, err := offlineService(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	clientID, _ := cmd.Flags().GetString("client-id")
	targets, err := service.ListTargets(ctx, clientID)
	if err != nil {
		return err
	}
	return writeJSON(cmd, targets)
}

func runTargetGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	service, cleanup, err := offlineService(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	target, err := service.GetTarget(ctx, args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd, target)
}

func writeJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
