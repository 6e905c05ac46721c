package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"contractWatch/internal/config"
	"contractWatch/internal/contractabi"
	"contractWatch/internal/registry"
)

func newABICmd() *cobra.Command {
	abiCmd := &cobra.Command{
		Use:   "abi",
		Short: "Manage interface definitions",
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch <address>",
		Short: "Download a verified interface definition from the block explorer",
		Args:  cobra.ExactArgs(1),
		RunE:  runABIFetch,
	}
	fetchCmd.Flags().String("explorer-url", "https://api.basescan.org/api", "block explorer API")
	fetchCmd.Flags().String("explorer-api-key", "", "block explorer API key")

	abiCmd.AddCommand(fetchCmd)
	return abiCmd
}

func runABIFetch(cmd *cobra.Command, args []string) error {
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

	if err := registry.ValidateAddress(args[0]); err != nil {
		return err
	}

	fetcher := contractabi.NewFetcher(cfg.ExplorerURL, cfg.ExplorerAPIKey, cfg.AbiDir, logger)
	path, err := fetcher.Fetch(cmd.Context(), strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
