package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "watcher",
		Short:        "Contract event watcher",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("store", "file", "target and snapshot store (file, postgres)")
	root.PersistentFlags().String("targets-file", "./data/contracts.json", "target registry file (file store)")
	root.PersistentFlags().String("events-file", "./data/recent_events.json", "recent events snapshot file (file store)")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN (postgres store)")
	root.PersistentFlags().String("abi-dir", "./data/abis", "directory for interface definitions")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the subscription engine and the control API",
		RunE:  runServe,
	}

	serveCmd.Flags().String("ws-url", "", "websocket RPC endpoint")
	serveCmd.Flags().String("explorer-url", "https://api.basescan.org/api", "block explorer API for missing definitions")
	serveCmd.Flags().String("explorer-api-key", "", "block explorer API key")
	serveCmd.Flags().Int("recent-size", 100, "recent events kept in memory")
	serveCmd.Flags().Duration("snapshot-interval", 5*time.Second, "recent events snapshot interval")
	serveCmd.Flags().String("reconnect-policy", "exponential", "reconnect policy (fixed, exponential)")
	serveCmd.Flags().Duration("reconnect-delay", 10*time.Second, "reconnect delay (initial delay for exponential)")
	serveCmd.Flags().Duration("reconnect-max-delay", 2*time.Minute, "maximum reconnect delay")
	serveCmd.Flags().Duration("process-yield", 0, "pause after each processed log")
	serveCmd.Flags().String("value-threshold", "0", "check_value alert threshold in token units, 0 disables alerts")
	serveCmd.Flags().String("archive-file", "./data/events.jsonl", "archive_event JSONL output")
	serveCmd.Flags().String("listen", ":8000", "control API listen address")
	serveCmd.Flags().StringSlice("cors-origins", []string{"http://localhost:3000", "http://localhost:5173"}, "allowed CORS origins")

	root.AddCommand(serveCmd)
	root.AddCommand(newTargetCmd())

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Print the most recent event summaries",
		Args:  cobra.NoArgs,
		RunE:  runEvents,
	}
	eventsCmd.Flags().Int("count", 100, "number of summaries to print")
	eventsCmd.Flags().Int("recent-size", 100, "recent events kept in memory")

	root.AddCommand(eventsCmd)
	root.AddCommand(newABICmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
