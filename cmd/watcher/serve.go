package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"contractWatch/internal/action"
	"contractWatch/internal/api"
	"contractWatch/internal/chain"
	"contractWatch/internal/config"
	"contractWatch/internal/contractabi"
	"contractWatch/internal/control"
	"contractWatch/internal/listener"
	"contractWatch/internal/recent"
	"contractWatch/internal/storage"
	"contractWatch/internal/token"
)

func runServe(cmd *cobra.Command, _ []string) error {
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

	threshold, err := decimal.NewFromString(cfg.ValueThreshold)
	if err != nil {
		return fmt.Errorf("parse value threshold: %w", err)
	}
	backOff, err := listener.NewBackOff(cfg.ReconnectPolicy, cfg.ReconnectDelay, cfg.ReconnectMaxDelay)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	reg := newRegistry(st, logger)

	recentLog := recent.NewLog(cfg.RecentSize)
	snapshotter := recent.NewSnapshotter(recentLog, st.snapshots, cfg.SnapshotInterval, logger)
	if err := snapshotter.Restore(ctx); err != nil {
		logger.Warn("restore recent events failed", zap.Error(err))
	}

	caller := &lazyCaller{url: cfg.WSURL}
	defer caller.Close()

	archive := storage.NewJsonlStorage(cfg.ArchiveFile)
	defer archive.Close()

	dispatcher, err := action.NewDispatcher(map[action.ID]action.Handler{
		action.LogEvent:     action.NewLogEvent(recentLog, logger),
		action.CheckValue:   action.NewCheckValue(token.NewCache(caller, logger), threshold, logger),
		action.ArchiveEvent: action.NewArchiveEvent(archive),
	}, logger)
	if err != nil {
		return err
	}

	engine := listener.NewEngine(listener.Config{
		Endpoint:     cfg.WSURL,
		AbiDir:       cfg.AbiDir,
		BackOff:      backOff,
		ProcessYield: cfg.ProcessYield,
	}, nil, reg, dispatcher, logger)

	var fetcher control.ABIFetcher
	if cfg.ExplorerURL != "" {
		fetcher = contractabi.NewFetcher(cfg.ExplorerURL, cfg.ExplorerAPIKey, cfg.AbiDir, logger)
	}
	service := control.NewService(reg, recentLog, engine, fetcher, cfg.AbiDir, logger)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewRouter(service, api.RouterConfig{CORSOrigins: cfg.CORSOrigins}, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("watcher start",
		zap.String("ws_url", cfg.WSURL),
		zap.String("store", cfg.Store),
		zap.String("abi_dir", cfg.AbiDir),
		zap.String("listen", cfg.Listen),
		zap.String("reconnect_policy", cfg.ReconnectPolicy),
		zap.Strings("actions", dispatcher.Names()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := engine.Run(gctx)
		if errors.Is(err, listener.ErrNoEndpoint) {
			logger.Error("subscription engine halted, control API stays up", zap.Error(err))
			return nil
		}
		return err
	})
	g.Go(func() error {
		return snapshotter.Run(gctx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("watcher stopped", zap.Error(err))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// lazyCaller dials the RPC endpoint on the first contract call.
type lazyCaller struct {
	url string

	mu     sync.Mutex
	client *chain.Client
}

func (c *lazyCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	client, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, msg, blockNumber)
}

func (c *lazyCaller) get(ctx context.Context) (*chain.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	if c.url == "" {
		return nil, listener.ErrNoEndpoint
	}
	client, err := chain.NewClient(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *lazyCaller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}
