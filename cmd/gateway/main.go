package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.temporal.io/sdk/client"

	"example.com/agent-catalog/internal/engine"
	"example.com/agent-catalog/internal/logging"
)

func main() {
	var (
		addr         = flag.String("addr", ":8082", "HTTP listen address for the search gateway")
		catalogURL   = flag.String("catalog-url", "http://localhost:8081", "base URL of the catalog API")
		temporalAddr = flag.String("temporal", "", "Temporal server host:port; empty runs snapshot refreshes in-process")
		refreshEvery = flag.Duration("refresh-interval", engine.DefaultSnapshotTTL, "how often the snapshot is re-fetched")
	)
	flag.Parse()

	logger := logging.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := engine.NewStore(engine.NewCatalogClient(*catalogURL), logger.With("component", "engine.store"))

	// Warm the snapshot so category browsing starts in client-filtered mode.
	// A cold catalog is not fatal; the store degrades and the first request
	// retries.
	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := store.LoadInitialData(loadCtx, false); err != nil {
		logger.Warn("initial snapshot load failed, starting degraded", "error", err)
	}
	loadCancel()

	var refresher engine.RefreshOrchestrator
	if *temporalAddr != "" {
		temporalClient, err := client.Dial(client.Options{HostPort: *temporalAddr})
		if err != nil {
			logger.Error("connect temporal failed", "host", *temporalAddr, "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()

		worker := engine.RegisterRefreshWorker(temporalClient, store, logger)
		if err := worker.Start(); err != nil {
			logger.Error("start temporal worker failed", "error", err)
			os.Exit(1)
		}
		defer worker.Stop()

		refresher = engine.NewTemporalRefresher(temporalClient, logger)
		logger.Info("snapshot refreshes flow through temporal", "task_queue", engine.RefreshTaskQueue())
	} else {
		refresher = engine.NewLocalRefresher(store, logger)
	}
	engine.StartAutoRefresh(ctx, refresher, *refreshEvery, logger.With("component", "engine.autorefresh"))

	serverLogger := logger.With("component", "gateway.http")
	server := &http.Server{
		Addr:    *addr,
		Handler: engine.NewServer(store, serverLogger).Router(),
	}

	go func() {
		serverLogger.Info("search gateway listening", "addr", *addr, "catalog_url", *catalogURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverLogger.Error("gateway server error", "error", err)
		}
	}()

	waitForShutdown(serverLogger, server)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return
	}
	logger.Info("gateway stopped")
}
