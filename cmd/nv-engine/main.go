package main

import (
	"NetVerdict/internal/api"
	"NetVerdict/internal/config"
	"NetVerdict/internal/engine/manager"
	"NetVerdict/internal/logging"
	"NetVerdict/internal/probe"
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.Must(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()
	logger.Info("starting nv-engine", zap.String("config", *configPath))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 2. Build the pipeline; missing models stop the process here
	mgr, err := manager.NewManager(cfg, logger, reg)
	if err != nil {
		logger.Fatal("failed to create manager", zap.Error(err))
	}

	// 3. Ops endpoints
	deps := api.Deps{Model: mgr.Info(), Gatherer: reg, Logger: logger}
	if store := mgr.Store(); store != nil {
		deps.Store = store
	}
	server := api.NewServer(cfg.API, deps)
	serverErrs, err := server.Start()
	if err != nil {
		logger.Fatal("failed to start API server", zap.Error(err))
	}

	// 4. Flow batch ingest
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sub *probe.Subscriber
	if cfg.Probe.NATSURL != "" {
		sub, err = probe.NewSubscriber(cfg.Probe, logger)
		if err != nil {
			logger.Fatal("failed to create subscriber", zap.Error(err))
		}
		handler := func(batch probe.FlowBatch) {
			source := "nats:" + batch.ID
			if _, err := mgr.Process(ctx, source, batch.Flows); err != nil {
				logger.Error("failed to process flow batch", zap.String("source", source), zap.Error(err))
			}
		}
		if err := sub.Start(handler); err != nil {
			logger.Fatal("subscriber failed to start", zap.Error(err))
		}
	} else {
		logger.Warn("probe.nats_url is empty, no flow batches will be received")
	}
	server.SetReady(true)

	// 5. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErrs:
		logger.Error("API server failed", zap.Error(err))
	}

	server.SetReady(false)
	if sub != nil {
		sub.Close()
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("API server shutdown", zap.Error(err))
	}
	if err := mgr.Stop(); err != nil {
		logger.Error("manager stopped with errors", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
