package main

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/ingest"
	"NetVerdict/internal/logging"
	"NetVerdict/internal/probe"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nv-probe [-config path] <flows.csv>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.Must(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	pub, err := probe.NewPublisher(cfg.Probe, logger)
	if err != nil {
		logger.Fatal("failed to create publisher", zap.Error(err))
	}
	defer pub.Close()

	for _, path := range flag.Args() {
		flows, err := ingest.ReadCSVFile(path, ingest.Options{DurationUnit: cfg.Ingest.DurationUnit})
		if err != nil {
			logger.Error("failed to read flow export", zap.String("path", path), zap.Error(err))
			continue
		}
		ids, err := pub.Publish(flows)
		if err != nil {
			logger.Error("failed to publish flows", zap.String("path", path), zap.Error(err))
			continue
		}
		logger.Info("flow export published",
			zap.String("path", path), zap.Int("flows", len(flows)), zap.Int("batches", len(ids)))
	}
}
