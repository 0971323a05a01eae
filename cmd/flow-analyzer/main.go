package main

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/engine/manager"
	"NetVerdict/internal/logging"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	withFlows := flag.Bool("flows", false, "Print every flow verdict, not only the summary.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: flow-analyzer [-config path] [-flows] <flows.csv|capture.pcap>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	input := flag.Arg(0)

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// Logs go to stderr so stdout stays valid JSON.
	logger := logging.Must(cfg.Log.Level, "console")
	defer logger.Sync()

	// 2. Initialize modules
	mgr, err := manager.NewManager(cfg, logger, nil)
	if err != nil {
		logger.Fatal("failed to create manager", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Score the file as one batch
	res, err := mgr.AnalyzeFile(ctx, input)
	if stopErr := mgr.Stop(); stopErr != nil {
		logger.Warn("manager stopped with errors", zap.Error(stopErr))
	}
	if res == nil {
		logger.Fatal("analysis failed", zap.String("input", input), zap.Error(err))
	}
	if err != nil {
		logger.Error("analysis incomplete", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	var out any = res.Report()
	if *withFlows {
		out = res
	}
	if encErr := enc.Encode(out); encErr != nil {
		logger.Fatal("failed to encode result", zap.Error(encErr))
	}
	if err != nil {
		os.Exit(2)
	}
}
