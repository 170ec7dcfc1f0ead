package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"vquant/internal/config"
	"vquant/internal/gather"
	"vquant/internal/store"
	"vquant/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols, overrides the configured list")
	startFlag := flag.String("start", "", "start date (YYYY-MM-DD), overrides the configured start")
	flag.Parse()

	cfgPath := "config/vquant.yaml"
	if p := os.Getenv("VQUANT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	symbols := cfg.Gather.Symbols
	if *symbolsFlag != "" {
		symbols = strings.Split(*symbolsFlag, ",")
		for i := range symbols {
			symbols[i] = strings.ToUpper(strings.TrimSpace(symbols[i]))
		}
	}
	startDate := cfg.Gather.StartDate
	if *startFlag != "" {
		startDate = *startFlag
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	gatherer := gather.NewAlpacaDailyGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		pstore,
		symbols,
		cfg.Gather.BatchSize,
		cfg.Gather.RateLimitPerMin,
		startDate,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting fetch", "gatherer", gatherer.Name(), "symbols", len(symbols), "start", startDate)
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("fetch failed: %v", err)
	}
}
