package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"meridian/internal/config"
	"meridian/internal/gather/us"
	"meridian/internal/store"
	"meridian/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/meridian.yaml", "path to config file")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (overrides config)")
	flag.Parse()
	if p := os.Getenv("MERIDIAN_CONFIG"); p != "" {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	job := cfg.Gather.USDaily
	symbols := job.Symbols
	if *symbolsFlag != "" {
		symbols = strings.Split(*symbolsFlag, ",")
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols: set gather.us_daily.symbols in config or pass -symbols")
	}
	startDate := job.StartDate
	if startDate == "" {
		startDate = time.Now().UTC().AddDate(-1, 0, 0).Format("2006-01-02")
	}

	gatherer := us.NewDailyBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		store.NewParquetStore(cfg.Storage.DataDir),
		symbols,
		startDate,
		job.BatchSize,
		job.RateLimitPerMin,
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Gather through the last fully settled trading day when the calendar is
	// reachable; otherwise fall back to now.
	end := time.Time{}
	if day, err := us.LatestFinishedTradingDay(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL); err == nil {
		end = day
	} else {
		logger.Warn("trading calendar unavailable, gathering through today", "err", err)
	}

	logger.Info("starting meridian-gather", "symbols", len(symbols), "start", startDate)
	if err := gatherer.RunRange(ctx, end); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}
