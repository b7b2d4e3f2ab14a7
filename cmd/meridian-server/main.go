package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"meridian/internal/alerts"
	"meridian/internal/analyzer"
	"meridian/internal/backtest"
	"meridian/internal/broker"
	"meridian/internal/config"
	"meridian/internal/engine"
	"meridian/internal/httpapi"
	"meridian/internal/live"
	"meridian/internal/store"
	"meridian/internal/strategy"
	"meridian/internal/strategy/builtins"
	"meridian/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/meridian.yaml", "path to config file")
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Stores.
	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	sqlite, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite store: %v", err)
	}
	defer sqlite.Close()

	// Broker: paper mode or missing credentials uses the simulator.
	var brk broker.Broker
	if cfg.Trading.PaperMode || cfg.Alpaca.APIKey == "" {
		brk = broker.NewSimulatorBroker(cfg.Backtest.InitialCapital)
		logger.Info("using simulator broker", "cash", cfg.Backtest.InitialCapital)
	} else {
		brk = broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
		logger.Info("using alpaca broker", "baseURL", cfg.Alpaca.BaseURL)
	}

	riskMgr := engine.NewRiskManager(cfg.Trading.MaxPositionPct, cfg.Trading.MaxDailyLossPct)
	if account, err := brk.GetAccount(ctx); err == nil {
		riskMgr.StartDay(account.Equity)
	} else {
		logger.Warn("could not read starting equity", "err", err)
	}
	eng := engine.NewEngine(brk, sqlite, sqlite, riskMgr, logger)

	// Strategies and backtesting.
	registry := strategy.NewRegistry()
	builtins.RegisterDefaults(registry)
	btCfg := backtest.Config{
		InitialCapital: cfg.Backtest.InitialCapital,
		CommissionRate: cfg.Backtest.CommissionRate,
		SlippageRate:   cfg.Backtest.SlippageRate,
	}
	backtester := strategy.NewBacktester(pstore, registry, btCfg, logger)

	// Alerts and live ticks.
	alertMgr := alerts.NewManager(filepath.Join(cfg.Storage.DataDir, "alerts.json"), logger)
	go alertMgr.Run(ctx, 30*time.Second)
	ticks := live.NewTickModel(0)
	go live.NewTradeRecorder(ticks, pstore, logger).Run(ctx)

	api := httpapi.NewServer(eng, backtester, registry, analyzer.New(logger),
		pstore, sqlite, alertMgr, ticks, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}()

	logger.Info("meridian-server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("meridian-server stopped")
}
