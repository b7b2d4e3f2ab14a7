package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"meridian/internal/backtest"
	"meridian/internal/config"
	"meridian/internal/store"
	"meridian/internal/strategy"
	"meridian/internal/strategy/builtins"
	"meridian/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/meridian.yaml", "path to config file")
	name := flag.String("strategy", "sma-cross", "registered strategy name")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (required)")
	startFlag := flag.String("start", "", "start date YYYY-MM-DD (required)")
	endFlag := flag.String("end", "", "end date YYYY-MM-DD (required)")
	capital := flag.Float64("capital", 0, "initial capital (0 uses config default)")
	flag.Parse()
	if p := os.Getenv("MERIDIAN_CONFIG"); p != "" {
		*cfgPath = p
	}

	if *symbolsFlag == "" || *startFlag == "" || *endFlag == "" {
		flag.Usage()
		os.Exit(2)
	}
	start, err := time.Parse("2006-01-02", *startFlag)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endFlag)
	if err != nil {
		log.Fatalf("invalid -end: %v", err)
	}
	symbols := strings.Split(strings.ToUpper(*symbolsFlag), ",")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level)

	registry := strategy.NewRegistry()
	builtins.RegisterDefaults(registry)

	backtester := strategy.NewBacktester(
		store.NewParquetStore(cfg.Storage.DataDir),
		registry,
		backtest.Config{
			InitialCapital: cfg.Backtest.InitialCapital,
			CommissionRate: cfg.Backtest.CommissionRate,
			SlippageRate:   cfg.Backtest.SlippageRate,
		},
		logger,
	)

	result, err := backtester.Run(context.Background(), *name, symbols, start, end, *capital)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	d := result.Detail
	fmt.Printf("Strategy:          %s\n", *name)
	fmt.Printf("Symbols:           %s\n", strings.Join(symbols, ", "))
	fmt.Printf("Period:            %s to %s\n", *startFlag, *endFlag)
	fmt.Printf("Initial capital:   %.2f\n", d.InitialCapital)
	fmt.Printf("Final capital:     %.2f\n", d.FinalCapital)
	fmt.Printf("Total return:      %.2f%%\n", result.TotalReturn*100)
	fmt.Printf("Annualized return: %.2f%%\n", d.Metrics.AnnualizedReturn*100)
	fmt.Printf("Volatility:        %.2f%%\n", d.Metrics.Volatility*100)
	fmt.Printf("Sharpe ratio:      %.3f\n", result.SharpeRatio)
	fmt.Printf("Sortino ratio:     %.3f\n", d.Metrics.SortinoRatio)
	fmt.Printf("Max drawdown:      %.2f%%\n", result.MaxDrawdown*100)
	fmt.Printf("Total trades:      %d\n", result.TotalTrades)
	fmt.Printf("Win rate:          %.2f%%\n", result.WinRate*100)
	fmt.Printf("Profit factor:     %.3f\n", result.ProfitFactor)
}
