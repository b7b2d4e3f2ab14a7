package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"meridian/internal/backtest"
	"meridian/internal/domain"
	"meridian/internal/store"
)

// BacktestResult holds the summary metrics produced by a backtest run. The
// full equity curve, trade list, and extended metrics are in Detail.
type BacktestResult struct {
	TotalReturn  float64
	SharpeRatio  float64
	MaxDrawdown  float64
	TotalTrades  int
	WinRate      float64
	ProfitFactor float64
	Detail       *backtest.Result
}

// Backtester replays historical bar data through a strategy and computes
// performance metrics.
type Backtester struct {
	store    store.BarStore
	registry *Registry
	cfg      backtest.Config
	market   domain.Market
	log      *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from the given store and
// looks up strategies in the provided registry. cfg supplies the default
// simulation parameters; a per-run initial capital overrides cfg's.
func NewBacktester(barStore store.BarStore, registry *Registry, cfg backtest.Config, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		store:    barStore,
		registry: registry,
		cfg:      cfg,
		market:   domain.MarketUS,
		log:      log,
	}
}

// SetMarket selects which market's bars the backtester reads. Default is US.
func (bt *Backtester) SetMarket(m domain.Market) { bt.market = m }

// Run executes a backtest for the named strategy over the specified symbols
// and date range, starting with initialCapital. A non-positive
// initialCapital falls back to the configured default.
func (bt *Backtester) Run(
	ctx context.Context,
	name string,
	symbols []string,
	start, end time.Time,
	initialCapital float64,
) (*BacktestResult, error) {
	strat, ok := bt.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("backtest: unknown strategy %q", name)
	}
	if err := strat.Init(ctx); err != nil {
		return nil, fmt.Errorf("backtest: init strategy %q: %w", name, err)
	}

	cfg := bt.cfg
	if initialCapital > 0 {
		cfg.InitialCapital = initialCapital
	}
	eng := backtest.NewEngine(cfg, bt.log)

	loaded := 0
	for _, symbol := range symbols {
		bars, err := bt.store.ReadBars(ctx, symbol, string(bt.market), start, end)
		if err != nil {
			return nil, fmt.Errorf("backtest: read bars for %s: %w", symbol, err)
		}
		if len(bars) == 0 {
			bt.log.Warn("no bars for symbol, skipping", "symbol", symbol)
			continue
		}
		if err := eng.LoadHistoricalData(symbol, bars); err != nil {
			return nil, err
		}
		loaded++
	}
	if loaded == 0 {
		return nil, fmt.Errorf("backtest: no bar data for any of %v in [%s, %s]",
			symbols, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	step := func(ts time.Time, bars map[string]domain.Bar, eng *backtest.Engine) error {
		// Sorted symbol order keeps signal and order sequence deterministic.
		syms := make([]string, 0, len(bars))
		for s := range bars {
			syms = append(syms, s)
		}
		sort.Strings(syms)

		for _, sym := range syms {
			signals, err := strat.OnBar(ctx, bars[sym])
			if err != nil {
				return fmt.Errorf("strategy %q on %s: %w", name, sym, err)
			}
			for _, sig := range signals {
				if err := placeSignalOrder(eng, ts, sig); err != nil {
					return err
				}
			}
		}
		return nil
	}

	result, err := eng.Run(ctx, step, start, end)
	if err != nil {
		return nil, err
	}

	return &BacktestResult{
		TotalReturn:  result.Metrics.TotalReturn,
		SharpeRatio:  result.Metrics.SharpeRatio,
		MaxDrawdown:  result.Metrics.MaxDrawdown,
		TotalTrades:  result.Metrics.TotalTrades,
		WinRate:      result.Metrics.WinRate,
		ProfitFactor: result.Metrics.ProfitFactor,
		Detail:       result,
	}, nil
}

// placeSignalOrder converts a strategy signal into a market order. Sell
// signals are capped to the open long quantity; a sell with nothing held is
// dropped rather than submitted to be rejected every bar.
func placeSignalOrder(eng *backtest.Engine, ts time.Time, sig domain.Signal) error {
	qty := int64(sig.Qty)
	if qty <= 0 {
		qty = 1
	}

	switch sig.Type {
	case domain.SignalTypeBuy:
		_, err := eng.PlaceOrder(ts, sig.Symbol, domain.OrderSideBuy, qty, domain.OrderTypeMarket, 0, 0)
		return err
	case domain.SignalTypeSell:
		pos, ok := eng.Position(sig.Symbol)
		if !ok || pos.Quantity <= 0 {
			return nil
		}
		if qty > pos.Quantity {
			qty = pos.Quantity
		}
		_, err := eng.PlaceOrder(ts, sig.Symbol, domain.OrderSideSell, qty, domain.OrderTypeMarket, 0, 0)
		return err
	}
	return nil
}
