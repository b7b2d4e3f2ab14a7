// Package backtest implements an event-driven backtesting engine. It
// replays historical multi-symbol bar series through a strategy callback,
// simulates order fills with slippage and commission, tracks long and
// short positions on an average-cost basis, and derives a standard battery
// of performance metrics from the resulting equity curve.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meridian/internal/domain"
)

// Status is the lifecycle state of an Engine.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Config holds the simulation parameters for an Engine.
type Config struct {
	InitialCapital float64
	CommissionRate float64 // fraction of notional per fill
	SlippageRate   float64 // fraction of price, adverse direction
}

// DefaultConfig returns the standard simulation parameters.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 100_000,
		CommissionRate: 0.001,
		SlippageRate:   0.0005,
	}
}

// StrategyFunc is invoked once per simulation timestamp with the bars
// available at that timestamp, keyed by symbol. It may place orders
// through the engine handle; those orders become eligible for fill on the
// following step, never the current one. Errors (and panics) from the
// callback are logged and the run continues without that step's effects.
type StrategyFunc func(ts time.Time, bars map[string]domain.Bar, eng *Engine) error

// engineState is all mutable state owned by one run. It is rebuilt at the
// start of every Run so an Engine can be reused across runs.
type engineState struct {
	cash          float64
	ledger        *ledger
	orders        []*Order
	equity        []EquitySnapshot
	positionsHist []PositionsSnapshot
}

// Engine drives a single-threaded, deterministic backtest. One Engine owns
// its state exclusively for the duration of a Run; concurrent runs need
// separate instances.
type Engine struct {
	cfg    Config
	log    *slog.Logger
	series *seriesStore
	state  engineState
	status Status
}

// NewEngine creates an Engine with the given config. A nil logger falls
// back to slog.Default.
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		log:    log.With("component", "backtest"),
		series: newSeriesStore(),
		status: StatusIdle,
	}
}

// Status returns the engine's lifecycle state.
func (e *Engine) Status() Status { return e.status }

// Config returns the simulation parameters.
func (e *Engine) Config() Config { return e.cfg }

// LoadHistoricalData validates and stores the bar series for a symbol.
// Bars need not be sorted on input. Data loaded here survives across runs;
// only run state is reset.
func (e *Engine) LoadHistoricalData(symbol string, bars []domain.Bar) error {
	if err := e.series.Load(symbol, bars); err != nil {
		return err
	}
	e.log.Info("historical data loaded", "symbol", symbol, "bars", len(bars))
	return nil
}

// Cash returns the current uninvested capital.
func (e *Engine) Cash() float64 { return e.state.cash }

// Position returns a copy of the current position for symbol. The second
// return value is false when no fill has ever touched the symbol.
func (e *Engine) Position(symbol string) (Position, bool) {
	p, ok := e.state.ledger.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns a copy of all positions with non-zero quantity.
func (e *Engine) Positions() map[string]Position {
	out := make(map[string]Position)
	for symbol, p := range e.state.ledger.positions {
		if p.Quantity != 0 {
			out[symbol] = *p
		}
	}
	return out
}

// PlaceOrder submits an order into the simulation and returns its ID. The
// order is pending until a later step fills it. Stop and stop-limit types
// are accepted but never fill.
func (e *Engine) PlaceOrder(ts time.Time, symbol string, side domain.OrderSide, quantity int64, orderType domain.OrderType, limitPrice, stopPrice float64) (string, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("placing order for %s: quantity must be positive, got %d", symbol, quantity)
	}
	switch side {
	case domain.OrderSideBuy, domain.OrderSideSell:
	default:
		return "", fmt.Errorf("placing order for %s: unknown side %q", symbol, side)
	}
	switch orderType {
	case domain.OrderTypeMarket, domain.OrderTypeLimit, domain.OrderTypeStop, domain.OrderTypeStopLimit:
	default:
		return "", fmt.Errorf("placing order for %s: unknown type %q", symbol, orderType)
	}

	order := &Order{
		ID:         orderID(symbol, ts, len(e.state.orders)),
		Timestamp:  ts,
		Symbol:     symbol,
		Side:       side,
		Type:       orderType,
		Quantity:   quantity,
		LimitPrice: limitPrice,
		StopPrice:  stopPrice,
		Status:     domain.OrderStatusPending,
	}
	e.state.orders = append(e.state.orders, order)

	e.log.Debug("order placed", "order", order.ID, "side", side, "qty", quantity, "type", orderType)
	return order.ID, nil
}

// reset rebuilds run state from the config so runs never leak into each
// other. Loaded historical data is kept.
func (e *Engine) reset() {
	e.state = engineState{
		cash:   e.cfg.InitialCapital,
		ledger: newLedger(),
	}
}

// Run replays all timestamps in [start, end] through the strategy and
// returns the aggregated result. Per step: fill eligible pending orders,
// mark to market, snapshot equity, then invoke the strategy. The run is
// deterministic: identical inputs and order placements produce an
// identical Result.
//
// Cancellation is checked between steps; per-order and per-step failures
// are absorbed and logged, and only missing data or context cancellation
// abort the run.
func (e *Engine) Run(ctx context.Context, strategy StrategyFunc, start, end time.Time) (*Result, error) {
	if len(e.series.bars) == 0 {
		e.status = StatusFailed
		return nil, &FatalError{Timestamp: start, Err: errors.New("no historical data loaded")}
	}

	e.reset()
	e.status = StatusRunning

	timestamps := e.series.TimestampsInRange(start, end)
	e.log.Info("starting backtest",
		"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"),
		"timestamps", len(timestamps), "capital", e.cfg.InitialCapital)

	for i, ts := range timestamps {
		select {
		case <-ctx.Done():
			e.status = StatusFailed
			return nil, &FatalError{Timestamp: ts, Err: ctx.Err()}
		default:
		}

		bars := e.series.BarsAt(ts)

		// Fill pass: only orders placed on earlier steps are eligible,
		// which models one bar of execution latency. Iterating the order
		// list in placement order keeps the run deterministic.
		for _, order := range e.state.orders {
			if order.Status != domain.OrderStatusPending || order.Timestamp.After(ts) {
				continue
			}
			bar, ok := bars[order.Symbol]
			if !ok {
				continue
			}
			e.tryFill(order, bar)
		}

		e.snapshotEquity(ts, bars)
		e.invokeStrategy(strategy, ts, bars)

		if i > 0 && i%1000 == 0 {
			e.log.Info("backtest progress", "step", i, "total", len(timestamps))
		}
	}

	filled := make([]Order, 0)
	for _, order := range e.state.orders {
		if order.Status == domain.OrderStatusFilled {
			filled = append(filled, *order)
		}
	}

	returns := dailyReturns(e.state.equity)

	finalCapital := e.cfg.InitialCapital
	if n := len(e.state.equity); n > 0 {
		finalCapital = e.state.equity[n-1].PortfolioValue
	}

	result := &Result{
		StartDate:        start,
		EndDate:          end,
		InitialCapital:   e.cfg.InitialCapital,
		FinalCapital:     finalCapital,
		Metrics:          calculateMetrics(e.state.equity, returns, filled, start, end),
		Trades:           filled,
		EquityCurve:      e.state.equity,
		PositionsHistory: e.state.positionsHist,
		MonthlyReturns:   calculateMonthlyReturns(e.state.equity),
	}

	e.status = StatusComplete
	e.log.Info("backtest complete",
		"finalCapital", result.FinalCapital, "trades", len(filled))
	return result, nil
}

// invokeStrategy calls the callback, absorbing both returned errors and
// panics so one bad step cannot abort the run.
func (e *Engine) invokeStrategy(strategy StrategyFunc, ts time.Time, bars map[string]domain.Bar) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("strategy callback panicked", "timestamp", ts, "panic", r)
		}
	}()
	if err := strategy(ts, bars, e); err != nil {
		e.log.Warn("strategy callback error", "timestamp", ts, "error", err)
	}
}
