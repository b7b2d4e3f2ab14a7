// Package builtins provides built-in strategy implementations that ship with
// the meridian platform.
package builtins

import (
	"context"

	"meridian/internal/domain"
	"meridian/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It generates
// a buy signal when the short-period SMA rises above the long-period SMA,
// and a sell signal when it falls below. Repeated signals on the same side
// are suppressed until the relationship flips.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	quantity    float64

	prices   map[string][]float64
	lastSide map[string]domain.SignalType
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		quantity:    1,
		prices:      make(map[string][]float64),
		lastSide:    make(map[string]domain.SignalType),
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init performs any setup required by the SMA crossover strategy.
func (s *SMACross) Init(_ context.Context) error {
	return nil
}

// OnBar processes a new bar and returns trading signals based on SMA
// crossover logic.
func (s *SMACross) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	window := maxInt(s.shortPeriod, s.longPeriod)
	s.prices[bar.Symbol] = appendBounded(s.prices[bar.Symbol], bar.Close, window)

	history := s.prices[bar.Symbol]
	if len(history) < s.longPeriod {
		return nil, nil
	}

	smaShort := sma(history, s.shortPeriod)
	smaLong := sma(history, s.longPeriod)

	side := domain.SignalTypeSell
	if smaShort > smaLong {
		side = domain.SignalTypeBuy
	}
	if side == s.lastSide[bar.Symbol] {
		return nil, nil
	}
	s.lastSide[bar.Symbol] = side

	return []domain.Signal{{
		StrategyID: s.Name(),
		Symbol:     bar.Symbol,
		Type:       side,
		Strength:   1,
		Qty:        s.quantity,
		CreatedAt:  bar.Timestamp,
	}}, nil
}

// OnTrade processes a new trade tick. The SMA crossover strategy does not
// generate signals from individual trades.
func (s *SMACross) OnTrade(_ context.Context, _ domain.Trade) ([]domain.Signal, error) {
	return nil, nil
}

// ---------------------------------------------------------------------------
// Shared helpers for the builtin strategies
// ---------------------------------------------------------------------------

// appendBounded appends v and drops the oldest entries past the window size.
func appendBounded(xs []float64, v float64, window int) []float64 {
	xs = append(xs, v)
	if len(xs) > window {
		xs = xs[len(xs)-window:]
	}
	return xs
}

// sma averages the last n values. Callers guarantee len(xs) >= n.
func sma(xs []float64, n int) float64 {
	s := 0.0
	for _, v := range xs[len(xs)-n:] {
		s += v
	}
	return s / float64(n)
}

// ema folds one price into a previous exponential moving average.
func ema(prev, price float64, period int) float64 {
	if period <= 1 {
		return price
	}
	k := 2.0 / (float64(period) + 1.0)
	return (price-prev)*k + prev
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
