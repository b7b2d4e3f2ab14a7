package builtins

import (
	"context"
	"math"

	"meridian/internal/domain"
	"meridian/internal/strategy"
)

var _ strategy.Strategy = (*Bollinger)(nil)

// Bollinger implements a Bollinger band mean-reversion strategy. It buys when
// the close touches the lower band and sells when it touches the upper band.
// The side latch resets while the close stays between the bands.
type Bollinger struct {
	period   int
	stdDevs  float64
	quantity float64

	prices   map[string][]float64
	lastSide map[string]domain.SignalType
}

// NewBollinger creates a Bollinger strategy with the given SMA period and
// band width in standard deviations.
func NewBollinger(period int, stdDevs float64) *Bollinger {
	return &Bollinger{
		period:   period,
		stdDevs:  stdDevs,
		quantity: 1,
		prices:   make(map[string][]float64),
		lastSide: make(map[string]domain.SignalType),
	}
}

// Name returns "bollinger".
func (s *Bollinger) Name() string {
	return "bollinger"
}

func (s *Bollinger) Init(_ context.Context) error {
	return nil
}

// Bands returns the current (upper, middle, lower) bands for a symbol. All
// zeros until the price window fills.
func (s *Bollinger) Bands(symbol string) (upper, middle, lower float64) {
	prices := s.prices[symbol]
	if len(prices) < s.period {
		return 0, 0, 0
	}

	m := sma(prices, s.period)
	variance := 0.0
	for _, p := range prices {
		d := p - m
		variance += d * d
	}
	variance /= float64(len(prices))
	sd := math.Sqrt(variance)

	return m + s.stdDevs*sd, m, m - s.stdDevs*sd
}

// OnBar folds the close into the window and signals on a band touch.
func (s *Bollinger) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	s.prices[bar.Symbol] = appendBounded(s.prices[bar.Symbol], bar.Close, s.period)

	upper, _, lower := s.Bands(bar.Symbol)
	if upper == 0 {
		return nil, nil
	}

	price := bar.Close
	var side domain.SignalType
	switch {
	case price <= lower:
		side = domain.SignalTypeBuy
	case price >= upper:
		side = domain.SignalTypeSell
	default:
		delete(s.lastSide, bar.Symbol)
		return nil, nil
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

func (s *Bollinger) OnTrade(_ context.Context, _ domain.Trade) ([]domain.Signal, error) {
	return nil, nil
}
