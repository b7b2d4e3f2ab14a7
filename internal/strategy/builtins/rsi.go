package builtins

import (
	"context"
	"math"

	"meridian/internal/domain"
	"meridian/internal/strategy"
)

var _ strategy.Strategy = (*RSI)(nil)

// RSI implements a relative strength index mean-reversion strategy using
// Wilder's smoothing. It buys when RSI drops below the oversold level and
// sells when it rises above the overbought level. Once RSI returns to the
// neutral zone the side latch resets, so the next excursion signals again.
type RSI struct {
	period     int
	oversold   float64
	overbought float64
	quantity   float64

	prices   map[string][]float64
	lastSide map[string]domain.SignalType
}

// NewRSI creates an RSI strategy with the given lookback period and
// oversold/overbought thresholds.
func NewRSI(period int, oversold, overbought float64) *RSI {
	return &RSI{
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		quantity:   1,
		prices:     make(map[string][]float64),
		lastSide:   make(map[string]domain.SignalType),
	}
}

// Name returns "rsi".
func (s *RSI) Name() string {
	return "rsi"
}

func (s *RSI) Init(_ context.Context) error {
	return nil
}

// Value returns the latest RSI for a symbol, or 50 with insufficient data.
func (s *RSI) Value(symbol string) float64 {
	return wilderRSI(s.prices[symbol], s.period)
}

// OnBar folds the bar close into the price window and signals on threshold
// crossings.
func (s *RSI) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	s.prices[bar.Symbol] = appendBounded(s.prices[bar.Symbol], bar.Close, s.period+1)

	rsi := wilderRSI(s.prices[bar.Symbol], s.period)

	var side domain.SignalType
	switch {
	case rsi < s.oversold:
		side = domain.SignalTypeBuy
	case rsi > s.overbought:
		side = domain.SignalTypeSell
	default:
		// Neutral zone: release the latch.
		delete(s.lastSide, bar.Symbol)
		return nil, nil
	}

	if side == s.lastSide[bar.Symbol] {
		return nil, nil
	}
	s.lastSide[bar.Symbol] = side

	// Strength grows with the distance past the threshold.
	strength := 1.0
	if side == domain.SignalTypeBuy && s.oversold > 0 {
		strength = math.Min(1, (s.oversold-rsi)/s.oversold+0.5)
	} else if side == domain.SignalTypeSell && s.overbought < 100 {
		strength = math.Min(1, (rsi-s.overbought)/(100-s.overbought)+0.5)
	}

	return []domain.Signal{{
		StrategyID: s.Name(),
		Symbol:     bar.Symbol,
		Type:       side,
		Strength:   strength,
		Qty:        s.quantity,
		CreatedAt:  bar.Timestamp,
	}}, nil
}

func (s *RSI) OnTrade(_ context.Context, _ domain.Trade) ([]domain.Signal, error) {
	return nil, nil
}

// wilderRSI computes the RSI over the price window using Wilder's smoothing.
// Returns the neutral value 50 until period+1 prices are available, and 100
// when there are no losses in the window.
func wilderRSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50
	}

	gains := make([]float64, 0, len(prices)-1)
	losses := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
