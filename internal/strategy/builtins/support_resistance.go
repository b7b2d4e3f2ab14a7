package builtins

import (
	"context"
	"math"
	"sort"

	"meridian/internal/domain"
	"meridian/internal/strategy"
)

var _ strategy.Strategy = (*SupportResistance)(nil)

// SupportResistance implements a pivot-level breakout strategy. It detects
// local extrema over a lookback window of highs and lows, then buys when the
// close clears a resistance level by the threshold and sells when it breaks
// a support level. The side latch resets while the close stays inside the
// levels.
type SupportResistance struct {
	lookback  int
	threshold float64
	quantity  float64

	highs    map[string][]float64
	lows     map[string][]float64
	lastSide map[string]domain.SignalType
}

// NewSupportResistance creates the strategy with the given lookback window
// and fractional breakout threshold (0.01 means 1% past the level).
func NewSupportResistance(lookback int, threshold float64) *SupportResistance {
	return &SupportResistance{
		lookback:  lookback,
		threshold: threshold,
		quantity:  1,
		highs:     make(map[string][]float64),
		lows:      make(map[string][]float64),
		lastSide:  make(map[string]domain.SignalType),
	}
}

// Name returns "support-resistance".
func (s *SupportResistance) Name() string {
	return "support-resistance"
}

func (s *SupportResistance) Init(_ context.Context) error {
	return nil
}

// Levels returns the detected support and resistance levels for a symbol,
// each sorted ascending. Detection needs at least 10 bars of history.
func (s *SupportResistance) Levels(symbol string) (support, resistance []float64) {
	highs := s.highs[symbol]
	lows := s.lows[symbol]
	if len(highs) < 10 || len(lows) < 10 {
		return nil, nil
	}

	// A pivot must exceed its two neighbours on both sides.
	resistSet := make(map[float64]struct{})
	supportSet := make(map[float64]struct{})
	for i := 2; i < len(highs)-2; i++ {
		if highs[i] > highs[i-1] && highs[i] > highs[i-2] &&
			highs[i] > highs[i+1] && highs[i] > highs[i+2] {
			resistSet[highs[i]] = struct{}{}
		}
		if lows[i] < lows[i-1] && lows[i] < lows[i-2] &&
			lows[i] < lows[i+1] && lows[i] < lows[i+2] {
			supportSet[lows[i]] = struct{}{}
		}
	}

	for v := range supportSet {
		support = append(support, v)
	}
	for v := range resistSet {
		resistance = append(resistance, v)
	}
	sort.Float64s(support)
	sort.Float64s(resistance)
	return support, resistance
}

// crossedLevels returns the highest resistance level the price has cleared
// by the threshold and the lowest support level it has broken by the
// threshold. Missing values come back as 0 and +Inf respectively.
func crossedLevels(price, threshold float64, support, resistance []float64) (float64, float64) {
	brokenResistance := 0.0
	for _, level := range resistance {
		if price > level*(1+threshold) && level > brokenResistance {
			brokenResistance = level
		}
	}
	brokenSupport := math.Inf(1)
	for _, level := range support {
		if price < level*(1-threshold) && level < brokenSupport {
			brokenSupport = level
		}
	}
	return brokenResistance, brokenSupport
}

// OnBar records the bar's high and low and signals when the close clears a
// resistance level (buy) or breaks a support level (sell) by the threshold.
func (s *SupportResistance) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	sym := bar.Symbol
	s.highs[sym] = appendBounded(s.highs[sym], bar.High, s.lookback)
	s.lows[sym] = appendBounded(s.lows[sym], bar.Low, s.lookback)

	support, resistance := s.Levels(sym)
	if len(support) == 0 || len(resistance) == 0 {
		return nil, nil
	}

	price := bar.Close
	brokenResistance, brokenSupport := crossedLevels(price, s.threshold, support, resistance)

	var side domain.SignalType
	switch {
	case brokenResistance > 0:
		side = domain.SignalTypeBuy
	case !math.IsInf(brokenSupport, 1):
		side = domain.SignalTypeSell
	default:
		// Inside the range: release the latch.
		delete(s.lastSide, sym)
		return nil, nil
	}

	if side == s.lastSide[sym] {
		return nil, nil
	}
	s.lastSide[sym] = side

	return []domain.Signal{{
		StrategyID: s.Name(),
		Symbol:     sym,
		Type:       side,
		Strength:   1,
		Qty:        s.quantity,
		CreatedAt:  bar.Timestamp,
	}}, nil
}

func (s *SupportResistance) OnTrade(_ context.Context, _ domain.Trade) ([]domain.Signal, error) {
	return nil, nil
}
