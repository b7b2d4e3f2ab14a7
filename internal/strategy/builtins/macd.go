package builtins

import (
	"context"

	"meridian/internal/domain"
	"meridian/internal/strategy"
)

var _ strategy.Strategy = (*MACD)(nil)

// MACD implements a moving average convergence divergence crossover strategy.
// It buys when the MACD line crosses above its signal line and sells when it
// crosses below. The first bar for a symbol seeds the fast and slow EMAs.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
	quantity     float64

	emaFast    map[string]float64
	emaSlow    map[string]float64
	emaSignal  map[string]float64
	seeded     map[string]bool
	haveSignal map[string]bool
	lastMACD   map[string]float64
	lastSignal map[string]float64
	lastSide   map[string]domain.SignalType
}

// NewMACD creates a MACD strategy with the given fast, slow, and signal
// EMA periods.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
		quantity:     1,
		emaFast:      make(map[string]float64),
		emaSlow:      make(map[string]float64),
		emaSignal:    make(map[string]float64),
		seeded:       make(map[string]bool),
		haveSignal:   make(map[string]bool),
		lastMACD:     make(map[string]float64),
		lastSignal:   make(map[string]float64),
		lastSide:     make(map[string]domain.SignalType),
	}
}

// Name returns "macd".
func (s *MACD) Name() string {
	return "macd"
}

func (s *MACD) Init(_ context.Context) error {
	return nil
}

// OnBar updates the EMA stack with the bar close and signals on a crossover
// of the MACD line and its signal line.
func (s *MACD) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	sym := bar.Symbol
	price := bar.Close

	if !s.seeded[sym] {
		s.emaFast[sym] = price
		s.emaSlow[sym] = price
		s.seeded[sym] = true
		return nil, nil
	}

	s.emaFast[sym] = ema(s.emaFast[sym], price, s.fastPeriod)
	s.emaSlow[sym] = ema(s.emaSlow[sym], price, s.slowPeriod)
	macdLine := s.emaFast[sym] - s.emaSlow[sym]

	if !s.haveSignal[sym] {
		s.emaSignal[sym] = macdLine
		s.haveSignal[sym] = true
	} else {
		s.emaSignal[sym] = ema(s.emaSignal[sym], macdLine, s.signalPeriod)
	}
	signalLine := s.emaSignal[sym]

	var out []domain.Signal
	// Crossovers need an established previous reading on both lines.
	if s.lastMACD[sym] != 0 && s.lastSignal[sym] != 0 {
		switch {
		case s.lastMACD[sym] <= s.lastSignal[sym] && macdLine > signalLine &&
			s.lastSide[sym] != domain.SignalTypeBuy:
			s.lastSide[sym] = domain.SignalTypeBuy
			out = append(out, domain.Signal{
				StrategyID: s.Name(),
				Symbol:     sym,
				Type:       domain.SignalTypeBuy,
				Strength:   1,
				Qty:        s.quantity,
				CreatedAt:  bar.Timestamp,
			})

		case s.lastMACD[sym] >= s.lastSignal[sym] && macdLine < signalLine &&
			s.lastSide[sym] != domain.SignalTypeSell:
			s.lastSide[sym] = domain.SignalTypeSell
			out = append(out, domain.Signal{
				StrategyID: s.Name(),
				Symbol:     sym,
				Type:       domain.SignalTypeSell,
				Strength:   1,
				Qty:        s.quantity,
				CreatedAt:  bar.Timestamp,
			})
		}
	}

	s.lastMACD[sym] = macdLine
	s.lastSignal[sym] = signalLine
	return out, nil
}

func (s *MACD) OnTrade(_ context.Context, _ domain.Trade) ([]domain.Signal, error) {
	return nil, nil
}
