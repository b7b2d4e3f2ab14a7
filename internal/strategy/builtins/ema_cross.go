package builtins

import (
	"context"

	"meridian/internal/domain"
	"meridian/internal/strategy"
)

var _ strategy.Strategy = (*EMACross)(nil)

// EMACross implements an exponential moving average crossover strategy. The
// first bar for a symbol seeds both EMAs at its close; signals start from the
// second bar. Repeated signals on the same side are suppressed.
type EMACross struct {
	shortPeriod int
	longPeriod  int
	quantity    float64

	emaShort map[string]float64
	emaLong  map[string]float64
	seeded   map[string]bool
	lastSide map[string]domain.SignalType
}

// NewEMACross creates an EMACross with the given short and long periods.
func NewEMACross(short, long int) *EMACross {
	return &EMACross{
		shortPeriod: short,
		longPeriod:  long,
		quantity:    1,
		emaShort:    make(map[string]float64),
		emaLong:     make(map[string]float64),
		seeded:      make(map[string]bool),
		lastSide:    make(map[string]domain.SignalType),
	}
}

// Name returns "ema-cross".
func (s *EMACross) Name() string {
	return "ema-cross"
}

func (s *EMACross) Init(_ context.Context) error {
	return nil
}

// OnBar updates both EMAs with the bar close and signals on a side change.
func (s *EMACross) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	price := bar.Close

	if !s.seeded[bar.Symbol] {
		s.emaShort[bar.Symbol] = price
		s.emaLong[bar.Symbol] = price
		s.seeded[bar.Symbol] = true
		return nil, nil
	}

	s.emaShort[bar.Symbol] = ema(s.emaShort[bar.Symbol], price, s.shortPeriod)
	s.emaLong[bar.Symbol] = ema(s.emaLong[bar.Symbol], price, s.longPeriod)

	side := domain.SignalTypeSell
	if s.emaShort[bar.Symbol] > s.emaLong[bar.Symbol] {
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

func (s *EMACross) OnTrade(_ context.Context, _ domain.Trade) ([]domain.Signal, error) {
	return nil, nil
}
