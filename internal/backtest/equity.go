package backtest

import (
	"sort"
	"time"

	"meridian/internal/domain"
)

// snapshotEquity marks every symbol with a bar this step to its close,
// sums position state across the whole ledger, and appends one point to
// the equity curve plus one entry to the position history (non-zero
// positions only). Both loops run in sorted symbol order so float
// accumulation order, and therefore every low bit of the curve, is
// identical between runs.
func (e *Engine) snapshotEquity(ts time.Time, bars map[string]domain.Bar) {
	barSymbols := make([]string, 0, len(bars))
	for symbol := range bars {
		barSymbols = append(barSymbols, symbol)
	}
	sort.Strings(barSymbols)
	for _, symbol := range barSymbols {
		e.state.ledger.MarkToMarket(symbol, bars[symbol].Close)
	}

	held := make([]string, 0, len(e.state.ledger.positions))
	for symbol := range e.state.ledger.positions {
		held = append(held, symbol)
	}
	sort.Strings(held)

	var marketValue, unrealized, realized float64
	for _, symbol := range held {
		p := e.state.ledger.positions[symbol]
		marketValue += p.MarketValue
		unrealized += p.UnrealizedPnL
		realized += p.RealizedPnL
	}

	portfolioValue := e.state.cash + marketValue

	snap := EquitySnapshot{
		Timestamp:      ts,
		PortfolioValue: portfolioValue,
		Cash:           e.state.cash,
		MarketValue:    marketValue,
		RealizedPnL:    realized,
		UnrealizedPnL:  unrealized,
		TotalPnL:       realized + unrealized,
	}
	if n := len(e.state.equity); n > 0 {
		if prev := e.state.equity[n-1].PortfolioValue; prev > 0 {
			snap.DailyReturn = (portfolioValue - prev) / prev
		}
	}
	e.state.equity = append(e.state.equity, snap)

	open := make(map[string]Position)
	for symbol, p := range e.state.ledger.positions {
		if p.Quantity != 0 {
			open[symbol] = *p
		}
	}
	e.state.positionsHist = append(e.state.positionsHist, PositionsSnapshot{
		Timestamp: ts,
		Positions: open,
	})
}

// dailyReturns derives the consecutive-snapshot return series from the
// equity curve. It has one fewer element than the curve.
func dailyReturns(curve []EquitySnapshot) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].PortfolioValue
		if prev > 0 {
			out = append(out, (curve[i].PortfolioValue-prev)/prev)
		} else {
			out = append(out, 0)
		}
	}
	return out
}
