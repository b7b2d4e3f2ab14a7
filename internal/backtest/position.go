package backtest

// Position tracks the running holding in one symbol using an average-cost
// model. Quantity is signed: positive long, negative short, zero flat.
// AvgPrice is always the cost basis of the currently open quantity.
type Position struct {
	Symbol        string
	Quantity      int64
	AvgPrice      float64
	UnrealizedPnL float64
	RealizedPnL   float64
	MarketValue   float64
}

// ledger holds all per-symbol positions for one run. Positions are created
// lazily on first fill and never removed; a zero-quantity position is
// equivalent to absent.
type ledger struct {
	positions map[string]*Position
}

func newLedger() *ledger {
	return &ledger{positions: make(map[string]*Position)}
}

// get returns the position for symbol, creating it if needed.
func (l *ledger) get(symbol string) *Position {
	p, ok := l.positions[symbol]
	if !ok {
		p = &Position{Symbol: symbol}
		l.positions[symbol] = p
	}
	return p
}

// ApplyFill applies a signed quantity delta at the given fill price.
//
// Same-sign (or flat) deltas weighted-average the cost basis. Opposing
// deltas realize P&L on the closed portion at the fill price against the
// current average without touching AvgPrice; an opposing delta larger than
// the open quantity closes the position fully and reopens on the other
// side at the fill price.
func (l *ledger) ApplyFill(symbol string, delta int64, price float64) {
	p := l.get(symbol)

	switch {
	case p.Quantity == 0 || sameSign(p.Quantity, delta):
		// Opening or adding: weighted-average cost basis.
		oldAbs := abs64(p.Quantity)
		newAbs := oldAbs + abs64(delta)
		p.AvgPrice = (float64(oldAbs)*p.AvgPrice + float64(abs64(delta))*price) / float64(newAbs)
		p.Quantity += delta

	case abs64(delta) <= abs64(p.Quantity):
		// Reducing or fully closing: realize P&L, AvgPrice unchanged.
		closed := abs64(delta)
		p.RealizedPnL += float64(sign64(p.Quantity)) * (price - p.AvgPrice) * float64(closed)
		p.Quantity += delta

	default:
		// Flip: close everything, reopen the remainder on the other side.
		closed := abs64(p.Quantity)
		p.RealizedPnL += float64(sign64(p.Quantity)) * (price - p.AvgPrice) * float64(closed)
		p.Quantity += delta
		p.AvgPrice = price
	}

	l.markToMarketPosition(p, price)
}

// MarkToMarket recomputes market value and unrealized P&L for a symbol at
// the given price. No-op for unknown symbols.
func (l *ledger) MarkToMarket(symbol string, price float64) {
	if p, ok := l.positions[symbol]; ok {
		l.markToMarketPosition(p, price)
	}
}

func (l *ledger) markToMarketPosition(p *Position, price float64) {
	if p.Quantity == 0 {
		p.MarketValue = 0
		p.UnrealizedPnL = 0
		return
	}
	p.MarketValue = float64(p.Quantity) * price
	p.UnrealizedPnL = float64(sign64(p.Quantity)) * (price - p.AvgPrice) * float64(abs64(p.Quantity))
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func sign64(n int64) int64 {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
