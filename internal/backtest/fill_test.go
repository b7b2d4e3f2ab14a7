package backtest

import (
	"testing"

	"meridian/internal/domain"
)

func newFillTestEngine(cfg Config) *Engine {
	e := NewEngine(cfg, testLogger())
	e.reset()
	return e
}

func bar(open, high, low, close float64) domain.Bar {
	return domain.Bar{Symbol: "T", Timestamp: day(0), Open: open, High: high, Low: low, Close: close, Volume: 100}
}

func pendingOrder(side domain.OrderSide, typ domain.OrderType, qty int64, limit float64) *Order {
	return &Order{
		ID:         "t_1",
		Timestamp:  day(0),
		Symbol:     "T",
		Side:       side,
		Type:       typ,
		Quantity:   qty,
		LimitPrice: limit,
		Status:     domain.OrderStatusPending,
	}
}

func TestTryFillMarketPricing(t *testing.T) {
	cfg := Config{InitialCapital: 100_000, CommissionRate: 0.001, SlippageRate: 0.0005}

	t.Run("buy fills off the high plus slippage", func(t *testing.T) {
		e := newFillTestEngine(cfg)
		o := pendingOrder(domain.OrderSideBuy, domain.OrderTypeMarket, 10, 0)
		if !e.tryFill(o, bar(100, 101, 99, 100)) {
			t.Fatal("expected fill")
		}
		if !almostEqual(o.FilledPrice, 101*1.0005, 1e-12) {
			t.Errorf("fill price = %v, want %v", o.FilledPrice, 101*1.0005)
		}
	})

	t.Run("sell fills off the low minus slippage", func(t *testing.T) {
		e := newFillTestEngine(cfg)
		e.state.ledger.ApplyFill("T", 10, 95)
		o := pendingOrder(domain.OrderSideSell, domain.OrderTypeMarket, 10, 0)
		if !e.tryFill(o, bar(100, 101, 99, 100)) {
			t.Fatal("expected fill")
		}
		if !almostEqual(o.FilledPrice, 99*0.9995, 1e-12) {
			t.Errorf("fill price = %v, want %v", o.FilledPrice, 99*0.9995)
		}
	})
}

func TestTryFillLimitOrders(t *testing.T) {
	cfg := Config{InitialCapital: 100_000}

	tests := []struct {
		name      string
		side      domain.OrderSide
		limit     float64
		b         domain.Bar
		wantFill  bool
		wantPrice float64
	}{
		{"buy limit reached, capped at limit", domain.OrderSideBuy, 100, bar(101, 103, 98, 99), true, 100},
		{"buy limit reached, high below limit", domain.OrderSideBuy, 100, bar(95, 97, 94, 96), true, 97},
		{"buy limit not reached", domain.OrderSideBuy, 100, bar(101, 103, 100.5, 102), false, 0},
		{"sell limit reached, floored at limit", domain.OrderSideSell, 100, bar(99, 103, 97, 101), true, 100},
		{"sell limit reached, low above limit", domain.OrderSideSell, 100, bar(104, 106, 103, 105), true, 103},
		{"sell limit not reached", domain.OrderSideSell, 100, bar(98, 99, 97, 98), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFillTestEngine(cfg)
			if tt.side == domain.OrderSideSell {
				e.state.ledger.ApplyFill("T", 5, 90)
			}
			o := pendingOrder(tt.side, domain.OrderTypeLimit, 5, tt.limit)
			got := e.tryFill(o, tt.b)
			if got != tt.wantFill {
				t.Fatalf("fill = %v, want %v", got, tt.wantFill)
			}
			if !got {
				if o.Status != domain.OrderStatusPending {
					t.Errorf("unfilled order status = %q, want pending", o.Status)
				}
				return
			}
			if !almostEqual(o.FilledPrice, tt.wantPrice, 1e-12) {
				t.Errorf("fill price = %v, want %v", o.FilledPrice, tt.wantPrice)
			}
			// A filled buy never pays above its limit; a filled sell never
			// receives below it.
			if tt.side == domain.OrderSideBuy && o.FilledPrice > o.LimitPrice {
				t.Errorf("buy filled at %v above limit %v", o.FilledPrice, o.LimitPrice)
			}
			if tt.side == domain.OrderSideSell && o.FilledPrice < o.LimitPrice {
				t.Errorf("sell filled at %v below limit %v", o.FilledPrice, o.LimitPrice)
			}
		})
	}
}

func TestTryFillStopOrdersNeverFill(t *testing.T) {
	e := newFillTestEngine(Config{InitialCapital: 100_000})
	for _, typ := range []domain.OrderType{domain.OrderTypeStop, domain.OrderTypeStopLimit} {
		o := pendingOrder(domain.OrderSideBuy, typ, 1, 100)
		o.StopPrice = 100
		if e.tryFill(o, bar(100, 200, 50, 100)) {
			t.Errorf("%s order filled, want never", typ)
		}
		if o.Status != domain.OrderStatusPending {
			t.Errorf("%s order status = %q, want pending", typ, o.Status)
		}
	}
}

func TestTryFillInsufficientCapital(t *testing.T) {
	e := newFillTestEngine(Config{InitialCapital: 500})
	o := pendingOrder(domain.OrderSideBuy, domain.OrderTypeMarket, 10, 0)
	if e.tryFill(o, bar(100, 101, 99, 100)) {
		t.Fatal("fill succeeded with insufficient cash")
	}
	if o.Status != domain.OrderStatusPending {
		t.Errorf("status = %q, want pending (rejection keeps the order open)", o.Status)
	}
	if e.state.cash != 500 {
		t.Errorf("cash = %v, want untouched 500", e.state.cash)
	}
}

func TestTryFillCapitalCheckExcludesCommission(t *testing.T) {
	// Cash covers exactly the notional but not the commission on top.
	e := newFillTestEngine(Config{InitialCapital: 1000, CommissionRate: 0.01})
	o := pendingOrder(domain.OrderSideBuy, domain.OrderTypeMarket, 10, 0)
	if !e.tryFill(o, bar(100, 100, 100, 100)) {
		t.Fatal("expected fill: the capital check covers notional only")
	}
	// Commission is still charged, so cash can go negative.
	if !almostEqual(e.state.cash, -10, 1e-12) {
		t.Errorf("cash = %v, want -10", e.state.cash)
	}
}

func TestTryFillInsufficientPosition(t *testing.T) {
	e := newFillTestEngine(Config{InitialCapital: 100_000})
	e.state.ledger.ApplyFill("T", 3, 100)

	o := pendingOrder(domain.OrderSideSell, domain.OrderTypeMarket, 5, 0)
	if e.tryFill(o, bar(100, 101, 99, 100)) {
		t.Fatal("fill succeeded selling more than held")
	}
	if o.Status != domain.OrderStatusPending {
		t.Errorf("status = %q, want pending", o.Status)
	}
	if e.state.ledger.positions["T"].Quantity != 3 {
		t.Error("position changed by a rejected sell")
	}
}
