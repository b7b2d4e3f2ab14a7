package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"meridian/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface for paper trading. It
// tracks cash, positions, and orders in memory and fills market orders
// immediately at the last known price for the symbol. Limit, stop, and
// stop-limit orders are accepted and stay open until cancelled.
type SimulatorBroker struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*domain.Position
	orders    map[string]*domain.Order
	prices    map[string]float64
}

// NewSimulatorBroker creates a SimulatorBroker funded with initialCash.
func NewSimulatorBroker(initialCash float64) *SimulatorBroker {
	return &SimulatorBroker{
		cash:      initialCash,
		positions: make(map[string]*domain.Position),
		orders:    make(map[string]*domain.Order),
		prices:    make(map[string]float64),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SetPrice updates the last known market price for a symbol and marks any
// open position in it to market.
func (b *SimulatorBroker) SetPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
	if p, ok := b.positions[symbol]; ok {
		p.MarketValue = p.Qty * price
		p.UnrealizedPL = (price - p.AvgEntryPrice) * p.Qty
	}
}

// SubmitOrder records the order and fills market orders immediately at the
// last known price. A market order for a symbol with no known price is
// rejected. Non-market orders are accepted and remain pending.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	order.Status = domain.OrderStatusPending
	order.CreatedAt = now
	order.UpdatedAt = now

	if order.Type == domain.OrderTypeMarket {
		price, ok := b.prices[order.Symbol]
		if !ok {
			return nil, fmt.Errorf("simulator: no market price for %s", order.Symbol)
		}
		if err := b.fill(order, price); err != nil {
			return nil, err
		}
	}

	b.orders[order.ID] = order
	return order, nil
}

// fill executes the order at price, updating cash and the position. Caller
// holds the lock.
func (b *SimulatorBroker) fill(order *domain.Order, price float64) error {
	notional := order.Qty * price
	if order.Side == domain.OrderSideBuy && notional > b.cash {
		return fmt.Errorf("simulator: insufficient cash for %s: need %.2f, have %.2f",
			order.Symbol, notional, b.cash)
	}

	delta := order.Qty
	if order.Side == domain.OrderSideSell {
		delta = -order.Qty
	}

	p, ok := b.positions[order.Symbol]
	if !ok {
		p = &domain.Position{Symbol: order.Symbol}
		b.positions[order.Symbol] = p
	}

	switch {
	case p.Qty == 0 || (p.Qty > 0) == (delta > 0):
		// Opening or adding: weighted average entry price.
		total := p.Qty + delta
		p.AvgEntryPrice = (p.AvgEntryPrice*abs(p.Qty) + price*abs(delta)) / abs(total)
		p.Qty = total
	case abs(delta) <= abs(p.Qty):
		// Reducing realizes P&L against the entry price.
		sign := 1.0
		if p.Qty < 0 {
			sign = -1
		}
		p.RealizedPL += sign * (price - p.AvgEntryPrice) * abs(delta)
		p.Qty += delta
	default:
		// Flip through zero: realize the full position, reopen at price.
		sign := 1.0
		if p.Qty < 0 {
			sign = -1
		}
		p.RealizedPL += sign * (price - p.AvgEntryPrice) * abs(p.Qty)
		p.Qty += delta
		p.AvgEntryPrice = price
	}

	p.Side = domain.PositionSideLong
	if p.Qty < 0 {
		p.Side = domain.PositionSideShort
	}
	p.MarketValue = p.Qty * price
	p.UnrealizedPL = (price - p.AvgEntryPrice) * p.Qty

	if order.Side == domain.OrderSideBuy {
		b.cash -= notional
	} else {
		b.cash += notional
	}

	order.Status = domain.OrderStatusFilled
	order.FilledQty = order.Qty
	order.FilledAvgPrice = price
	order.UpdatedAt = time.Now().UTC()
	return nil
}

// CancelOrder marks an open order as cancelled. Filled orders cannot be
// cancelled.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("simulator: unknown order %s", orderID)
	}
	if o.Status == domain.OrderStatusFilled {
		return fmt.Errorf("simulator: order %s already filled", orderID)
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// GetPositions returns copies of all non-flat simulated positions.
func (b *SimulatorBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	positions := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		if p.Qty != 0 {
			positions = append(positions, *p)
		}
	}
	return positions, nil
}

// GetAccount computes equity, cash, and buying power from simulated state.
// Buying power models Reg T 2x margin on cash.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	marketValue := 0.0
	for _, p := range b.positions {
		marketValue += p.MarketValue
	}
	return &domain.AccountInfo{
		Equity:      b.cash + marketValue,
		Cash:        b.cash,
		BuyingPower: b.cash * 2,
		Currency:    "USD",
	}, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
