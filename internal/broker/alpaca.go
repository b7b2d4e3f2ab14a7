package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"meridian/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// AlpacaBroker implements the Broker interface against the Alpaca trading
// API. Point baseURL at the paper endpoint for paper trading.
type AlpacaBroker struct {
	client *alpaca.Client
}

// NewAlpacaBroker creates an AlpacaBroker with the given credentials and
// API endpoint.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string) *AlpacaBroker {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return &AlpacaBroker{client: client}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// SubmitOrder places the order as a day order and returns the accepted
// order with broker-assigned ID and status.
func (b *AlpacaBroker) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	qty := decimal.NewFromFloat(order.Qty)
	req := alpaca.PlaceOrderRequest{
		Symbol:      order.Symbol,
		Qty:         &qty,
		Side:        alpacaSide(order.Side),
		Type:        alpacaOrderType(order.Type),
		TimeInForce: alpaca.Day,
	}
	if order.Type == domain.OrderTypeLimit || order.Type == domain.OrderTypeStopLimit {
		limit := decimal.NewFromFloat(order.LimitPrice)
		req.LimitPrice = &limit
	}
	if order.Type == domain.OrderTypeStop || order.Type == domain.OrderTypeStopLimit {
		stop := decimal.NewFromFloat(order.StopPrice)
		req.StopPrice = &stop
	}

	placed, err := b.client.PlaceOrder(req)
	if err != nil {
		return nil, fmt.Errorf("alpaca: place order %s %s: %w", order.Side, order.Symbol, err)
	}
	return orderFromAlpaca(placed), nil
}

// CancelOrder requests cancellation of an open order.
func (b *AlpacaBroker) CancelOrder(_ context.Context, orderID string) error {
	if err := b.client.CancelOrder(orderID); err != nil {
		return fmt.Errorf("alpaca: cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetPositions returns all open positions in the account.
func (b *AlpacaBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	raw, err := b.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("alpaca: get positions: %w", err)
	}
	positions := make([]domain.Position, 0, len(raw))
	for i := range raw {
		positions = append(positions, positionFromAlpaca(&raw[i]))
	}
	return positions, nil
}

// GetAccount returns the account's equity, cash, and buying power.
func (b *AlpacaBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	acct, err := b.client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("alpaca: get account: %w", err)
	}
	return &domain.AccountInfo{
		Equity:      acct.Equity.InexactFloat64(),
		Cash:        acct.Cash.InexactFloat64(),
		BuyingPower: acct.BuyingPower.InexactFloat64(),
		Currency:    acct.Currency,
	}, nil
}

// ---

func alpacaSide(side domain.OrderSide) alpaca.Side {
	if side == domain.OrderSideSell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func alpacaOrderType(t domain.OrderType) alpaca.OrderType {
	switch t {
	case domain.OrderTypeLimit:
		return alpaca.Limit
	case domain.OrderTypeStop:
		return alpaca.Stop
	case domain.OrderTypeStopLimit:
		return alpaca.StopLimit
	default:
		return alpaca.Market
	}
}

func domainOrderType(t alpaca.OrderType) domain.OrderType {
	switch t {
	case alpaca.Limit:
		return domain.OrderTypeLimit
	case alpaca.Stop:
		return domain.OrderTypeStop
	case alpaca.StopLimit:
		return domain.OrderTypeStopLimit
	default:
		return domain.OrderTypeMarket
	}
}

func domainOrderStatus(status string) domain.OrderStatus {
	switch status {
	case "filled":
		return domain.OrderStatusFilled
	case "canceled", "expired", "rejected":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusPending
	}
}

func orderFromAlpaca(o *alpaca.Order) *domain.Order {
	out := &domain.Order{
		ID:        o.ID,
		Symbol:    o.Symbol,
		Type:      domainOrderType(o.Type),
		Status:    domainOrderStatus(string(o.Status)),
		FilledQty: o.FilledQty.InexactFloat64(),
		CreatedAt: o.CreatedAt.UTC(),
		UpdatedAt: o.UpdatedAt.UTC(),
	}
	out.Side = domain.OrderSideBuy
	if o.Side == alpaca.Sell {
		out.Side = domain.OrderSideSell
	}
	if o.Qty != nil {
		out.Qty = o.Qty.InexactFloat64()
	}
	if o.LimitPrice != nil {
		out.LimitPrice = o.LimitPrice.InexactFloat64()
	}
	if o.StopPrice != nil {
		out.StopPrice = o.StopPrice.InexactFloat64()
	}
	if o.FilledAvgPrice != nil {
		out.FilledAvgPrice = o.FilledAvgPrice.InexactFloat64()
	}
	if o.UpdatedAt.IsZero() {
		out.UpdatedAt = time.Now().UTC()
	}
	return out
}

func positionFromAlpaca(p *alpaca.Position) domain.Position {
	out := domain.Position{
		Symbol:        p.Symbol,
		Qty:           p.Qty.InexactFloat64(),
		AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
	}
	out.Side = domain.PositionSideLong
	if p.Side == "short" || out.Qty < 0 {
		out.Side = domain.PositionSideShort
	}
	if p.MarketValue != nil {
		out.MarketValue = p.MarketValue.InexactFloat64()
	}
	if p.UnrealizedPL != nil {
		out.UnrealizedPL = p.UnrealizedPL.InexactFloat64()
	}
	return out
}
