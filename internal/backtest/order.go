package backtest

import (
	"fmt"
	"time"

	"meridian/internal/domain"
)

// Order is a simulated order inside a backtest run. It transitions
// pending -> filled (or stays pending forever); never back.
type Order struct {
	ID             string
	Timestamp      time.Time
	Symbol         string
	Side           domain.OrderSide
	Type           domain.OrderType
	Quantity       int64
	LimitPrice     float64 // limit and stop-limit orders
	StopPrice      float64 // stop and stop-limit orders
	FilledPrice    float64
	FilledQuantity int64
	Status         domain.OrderStatus
	Commission     float64
	Slippage       float64
}

// orderID builds a deterministic order identifier from the order's symbol,
// placement timestamp, and its index in the order list.
func orderID(symbol string, ts time.Time, seq int) string {
	return fmt.Sprintf("%s_%s_%d", symbol, ts.Format("20060102_150405"), seq)
}
