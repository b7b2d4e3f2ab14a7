// Package domain defines the core types shared across the meridian platform:
// bars, trades, orders, positions, signals, and account state.
package domain

import "time"

// Market identifies a trading venue region.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Bar is a single OHLCV record for a symbol at a timestamp.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Trade is a single trade tick.
type Trade struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
	Size      int64
	Exchange  string
	ID        string
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a request to buy or sell a quantity of a symbol.
type Order struct {
	ID             string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Status         OrderStatus
	Qty            float64
	LimitPrice     float64 // limit orders only
	StopPrice      float64 // stop orders only
	FilledQty      float64
	FilledAvgPrice float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PositionSide indicates long or short exposure.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Position is the current holding in a single symbol.
type Position struct {
	Symbol        string
	Qty           float64 // signed: >0 long, <0 short
	Side          PositionSide
	AvgEntryPrice float64
	MarketValue   float64
	UnrealizedPL  float64
	RealizedPL    float64
}

// SignalType is the action a strategy signal suggests.
type SignalType string

const (
	SignalTypeBuy  SignalType = "buy"
	SignalTypeSell SignalType = "sell"
)

// Signal is a trading signal emitted by a strategy.
type Signal struct {
	ID         int64
	StrategyID string
	Symbol     string
	Type       SignalType
	Strength   float64 // 0-1 confidence
	Qty        float64
	Metadata   map[string]string
	CreatedAt  time.Time
}

// AccountInfo is a snapshot of account-level financial state.
type AccountInfo struct {
	Equity      float64
	Cash        float64
	BuyingPower float64
	Currency    string
}
