// Package httpapi provides the HTTP and WebSocket API for the trading
// platform: backtests, orders, positions, risk, analysis, and alerts.
package httpapi

import (
	"time"

	"meridian/internal/alerts"
	"meridian/internal/domain"
)

// HealthResponse is returned by /api/health.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// StatusResponse is returned by /api/status.
type StatusResponse struct {
	Broker     string `json:"broker"`
	Strategies int    `json:"strategies"`
	Alerts     int    `json:"alerts"`
	Symbols    int    `json:"symbols"`
}

// StrategiesResponse lists registered strategy names.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

// BarJSON is the wire format for a single OHLCV bar.
type BarJSON struct {
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}

// LoadDataRequest carries bars to load for a symbol.
type LoadDataRequest struct {
	Bars []BarJSON `json:"bars"`
}

// LoadDataResponse reports how many bars were stored.
type LoadDataResponse struct {
	Symbol string `json:"symbol"`
	Loaded int    `json:"loaded"`
}

// BacktestRequest describes a backtest run. Dates are "2006-01-02".
type BacktestRequest struct {
	Strategy       string   `json:"strategy"`
	Symbols        []string `json:"symbols"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	InitialCapital float64  `json:"initial_capital,omitempty"`
}

// BacktestRunSummary is one row in the run listing.
type BacktestRunSummary struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Symbols   []string  `json:"symbols"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderRequest is the payload for placing an order.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	Qty        float64 `json:"qty"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	StopPrice  float64 `json:"stop_price,omitempty"`
}

// AlertRequest is the payload for creating an alert.
type AlertRequest struct {
	Symbol    string           `json:"symbol"`
	Type      alerts.Type      `json:"type"`
	Condition alerts.Condition `json:"condition"`
	Priority  alerts.Priority  `json:"priority"`
	Cooldown  int              `json:"cooldown_mins,omitempty"`
}

// ConditionRequest parameters come from the query string; this is the
// response wrapper for /api/analyzer/condition.
type ConditionResponse struct {
	Symbols         []string `json:"symbols"`
	Days            int      `json:"days"`
	Condition       any      `json:"condition"`
	Recommendations any      `json:"recommendations,omitempty"`
}

// barFromJSON converts a wire bar for a symbol into the domain type.
func barFromJSON(symbol string, b BarJSON) domain.Bar {
	return domain.Bar{
		Symbol:     symbol,
		Timestamp:  b.Timestamp,
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}
