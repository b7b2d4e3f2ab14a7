// Package meridian provides a Go SDK for the meridian-server HTTP API.
package meridian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a running meridian-server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client for the given base URL, for example
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetHTTPClient replaces the underlying HTTP client, for custom timeouts or
// transports.
func (c *Client) SetHTTPClient(hc *http.Client) {
	if hc != nil {
		c.httpClient = hc
	}
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

// Health is the server health response.
type Health struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// Status summarizes the server's wiring.
type Status struct {
	Broker     string `json:"broker"`
	Strategies int    `json:"strategies"`
	Alerts     int    `json:"alerts"`
	Symbols    int    `json:"symbols"`
}

// Bar is a single OHLCV bar.
type Bar struct {
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}

// BacktestRequest describes a backtest run. Dates are "2006-01-02".
type BacktestRequest struct {
	Strategy       string   `json:"strategy"`
	Symbols        []string `json:"symbols"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	InitialCapital float64  `json:"initial_capital,omitempty"`
}

// BacktestResult is the summary of a completed run. Detail carries the full
// equity curve and trade list as raw JSON.
type BacktestResult struct {
	ID           string          `json:"id"`
	Strategy     string          `json:"strategy"`
	Symbols      []string        `json:"symbols"`
	TotalReturn  float64         `json:"total_return"`
	SharpeRatio  float64         `json:"sharpe_ratio"`
	MaxDrawdown  float64         `json:"max_drawdown"`
	TotalTrades  int             `json:"total_trades"`
	WinRate      float64         `json:"win_rate"`
	ProfitFactor float64         `json:"profit_factor"`
	Detail       json.RawMessage `json:"detail,omitempty"`
}

// BacktestRunSummary is one row in the persisted run listing.
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

// Order mirrors the server's order record.
type Order struct {
	ID             string
	Symbol         string
	Side           string
	Type           string
	Status         string
	Qty            float64
	LimitPrice     float64
	StopPrice      float64
	FilledQty      float64
	FilledAvgPrice float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Position mirrors the server's position record.
type Position struct {
	Symbol        string
	Qty           float64
	Side          string
	AvgEntryPrice float64
	MarketValue   float64
	UnrealizedPL  float64
	RealizedPL    float64
}

// RiskReport is the portfolio risk assessment.
type RiskReport struct {
	Level         string   `json:"level"`
	Exposure      float64  `json:"exposure"`
	Leverage      float64  `json:"leverage"`
	Concentration float64  `json:"concentration"`
	DailyLossPct  float64  `json:"daily_loss_pct"`
	VaR95         float64  `json:"var_95"`
	MaxDrawdown   float64  `json:"max_drawdown"`
	Violations    []string `json:"violations"`
}

// MarketCondition is the analyzer's classification of recent market data.
type MarketCondition struct {
	Trend      string `json:"trend"`
	Volatility string `json:"volatility"`
	Volume     string `json:"volume"`
	Momentum   string `json:"momentum"`
	RSILevel   string `json:"rsi_level"`
}

// Recommendation is a suggested strategy for the current market condition.
type Recommendation struct {
	Strategy       string             `json:"strategy"`
	Confidence     float64            `json:"confidence"`
	ExpectedProfit float64            `json:"expected_profit"`
	RiskLevel      string             `json:"risk_level"`
	Symbols        []string           `json:"symbols"`
	Parameters     map[string]float64 `json:"parameters"`
}

// ConditionReport is the full analyzer response.
type ConditionReport struct {
	Symbols         []string         `json:"symbols"`
	Days            int              `json:"days"`
	Condition       MarketCondition  `json:"condition"`
	Recommendations []Recommendation `json:"recommendations"`
}

// AlertRequest is the payload for creating an alert.
type AlertRequest struct {
	Symbol    string         `json:"symbol"`
	Type      string         `json:"type"`
	Condition AlertCondition `json:"condition"`
	Priority  string         `json:"priority,omitempty"`
	Cooldown  int            `json:"cooldown_mins,omitempty"`
}

// AlertCondition holds the per-type alert parameters; unused fields stay zero.
type AlertCondition struct {
	Price            float64 `json:"price,omitempty"`
	VolumeMultiplier float64 `json:"volume_multiplier,omitempty"`
	RSIThreshold     float64 `json:"rsi_threshold,omitempty"`
	LossPct          float64 `json:"loss_pct,omitempty"`
	GainPct          float64 `json:"gain_pct,omitempty"`
	Metric           string  `json:"metric,omitempty"`
	Threshold        float64 `json:"threshold,omitempty"`
}

// Alert mirrors the server's alert record.
type Alert struct {
	ID           string         `json:"id"`
	Symbol       string         `json:"symbol"`
	Type         string         `json:"type"`
	Condition    AlertCondition `json:"condition"`
	Priority     string         `json:"priority"`
	Enabled      bool           `json:"enabled"`
	CooldownMins int            `json:"cooldown_mins"`
	TriggerCount int            `json:"trigger_count"`
}

// AlertTrigger is one fired alert in the history.
type AlertTrigger struct {
	AlertID   string             `json:"alert_id"`
	Symbol    string             `json:"symbol"`
	Type      string             `json:"type"`
	Message   string             `json:"message"`
	Data      map[string]float64 `json:"data,omitempty"`
	Priority  string             `json:"priority"`
	Timestamp time.Time          `json:"timestamp"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meridian: server returned %d: %s", e.StatusCode, e.Message)
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, "GET", "/api/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns a summary of the server's configured components.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.do(ctx, "GET", "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Strategies lists the registered strategy names.
func (c *Client) Strategies(ctx context.Context) ([]string, error) {
	var out struct {
		Strategies []string `json:"strategies"`
	}
	if err := c.do(ctx, "GET", "/api/strategies", nil, &out); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

// LoadBars uploads historical bars for a symbol and returns the stored count.
func (c *Client) LoadBars(ctx context.Context, symbol string, bars []Bar) (int, error) {
	in := struct {
		Bars []Bar `json:"bars"`
	}{Bars: bars}
	var out struct {
		Loaded int `json:"loaded"`
	}
	path := "/api/backtest/data/" + url.PathEscape(symbol)
	if err := c.do(ctx, "POST", path, in, &out); err != nil {
		return 0, err
	}
	return out.Loaded, nil
}

// RunBacktest executes a backtest and returns its result.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestResult, error) {
	var out BacktestResult
	if err := c.do(ctx, "POST", "/api/backtest/run", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBacktestRuns returns recent persisted runs, newest first.
func (c *Client) ListBacktestRuns(ctx context.Context, limit int) ([]BacktestRunSummary, error) {
	path := "/api/backtest/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []BacktestRunSummary
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBacktestRun fetches a persisted run with its full result payload.
func (c *Client) GetBacktestRun(ctx context.Context, id string) (*BacktestResult, error) {
	var out BacktestResult
	path := "/api/backtest/runs/" + url.PathEscape(id)
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarketCondition analyzes recent bars for the given symbols. days <= 0 uses
// the server default lookback.
func (c *Client) MarketCondition(ctx context.Context, symbols []string, days int) (*ConditionReport, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	var out ConditionReport
	if err := c.do(ctx, "GET", "/api/analyzer/condition?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RiskReport returns the current portfolio risk assessment.
func (c *Client) RiskReport(ctx context.Context) (*RiskReport, error) {
	var out RiskReport
	if err := c.do(ctx, "GET", "/api/portfolio/risk", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Positions returns current open positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var out []Position
	if err := c.do(ctx, "GET", "/api/positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitOrder places a new order.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var out Order
	if err := c.do(ctx, "POST", "/api/orders", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels a pending order by ID.
func (c *Client) CancelOrder(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/api/orders/"+url.PathEscape(id), nil, nil)
}

// CreateAlert registers a new alert.
func (c *Client) CreateAlert(ctx context.Context, req AlertRequest) (*Alert, error) {
	var out Alert
	if err := c.do(ctx, "POST", "/api/alerts", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAlerts returns all registered alerts.
func (c *Client) ListAlerts(ctx context.Context) ([]Alert, error) {
	var out []Alert
	if err := c.do(ctx, "GET", "/api/alerts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAlert removes an alert by ID.
func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/api/alerts/"+url.PathEscape(id), nil, nil)
}

// AlertHistory returns recently fired alerts, up to limit.
func (c *Client) AlertHistory(ctx context.Context, limit int) ([]AlertTrigger, error) {
	path := "/api/alerts/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []AlertTrigger
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------

// do performs a request and decodes the JSON response into out (if non-nil).
// Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("meridian: encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("meridian: building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("meridian: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("meridian: decoding response: %w", err)
	}
	return nil
}
