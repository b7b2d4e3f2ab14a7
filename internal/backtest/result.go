package backtest

import "time"

// EquitySnapshot is one point on the equity curve.
type EquitySnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	PortfolioValue float64   `json:"portfolio_value"`
	Cash           float64   `json:"cash"`
	MarketValue    float64   `json:"market_value"`
	RealizedPnL    float64   `json:"realized_pnl"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	TotalPnL       float64   `json:"total_pnl"`
	DailyReturn    float64   `json:"daily_return"` // vs previous snapshot, 0 for the first
}

// PositionsSnapshot records all non-zero positions at one timestamp.
type PositionsSnapshot struct {
	Timestamp time.Time           `json:"timestamp"`
	Positions map[string]Position `json:"positions"`
}

// MonthlyReturn is the return over one calendar month of the run.
type MonthlyReturn struct {
	Month      string  `json:"month"` // YYYY-MM
	Return     float64 `json:"return"`
	StartValue float64 `json:"start_value"`
	EndValue   float64 `json:"end_value"`
}

// Metrics is the performance report derived from one completed run.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	LargestWin       float64 `json:"largest_win"`
	LargestLoss      float64 `json:"largest_loss"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	VaR95            float64 `json:"var_95"`
	CVaR95           float64 `json:"cvar_95"`
}

// Result aggregates everything a completed backtest run produced.
type Result struct {
	StartDate        time.Time           `json:"start_date"`
	EndDate          time.Time           `json:"end_date"`
	InitialCapital   float64             `json:"initial_capital"`
	FinalCapital     float64             `json:"final_capital"`
	Metrics          Metrics             `json:"metrics"`
	Trades           []Order             `json:"trades"` // filled orders only
	EquityCurve      []EquitySnapshot    `json:"equity_curve"`
	PositionsHistory []PositionsSnapshot `json:"positions_history"`
	MonthlyReturns   []MonthlyReturn     `json:"monthly_returns"`
}
