package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"meridian/internal/domain"
)

// RiskLevel classifies the overall riskiness of the current portfolio.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskLimits holds the thresholds enforced by the RiskManager.
type RiskLimits struct {
	// MaxPositionPct is the maximum fraction of equity allowed in a single
	// position (0.10 means 10%).
	MaxPositionPct float64

	// MaxDailyLossPct is the maximum fraction of the day's starting equity
	// that may be lost before new orders are rejected.
	MaxDailyLossPct float64

	// MaxLeverage is the maximum gross exposure to equity ratio.
	MaxLeverage float64

	// MaxVaRPct is the maximum one-day 95% value-at-risk as a fraction of
	// equity.
	MaxVaRPct float64
}

// DefaultRiskLimits returns the standard limits: 10% per position, 5% daily
// loss, 2x leverage, 2% daily VaR.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionPct:  0.10,
		MaxDailyLossPct: 0.05,
		MaxLeverage:     2.0,
		MaxVaRPct:       0.02,
	}
}

// RiskReport summarizes portfolio risk at a point in time. VaR95 and
// MaxDrawdown are computed from the recorded equity history and reported
// as positive loss fractions.
type RiskReport struct {
	Level         RiskLevel `json:"level"`
	Exposure      float64   `json:"exposure"`
	Leverage      float64   `json:"leverage"`
	Concentration float64   `json:"concentration"`
	DailyLossPct  float64   `json:"daily_loss_pct"`
	VaR95         float64   `json:"var_95"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	Violations    []string  `json:"violations"`
}

// RiskManager enforces pre-trade risk rules: position sizing limits, a
// daily loss circuit breaker, and leverage caps.
type RiskManager struct {
	limits RiskLimits

	mu             sync.Mutex
	prices         map[string]float64
	dayStartEquity float64
	equityHistory  []float64
}

// Two years of daily closes.
const maxEquityHistory = 504

// NewRiskManager creates a RiskManager with the specified thresholds.
// Remaining limits take their defaults.
//
//   - maxPositionPct: maximum fraction of equity allowed in a single position
//     (e.g. 0.10 for 10%).
//   - maxDailyLossPct: maximum fraction of the day's starting equity that may
//     be lost in a single trading day (e.g. 0.02 for 2%).
func NewRiskManager(maxPositionPct, maxDailyLossPct float64) *RiskManager {
	limits := DefaultRiskLimits()
	limits.MaxPositionPct = maxPositionPct
	limits.MaxDailyLossPct = maxDailyLossPct
	return &RiskManager{
		limits: limits,
		prices: make(map[string]float64),
	}
}

// UpdatePrice records the last traded price for a symbol. Prices are used
// to estimate the notional value of market orders.
func (rm *RiskManager) UpdatePrice(symbol string, price float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.prices[symbol] = price
}

// StartDay records the equity baseline for the daily loss circuit breaker
// and appends to the equity history used for VaR and drawdown.
func (rm *RiskManager) StartDay(equity float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.dayStartEquity = equity
	rm.recordEquity(equity)
}

// RecordEquity appends a daily equity close to the trailing history.
func (rm *RiskManager) RecordEquity(equity float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.recordEquity(equity)
}

func (rm *RiskManager) recordEquity(equity float64) {
	rm.equityHistory = append(rm.equityHistory, equity)
	if len(rm.equityHistory) > maxEquityHistory {
		rm.equityHistory = rm.equityHistory[len(rm.equityHistory)-maxEquityHistory:]
	}
}

// CheckOrder evaluates whether the proposed order complies with the
// configured limits given the current account state. A nil error means the
// order may be submitted.
func (rm *RiskManager) CheckOrder(_ context.Context, order *domain.Order, account *domain.AccountInfo) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.dayStartEquity > 0 {
		loss := (rm.dayStartEquity - account.Equity) / rm.dayStartEquity
		if loss >= rm.limits.MaxDailyLossPct {
			return fmt.Errorf("daily loss %.2f%% breaches the %.2f%% limit, new orders rejected",
				loss*100, rm.limits.MaxDailyLossPct*100)
		}
	}

	notional := order.Qty * rm.referencePrice(order)
	if notional == 0 {
		return nil
	}

	if maxNotional := rm.limits.MaxPositionPct * account.Equity; notional > maxNotional {
		return fmt.Errorf("order notional %.2f exceeds position limit %.2f (%.0f%% of equity)",
			notional, maxNotional, rm.limits.MaxPositionPct*100)
	}
	if order.Side == domain.OrderSideBuy && notional > account.BuyingPower {
		return fmt.Errorf("order notional %.2f exceeds buying power %.2f", notional, account.BuyingPower)
	}
	return nil
}

// referencePrice estimates the execution price for notional checks. Caller
// holds the lock.
func (rm *RiskManager) referencePrice(order *domain.Order) float64 {
	switch {
	case order.LimitPrice > 0:
		return order.LimitPrice
	case order.StopPrice > 0:
		return order.StopPrice
	default:
		return rm.prices[order.Symbol]
	}
}

// AssessRisk computes leverage, concentration, and daily loss for the
// portfolio and classifies the overall risk level.
func (rm *RiskManager) AssessRisk(positions []domain.Position, account *domain.AccountInfo) RiskReport {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	report := RiskReport{Level: RiskLevelLow, Violations: []string{}}
	if account.Equity <= 0 {
		return report
	}

	exposure := 0.0
	maxPosition := 0.0
	for _, p := range positions {
		v := p.MarketValue
		if v < 0 {
			v = -v
		}
		exposure += v
		if v > maxPosition {
			maxPosition = v
		}
	}
	report.Exposure = exposure
	report.Leverage = exposure / account.Equity
	report.Concentration = maxPosition / account.Equity
	report.VaR95 = rm.var95()
	report.MaxDrawdown = maxDrawdown(rm.equityHistory)

	if rm.dayStartEquity > 0 {
		report.DailyLossPct = (rm.dayStartEquity - account.Equity) / rm.dayStartEquity
		if report.DailyLossPct < 0 {
			report.DailyLossPct = 0
		}
	}

	if report.Leverage > rm.limits.MaxLeverage {
		report.Violations = append(report.Violations,
			fmt.Sprintf("leverage %.2f exceeds limit %.2f", report.Leverage, rm.limits.MaxLeverage))
	}
	if report.Concentration > rm.limits.MaxPositionPct {
		report.Violations = append(report.Violations,
			fmt.Sprintf("concentration %.2f%% exceeds limit %.2f%%",
				report.Concentration*100, rm.limits.MaxPositionPct*100))
	}
	if report.DailyLossPct >= rm.limits.MaxDailyLossPct && rm.limits.MaxDailyLossPct > 0 {
		report.Violations = append(report.Violations,
			fmt.Sprintf("daily loss %.2f%% exceeds limit %.2f%%",
				report.DailyLossPct*100, rm.limits.MaxDailyLossPct*100))
	}
	if report.VaR95 > rm.limits.MaxVaRPct && rm.limits.MaxVaRPct > 0 {
		report.Violations = append(report.Violations,
			fmt.Sprintf("daily VaR %.2f%% exceeds limit %.2f%%",
				report.VaR95*100, rm.limits.MaxVaRPct*100))
	}

	switch n := len(report.Violations); {
	case n >= 3 || report.Leverage > 3:
		report.Level = RiskLevelCritical
	case n >= 2 || report.Leverage > 2:
		report.Level = RiskLevelHigh
	case n >= 1 || report.Leverage > 1.5:
		report.Level = RiskLevelMedium
	}
	return report
}

// var95 is the one-day 95% value-at-risk over the trailing equity history,
// as a positive loss fraction. Caller holds the lock.
func (rm *RiskManager) var95() float64 {
	if len(rm.equityHistory) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(rm.equityHistory)-1)
	for i := 1; i < len(rm.equityHistory); i++ {
		prev := rm.equityHistory[i-1]
		if prev != 0 {
			returns = append(returns, (rm.equityHistory[i]-prev)/prev)
		}
	}
	if len(returns) == 0 {
		return 0
	}
	v := percentile(returns, 0.05)
	if v >= 0 {
		return 0
	}
	return -v
}

// percentile returns the p-quantile of xs using linear interpolation.
func percentile(xs []float64, p float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// maxDrawdown is the largest peak-to-trough equity decline as a fraction
// of the peak.
func maxDrawdown(equity []float64) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// PositionSize suggests an order quantity that risks riskPerTrade of the
// portfolio assuming a 5% adverse move, capped by the per-position limit.
func (rm *RiskManager) PositionSize(portfolioValue, price, riskPerTrade float64) float64 {
	if price <= 0 || portfolioValue <= 0 {
		return 0
	}
	qty := (portfolioValue * riskPerTrade) / (price * 0.05)
	if maxQty := rm.limits.MaxPositionPct * portfolioValue / price; qty > maxQty {
		qty = maxQty
	}
	return qty
}
