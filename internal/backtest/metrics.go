package backtest

import (
	"math"
	"sort"
	"time"

	"meridian/internal/domain"
)

const (
	// riskFreeRate is the annual risk-free rate used for Sharpe and
	// Sortino excess-return calculations.
	riskFreeRate = 0.05

	// tradingDaysPerYear annualizes daily-return volatility.
	tradingDaysPerYear = 252

	daysPerYear = 365.25
)

// calculateMetrics derives the full performance report from the equity
// curve, daily returns, and filled-order list. It is a pure function of
// its inputs; every ratio falls back to 0 (never NaN) when its denominator
// is zero or the data is insufficient, so the report is always well-formed.
func calculateMetrics(curve []EquitySnapshot, dailyReturns []float64, filled []Order, start, end time.Time) Metrics {
	if len(curve) == 0 {
		return Metrics{}
	}

	initial := curve[0].PortfolioValue
	final := curve[len(curve)-1].PortfolioValue
	totalReturn := (final - initial) / initial

	// Annualized return over the inclusive calendar span of the run.
	days := end.Sub(start).Hours() / 24
	years := days / daysPerYear
	annualized := 0.0
	if years > 0 {
		annualized = math.Pow(final/initial, 1/years) - 1
	}

	volatility := stdev(dailyReturns) * math.Sqrt(tradingDaysPerYear)

	excess := annualized - riskFreeRate
	sharpe := 0.0
	if volatility > 0 {
		sharpe = excess / volatility
	}

	maxDD := maxDrawdown(curve)

	// Round-trip returns: BUY and SELL fills paired per symbol in FIFO
	// order, each pair's return measured on fill prices.
	tradeReturns := pairTrades(filled)

	var wins, losses []float64
	for _, r := range tradeReturns {
		if r > 0 {
			wins = append(wins, r)
		} else if r < 0 {
			losses = append(losses, r)
		}
	}

	totalTrades := len(filled)
	winRate := 0.0
	if totalTrades > 0 {
		winRate = float64(len(wins)) / float64(totalTrades)
	}

	grossProfit := sum(wins)
	grossLoss := math.Abs(sum(losses))
	profitFactor := math.Inf(1)
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
	}

	calmar := 0.0
	if maxDD > 0 {
		calmar = annualized / maxDD
	}

	var downside []float64
	for _, r := range dailyReturns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	downsideVol := stdev(downside) * math.Sqrt(tradingDaysPerYear)
	sortino := 0.0
	if downsideVol > 0 {
		sortino = excess / downsideVol
	}

	var var95, cvar95 float64
	if len(dailyReturns) > 0 {
		var95 = percentile(dailyReturns, 5)
		var tail []float64
		for _, r := range dailyReturns {
			if r <= var95 {
				tail = append(tail, r)
			}
		}
		cvar95 = mean(tail)
	}

	return Metrics{
		TotalReturn:      totalReturn,
		AnnualizedReturn: annualized,
		Volatility:       volatility,
		SharpeRatio:      sharpe,
		MaxDrawdown:      maxDD,
		WinRate:          winRate,
		ProfitFactor:     profitFactor,
		TotalTrades:      totalTrades,
		WinningTrades:    len(wins),
		LosingTrades:     len(losses),
		AvgWin:           mean(wins),
		AvgLoss:          mean(losses),
		LargestWin:       maxOf(wins),
		LargestLoss:      minOf(losses),
		CalmarRatio:      calmar,
		SortinoRatio:     sortino,
		VaR95:            var95,
		CVaR95:           cvar95,
	}
}

// pairTrades matches BUY fills to subsequent SELL fills per symbol in FIFO
// order and returns each round trip's fractional return. Unmatched fills
// (open positions, sells into shorts) contribute nothing.
func pairTrades(filled []Order) []float64 {
	openBuys := make(map[string][]float64) // symbol -> queued buy fill prices

	var returns []float64
	for i := range filled {
		o := &filled[i]
		switch o.Side {
		case domain.OrderSideBuy:
			openBuys[o.Symbol] = append(openBuys[o.Symbol], o.FilledPrice)
		case domain.OrderSideSell:
			queue := openBuys[o.Symbol]
			if len(queue) == 0 {
				continue
			}
			buyPrice := queue[0]
			openBuys[o.Symbol] = queue[1:]
			returns = append(returns, (o.FilledPrice-buyPrice)/buyPrice)
		}
	}
	return returns
}

// maxDrawdown runs the peak-tracking algorithm over the equity curve and
// returns the largest peak-to-trough decline as a fraction of the peak.
func maxDrawdown(curve []EquitySnapshot) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].PortfolioValue
	maxDD := 0.0
	for i := range curve {
		v := curve[i].PortfolioValue
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

// calculateMonthlyReturns groups the equity curve by calendar month and
// reports the first-to-last change within each month. Months with a single
// snapshot are omitted.
func calculateMonthlyReturns(curve []EquitySnapshot) []MonthlyReturn {
	byMonth := make(map[string][]float64)
	var order []string
	for i := range curve {
		key := curve[i].Timestamp.Format("2006-01")
		if _, ok := byMonth[key]; !ok {
			order = append(order, key)
		}
		byMonth[key] = append(byMonth[key], curve[i].PortfolioValue)
	}

	var out []MonthlyReturn
	for _, month := range order {
		values := byMonth[month]
		if len(values) < 2 {
			continue
		}
		first, last := values[0], values[len(values)-1]
		out = append(out, MonthlyReturn{
			Month:      month,
			Return:     (last - first) / first,
			StartValue: first,
			EndValue:   last,
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Small statistics helpers
// ---------------------------------------------------------------------------

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return sum(xs) / float64(len(xs))
}

// stdev is the population standard deviation.
func stdev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// percentile computes the p-th percentile (0-100) with linear interpolation
// between closest ranks.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func maxOf(xs []float64) float64 {
	m := 0.0
	for i, x := range xs {
		if i == 0 || x > m {
			m = x
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	m := 0.0
	for i, x := range xs {
		if i == 0 || x < m {
			m = x
		}
	}
	return m
}
