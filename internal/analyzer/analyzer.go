// Package analyzer classifies market conditions from recent bar history and
// recommends strategies suited to them.
package analyzer

import (
	"log/slog"
	"math"
	"sort"

	"meridian/internal/domain"
)

// Trend is the overall market direction.
type Trend string

const (
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendSideways Trend = "sideways"
)

// Band grades a magnitude such as volatility or volume.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// Momentum grades the strength of the recent move.
type Momentum string

const (
	MomentumStrong  Momentum = "strong"
	MomentumWeak    Momentum = "weak"
	MomentumNeutral Momentum = "neutral"
)

// RSILevel grades the market-wide RSI reading.
type RSILevel string

const (
	RSIOversold   RSILevel = "oversold"
	RSIOverbought RSILevel = "overbought"
	RSINeutral    RSILevel = "neutral"
)

// MarketCondition summarizes the state of the market across symbols.
type MarketCondition struct {
	Trend      Trend    `json:"trend"`
	Volatility Band     `json:"volatility"`
	Volume     Band     `json:"volume"`
	Momentum   Momentum `json:"momentum"`
	RSILevel   RSILevel `json:"rsi_level"`
}

// Recommendation scores one strategy against a market condition.
type Recommendation struct {
	Strategy       string             `json:"strategy"`
	Confidence     float64            `json:"confidence"`
	ExpectedProfit float64            `json:"expected_profit"`
	RiskLevel      Band               `json:"risk_level"`
	Symbols        []string           `json:"symbols"`
	Parameters     map[string]float64 `json:"parameters"`
}

// weights captures how strongly a strategy depends on each market feature.
type weights struct {
	trend      float64
	volatility float64
	volume     float64
}

// Analyzer evaluates market conditions and ranks the registered strategies.
type Analyzer struct {
	log     *slog.Logger
	weights map[string]weights
}

// New creates an Analyzer with the built-in strategy weight table.
func New(log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{
		log: log.With("component", "analyzer"),
		weights: map[string]weights{
			"sma-cross":          {trend: 0.8, volatility: 0.3, volume: 0.5},
			"ema-cross":          {trend: 0.9, volatility: 0.4, volume: 0.6},
			"rsi":                {trend: 0.2, volatility: 0.8, volume: 0.4},
			"bollinger":          {trend: 0.3, volatility: 0.9, volume: 0.5},
			"macd":               {trend: 0.9, volatility: 0.5, volume: 0.7},
			"support-resistance": {trend: 0.6, volatility: 0.7, volume: 0.8},
		},
	}
}

// AnalyzeCondition classifies trend, volatility, volume, momentum, and RSI
// from recent bar history keyed by symbol.
func (a *Analyzer) AnalyzeCondition(bars map[string][]domain.Bar) MarketCondition {
	cond := MarketCondition{
		Trend:      a.trend(bars),
		Volatility: a.volatility(bars),
		Volume:     a.volume(bars),
		Momentum:   a.momentum(bars),
		RSILevel:   a.rsiLevel(bars),
	}
	a.log.Debug("market condition",
		"trend", cond.Trend, "volatility", cond.Volatility,
		"volume", cond.Volume, "momentum", cond.Momentum, "rsi", cond.RSILevel)
	return cond
}

func (a *Analyzer) trend(bars map[string][]domain.Bar) Trend {
	var returns []float64
	for _, series := range bars {
		for i := 1; i < len(series); i++ {
			prev := series[i-1].Close
			if prev != 0 {
				returns = append(returns, (series[i].Close-prev)/prev)
			}
		}
	}
	if len(returns) == 0 {
		return TrendSideways
	}
	avg := mean(returns)
	switch {
	case avg > 0.001:
		return TrendBullish
	case avg < -0.001:
		return TrendBearish
	default:
		return TrendSideways
	}
}

func (a *Analyzer) volatility(bars map[string][]domain.Bar) Band {
	var vols []float64
	for _, series := range bars {
		if len(series) < 20 {
			continue
		}
		var returns []float64
		for i := 1; i < len(series); i++ {
			prev := series[i-1].Close
			if prev != 0 {
				returns = append(returns, (series[i].Close-prev)/prev)
			}
		}
		if len(returns) >= 2 {
			vols = append(vols, stdev(returns)*math.Sqrt(252))
		}
	}
	if len(vols) == 0 {
		return BandMedium
	}
	switch avg := mean(vols); {
	case avg > 0.25:
		return BandHigh
	case avg < 0.15:
		return BandLow
	default:
		return BandMedium
	}
}

// volume compares recent activity against the full-window average.
func (a *Analyzer) volume(bars map[string][]domain.Bar) Band {
	var ratios []float64
	for _, series := range bars {
		if len(series) < 10 {
			continue
		}
		total := 0.0
		for _, b := range series {
			total += float64(b.Volume)
		}
		baseline := total / float64(len(series))
		if baseline == 0 {
			continue
		}
		recent := 0.0
		for _, b := range series[len(series)-5:] {
			recent += float64(b.Volume)
		}
		ratios = append(ratios, recent/5/baseline)
	}
	if len(ratios) == 0 {
		return BandMedium
	}
	switch avg := mean(ratios); {
	case avg > 1.5:
		return BandHigh
	case avg < 0.5:
		return BandLow
	default:
		return BandMedium
	}
}

func (a *Analyzer) momentum(bars map[string][]domain.Bar) Momentum {
	var rocs []float64
	for _, series := range bars {
		if len(series) < 10 {
			continue
		}
		base := series[len(series)-10].Close
		if base != 0 {
			rocs = append(rocs, (series[len(series)-1].Close-base)/base)
		}
	}
	if len(rocs) == 0 {
		return MomentumNeutral
	}
	switch avg := mean(rocs); {
	case avg > 0.02:
		return MomentumStrong
	case avg < -0.02:
		return MomentumWeak
	default:
		return MomentumNeutral
	}
}

func (a *Analyzer) rsiLevel(bars map[string][]domain.Bar) RSILevel {
	var values []float64
	for _, series := range bars {
		if len(series) < 14 {
			continue
		}
		closes := make([]float64, 14)
		for i, b := range series[len(series)-14:] {
			closes[i] = b.Close
		}
		values = append(values, simpleRSI(closes))
	}
	if len(values) == 0 {
		return RSINeutral
	}
	switch avg := mean(values); {
	case avg < 30:
		return RSIOversold
	case avg > 70:
		return RSIOverbought
	default:
		return RSINeutral
	}
}

// simpleRSI computes an unweighted RSI over the whole window.
func simpleRSI(prices []float64) float64 {
	if len(prices) < 2 {
		return 50
	}
	var gain, loss float64
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	n := float64(len(prices) - 1)
	avgGain, avgLoss := gain/n, loss/n
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Recommend ranks the known strategies against the market condition and
// returns the top five with suggested symbols and parameters.
func (a *Analyzer) Recommend(cond MarketCondition, symbols []string, capital float64) []Recommendation {
	recs := make([]Recommendation, 0, len(a.weights))
	for name, w := range a.weights {
		score := 0.0

		switch {
		case cond.Trend == TrendBullish && w.trend > 0.7:
			score += w.trend * 0.3
		case cond.Trend == TrendBearish && w.trend > 0.7:
			score += w.trend * 0.2
		case cond.Trend == TrendSideways && w.trend < 0.5:
			score += (1 - w.trend) * 0.3
		}

		switch {
		case cond.Volatility == BandHigh && w.volatility > 0.7:
			score += w.volatility * 0.4
		case cond.Volatility == BandLow && w.volatility < 0.5:
			score += (1 - w.volatility) * 0.3
		}

		switch {
		case cond.Volume == BandHigh && w.volume > 0.6:
			score += w.volume * 0.2
		case cond.Volume == BandLow && w.volume < 0.4:
			score += (1 - w.volume) * 0.1
		}

		if (cond.RSILevel == RSIOversold || cond.RSILevel == RSIOverbought) &&
			(name == "rsi" || name == "bollinger") {
			score += 0.2
		}

		recs = append(recs, Recommendation{
			Strategy:       name,
			Confidence:     math.Min(score, 1.0),
			ExpectedProfit: capital * profitRate(name, cond),
			RiskLevel:      riskLevel(name),
			Symbols:        symbols,
			Parameters:     parameters(name, cond),
		})
	}

	// Rank on confidence blended with the profit rate, not the dollar
	// figure, so the market condition decides the order.
	rank := func(r Recommendation) float64 {
		return r.Confidence*0.7 + profitRate(r.Strategy, cond)*0.3
	}
	sort.Slice(recs, func(i, j int) bool {
		si, sj := rank(recs[i]), rank(recs[j])
		if si != sj {
			return si > sj
		}
		return recs[i].Strategy < recs[j].Strategy
	})
	if len(recs) > 5 {
		recs = recs[:5]
	}
	return recs
}

// profitRate is the expected return fraction for a strategy under the
// given condition.
func profitRate(name string, cond MarketCondition) float64 {
	baseRates := map[string]float64{
		"sma-cross":          0.05,
		"ema-cross":          0.06,
		"rsi":                0.08,
		"bollinger":          0.07,
		"macd":               0.06,
		"support-resistance": 0.09,
	}
	rate, ok := baseRates[name]
	if !ok {
		rate = 0.05
	}
	if cond.Trend != TrendSideways &&
		(name == "sma-cross" || name == "ema-cross" || name == "macd") {
		rate *= 1.3
	}
	return rate
}

func riskLevel(name string) Band {
	switch name {
	case "support-resistance", "bollinger":
		return BandMedium
	default:
		return BandLow
	}
}

// parameters returns tuned strategy parameters, widening or tightening
// oscillator thresholds with volatility.
func parameters(name string, cond MarketCondition) map[string]float64 {
	base := map[string]map[string]float64{
		"sma-cross":          {"short": 20, "long": 50},
		"ema-cross":          {"short": 12, "long": 26},
		"rsi":                {"period": 14, "oversold": 30, "overbought": 70},
		"bollinger":          {"period": 20, "std_dev": 2.0},
		"macd":               {"fast": 12, "slow": 26, "signal": 9},
		"support-resistance": {"lookback": 50, "breakout_threshold": 0.01},
	}
	params := make(map[string]float64)
	for k, v := range base[name] {
		params[k] = v
	}
	switch cond.Volatility {
	case BandHigh:
		if name == "rsi" {
			params["oversold"] = 25
			params["overbought"] = 75
		}
		if name == "bollinger" {
			params["std_dev"] = 2.5
		}
	case BandLow:
		if name == "rsi" {
			params["oversold"] = 35
			params["overbought"] = 65
		}
	}
	return params
}

// ---

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	total := 0.0
	for _, x := range xs {
		d := x - m
		total += d * d
	}
	return math.Sqrt(total / float64(len(xs)-1))
}
