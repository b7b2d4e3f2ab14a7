package analyzer

import (
	"math"
	"testing"
	"time"

	"meridian/internal/domain"
)

func barsFromCloses(closes []float64, volume int64) []domain.Bar {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: base.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
			Volume: volume,
		}
	}
	return bars
}

func rampCloses(start, step float64, n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + step*float64(i)
	}
	return closes
}

func TestAnalyzeConditionTrend(t *testing.T) {
	a := New(nil)

	tests := []struct {
		name   string
		closes []float64
		want   Trend
	}{
		{"bullish", rampCloses(100, 1, 30), TrendBullish},
		{"bearish", rampCloses(130, -1, 30), TrendBearish},
		{"sideways", rampCloses(100, 0, 30), TrendSideways},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := a.AnalyzeCondition(map[string][]domain.Bar{
				"TEST": barsFromCloses(tt.closes, 1000),
			})
			if cond.Trend != tt.want {
				t.Errorf("trend = %s, want %s", cond.Trend, tt.want)
			}
		})
	}

	empty := a.AnalyzeCondition(nil)
	if empty.Trend != TrendSideways || empty.Volatility != BandMedium ||
		empty.Momentum != MomentumNeutral || empty.RSILevel != RSINeutral {
		t.Errorf("empty input should be all-neutral, got %+v", empty)
	}
}

func TestAnalyzeConditionVolatility(t *testing.T) {
	a := New(nil)

	// Alternating +/-3% daily swings annualize well above 25%.
	choppy := make([]float64, 30)
	choppy[0] = 100
	for i := 1; i < len(choppy); i++ {
		if i%2 == 1 {
			choppy[i] = choppy[i-1] * 1.03
		} else {
			choppy[i] = choppy[i-1] * 0.97
		}
	}
	cond := a.AnalyzeCondition(map[string][]domain.Bar{"X": barsFromCloses(choppy, 1000)})
	if cond.Volatility != BandHigh {
		t.Errorf("volatility = %s, want high", cond.Volatility)
	}

	// A flat series has zero stdev.
	cond = a.AnalyzeCondition(map[string][]domain.Bar{"X": barsFromCloses(rampCloses(100, 0, 30), 1000)})
	if cond.Volatility != BandLow {
		t.Errorf("volatility = %s, want low", cond.Volatility)
	}

	// Fewer than 20 bars cannot be graded.
	cond = a.AnalyzeCondition(map[string][]domain.Bar{"X": barsFromCloses(rampCloses(100, 0, 10), 1000)})
	if cond.Volatility != BandMedium {
		t.Errorf("volatility with short history = %s, want medium", cond.Volatility)
	}
}

func TestAnalyzeConditionMomentumAndRSI(t *testing.T) {
	a := New(nil)

	// Strong uptrend: +1/day on 100 is far beyond 2% over 10 bars, and
	// every change is a gain so the RSI saturates at 100.
	up := a.AnalyzeCondition(map[string][]domain.Bar{"X": barsFromCloses(rampCloses(100, 1, 30), 1000)})
	if up.Momentum != MomentumStrong {
		t.Errorf("momentum = %s, want strong", up.Momentum)
	}
	if up.RSILevel != RSIOverbought {
		t.Errorf("rsi level = %s, want overbought", up.RSILevel)
	}

	down := a.AnalyzeCondition(map[string][]domain.Bar{"X": barsFromCloses(rampCloses(130, -1, 30), 1000)})
	if down.Momentum != MomentumWeak {
		t.Errorf("momentum = %s, want weak", down.Momentum)
	}
	if down.RSILevel != RSIOversold {
		t.Errorf("rsi level = %s, want oversold", down.RSILevel)
	}
}

func TestAnalyzeConditionVolume(t *testing.T) {
	a := New(nil)

	// Last five bars trade at 4x the earlier pace.
	bars := barsFromCloses(rampCloses(100, 0, 30), 1000)
	for i := len(bars) - 5; i < len(bars); i++ {
		bars[i].Volume = 4000
	}
	cond := a.AnalyzeCondition(map[string][]domain.Bar{"X": bars})
	if cond.Volume != BandHigh {
		t.Errorf("volume = %s, want high", cond.Volume)
	}

	steady := a.AnalyzeCondition(map[string][]domain.Bar{"X": barsFromCloses(rampCloses(100, 0, 30), 1000)})
	if steady.Volume != BandMedium {
		t.Errorf("volume = %s, want medium", steady.Volume)
	}
}

func TestSimpleRSI(t *testing.T) {
	if got := simpleRSI([]float64{100}); got != 50 {
		t.Errorf("single price RSI = %v, want 50", got)
	}
	if got := simpleRSI([]float64{100, 101, 102, 103}); got != 100 {
		t.Errorf("all-gains RSI = %v, want 100", got)
	}
	// Equal gains and losses balance at 50.
	got := simpleRSI([]float64{100, 101, 100, 101, 100})
	if math.Abs(got-50) > 1e-9 {
		t.Errorf("balanced RSI = %v, want 50", got)
	}
}

func TestRecommendRanking(t *testing.T) {
	a := New(nil)
	symbols := []string{"AAPL", "MSFT"}

	// Trend followers lead in a bullish, low-volatility market.
	bull := a.Recommend(MarketCondition{
		Trend: TrendBullish, Volatility: BandLow,
		Volume: BandMedium, Momentum: MomentumStrong, RSILevel: RSINeutral,
	}, symbols, 100000)
	if len(bull) != 5 {
		t.Fatalf("got %d recommendations, want 5", len(bull))
	}
	top := bull[0].Strategy
	if top != "ema-cross" && top != "macd" && top != "sma-cross" {
		t.Errorf("top strategy in a bull market = %s, want a trend follower", top)
	}
	for i := 1; i < len(bull); i++ {
		si := bull[i-1].Confidence*0.7 + bull[i-1].ExpectedProfit/100000*0.3
		sj := bull[i].Confidence*0.7 + bull[i].ExpectedProfit/100000*0.3
		if si < sj {
			t.Errorf("recommendations out of order at %d", i)
		}
	}

	// Mean reversion leads in a choppy, oversold market.
	chop := a.Recommend(MarketCondition{
		Trend: TrendSideways, Volatility: BandHigh,
		Volume: BandMedium, Momentum: MomentumNeutral, RSILevel: RSIOversold,
	}, symbols, 100000)
	if top := chop[0].Strategy; top != "bollinger" && top != "rsi" {
		t.Errorf("top strategy in a choppy market = %s, want bollinger or rsi", top)
	}

	for _, r := range bull {
		if r.Confidence < 0 || r.Confidence > 1 {
			t.Errorf("%s confidence %v outside [0,1]", r.Strategy, r.Confidence)
		}
		if len(r.Symbols) != 2 {
			t.Errorf("%s symbols = %v", r.Strategy, r.Symbols)
		}
		if len(r.Parameters) == 0 {
			t.Errorf("%s has no parameters", r.Strategy)
		}
	}
}

func TestRecommendParameterTuning(t *testing.T) {
	a := New(nil)

	highVol := a.Recommend(MarketCondition{
		Trend: TrendSideways, Volatility: BandHigh, Volume: BandMedium,
		Momentum: MomentumNeutral, RSILevel: RSINeutral,
	}, nil, 100000)
	for _, r := range highVol {
		switch r.Strategy {
		case "rsi":
			if r.Parameters["oversold"] != 25 || r.Parameters["overbought"] != 75 {
				t.Errorf("rsi params in high volatility = %v, want widened thresholds", r.Parameters)
			}
		case "bollinger":
			if r.Parameters["std_dev"] != 2.5 {
				t.Errorf("bollinger std_dev in high volatility = %v, want 2.5", r.Parameters["std_dev"])
			}
		}
	}
}
