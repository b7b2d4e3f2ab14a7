package builtins

import (
	"context"
	"testing"
	"time"

	"meridian/internal/domain"
	"meridian/internal/strategy"
)

func barAt(symbol string, i int, close float64) domain.Bar {
	return domain.Bar{
		Symbol:    symbol,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    100,
	}
}

func feed(t *testing.T, s strategy.Strategy, bars []domain.Bar) []domain.Signal {
	t.Helper()
	var out []domain.Signal
	for _, b := range bars {
		sigs, err := s.OnBar(context.Background(), b)
		if err != nil {
			t.Fatalf("OnBar: %v", err)
		}
		out = append(out, sigs...)
	}
	return out
}

func TestSMACrossSignals(t *testing.T) {
	s := NewSMACross(2, 4)

	// Rising prices: short SMA above long SMA once the window fills.
	var bars []domain.Bar
	for i := 0; i < 6; i++ {
		bars = append(bars, barAt("AAPL", i, 100+float64(i)*5))
	}
	sigs := feed(t, s, bars)
	if len(sigs) != 1 {
		t.Fatalf("got %d signals in uptrend, want 1 (latched)", len(sigs))
	}
	if sigs[0].Type != domain.SignalTypeBuy {
		t.Errorf("signal type = %q, want buy", sigs[0].Type)
	}
	if sigs[0].StrategyID != "sma-cross" {
		t.Errorf("strategy id = %q, want sma-cross", sigs[0].StrategyID)
	}

	// Falling prices flip the relationship and produce exactly one sell.
	var down []domain.Bar
	for i := 6; i < 12; i++ {
		down = append(down, barAt("AAPL", i, 130-float64(i-5)*10))
	}
	sigs = feed(t, s, down)
	if len(sigs) != 1 || sigs[0].Type != domain.SignalTypeSell {
		t.Fatalf("downtrend signals = %+v, want one sell", sigs)
	}
}

func TestSMACrossPerSymbolState(t *testing.T) {
	s := NewSMACross(2, 3)
	up := func(sym string) []domain.Bar {
		var bars []domain.Bar
		for i := 0; i < 5; i++ {
			bars = append(bars, barAt(sym, i, 100+float64(i)*5))
		}
		return bars
	}
	a := feed(t, s, up("AAPL"))
	b := feed(t, s, up("MSFT"))
	if len(a) != 1 || len(b) != 1 {
		t.Errorf("per-symbol signals = %d/%d, want 1/1", len(a), len(b))
	}
}

func TestEMACrossSeedsOnFirstBar(t *testing.T) {
	s := NewEMACross(2, 5)

	sigs, err := s.OnBar(context.Background(), barAt("TSLA", 0, 100))
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 0 {
		t.Fatal("first bar must only seed the EMAs")
	}

	var bars []domain.Bar
	for i := 1; i < 8; i++ {
		bars = append(bars, barAt("TSLA", i, 100+float64(i)*3))
	}
	got := feed(t, s, bars)
	if len(got) != 1 || got[0].Type != domain.SignalTypeBuy {
		t.Fatalf("uptrend signals = %+v, want one buy", got)
	}
}

func TestWilderRSI(t *testing.T) {
	if got := wilderRSI([]float64{1, 2, 3}, 14); got != 50 {
		t.Errorf("rsi with insufficient data = %v, want neutral 50", got)
	}

	// Monotonic gains: no losses, RSI pegs at 100.
	prices := make([]float64, 15)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	if got := wilderRSI(prices, 14); got != 100 {
		t.Errorf("rsi with only gains = %v, want 100", got)
	}

	// Monotonic losses push RSI to 0.
	for i := range prices {
		prices[i] = 100 - float64(i)
	}
	if got := wilderRSI(prices, 14); got != 0 {
		t.Errorf("rsi with only losses = %v, want 0", got)
	}
}

func TestRSISignalsAndNeutralReset(t *testing.T) {
	s := NewRSI(3, 30, 70)

	crash := []domain.Bar{
		barAt("NVDA", 0, 100), barAt("NVDA", 1, 95), barAt("NVDA", 2, 90), barAt("NVDA", 3, 85),
	}
	sigs := feed(t, s, crash)
	if len(sigs) != 1 || sigs[0].Type != domain.SignalTypeBuy {
		t.Fatalf("crash signals = %+v, want one buy", sigs)
	}

	// Continued decline stays latched.
	more := []domain.Bar{barAt("NVDA", 4, 80)}
	if got := feed(t, s, more); len(got) != 0 {
		t.Fatalf("latched side re-signalled: %+v", got)
	}

	// Recovery through neutral releases the latch, then a fresh crash
	// signals again.
	recover := []domain.Bar{
		barAt("NVDA", 5, 82), barAt("NVDA", 6, 84), barAt("NVDA", 7, 83),
	}
	feed(t, s, recover)
	crash2 := []domain.Bar{
		barAt("NVDA", 8, 78), barAt("NVDA", 9, 74), barAt("NVDA", 10, 70),
	}
	sigs = feed(t, s, crash2)
	if len(sigs) != 1 || sigs[0].Type != domain.SignalTypeBuy {
		t.Fatalf("second crash signals = %+v, want one buy after reset", sigs)
	}
}

func TestMACDCrossover(t *testing.T) {
	s := NewMACD(3, 6, 3)

	// Uptrend establishes MACD above signal, then a sharp reversal forces
	// a bearish crossover.
	var bars []domain.Bar
	price := 100.0
	for i := 0; i < 12; i++ {
		price += 2
		bars = append(bars, barAt("SPY", i, price))
	}
	for i := 12; i < 24; i++ {
		price -= 4
		bars = append(bars, barAt("SPY", i, price))
	}

	sigs := feed(t, s, bars)
	if len(sigs) == 0 {
		t.Fatal("expected at least one crossover signal")
	}
	sawSell := false
	for _, sig := range sigs {
		if sig.Type == domain.SignalTypeSell {
			sawSell = true
		}
	}
	if !sawSell {
		t.Errorf("signals = %+v, want a sell after the reversal", sigs)
	}
}

func TestBollingerBandTouch(t *testing.T) {
	s := NewBollinger(4, 1.0)

	// Stable prices fill the window, then a collapse pierces the lower band.
	bars := []domain.Bar{
		barAt("QQQ", 0, 100), barAt("QQQ", 1, 101), barAt("QQQ", 2, 99), barAt("QQQ", 3, 100),
		barAt("QQQ", 4, 80),
	}
	sigs := feed(t, s, bars)
	if len(sigs) != 1 || sigs[0].Type != domain.SignalTypeBuy {
		t.Fatalf("signals = %+v, want one buy on lower band touch", sigs)
	}

	upper, middle, lower := s.Bands("QQQ")
	if !(lower < middle && middle < upper) {
		t.Errorf("bands not ordered: lower=%v middle=%v upper=%v", lower, middle, upper)
	}
}

func TestSupportResistanceBreakout(t *testing.T) {
	s := NewSupportResistance(30, 0.01)

	// Oscillating range builds pivot highs near 110 and pivot lows near 90.
	var bars []domain.Bar
	pattern := []float64{100, 105, 110, 105, 100, 95, 90, 95}
	for i := 0; i < 24; i++ {
		p := pattern[i%len(pattern)]
		b := barAt("IWM", i, p)
		b.High = p + 1
		b.Low = p - 1
		bars = append(bars, b)
	}
	feed(t, s, bars)

	support, resistance := s.Levels("IWM")
	if len(support) == 0 || len(resistance) == 0 {
		t.Fatalf("levels not detected: support=%v resistance=%v", support, resistance)
	}

	// A close well above the top pivot is a resistance breakout.
	breakout := barAt("IWM", 24, 125)
	breakout.High = 126
	breakout.Low = 120
	sigs, err := s.OnBar(context.Background(), breakout)
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 1 || sigs[0].Type != domain.SignalTypeBuy {
		t.Fatalf("breakout signals = %+v, want one buy", sigs)
	}
}

func TestRegisterDefaults(t *testing.T) {
	r := strategy.NewRegistry()
	RegisterDefaults(r)

	want := []string{"bollinger", "ema-cross", "macd", "rsi", "sma-cross", "support-resistance"}
	got := r.List()
	if len(got) != len(want) {
		t.Fatalf("registered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("registered %v, want %v", got, want)
		}
	}
}
