package alerts

import (
	"path/filepath"
	"testing"
	"time"

	"meridian/internal/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "alerts.json"), nil)
}

func feedCloses(m *Manager, symbol string, closes []float64, volume int64) {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		m.UpdateBar(domain.Bar{
			Symbol:    symbol,
			Timestamp: base.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
			Volume: volume,
		})
	}
}

func TestPriceAlerts(t *testing.T) {
	m := newTestManager(t)
	m.Add(&Alert{
		Symbol: "AAPL", Type: TypePriceAbove,
		Condition: Condition{Price: 200}, Priority: PriorityHigh, Enabled: true,
	})
	m.Add(&Alert{
		Symbol: "AAPL", Type: TypePriceBelow,
		Condition: Condition{Price: 150}, Priority: PriorityHigh, Enabled: true,
	})

	feedCloses(m, "AAPL", []float64{180}, 1000)
	if fired := m.CheckAlerts(); len(fired) != 0 {
		t.Fatalf("fired %d alerts at 180, want 0", len(fired))
	}

	feedCloses(m, "AAPL", []float64{201}, 1000)
	fired := m.CheckAlerts()
	if len(fired) != 1 || fired[0].Type != TypePriceAbove {
		t.Fatalf("fired = %+v, want one price_above trigger", fired)
	}
	if fired[0].Data["current_price"] != 201 {
		t.Errorf("trigger data = %v", fired[0].Data)
	}

	feedCloses(m, "AAPL", []float64{140}, 1000)
	fired = m.CheckAlerts()
	if len(fired) != 1 || fired[0].Type != TypePriceBelow {
		t.Fatalf("fired = %+v, want one price_below trigger", fired)
	}
}

func TestAlertCooldown(t *testing.T) {
	m := newTestManager(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	a := m.Add(&Alert{
		Symbol: "MSFT", Type: TypePriceAbove,
		Condition: Condition{Price: 100}, Priority: PriorityMedium, Enabled: true,
		CooldownMins: 15,
	})
	feedCloses(m, "MSFT", []float64{110}, 1000)

	if fired := m.CheckAlerts(); len(fired) != 1 {
		t.Fatalf("first check fired %d, want 1", len(fired))
	}

	// Still within cooldown.
	now = now.Add(10 * time.Minute)
	if fired := m.CheckAlerts(); len(fired) != 0 {
		t.Fatalf("fired %d inside cooldown, want 0", len(fired))
	}

	// Cooldown expired.
	now = now.Add(6 * time.Minute)
	if fired := m.CheckAlerts(); len(fired) != 1 {
		t.Fatalf("fired %d after cooldown, want 1", len(fired))
	}

	got, _ := m.Get(a.ID)
	if got.TriggerCount != 2 {
		t.Errorf("trigger count = %d, want 2", got.TriggerCount)
	}
}

func TestVolumeSpikeAlert(t *testing.T) {
	m := newTestManager(t)
	m.Add(&Alert{
		Symbol: "NVDA", Type: TypeVolumeSpike,
		Condition: Condition{VolumeMultiplier: 2.0}, Priority: PriorityMedium, Enabled: true,
	})

	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}
	feedCloses(m, "NVDA", closes, 1000)
	if fired := m.CheckAlerts(); len(fired) != 0 {
		t.Fatalf("fired on steady volume, want 0")
	}

	// One bar at several times the trailing average.
	m.UpdateBar(domain.Bar{
		Symbol: "NVDA", Timestamp: time.Now(), Close: 100, Volume: 10000,
	})
	fired := m.CheckAlerts()
	if len(fired) != 1 || fired[0].Type != TypeVolumeSpike {
		t.Fatalf("fired = %+v, want one volume_spike trigger", fired)
	}
}

func TestRSIAlerts(t *testing.T) {
	m := newTestManager(t)
	m.Add(&Alert{
		Symbol: "TSLA", Type: TypeRSIOversold,
		Priority: PriorityHigh, Enabled: true,
	})

	// Straight decline drives RSI to 0, below the default 30.
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	feedCloses(m, "TSLA", closes, 1000)
	fired := m.CheckAlerts()
	if len(fired) != 1 || fired[0].Type != TypeRSIOversold {
		t.Fatalf("fired = %+v, want one rsi_oversold trigger", fired)
	}
	if fired[0].Data["threshold"] != 30 {
		t.Errorf("default threshold = %v, want 30", fired[0].Data["threshold"])
	}
}

func TestPortfolioAlerts(t *testing.T) {
	m := newTestManager(t)
	m.Add(&Alert{
		Type: TypePortfolioLoss, Condition: Condition{LossPct: 5},
		Priority: PriorityCritical, Enabled: true,
	})
	m.Add(&Alert{
		Type: TypeRiskLimitBreach, Condition: Condition{Metric: "leverage", Threshold: 2},
		Priority: PriorityCritical, Enabled: true,
	})

	m.UpdatePortfolio(map[string]float64{
		"portfolio_value": 98000, "initial_capital": 100000, "leverage": 1.2,
	})
	if fired := m.CheckAlerts(); len(fired) != 0 {
		t.Fatalf("fired %d on a healthy portfolio, want 0", len(fired))
	}

	m.UpdatePortfolio(map[string]float64{"portfolio_value": 94000, "leverage": 2.5})
	fired := m.CheckAlerts()
	if len(fired) != 2 {
		t.Fatalf("fired %d, want loss and leverage triggers", len(fired))
	}
}

func TestDisabledAlertsSkipped(t *testing.T) {
	m := newTestManager(t)
	m.Add(&Alert{
		Symbol: "AAPL", Type: TypePriceAbove,
		Condition: Condition{Price: 100}, Priority: PriorityLow, Enabled: false,
	})
	feedCloses(m, "AAPL", []float64{150}, 1000)
	if fired := m.CheckAlerts(); len(fired) != 0 {
		t.Fatalf("disabled alert fired")
	}
}

func TestSubscribeReceivesTriggers(t *testing.T) {
	m := newTestManager(t)
	id, ch := m.Subscribe(16)
	defer m.Unsubscribe(id)

	m.Add(&Alert{
		Symbol: "AAPL", Type: TypePriceAbove,
		Condition: Condition{Price: 100}, Priority: PriorityHigh, Enabled: true,
	})
	feedCloses(m, "AAPL", []float64{150}, 1000)
	m.CheckAlerts()

	select {
	case got := <-ch:
		if got.Symbol != "AAPL" || got.Type != TypePriceAbove {
			t.Errorf("received trigger = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no trigger received")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	m1 := NewManager(path, nil)
	added := m1.Add(&Alert{
		Symbol: "AAPL", Type: TypePriceAbove,
		Condition: Condition{Price: 123.45}, Priority: PriorityHigh, Enabled: true,
	})
	feedCloses(m1, "AAPL", []float64{150}, 1000)
	m1.CheckAlerts()

	m2 := NewManager(path, nil)
	got, ok := m2.Get(added.ID)
	if !ok {
		t.Fatal("alert did not survive reload")
	}
	if got.Condition.Price != 123.45 || got.TriggerCount != 1 {
		t.Errorf("reloaded alert = %+v", got)
	}
	if hist := m2.TriggerHistory(10); len(hist) != 1 {
		t.Errorf("reloaded history length = %d, want 1", len(hist))
	}
}

func TestTriggerHistoryLimit(t *testing.T) {
	m := newTestManager(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Add(&Alert{
		Symbol: "AAPL", Type: TypePriceAbove,
		Condition: Condition{Price: 100}, Priority: PriorityLow, Enabled: true,
		CooldownMins: 1,
	})
	feedCloses(m, "AAPL", []float64{150}, 1000)
	for i := 0; i < 5; i++ {
		m.CheckAlerts()
		now = now.Add(2 * time.Minute)
	}

	if hist := m.TriggerHistory(3); len(hist) != 3 {
		t.Errorf("TriggerHistory(3) returned %d", len(hist))
	}
	if hist := m.TriggerHistory(0); len(hist) != 5 {
		t.Errorf("TriggerHistory(0) returned %d, want all 5", len(hist))
	}
}
