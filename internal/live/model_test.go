package live

import (
	"testing"
	"time"

	"meridian/internal/domain"
)

func tick(symbol, id, exchange string, price float64) domain.Trade {
	return domain.Trade{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Price:     price,
		Size:      100,
		Exchange:  exchange,
		ID:        id,
	}
}

func TestTickModelAddDedup(t *testing.T) {
	m := NewTickModel(0)

	if !m.Add(tick("AAPL", "1", "V", 200)) {
		t.Fatal("first add returned false")
	}
	if m.Add(tick("AAPL", "1", "V", 200)) {
		t.Error("duplicate (id, exchange) was not rejected")
	}
	// Same ID on another exchange is a distinct tick.
	if !m.Add(tick("AAPL", "1", "Q", 200.01)) {
		t.Error("same id on a different exchange should be accepted")
	}

	if got := len(m.Snapshot("AAPL")); got != 2 {
		t.Errorf("snapshot has %d ticks, want 2", got)
	}
	if m.SeenCount() != 2 {
		t.Errorf("seen count = %d, want 2", m.SeenCount())
	}
}

func TestTickModelBoundedHistory(t *testing.T) {
	m := NewTickModel(3)
	for i := 0; i < 5; i++ {
		m.Add(tick("MSFT", string(rune('a'+i)), "V", 400+float64(i)))
	}

	snap := m.Snapshot("MSFT")
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d ticks, want 3", len(snap))
	}
	if snap[0].Price != 402 {
		t.Errorf("oldest retained price = %v, want 402", snap[0].Price)
	}
	// Evicted IDs are freed from the dedup set.
	if m.SeenCount() != 3 {
		t.Errorf("seen count = %d, want 3 after eviction", m.SeenCount())
	}

	latest, ok := m.Latest("MSFT")
	if !ok || latest.Price != 404 {
		t.Errorf("latest = %v %v, want price 404", latest, ok)
	}
	if _, ok := m.Latest("GOOG"); ok {
		t.Error("Latest for unknown symbol should report false")
	}
}

func TestTickModelAddBatch(t *testing.T) {
	m := NewTickModel(0)
	m.Add(tick("AAPL", "1", "V", 200))

	added := m.AddBatch([]domain.Trade{
		tick("AAPL", "1", "V", 200), // duplicate
		tick("AAPL", "2", "V", 200.5),
		tick("TSLA", "3", "V", 100),
	})
	if added != 2 {
		t.Errorf("AddBatch added %d, want 2", added)
	}
	if got := len(m.Symbols()); got != 2 {
		t.Errorf("got %d symbols, want 2", got)
	}
}

func TestTickModelPubSub(t *testing.T) {
	m := NewTickModel(0)
	id, ch := m.Subscribe(8)

	m.Add(tick("AAPL", "1", "V", 200))
	select {
	case evt := <-ch:
		if evt.Trade.Symbol != "AAPL" || evt.Trade.Price != 200 {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	// Batch adds do not notify.
	m.AddBatch([]domain.Trade{tick("AAPL", "2", "V", 201)})
	select {
	case evt := <-ch:
		t.Errorf("unexpected event for batch add: %+v", evt)
	default:
	}

	m.Unsubscribe(id)
	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}
}
