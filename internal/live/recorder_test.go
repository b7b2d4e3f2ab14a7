package live

import (
	"context"
	"testing"
	"time"

	"meridian/internal/store"
)

func TestTradeRecorderPersistsTicks(t *testing.T) {
	m := NewTickModel(0)
	ps := store.NewParquetStore(t.TempDir())
	r := NewTradeRecorder(m, ps, nil)
	r.flushBatch = 2 // exercise a mid-run batch flush plus the final flush

	base := time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)
	for i, price := range []float64{200, 200.5, 201} {
		trade := tick("AAPL", string(rune('a'+i)), "V", price)
		trade.Timestamp = base.Add(time.Duration(i) * time.Second)
		if !m.Add(trade) {
			t.Fatalf("tick %d rejected as duplicate", i)
		}
	}

	// Events are buffered on the subscription channel, so Run may start
	// after the ticks were added.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// Two ticks flush as a batch; the third is written by the final flush.
	deadline := time.Now().Add(2 * time.Second)
	for {
		trades, err := ps.ReadTrades(context.Background(), "AAPL", base, base.Add(time.Minute))
		if err != nil {
			t.Fatalf("ReadTrades: %v", err)
		}
		if len(trades) >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("batch flush never reached the store")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop")
	}

	trades, err := ps.ReadTrades(context.Background(), "AAPL", base, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("ReadTrades: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("persisted %d trades, want 3", len(trades))
	}
	if trades[0].Price != 200 || trades[2].Price != 201 {
		t.Errorf("trades out of order: %+v", trades)
	}
	if trades[1].Symbol != "AAPL" || trades[1].Exchange != "V" {
		t.Errorf("trade fields lost: %+v", trades[1])
	}
}
