package live

import (
	"context"
	"log/slog"
	"time"

	"meridian/internal/domain"
	"meridian/internal/store"
)

const (
	defaultFlushBatch    = 500
	defaultFlushInterval = 30 * time.Second
)

// TradeRecorder subscribes to a TickModel and persists incoming ticks to a
// trade store in batches. A batch is flushed when it reaches flushBatch
// ticks, when flushInterval elapses, or when the recorder stops.
type TradeRecorder struct {
	model         *TickModel
	store         store.TradeStore
	flushBatch    int
	flushInterval time.Duration
	log           *slog.Logger

	subID int
	ch    <-chan TickEvent
}

// NewTradeRecorder creates a recorder draining ticks from model into s. The
// subscription starts here, so ticks arriving between construction and Run
// are buffered rather than lost.
func NewTradeRecorder(model *TickModel, s store.TradeStore, log *slog.Logger) *TradeRecorder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &TradeRecorder{
		model:         model,
		store:         s,
		flushBatch:    defaultFlushBatch,
		flushInterval: defaultFlushInterval,
		log:           log.With("component", "traderecorder"),
	}
	r.subID, r.ch = model.Subscribe(4096)
	return r
}

// Run consumes tick events until ctx is cancelled, flushing any buffered
// ticks before returning.
func (r *TradeRecorder) Run(ctx context.Context) {
	defer r.model.Unsubscribe(r.subID)
	ch := r.ch

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	var buf []domain.Trade
	for {
		select {
		case <-ctx.Done():
			r.flush(buf)
			return
		case evt := <-ch:
			buf = append(buf, evt.Trade)
			if len(buf) >= r.flushBatch {
				r.flush(buf)
				buf = nil
			}
		case <-ticker.C:
			r.flush(buf)
			buf = nil
		}
	}
}

// flush writes buffered ticks to the store. Errors are logged; the ticks are
// still retained by the model, so a failed flush loses only durability.
func (r *TradeRecorder) flush(trades []domain.Trade) {
	if len(trades) == 0 {
		return
	}
	// The persistence context is deliberately independent of the run
	// context so the final flush survives cancellation.
	if err := r.store.WriteTrades(context.Background(), trades); err != nil {
		r.log.Error("persisting ticks failed", "count", len(trades), "err", err)
		return
	}
	r.log.Debug("ticks persisted", "count", len(trades))
}
