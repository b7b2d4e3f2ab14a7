// Package live provides a shared in-memory model for live tick data, with
// dedup, bounded per-symbol history, and pub/sub for WebSocket streaming.
package live

import (
	"sync"

	"meridian/internal/domain"
)

// TickEvent is emitted to subscribers when a new tick is added to the model.
type TickEvent struct {
	Trade domain.Trade
}

// tickKey uniquely identifies a tick by (ID, Exchange). The same numeric
// trade ID can appear on different exchanges, so both fields are needed.
type tickKey struct {
	ID       string
	Exchange string
}

const defaultMaxPerSymbol = 1000

// TickModel holds recent ticks per symbol with dedup by (trade_id, exchange)
// and pub/sub for streaming to WebSocket clients.
type TickModel struct {
	mu           sync.RWMutex
	ticks        map[string][]domain.Trade
	seen         map[tickKey]bool
	maxPerSymbol int

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan TickEvent
}

// NewTickModel creates a model keeping at most maxPerSymbol recent ticks per
// symbol (0 uses the default of 1000).
func NewTickModel(maxPerSymbol int) *TickModel {
	if maxPerSymbol <= 0 {
		maxPerSymbol = defaultMaxPerSymbol
	}
	return &TickModel{
		ticks:        make(map[string][]domain.Trade),
		seen:         make(map[tickKey]bool),
		maxPerSymbol: maxPerSymbol,
		subs:         make(map[int]chan TickEvent),
	}
}

// Add inserts a single tick into the model. It deduplicates by
// (trade ID, exchange) and notifies subscribers. Returns false if duplicate.
func (m *TickModel) Add(trade domain.Trade) bool {
	key := tickKey{ID: trade.ID, Exchange: trade.Exchange}
	m.mu.Lock()
	if m.seen[key] {
		m.mu.Unlock()
		return false
	}
	m.seen[key] = true

	series := append(m.ticks[trade.Symbol], trade)
	if len(series) > m.maxPerSymbol {
		evicted := series[0]
		delete(m.seen, tickKey{ID: evicted.ID, Exchange: evicted.Exchange})
		series = series[1:]
	}
	m.ticks[trade.Symbol] = series
	m.mu.Unlock()

	// Notify subscribers (non-blocking send).
	evt := TickEvent{Trade: trade}
	m.subsMu.Lock()
	for _, ch := range m.subs {
		select {
		case ch <- evt:
		default:
			// Slow subscriber, drop event.
		}
	}
	m.subsMu.Unlock()

	return true
}

// AddBatch inserts multiple ticks in bulk (from backfill). Returns the count
// of new (non-duplicate) ticks added. Subscribers are NOT notified for batch
// adds, backfill ticks are sent as part of the snapshot instead.
func (m *TickModel) AddBatch(trades []domain.Trade) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for i := range trades {
		key := tickKey{ID: trades[i].ID, Exchange: trades[i].Exchange}
		if m.seen[key] {
			continue
		}
		m.seen[key] = true
		added++

		series := append(m.ticks[trades[i].Symbol], trades[i])
		if len(series) > m.maxPerSymbol {
			evicted := series[0]
			delete(m.seen, tickKey{ID: evicted.ID, Exchange: evicted.Exchange})
			series = series[1:]
		}
		m.ticks[trades[i].Symbol] = series
	}
	return added
}

// Snapshot returns copies of the retained ticks for a symbol.
func (m *TickModel) Snapshot(symbol string) []domain.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series := m.ticks[symbol]
	out := make([]domain.Trade, len(series))
	copy(out, series)
	return out
}

// Latest returns the most recent tick for a symbol, if any.
func (m *TickModel) Latest(symbol string) (domain.Trade, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series := m.ticks[symbol]
	if len(series) == 0 {
		return domain.Trade{}, false
	}
	return series[len(series)-1], true
}

// Symbols returns all symbols with at least one retained tick.
func (m *TickModel) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.ticks))
	for s := range m.ticks {
		out = append(out, s)
	}
	return out
}

// SeenCount returns the number of unique tick IDs currently retained.
func (m *TickModel) SeenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.seen)
}

// Subscribe creates a new subscription channel for live tick events.
func (m *TickModel) Subscribe(bufSize int) (id int, ch <-chan TickEvent) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	id = m.nextSubID
	m.nextSubID++
	c := make(chan TickEvent, bufSize)
	m.subs[id] = c
	return id, c
}

// Unsubscribe removes a subscription and closes its channel.
func (m *TickModel) Unsubscribe(id int) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if ch, ok := m.subs[id]; ok {
		close(ch)
		delete(m.subs, id)
	}
}
