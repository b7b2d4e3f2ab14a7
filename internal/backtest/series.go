package backtest

import (
	"sort"
	"time"

	"meridian/internal/domain"
)

// seriesStore holds per-symbol historical bars sorted by timestamp. The
// union of all symbols' timestamps forms the simulation clock; a symbol
// without a bar at a given timestamp is simply skipped that step.
type seriesStore struct {
	bars map[string][]domain.Bar
}

func newSeriesStore() *seriesStore {
	return &seriesStore{bars: make(map[string][]domain.Bar)}
}

// Load validates and stores the bars for a symbol, sorted ascending by
// timestamp. Input order does not matter. Loading a symbol twice replaces
// its previous series.
func (s *seriesStore) Load(symbol string, bars []domain.Bar) error {
	for i := range bars {
		b := &bars[i]
		switch {
		case b.Timestamp.IsZero():
			return &DataValidationError{Symbol: symbol, Reason: "bar with zero timestamp"}
		case b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0:
			return &DataValidationError{Symbol: symbol, Reason: "bar with non-positive price"}
		case b.High < b.Low:
			return &DataValidationError{Symbol: symbol, Reason: "bar with high below low"}
		case b.Volume < 0:
			return &DataValidationError{Symbol: symbol, Reason: "bar with negative volume"}
		}
	}

	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	s.bars[symbol] = sorted
	return nil
}

// Symbols returns all loaded symbols in sorted order.
func (s *seriesStore) Symbols() []string {
	symbols := make([]string, 0, len(s.bars))
	for sym := range s.bars {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// TimestampsInRange returns the sorted union of all symbols' timestamps
// within [start, end] inclusive.
func (s *seriesStore) TimestampsInRange(start, end time.Time) []time.Time {
	seen := make(map[int64]time.Time)
	for _, bars := range s.bars {
		for i := range bars {
			ts := bars[i].Timestamp
			if ts.Before(start) || ts.After(end) {
				continue
			}
			seen[ts.UnixNano()] = ts
		}
	}

	out := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// BarsAt returns the bar for every symbol that has one at exactly ts,
// keyed by symbol.
func (s *seriesStore) BarsAt(ts time.Time) map[string]domain.Bar {
	out := make(map[string]domain.Bar)
	for sym, bars := range s.bars {
		// Binary search: series are sorted ascending.
		i := sort.Search(len(bars), func(i int) bool {
			return !bars[i].Timestamp.Before(ts)
		})
		if i < len(bars) && bars[i].Timestamp.Equal(ts) {
			out[sym] = bars[i]
		}
	}
	return out
}
