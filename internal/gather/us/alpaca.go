// Package us gathers US equity market data from the Alpaca APIs.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"meridian/internal/domain"
	"meridian/internal/gather"
	"meridian/internal/store"
	"meridian/internal/util"
)

var _ gather.Gatherer = (*DailyBarGatherer)(nil)

const defaultBatchSize = 200

// DailyBarGatherer fetches daily OHLCV bars for a configured symbol list via
// the Alpaca market-data API and writes them to a bar store. Fetches are
// batched, rate limited, and retried.
type DailyBarGatherer struct {
	client    *marketdata.Client
	store     store.BarStore
	symbols   []string
	startDate string
	batchSize int
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewDailyBarGatherer creates a gatherer for the given symbols. startDate is
// "2006-01-02"; ratePerMin bounds API calls per minute (0 disables limiting).
func NewDailyBarGatherer(
	apiKey, apiSecret, dataURL string,
	s store.BarStore,
	symbols []string,
	startDate string,
	batchSize, ratePerMin int,
	log *slog.Logger,
) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var limiter *util.RateLimiter
	if ratePerMin > 0 {
		limiter = util.NewRateLimiter(ratePerMin)
	}

	upper := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			upper = append(upper, sym)
		}
	}

	return &DailyBarGatherer{
		client:    marketdata.NewClient(opts),
		store:     s,
		symbols:   upper,
		startDate: startDate,
		batchSize: batchSize,
		limiter:   limiter,
		log:       log.With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches daily bars for all configured symbols from startDate through
// the given end date and writes them to the store. A zero end time means
// today. Batches that fail after retries are reported but do not abort the
// remaining batches.
func (g *DailyBarGatherer) RunRange(ctx context.Context, end time.Time) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("gather: no symbols configured")
	}
	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("gather: parsing start date %q: %w", g.startDate, err)
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}

	runStart := time.Now()
	total, failed := 0, 0
	for i := 0; i < len(g.symbols); i += g.batchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		hi := min(i+g.batchSize, len(g.symbols))
		batch := g.symbols[i:hi]

		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		var bars []domain.Bar
		err := util.Retry(ctx, 3, time.Second, func() error {
			var ferr error
			bars, ferr = g.fetchMultiBars(batch, start, end)
			return ferr
		})
		if err != nil {
			g.log.Error("batch fetch failed", "symbols", batch, "err", err)
			failed++
			continue
		}
		if len(bars) == 0 {
			g.log.Warn("no bars returned", "symbols", batch)
			continue
		}
		if err := g.store.WriteBars(ctx, bars); err != nil {
			return fmt.Errorf("gather: writing bars: %w", err)
		}
		total += len(bars)
		g.log.Info("batch stored", "symbols", len(batch), "bars", len(bars))
	}

	g.log.Info("gather complete",
		"symbols", len(g.symbols),
		"bars", total,
		"failedBatches", failed,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	if failed > 0 {
		return fmt.Errorf("gather: %d batch(es) failed", failed)
	}
	return nil
}

// Run gathers bars through today. It implements gather.Gatherer.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	return g.RunRange(ctx, time.Time{})
}

// fetchMultiBars fetches daily bars for a batch of symbols in one API call.
func (g *DailyBarGatherer) fetchMultiBars(symbols []string, start, end time.Time) ([]domain.Bar, error) {
	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}
