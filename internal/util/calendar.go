package util

import (
	"time"

	"meridian/internal/domain"
)

// TradingCalendar provides market-hours awareness for a specific market.
// US sessions run 9:30-16:00 America/New_York; CN sessions run 9:30-11:30
// and 13:00-15:00 Asia/Shanghai. Weekends are closed in both markets.
type TradingCalendar struct {
	market domain.Market
	loc    *time.Location
}

// NewTradingCalendar creates a TradingCalendar for the given market.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	name := "America/New_York"
	if market == domain.MarketCN {
		name = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	return &TradingCalendar{market: market, loc: loc}
}

type session struct {
	openH, openM   int
	closeH, closeM int
}

func (tc *TradingCalendar) sessions() []session {
	if tc.market == domain.MarketCN {
		return []session{{9, 30, 11, 30}, {13, 0, 15, 0}}
	}
	return []session{{9, 30, 16, 0}}
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsMarketOpen returns whether the market is open at time t.
// TODO: exchange holidays are treated as open; wire in a holiday table.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	local := t.In(tc.loc)
	if isWeekend(local) {
		return false
	}
	for _, s := range tc.sessions() {
		open := time.Date(local.Year(), local.Month(), local.Day(), s.openH, s.openM, 0, 0, tc.loc)
		close := time.Date(local.Year(), local.Month(), local.Day(), s.closeH, s.closeM, 0, 0, tc.loc)
		if !local.Before(open) && local.Before(close) {
			return true
		}
	}
	return false
}

// NextOpen returns the next session open time at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	local := t.In(tc.loc)
	for d := 0; d < 8; d++ {
		day := local.AddDate(0, 0, d)
		if isWeekend(day) {
			continue
		}
		for _, s := range tc.sessions() {
			open := time.Date(day.Year(), day.Month(), day.Day(), s.openH, s.openM, 0, 0, tc.loc)
			if !open.Before(local) {
				return open
			}
		}
	}
	return time.Time{}
}

// NextClose returns the next session close time at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	local := t.In(tc.loc)
	for d := 0; d < 8; d++ {
		day := local.AddDate(0, 0, d)
		if isWeekend(day) {
			continue
		}
		for _, s := range tc.sessions() {
			close := time.Date(day.Year(), day.Month(), day.Day(), s.closeH, s.closeM, 0, 0, tc.loc)
			if !close.Before(local) {
				return close
			}
		}
	}
	return time.Time{}
}
