package us

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// LatestFinishedTradingDay returns the most recent trading day whose market
// session has ended, using the Alpaca trading calendar. "Ended" means after
// 20:05 ET so extended-hours data has settled.
func LatestFinishedTradingDay(apiKey, apiSecret, baseURL string) (time.Time, error) {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})

	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	now := time.Now().In(et)

	calendar, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}

	days := make([]string, 0, len(calendar))
	for _, d := range calendar {
		days = append(days, d.Date)
	}
	return latestFinishedDay(days, now)
}

// latestFinishedDay picks the newest day from the trading calendar that is
// fully in the past. now must carry the exchange timezone; today only counts
// once the 20:05 settle cutoff has passed.
func latestFinishedDay(days []string, now time.Time) (time.Time, error) {
	if len(days) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	today := now.Format("2006-01-02")
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, now.Location())

	for i := len(days) - 1; i >= 0; i-- {
		if days[i] == today {
			if now.After(cutoff) {
				return time.Parse("2006-01-02", days[i])
			}
			continue
		}
		dayDate, err := time.Parse("2006-01-02", days[i])
		if err != nil {
			continue
		}
		if dayDate.Before(now) {
			return dayDate, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
