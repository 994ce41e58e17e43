package us

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"quantlab/internal/util"
)

// calendarClient is the subset of the Alpaca trading client used to read
// the exchange calendar.
type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// NewCalendarClient creates an Alpaca trading client for calendar lookups.
func NewCalendarClient(apiKey, apiSecret, baseURL string) *alpaca.Client {
	return alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
}

// LoadCalendar builds a TradingCalendar whose holidays are the weekdays in
// [start, end] missing from the exchange calendar.
func LoadCalendar(ctx context.Context, client calendarClient, start, end time.Time) (*util.TradingCalendar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	days, err := client.GetCalendar(alpaca.GetCalendarRequest{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days returned from calendar")
	}

	open := make(map[string]bool, len(days))
	for _, d := range days {
		open[d.Date] = true
	}

	weekdays := util.NewTradingCalendar()
	var holidays []time.Time
	for d := util.Truncate(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if weekdays.IsTradingDay(d) && !open[d.Format(time.DateOnly)] {
			holidays = append(holidays, d)
		}
	}
	return util.NewTradingCalendar(holidays...), nil
}
