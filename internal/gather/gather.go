// Package gather fetches, cleans and caches daily bars. Loader is the single
// entry point the research tools read data through.
package gather

import (
	"context"
	"errors"
	"time"

	"quantlab/internal/domain"
)

// ErrNoProvider is returned by Loader.Update when no remote provider is
// configured.
var ErrNoProvider = errors.New("no data provider configured")

// Provider fetches daily bars from a remote source.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// FetchDailyBars returns the bars for symbol within [start, end]. No
	// data is an empty slice, not an error.
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}
