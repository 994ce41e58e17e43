package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

// Loader serves daily bars from local storage and tops the store up from a
// Provider when the catalog shows the symbol is behind the requested end
// date. It satisfies batch.Loader.
type Loader struct {
	bars     store.BarStore
	catalog  store.Catalog
	provider Provider
	calendar *util.TradingCalendar
	limiter  *util.RateLimiter

	retries      int
	retryDelay   time.Duration
	historyStart time.Time
	now          func() time.Time
	log          *slog.Logger
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithProvider enables incremental fetching from p.
func WithProvider(p Provider) LoaderOption {
	return func(l *Loader) { l.provider = p }
}

// WithCalendar replaces the weekday calendar used to decide staleness.
func WithCalendar(c *util.TradingCalendar) LoaderOption {
	return func(l *Loader) { l.calendar = c }
}

// WithRateLimiter throttles provider calls.
func WithRateLimiter(rl *util.RateLimiter) LoaderOption {
	return func(l *Loader) { l.limiter = rl }
}

// WithRetry sets the attempt count and first backoff for provider calls.
func WithRetry(attempts int, delay time.Duration) LoaderOption {
	return func(l *Loader) {
		l.retries = max(attempts, 1)
		l.retryDelay = delay
	}
}

// WithHistoryStart sets where a first download of a symbol begins.
func WithHistoryStart(t time.Time) LoaderOption {
	return func(l *Loader) { l.historyStart = util.Truncate(t) }
}

// WithLogger sets the loader logger.
func WithLogger(log *slog.Logger) LoaderOption {
	return func(l *Loader) { l.log = log }
}

// NewLoader creates a Loader over the given stores. Without WithProvider it
// only reads what is stored.
func NewLoader(bars store.BarStore, catalog store.Catalog, opts ...LoaderOption) *Loader {
	l := &Loader{
		bars:         bars,
		catalog:      catalog,
		calendar:     util.NewTradingCalendar(),
		retries:      3,
		retryDelay:   time.Second,
		historyStart: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		now:          time.Now,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With("component", "loader")
	return l
}

// Load returns the stored bars for symbol within [start, end], fetching
// missing recent history first when a provider is configured. Fetch
// failures are logged and whatever is stored is returned. A symbol with no
// data yields an empty series.
func (l *Loader) Load(ctx context.Context, symbol string, start, end time.Time) (domain.Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if l.provider != nil {
		stale, err := l.stale(ctx, symbol, end)
		if err != nil {
			return domain.Series{}, err
		}
		if stale {
			if _, err := l.Update(ctx, symbol, end); err != nil {
				if ctx.Err() != nil {
					return domain.Series{}, ctx.Err()
				}
				l.log.Warn("incremental update failed, using local data", "symbol", symbol, "error", err)
			}
		}
	}

	bars, err := l.bars.ReadBars(ctx, symbol, util.Truncate(start), util.Truncate(end))
	if err != nil {
		return domain.Series{}, fmt.Errorf("loading %s: %w", symbol, err)
	}
	series := domain.NewSeries(symbol, bars)
	if !series.Empty() {
		l.log.Debug("loaded",
			"symbol", symbol,
			"bars", series.Len(),
			"first", series.First().Format(time.DateOnly),
			"last", series.Last().Format(time.DateOnly),
		)
	}
	return series, nil
}

// stale reports whether the catalog's last date precedes the last trading
// day on or before min(end, today).
func (l *Loader) stale(ctx context.Context, symbol string, end time.Time) (bool, error) {
	info, err := l.catalog.GetSymbol(ctx, symbol)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking catalog for %s: %w", symbol, err)
	}
	target := end
	if now := l.now(); now.Before(target) {
		target = now
	}
	return info.LastDate.Before(l.calendar.LastTradingDay(target)), nil
}

// Update fetches bars after the symbol's last stored date up to end, stores
// them and returns how many were written.
func (l *Loader) Update(ctx context.Context, symbol string, end time.Time) (int, error) {
	if l.provider == nil {
		return 0, ErrNoProvider
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	from := l.historyStart
	info, err := l.catalog.GetSymbol(ctx, symbol)
	switch {
	case err == nil:
		from = l.calendar.NextTradingDay(info.LastDate)
	case !errors.Is(err, store.ErrNotFound):
		return 0, fmt.Errorf("checking catalog for %s: %w", symbol, err)
	}
	end = util.Truncate(end)
	if from.After(end) {
		return 0, nil
	}

	var raw []domain.Bar
	err = util.Retry(ctx, l.retries, l.retryDelay, func() error {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return util.Permanent(err)
			}
		}
		var ferr error
		raw, ferr = l.provider.FetchDailyBars(ctx, symbol, from, end)
		return ferr
	})
	if err != nil {
		return 0, fmt.Errorf("fetching %s from %s: %w", symbol, l.provider.Name(), err)
	}

	n, err := l.Import(ctx, symbol, raw)
	if err != nil {
		return 0, err
	}
	l.log.Info("incremental update",
		"symbol", symbol,
		"provider", l.provider.Name(),
		"from", from.Format(time.DateOnly),
		"to", end.Format(time.DateOnly),
		"bars", n,
	)
	return n, nil
}

// Import cleans bars, writes them for symbol and extends the catalog
// entry. It returns the number of bars written.
func (l *Loader) Import(ctx context.Context, symbol string, bars []domain.Bar) (int, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for i := range bars {
		bars[i].Symbol = symbol
	}
	cleaned := Clean(bars)
	if len(cleaned) == 0 {
		return 0, nil
	}
	if err := l.bars.WriteBars(ctx, cleaned); err != nil {
		return 0, fmt.Errorf("storing %s: %w", symbol, err)
	}

	info := store.SymbolInfo{
		Symbol:    symbol,
		FirstDate: cleaned[0].Date,
		LastDate:  cleaned[len(cleaned)-1].Date,
	}
	prev, err := l.catalog.GetSymbol(ctx, symbol)
	switch {
	case err == nil:
		if prev.FirstDate.Before(info.FirstDate) {
			info.FirstDate = prev.FirstDate
		}
		if prev.LastDate.After(info.LastDate) {
			info.LastDate = prev.LastDate
		}
	case !errors.Is(err, store.ErrNotFound):
		return 0, fmt.Errorf("checking catalog for %s: %w", symbol, err)
	}
	if err := l.catalog.UpsertSymbol(ctx, info); err != nil {
		return 0, err
	}
	return len(cleaned), nil
}
