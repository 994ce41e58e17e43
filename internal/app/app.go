// Package app wires configuration, storage, the data loader and the research
// service into one handle shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"quantlab/internal/api"
	"quantlab/internal/config"
	"quantlab/internal/gather"
	"quantlab/internal/gather/us"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config  *config.Config
	Bars    *store.ParquetStore
	DB      *store.SQLiteStore
	Loader  *gather.Loader
	Service *api.Service
	Log     *slog.Logger
}

// Open builds an App. Remote fetching is enabled only when data.fetch is set
// and Alpaca credentials are present; without them the loader serves local
// data only.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite dir: %w", err)
		}
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}

	historyStart, err := time.Parse(time.DateOnly, cfg.Data.HistoryStart)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("parsing history start: %w", err)
	}

	opts := []gather.LoaderOption{
		gather.WithLogger(log),
		gather.WithHistoryStart(historyStart),
		gather.WithRetry(cfg.Data.MaxRetries, time.Second),
		gather.WithRateLimiter(util.NewRateLimiter(cfg.Data.RateLimitPerMin)),
	}
	if cfg.Data.Fetch && cfg.Alpaca.Enabled() {
		opts = append(opts, gather.WithProvider(
			us.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)))

		calClient := us.NewCalendarClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
		cal, err := us.LoadCalendar(ctx, calClient, historyStart, time.Now().AddDate(0, 0, 7))
		if err != nil {
			log.Warn("loading exchange calendar, falling back to weekdays", "error", err)
		} else {
			opts = append(opts, gather.WithCalendar(cal))
		}
		log.Info("remote fetching enabled", "provider", "alpaca")
	}
	loader := gather.NewLoader(bars, db, opts...)

	svc := api.NewService(cfg, loader, api.WithRunStore(db), api.WithLogger(log))

	return &App{
		Config:  cfg,
		Bars:    bars,
		DB:      db,
		Loader:  loader,
		Service: svc,
		Log:     log,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}
