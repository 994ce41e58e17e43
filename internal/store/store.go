// Package store defines storage interfaces for daily bars, the symbol
// catalog and saved backtest runs, with Parquet and SQLite implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"quantlab/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars, replacing any stored bar with the
	// same symbol and date.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end] in date order.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// SymbolInfo describes the stored coverage of one symbol.
type SymbolInfo struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	FirstDate time.Time `json:"first_date"`
	LastDate  time.Time `json:"last_date"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Catalog tracks which date range is stored for each symbol.
type Catalog interface {
	// UpsertSymbol inserts or updates the coverage of a symbol. An existing
	// name is kept when info.Name is empty.
	UpsertSymbol(ctx context.Context, info SymbolInfo) error

	// GetSymbol returns the coverage of symbol, or ErrNotFound.
	GetSymbol(ctx context.Context, symbol string) (*SymbolInfo, error)

	// ListCatalog returns every tracked symbol ordered by symbol.
	ListCatalog(ctx context.Context) ([]SymbolInfo, error)
}

// Run kinds.
const (
	RunBacktest    = "backtest"
	RunGridSearch  = "grid_search"
	RunWalkForward = "walk_forward"
	RunBatch       = "batch"
)

// Run is a saved research result. Headline columns are queryable; the full
// report lives in Report as JSON.
type Run struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	CreatedAt   time.Time       `json:"created_at"`
	Symbol      string          `json:"symbol,omitempty"`
	Strategy    string          `json:"strategy"`
	Params      json.RawMessage `json:"params,omitempty"`
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
	FinalEquity float64         `json:"final_equity"`
	TotalReturn float64         `json:"total_return"`
	SharpeRatio float64         `json:"sharpe_ratio"`
	MaxDrawdown float64         `json:"max_drawdown"`
	TradeCount  int             `json:"trade_count"`
	Report      json.RawMessage `json:"report,omitempty"`
	Trades      []domain.Trade  `json:"trades,omitempty"`
}

// RunStore persists research results.
type RunStore interface {
	// SaveRun stores run and its trades. An empty ID is replaced with a new
	// one, and a zero CreatedAt with the current time.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun returns a run with its trades, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs without trades or report, up to
	// limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
