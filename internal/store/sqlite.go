package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quantlab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ Catalog = (*SQLiteStore)(nil)
var _ RunStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS symbols (
	symbol     TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	first_date TEXT NOT NULL,
	last_date  TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	symbol       TEXT NOT NULL DEFAULT '',
	strategy     TEXT NOT NULL,
	params       TEXT,
	start_date   TEXT,
	end_date     TEXT,
	final_equity REAL NOT NULL DEFAULT 0,
	total_return REAL NOT NULL DEFAULT 0,
	sharpe_ratio REAL NOT NULL DEFAULT 0,
	max_drawdown REAL NOT NULL DEFAULT 0,
	trade_count  INTEGER NOT NULL DEFAULT 0,
	report       TEXT
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
CREATE TABLE IF NOT EXISTS run_trades (
	run_id      TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	date_open   TEXT NOT NULL,
	date_close  TEXT NOT NULL,
	side        TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	entry_price REAL NOT NULL,
	exit_price  REAL NOT NULL,
	pnl         REAL NOT NULL,
	pnl_pct     REAL NOT NULL,
	commission  REAL NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
`

// SQLiteStore implements Catalog and RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates
// any missing tables and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timestampLayout has fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

// ---------------------------------------------------------------------------
// Catalog implementation
// ---------------------------------------------------------------------------

// UpsertSymbol inserts or updates the coverage of a symbol.
func (s *SQLiteStore) UpsertSymbol(ctx context.Context, info SymbolInfo) error {
	updated := info.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO symbols (symbol, name, first_date, last_date, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = CASE WHEN excluded.name = '' THEN symbols.name ELSE excluded.name END,
			first_date = excluded.first_date,
			last_date = excluded.last_date,
			updated_at = excluded.updated_at`,
		info.Symbol, info.Name, formatDate(info.FirstDate), formatDate(info.LastDate), updated.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("upserting symbol %s: %w", info.Symbol, err)
	}
	return nil
}

// GetSymbol returns the coverage of symbol.
func (s *SQLiteStore) GetSymbol(ctx context.Context, symbol string) (*SymbolInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT symbol, name, first_date, last_date, updated_at FROM symbols WHERE symbol = ?`, symbol)
	info, err := scanSymbol(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("symbol %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading symbol %s: %w", symbol, err)
	}
	return &info, nil
}

// ListCatalog returns every tracked symbol.
func (s *SQLiteStore) ListCatalog(ctx context.Context) ([]SymbolInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, name, first_date, last_date, updated_at FROM symbols ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("listing symbols: %w", err)
	}
	defer rows.Close()

	var out []SymbolInfo
	for rows.Next() {
		info, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSymbol(sc scanner) (SymbolInfo, error) {
	var info SymbolInfo
	var first, last, updated string
	if err := sc.Scan(&info.Symbol, &info.Name, &first, &last, &updated); err != nil {
		return info, err
	}
	var err error
	if info.FirstDate, err = parseDate(first); err != nil {
		return info, err
	}
	if info.LastDate, err = parseDate(last); err != nil {
		return info, err
	}
	if info.UpdatedAt, err = time.Parse(timestampLayout, updated); err != nil {
		return info, err
	}
	return info, nil
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts run and its trades in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, kind, created_at, symbol, strategy, params, start_date, end_date,
			final_equity, total_return, sharpe_ratio, max_drawdown, trade_count, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.CreatedAt.UTC().Format(timestampLayout), run.Symbol, run.Strategy,
		nullableJSON(run.Params), formatDate(run.Start), formatDate(run.End),
		run.FinalEquity, run.TotalReturn, run.SharpeRatio, run.MaxDrawdown, run.TradeCount,
		nullableJSON(run.Report),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for i, t := range run.Trades {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_trades (run_id, seq, date_open, date_close, side, quantity,
				entry_price, exit_price, pnl, pnl_pct, commission, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, formatDate(t.DateOpen), formatDate(t.DateClose), t.Side, t.Quantity,
			t.EntryPrice, t.ExitPrice, t.PnL, t.PnLPct, t.Commission, t.Reason,
		)
		if err != nil {
			return fmt.Errorf("inserting trade %d of run %s: %w", i, run.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", run.ID, err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

const runColumns = `id, kind, created_at, symbol, strategy, params, start_date, end_date,
	final_equity, total_return, sharpe_ratio, max_drawdown, trade_count`

func scanRun(sc scanner, extra ...any) (Run, error) {
	var r Run
	var created string
	var params, start, end sql.NullString
	dest := []any{&r.ID, &r.Kind, &created, &r.Symbol, &r.Strategy, &params, &start, &end,
		&r.FinalEquity, &r.TotalReturn, &r.SharpeRatio, &r.MaxDrawdown, &r.TradeCount}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return r, err
	}
	var err error
	if r.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
		return r, err
	}
	if params.Valid {
		r.Params = []byte(params.String)
	}
	if r.Start, err = parseDate(start.String); err != nil {
		return r, err
	}
	if r.End, err = parseDate(end.String); err != nil {
		return r, err
	}
	return r, nil
}

// GetRun returns a run with its report and trades.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var report sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+`, report FROM runs WHERE id = ?`, id)
	run, err := scanRun(row, &report)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", id, err)
	}
	if report.Valid {
		run.Report = []byte(report.String)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date_open, date_close, side, quantity, entry_price, exit_price, pnl, pnl_pct, commission, reason
		FROM run_trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("reading trades of run %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Trade
		var open, closed string
		if err := rows.Scan(&open, &closed, &t.Side, &t.Quantity, &t.EntryPrice, &t.ExitPrice,
			&t.PnL, &t.PnLPct, &t.Commission, &t.Reason); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		if t.DateOpen, err = parseDate(open); err != nil {
			return nil, err
		}
		if t.DateClose, err = parseDate(closed); err != nil {
			return nil, err
		}
		run.Trades = append(run.Trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
