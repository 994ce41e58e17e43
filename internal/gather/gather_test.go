package gather

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// memStore is an in-memory BarStore and Catalog.
type memStore struct {
	mu      sync.Mutex
	bars    map[string]map[time.Time]domain.Bar
	catalog map[string]store.SymbolInfo
}

func newMemStore() *memStore {
	return &memStore{bars: map[string]map[time.Time]domain.Bar{}, catalog: map[string]store.SymbolInfo{}}
}

func (m *memStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		if m.bars[b.Symbol] == nil {
			m.bars[b.Symbol] = map[time.Time]domain.Bar{}
		}
		m.bars[b.Symbol][b.Date] = b
	}
	return nil
}

func (m *memStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Bar
	for d, b := range m.bars[symbol] {
		if !d.Before(start) && !d.After(end) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) ListSymbols(context.Context) ([]string, error) { return nil, nil }

func (m *memStore) UpsertSymbol(_ context.Context, info store.SymbolInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog[info.Symbol] = info
	return nil
}

func (m *memStore) GetSymbol(_ context.Context, symbol string) (*store.SymbolInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.catalog[symbol]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &info, nil
}

func (m *memStore) ListCatalog(context.Context) ([]store.SymbolInfo, error) { return nil, nil }

type fetchCall struct{ start, end time.Time }

type fakeProvider struct {
	calls []fetchCall
	err   error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchDailyBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	p.calls = append(p.calls, fetchCall{start, end})
	if p.err != nil {
		return nil, p.err
	}
	cal := util.NewTradingCalendar()
	var out []domain.Bar
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if cal.IsTradingDay(d) {
			// Provider timestamps arrive at midnight New York time.
			ts := d.Add(5 * time.Hour)
			out = append(out, domain.Bar{Symbol: symbol, Date: ts, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100})
		}
	}
	return out, nil
}

func newTestLoader(st *memStore, p Provider, now time.Time) *Loader {
	opts := []LoaderOption{WithHistoryStart(day(2024, 1, 1)), WithRetry(2, 0)}
	if p != nil {
		opts = append(opts, WithProvider(p))
	}
	l := NewLoader(st, st, opts...)
	l.now = func() time.Time { return now }
	return l
}

// ---------------------------------------------------------------------------
// Clean
// ---------------------------------------------------------------------------

func TestClean(t *testing.T) {
	raw := []domain.Bar{
		{Symbol: "spy", Date: day(2024, 1, 3), Open: 0, High: 12, Low: 10, Close: 11, Volume: -5},
		{Symbol: "spy", Date: day(2024, 1, 2), Open: 10, High: 11, Low: 9, Close: 10, Volume: 100},
		{Symbol: "spy", Date: day(2024, 1, 4), Open: 11, High: 12, Low: 10, Close: math.NaN(), Volume: 200},
		{Symbol: "spy", Date: day(2024, 1, 4).Add(3 * time.Hour), Open: 11, High: 12, Low: 10, Close: 11.5, Volume: 300},
	}
	got := Clean(raw)
	if len(got) != 3 {
		t.Fatalf("Clean returned %d bars, want 3", len(got))
	}
	if !got[0].Date.Equal(day(2024, 1, 2)) || !got[2].Date.Equal(day(2024, 1, 4)) {
		t.Errorf("dates = %v, %v", got[0].Date, got[2].Date)
	}
	if got[1].Open != 10 {
		t.Errorf("forward-filled open = %v, want 10", got[1].Open)
	}
	if got[1].Volume != 0 {
		t.Errorf("negative volume = %v, want 0", got[1].Volume)
	}
	if got[2].Close != 11.5 || got[2].Volume != 300 {
		t.Errorf("duplicate date should keep last: %+v", got[2])
	}
	if got[0].Symbol != "SPY" {
		t.Errorf("Symbol = %q, want SPY", got[0].Symbol)
	}
}

func TestCleanBackFillsAndDrops(t *testing.T) {
	raw := []domain.Bar{
		{Date: day(2024, 1, 2), Open: 0, High: 0, Low: 0, Close: 0},
		{Date: day(2024, 1, 3), Open: 5, High: 6, Low: 4, Close: 5.5},
	}
	got := Clean(raw)
	if len(got) != 2 || got[0].Close != 5.5 || got[0].Open != 5 {
		t.Errorf("back-fill = %+v", got)
	}

	if got := Clean([]domain.Bar{{Date: day(2024, 1, 2), Close: math.Inf(1)}}); len(got) != 0 {
		t.Errorf("bar with no valid price kept: %+v", got)
	}
	if Clean(nil) != nil {
		t.Error("Clean(nil) should be nil")
	}
}

// ---------------------------------------------------------------------------
// ReadCSV
// ---------------------------------------------------------------------------

func TestReadCSV(t *testing.T) {
	src := "Date,Open,High,Low,Close,Adj Close,Volume\n" +
		"2024-01-02,10,11,9,10.5,10.4,1000\n" +
		"20240103,10.5,12,10,11.5,11.4,\n"
	bars, err := ReadCSV(strings.NewReader(src), "qqq")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("ReadCSV returned %d bars, want 2", len(bars))
	}
	want := domain.Bar{Symbol: "QQQ", Date: day(2024, 1, 2), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000}
	if bars[0] != want {
		t.Errorf("bars[0] = %+v, want %+v", bars[0], want)
	}
	if !bars[1].Date.Equal(day(2024, 1, 3)) || bars[1].Volume != 0 {
		t.Errorf("bars[1] = %+v", bars[1])
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing column", "date,open,high,low\n2024-01-02,1,1,1\n"},
		{"bad date", "date,open,high,low,close\nyesterday,1,1,1,1\n"},
		{"bad number", "date,open,high,low,close\n2024-01-02,1,x,1,1\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.src), "X"); err == nil {
				t.Error("ReadCSV should fail")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

func TestLoaderOffline(t *testing.T) {
	st := newMemStore()
	l := newTestLoader(st, nil, day(2024, 2, 1))
	ctx := context.Background()

	series, err := l.Load(ctx, "spy", day(2024, 1, 1), day(2024, 1, 31))
	if err != nil || !series.Empty() {
		t.Fatalf("Load(empty store) = %v, %v; want empty series", series, err)
	}

	n, err := l.Import(ctx, "spy", []domain.Bar{
		{Date: day(2024, 1, 2), Open: 1, High: 1, Low: 1, Close: 1},
		{Date: day(2024, 1, 3), Open: 2, High: 2, Low: 2, Close: 2},
	})
	if err != nil || n != 2 {
		t.Fatalf("Import = %d, %v", n, err)
	}
	series, err = l.Load(ctx, "SPY", day(2024, 1, 1), day(2024, 1, 31))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if series.Len() != 2 || series.Symbol != "SPY" {
		t.Errorf("series = %d bars of %q", series.Len(), series.Symbol)
	}
	if _, err := l.Update(ctx, "SPY", day(2024, 1, 31)); !errors.Is(err, ErrNoProvider) {
		t.Errorf("Update without provider error = %v", err)
	}
}

func TestLoaderIncrementalFetch(t *testing.T) {
	st := newMemStore()
	p := &fakeProvider{}
	// Saturday: the last trading day is Friday Jan 5.
	l := newTestLoader(st, p, day(2024, 1, 6))
	ctx := context.Background()

	series, err := l.Load(ctx, "SPY", day(2024, 1, 1), day(2024, 1, 31))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.calls) != 1 || !p.calls[0].start.Equal(day(2024, 1, 1)) {
		t.Fatalf("calls = %+v, want one from history start", p.calls)
	}
	if series.Len() != 23 {
		// Every weekday of January 2024.
		t.Errorf("bars = %d, want 23", series.Len())
	}
	info, err := st.GetSymbol(ctx, "SPY")
	if err != nil {
		t.Fatalf("GetSymbol: %v", err)
	}
	if !info.FirstDate.Equal(day(2024, 1, 1)) || !info.LastDate.Equal(day(2024, 1, 31)) {
		t.Errorf("catalog = %v..%v", info.FirstDate, info.LastDate)
	}

	// Up to date: no further fetch.
	if _, err := l.Load(ctx, "SPY", day(2024, 1, 1), day(2024, 1, 31)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(p.calls))
	}

	// Later request resumes after the last stored day.
	l.now = func() time.Time { return day(2024, 2, 10) }
	if _, err := l.Load(ctx, "SPY", day(2024, 1, 1), day(2024, 2, 9)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.calls) != 2 || !p.calls[1].start.Equal(day(2024, 2, 1)) {
		t.Errorf("resume call = %+v, want start 2024-02-01", p.calls)
	}
}

func TestLoaderServesLocalDataOnFetchFailure(t *testing.T) {
	st := newMemStore()
	p := &fakeProvider{err: errors.New("503")}
	l := newTestLoader(st, p, day(2024, 3, 1))
	ctx := context.Background()

	if _, err := l.Import(ctx, "IWM", []domain.Bar{{Date: day(2024, 1, 2), Open: 1, High: 1, Low: 1, Close: 1}}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	series, err := l.Load(ctx, "IWM", day(2024, 1, 1), day(2024, 2, 28))
	if err != nil {
		t.Fatalf("Load error = %v, want local data", err)
	}
	if series.Len() != 1 {
		t.Errorf("bars = %d, want 1", series.Len())
	}
	if len(p.calls) != 2 {
		t.Errorf("fetch attempts = %d, want 2", len(p.calls))
	}
}
