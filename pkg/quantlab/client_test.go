package quantlab

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"quantlab/internal/api"
	"quantlab/internal/config"
	"quantlab/internal/domain"
	"quantlab/internal/strategy"
)

type staticLoader struct{ series domain.Series }

func (l staticLoader) Load(_ context.Context, symbol string, _, _ time.Time) (domain.Series, error) {
	if symbol != l.series.Symbol {
		return domain.Series{}, nil
	}
	return l.series, nil
}

func rising(symbol string, n int) domain.Series {
	d0 := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		// Saw-tooth uptrend so the moving averages cross.
		p := 100 + float64(i)*0.2 + float64(i%15)
		bars[i] = domain.Bar{Symbol: symbol, Date: d0.AddDate(0, 0, i), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 100}
	}
	return domain.NewSeries(symbol, bars)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.Data.StartDate = "2023-01-01"
	cfg.Data.EndDate = "2023-12-31"
	svc := api.NewService(cfg, staticLoader{series: rising("SPY", 200)},
		api.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	api.NewGRPCServer(svc).RegisterGRPC(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestClientBacktest(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	resp, err := c.Backtest(ctx, BacktestRequest{
		Symbol:   "SPY",
		Strategy: strategy.Config{Name: "ma_cross", Params: strategy.Params{"short_window": 3, "long_window": 10}},
	})
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if resp.Summary.Bars != 200 {
		t.Errorf("Bars = %d, want 200", resp.Summary.Bars)
	}
	if resp.Summary.Strategy != "MACross(3,10)" {
		t.Errorf("Strategy = %q, want MACross(3,10)", resp.Summary.Strategy)
	}
}

func TestClientStrategiesAndErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	infos, err := c.Strategies(ctx)
	if err != nil {
		t.Fatalf("Strategies: %v", err)
	}
	if len(infos) != len(strategy.Kinds()) {
		t.Errorf("Strategies = %d, want %d", len(infos), len(strategy.Kinds()))
	}

	_, err = c.Backtest(ctx, BacktestRequest{Symbol: "QQQ"})
	if got := status.Code(err); got != codes.NotFound {
		t.Errorf("Backtest(QQQ) code = %v, want NotFound (%v)", got, err)
	}

	if _, err := c.Runs(ctx, 5); err == nil {
		t.Error("Runs should fail without a run store")
	}
}
