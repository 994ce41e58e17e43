// Package us provides the Alpaca-backed data provider and trading calendar
// for US listed securities.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantlab/internal/domain"
	"quantlab/internal/gather"
)

// Compile-time interface check.
var _ gather.Provider = (*AlpacaProvider)(nil)

// barsClient is the subset of the Alpaca market-data client the provider
// uses.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaProvider fetches daily bars from the Alpaca market-data API.
type AlpacaProvider struct {
	client barsClient
	log    *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials. An
// empty dataURL uses the client's default endpoint.
func NewAlpacaProvider(apiKey, apiSecret, dataURL string) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return newAlpacaProvider(marketdata.NewClient(opts))
}

func newAlpacaProvider(c barsClient) *AlpacaProvider {
	return &AlpacaProvider{
		client: c,
		log:    slog.Default().With("provider", "alpaca"),
	}
}

// Name returns the provider identifier.
func (p *AlpacaProvider) Name() string { return "alpaca" }

// FetchDailyBars returns daily bars for symbol within [start, end]. The
// client paginates internally.
func (p *AlpacaProvider) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)

	// Alpaca treats End as exclusive of the day itself.
	alpacaBars, err := p.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol: symbol,
			Date:   ab.Timestamp,
			Open:   ab.Open,
			High:   ab.High,
			Low:    ab.Low,
			Close:  ab.Close,
			Volume: float64(ab.Volume),
		})
	}
	p.log.Debug("fetched bars", "symbol", symbol, "bars", len(bars))
	return bars, nil
}
