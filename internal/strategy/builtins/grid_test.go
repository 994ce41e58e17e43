package builtins

import (
	"errors"
	"testing"

	"quantlab/internal/domain"
	"quantlab/internal/strategy"
)

func TestGridBoundsValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  strategy.Params
		wantErr bool
	}{
		{"inverted", strategy.Params{"upper_price": 90, "lower_price": 110}, true},
		{"equal", strategy.Params{"upper_price": 100, "lower_price": 100}, true},
		{"upper only", strategy.Params{"upper_price": 110}, true},
		{"lower only", strategy.Params{"lower_price": 90}, true},
		{"negative", strategy.Params{"upper_price": 110, "lower_price": -5}, true},
		{"fixed", strategy.Params{"upper_price": 110, "lower_price": 90}, false},
		{"derived", strategy.Params{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(strategy.Config{Name: "grid", Params: tt.params})
			if tt.wantErr && !errors.Is(err, strategy.ErrInvalidParams) {
				t.Errorf("New(grid, %v) err = %v, want ErrInvalidParams", tt.params, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("New(grid, %v) err = %v, want nil", tt.params, err)
			}
		})
	}
}

func TestGridFromConfigTrades(t *testing.T) {
	s := mustNew(t, strategy.Config{Name: "grid", Params: strategy.Params{
		"grid_num": 10, "upper_price": 110, "lower_price": 90,
	}})
	sigs := drive(t, s, barsFromCloses([]float64{100, 97, 101}, nil))
	if sigs[1] != domain.SignalBuy || sigs[2] != domain.SignalSell {
		t.Errorf("signals = %v, want BUY at bar 1 and SELL at bar 2", sigs)
	}
}
