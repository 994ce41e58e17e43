// Package broker defines the fill model the backtest engine executes
// against.
package broker

import "quantlab/internal/domain"

// Broker prices fills for the backtest engine.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// FillPrice returns the execution price for a market order on the given
	// side when the reference price is price.
	FillPrice(side domain.Signal, price float64) float64

	// Commission returns the fee charged on a fill of the given notional
	// value.
	Commission(value float64) float64

	// CommissionRate returns the proportional fee rate.
	CommissionRate() float64
}
