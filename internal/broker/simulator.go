package broker

import "quantlab/internal/domain"

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker fills every order immediately at the reference price moved
// against the trader by a fixed slippage fraction, and charges a fixed
// proportional commission.
type SimulatorBroker struct {
	slippage       float64
	commissionRate float64
}

// NewSimulatorBroker creates a SimulatorBroker.
//
//   - slippage: fraction added to buy prices and subtracted from sell prices
//     (e.g. 0.0001 for one basis point).
//   - commissionRate: fraction of notional value charged per fill
//     (e.g. 0.0003).
func NewSimulatorBroker(slippage, commissionRate float64) *SimulatorBroker {
	return &SimulatorBroker{
		slippage:       slippage,
		commissionRate: commissionRate,
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// FillPrice applies slippage. Non-trading signals return price unchanged.
func (b *SimulatorBroker) FillPrice(side domain.Signal, price float64) float64 {
	switch side {
	case domain.SignalBuy:
		return price * (1 + b.slippage)
	case domain.SignalSell:
		return price * (1 - b.slippage)
	}
	return price
}

// Commission returns value times the commission rate.
func (b *SimulatorBroker) Commission(value float64) float64 {
	return value * b.commissionRate
}

// CommissionRate returns the configured rate.
func (b *SimulatorBroker) CommissionRate() float64 {
	return b.commissionRate
}
