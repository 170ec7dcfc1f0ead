// Package fill implements the shared execution/friction model: a pure,
// deterministic mapping from (side, requested quantity, reference price) to a
// fill with slippage-adjusted price, lot-rounded quantity, and fees. Both the
// backtest engine and the simulated broker price executions through this
// package, so identical inputs always produce identical fills on both paths.
package fill

import "vquant/internal/domain"

// Default friction parameters for CN A-share equities.
const (
	DefaultCommissionRate = 0.0003
	DefaultMinCommission  = 5.0
	DefaultStampDutyRate  = 0.001
	DefaultSlippage       = 0.001
	DefaultLotSize        = 100
)

// Model holds the friction parameters of a venue. The zero value is not
// usable; construct with NewModel or fill every field.
type Model struct {
	CommissionRate float64 // fraction of notional, both sides
	MinCommission  float64 // floor per execution
	StampDutyRate  float64 // fraction of notional, sell side only
	Slippage       float64 // adverse price impact fraction
	LotSize        int64   // minimum tradable share increment
}

// NewModel returns a Model with the default CN equity frictions.
func NewModel() Model {
	return Model{
		CommissionRate: DefaultCommissionRate,
		MinCommission:  DefaultMinCommission,
		StampDutyRate:  DefaultStampDutyRate,
		Slippage:       DefaultSlippage,
		LotSize:        DefaultLotSize,
	}
}

// Fill is the priced outcome of executing a quantity at a reference price.
// Quantity is always a non-negative multiple of the lot size; a zero Quantity
// means the request rounded below one lot and nothing executes.
type Fill struct {
	Price      float64 // slippage-adjusted execution price
	Quantity   int64
	Amount     float64 // Quantity · Price
	Commission float64
	StampDuty  float64 // sell side only
}

// TotalFees returns commission plus stamp duty.
func (f Fill) TotalFees() float64 { return f.Commission + f.StampDuty }

// RoundLot rounds qty down to a whole number of lots. Negative quantities
// round to zero.
func (m Model) RoundLot(qty int64) int64 {
	if qty < 0 || m.LotSize <= 0 {
		return 0
	}
	return (qty / m.LotSize) * m.LotSize
}

// EffectivePrice applies slippage to the reference price: buys pay up, sells
// receive less.
func (m Model) EffectivePrice(side domain.OrderSide, refPrice float64) float64 {
	if side == domain.OrderSideBuy {
		return refPrice * (1 + m.Slippage)
	}
	return refPrice * (1 - m.Slippage)
}

// MaxAffordable returns the largest lot-rounded quantity purchasable with the
// given cash at the slippage-adjusted price, before fees.
func (m Model) MaxAffordable(cash, refPrice float64) int64 {
	price := m.EffectivePrice(domain.OrderSideBuy, refPrice)
	if price <= 0 {
		return 0
	}
	return m.RoundLot(int64(cash / price))
}

// Quote prices the execution of qty shares at refPrice. The quantity is lot
// rounded; commission has the per-execution floor applied; stamp duty is
// charged on sells only. Quote never mutates state and never errors: a
// request that rounds to zero simply returns a zero-quantity Fill.
func (m Model) Quote(side domain.OrderSide, qty int64, refPrice float64) Fill {
	quantity := m.RoundLot(qty)
	if quantity <= 0 {
		return Fill{Price: m.EffectivePrice(side, refPrice)}
	}

	price := m.EffectivePrice(side, refPrice)
	amount := float64(quantity) * price

	commission := amount * m.CommissionRate
	if commission < m.MinCommission {
		commission = m.MinCommission
	}

	var stampDuty float64
	if side == domain.OrderSideSell {
		stampDuty = amount * m.StampDutyRate
	}

	return Fill{
		Price:      price,
		Quantity:   quantity,
		Amount:     amount,
		Commission: commission,
		StampDuty:  stampDuty,
	}
}
