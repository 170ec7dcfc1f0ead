// Package broker provides the order-facing execution surface. Unlike the
// backtest engine, which silently drops infeasible signals, the broker path
// reports failures explicitly: placing an order that cannot be funded or
// covered rejects it with a reason.
package broker

import "vquant/internal/domain"

// Broker places, executes, and settles orders against an account.
type Broker interface {
	// PlaceOrder creates an order and runs pre-trade checks against the
	// reference price. A failed check leaves the order REJECTED and
	// returns the corresponding sentinel error; otherwise the order is
	// SUBMITTED.
	PlaceOrder(symbol string, side domain.OrderSide, qty int64, typ domain.OrderType, price, stopPrice float64, refPrice float64, strategyID string) (domain.Order, error)

	// Execute attempts to fill an order at the given market price. Limit
	// and stop conditions that are not met leave the order untouched.
	Execute(id string, marketPrice float64) (domain.Order, error)

	// CancelOrder cancels a still-active order.
	CancelOrder(id string) error

	// GetOrder returns a copy of the order.
	GetOrder(id string) (domain.Order, error)

	// GetPositions returns open positions sorted by symbol.
	GetPositions() []domain.Position

	// GetAccount values the account with the given close prices.
	GetAccount(prices map[string]float64) domain.AccountInfo

	// Trades returns all settled executions in order.
	Trades() []domain.Trade
}
