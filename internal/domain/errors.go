package domain

import "errors"

// Sentinel errors shared across the engine, broker, and order packages.
var (
	// ErrEmptyData is returned when a bar series required by a backtest or
	// strategy is empty.
	ErrEmptyData = errors.New("empty bar series")

	// ErrInvalidParams is returned when strategy or engine parameters fail
	// validation (e.g. fast period >= slow period).
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrInsufficientFunds is returned on the order path when a buy exceeds
	// available cash. The backtest loop never returns it: infeasible signals
	// are silently dropped there.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientPosition is returned on the order path when a sell
	// exceeds the held quantity.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrOrderNotFound is returned when an order ID is unknown.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderNotActive is returned when a transition is attempted on an
	// order in a terminal state.
	ErrOrderNotActive = errors.New("order not active")
)
