// Package domain defines the core types shared across the vquant platform:
// bars, signals, positions, trades, orders, and account snapshots.
package domain

import "time"

// Market identifies the exchange venue a symbol trades on.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Bar is a single OHLCV record for a symbol at daily granularity. Amount is
// the traded notional (price × volume) as reported by the venue.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Amount    float64
}

// SignalType classifies the instruction a strategy emits.
type SignalType string

const (
	SignalBuy        SignalType = "buy"
	SignalSell       SignalType = "sell"
	SignalHold       SignalType = "hold"
	SignalCloseLong  SignalType = "close_long"
	SignalCloseShort SignalType = "close_short"
)

// Signal is an immutable trading instruction produced by a strategy. Quantity
// is advisory; zero means "size at the engine's discretion". Metadata carries
// small scalar annotations formatted as strings by the producer.
type Signal struct {
	Symbol     string
	Type       SignalType
	Price      float64
	Timestamp  time.Time
	Strength   float64
	Quantity   int64
	StrategyID string
	Metadata   map[string]string
}

// IsBuy reports whether the signal opens or adds to a long position.
func (s Signal) IsBuy() bool { return s.Type == SignalBuy }

// IsSell reports whether the signal reduces or closes a long position.
// CloseLong is treated as a sell of the full position.
func (s Signal) IsSell() bool { return s.Type == SignalSell || s.Type == SignalCloseLong }

// Position tracks a long holding in one symbol at weighted-average cost.
// Invariant: TotalCost == Quantity·AvgCost; a flat position has all three at
// zero. Short positions are not supported.
type Position struct {
	Symbol    string
	Quantity  int64
	AvgCost   float64
	TotalCost float64
}

// MarketValue returns the position's value at the given price.
func (p Position) MarketValue(price float64) float64 {
	return float64(p.Quantity) * price
}

// UnrealizedPL returns the open profit or loss at the given price.
func (p Position) UnrealizedPL(price float64) float64 {
	return (price - p.AvgCost) * float64(p.Quantity)
}

// OrderSide is the direction of an order or executed trade.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Trade is an immutable record of one executed fill in a backtest run.
// Commission includes the sell-side stamp duty when applicable.
//
// Profit is the gross P&L convention inherited from the accounting model:
// amount − quantity·avgCost, excluding fees, even though the cash movement is
// net of fees. It is only populated on sell trades.
type Trade struct {
	Date       time.Time
	Symbol     string
	Side       OrderSide
	Price      float64
	Quantity   int64
	Amount     float64
	Commission float64
	Profit     float64
	CashAfter  float64
}

// DailySnapshot is the end-of-day account valuation: TotalValue is always
// Cash + PositionValue at that day's closing prices.
type DailySnapshot struct {
	Date          time.Time
	TotalValue    float64
	Cash          float64
	PositionValue float64
}

// OrderType selects the execution style of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusSubmitted     OrderStatus = "submitted"
	OrderStatusPartialFilled OrderStatus = "partial_filled"
	OrderStatusFilled        OrderStatus = "filled"
	OrderStatusCancelled     OrderStatus = "cancelled"
	OrderStatusRejected      OrderStatus = "rejected"
)

// Order is a unit of intent on the interactive execution path. FilledAvgPrice
// is the running volume-weighted average across partial fills.
type Order struct {
	ID             string
	Symbol         string
	Side           OrderSide
	Quantity       int64
	Type           OrderType
	Price          float64
	StopPrice      float64
	Status         OrderStatus
	FilledQty      int64
	FilledAvgPrice float64
	Commission     float64
	StrategyID     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Message        string
	Metadata       map[string]string
}

// IsActive reports whether the order can still receive fills or be cancelled.
func (o *Order) IsActive() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusSubmitted, OrderStatusPartialFilled:
		return true
	}
	return false
}

// IsTerminal reports whether the order has reached a final state.
func (o *Order) IsTerminal() bool { return !o.IsActive() }

// UnfilledQty returns the quantity still awaiting execution.
func (o *Order) UnfilledQty() int64 { return o.Quantity - o.FilledQty }

// FilledAmount returns the notional value executed so far.
func (o *Order) FilledAmount() float64 { return float64(o.FilledQty) * o.FilledAvgPrice }

// AccountInfo is a snapshot of simulated account value.
type AccountInfo struct {
	TotalValue     float64
	Cash           float64
	PositionValue  float64
	InitialCapital float64
}
