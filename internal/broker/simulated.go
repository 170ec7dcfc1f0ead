package broker

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"vquant/internal/domain"
	"vquant/internal/fill"
	"vquant/internal/order"
)

// Simulated is an in-memory broker backed by the shared friction model, so
// its fills match the backtest engine's exactly. It is safe for concurrent
// use.
type Simulated struct {
	mu       sync.Mutex
	orders   *order.Manager
	friction fill.Model
	logger   *slog.Logger

	initialCapital float64
	cash           float64
	positions      map[string]*domain.Position
	trades         []domain.Trade
}

var _ Broker = (*Simulated)(nil)

// NewSimulated creates a simulated broker with the given starting cash.
func NewSimulated(initialCapital float64, friction fill.Model, logger *slog.Logger) *Simulated {
	if logger == nil {
		logger = slog.Default()
	}
	if friction.LotSize == 0 {
		friction = fill.NewModel()
	}
	return &Simulated{
		orders:         order.NewManager(logger),
		friction:       friction,
		logger:         logger,
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]*domain.Position),
	}
}

// PlaceOrder creates the order, validates it against the reference price,
// and submits it. Validation failures reject the order and return
// ErrInsufficientFunds or ErrInsufficientPosition.
func (b *Simulated) PlaceOrder(symbol string, side domain.OrderSide, qty int64, typ domain.OrderType, price, stopPrice, refPrice float64, strategyID string) (domain.Order, error) {
	o, err := b.orders.Create(symbol, side, qty, typ, price, stopPrice, strategyID)
	if err != nil {
		return domain.Order{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch side {
	case domain.OrderSideBuy:
		f := b.friction.Quote(domain.OrderSideBuy, qty, refPrice)
		if f.Amount+f.Commission > b.cash {
			reason := fmt.Sprintf("order needs %.2f, cash is %.2f", f.Amount+f.Commission, b.cash)
			if err := b.orders.Reject(o.ID, reason); err != nil {
				return domain.Order{}, err
			}
			o, _ = b.orders.Get(o.ID)
			return o, fmt.Errorf("place %s: %w", o.ID, domain.ErrInsufficientFunds)
		}
	case domain.OrderSideSell:
		held := int64(0)
		if pos, ok := b.positions[symbol]; ok {
			held = pos.Quantity
		}
		if qty > held {
			reason := fmt.Sprintf("order sells %d, holding %d", qty, held)
			if err := b.orders.Reject(o.ID, reason); err != nil {
				return domain.Order{}, err
			}
			o, _ = b.orders.Get(o.ID)
			return o, fmt.Errorf("place %s: %w", o.ID, domain.ErrInsufficientPosition)
		}
	}

	if err := b.orders.Submit(o.ID); err != nil {
		return domain.Order{}, err
	}
	o, _ = b.orders.Get(o.ID)

	b.logger.Info("order placed",
		"order_id", o.ID,
		"symbol", symbol,
		"side", side,
		"type", typ,
		"quantity", qty)
	return o, nil
}

// Execute fills the order's remaining quantity at the market price if its
// conditions are met. A limit order only executes when marketable; a stop
// order only after its trigger. Unmet conditions return the order unchanged
// with no error.
func (b *Simulated) Execute(id string, marketPrice float64) (domain.Order, error) {
	o, err := b.orders.Get(id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.OrderStatusSubmitted && o.Status != domain.OrderStatusPartialFilled {
		return domain.Order{}, fmt.Errorf("execute %s: status %s: %w", id, o.Status, domain.ErrOrderNotActive)
	}
	if marketPrice <= 0 {
		return domain.Order{}, fmt.Errorf("%w: market price must be positive", domain.ErrInvalidParams)
	}
	if !b.conditionMet(o, marketPrice) {
		return o, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	qty := o.UnfilledQty()
	switch o.Side {
	case domain.OrderSideBuy:
		affordable := b.friction.MaxAffordable(b.cash, marketPrice)
		if affordable < qty {
			qty = affordable
		}
		if qty < b.friction.LotSize {
			return domain.Order{}, fmt.Errorf("execute %s: %w", id, domain.ErrInsufficientFunds)
		}
	case domain.OrderSideSell:
		held := int64(0)
		if pos, ok := b.positions[o.Symbol]; ok {
			held = pos.Quantity
		}
		if held < qty {
			qty = held
		}
		if qty <= 0 {
			return domain.Order{}, fmt.Errorf("execute %s: %w", id, domain.ErrInsufficientPosition)
		}
	}

	f := b.friction.Quote(o.Side, qty, marketPrice)
	if err := b.orders.Fill(id, f.Quantity, f.Price, f.Commission+f.StampDuty); err != nil {
		return domain.Order{}, err
	}
	b.settle(o, f)

	out, _ := b.orders.Get(id)
	b.logger.Info("order executed",
		"order_id", id,
		"fill_qty", f.Quantity,
		"fill_price", f.Price,
		"status", out.Status)
	return out, nil
}

// conditionMet reports whether the order may trade at the market price.
func (b *Simulated) conditionMet(o domain.Order, marketPrice float64) bool {
	switch o.Type {
	case domain.OrderTypeMarket:
		return true
	case domain.OrderTypeLimit:
		return b.limitMarketable(o, marketPrice)
	case domain.OrderTypeStop:
		return b.stopTriggered(o, marketPrice)
	case domain.OrderTypeStopLimit:
		return b.stopTriggered(o, marketPrice) && b.limitMarketable(o, marketPrice)
	}
	return false
}

func (b *Simulated) limitMarketable(o domain.Order, marketPrice float64) bool {
	if o.Side == domain.OrderSideBuy {
		return marketPrice <= o.Price
	}
	return marketPrice >= o.Price
}

func (b *Simulated) stopTriggered(o domain.Order, marketPrice float64) bool {
	if o.Side == domain.OrderSideBuy {
		return marketPrice >= o.StopPrice
	}
	return marketPrice <= o.StopPrice
}

// settle applies a fill to cash, positions, and the trade log in one step.
// Caller holds the mutex.
func (b *Simulated) settle(o domain.Order, f fill.Fill) {
	tr := domain.Trade{
		Symbol:   o.Symbol,
		Side:     o.Side,
		Price:    f.Price,
		Quantity: f.Quantity,
		Amount:   f.Amount,
	}

	switch o.Side {
	case domain.OrderSideBuy:
		b.cash -= f.Amount + f.Commission
		pos, ok := b.positions[o.Symbol]
		if !ok {
			pos = &domain.Position{Symbol: o.Symbol}
			b.positions[o.Symbol] = pos
		}
		pos.TotalCost += f.Amount
		pos.Quantity += f.Quantity
		pos.AvgCost = pos.TotalCost / float64(pos.Quantity)
		tr.Commission = f.Commission
	case domain.OrderSideSell:
		b.cash += f.Amount - f.Commission - f.StampDuty
		pos := b.positions[o.Symbol]
		tr.Profit = f.Amount - float64(f.Quantity)*pos.AvgCost
		pos.Quantity -= f.Quantity
		if pos.Quantity <= 0 {
			pos.Quantity = 0
			pos.AvgCost = 0
			pos.TotalCost = 0
		} else {
			pos.TotalCost = float64(pos.Quantity) * pos.AvgCost
		}
		tr.Commission = f.Commission + f.StampDuty
	}

	tr.CashAfter = b.cash
	b.trades = append(b.trades, tr)
}

// CancelOrder cancels a still-active order.
func (b *Simulated) CancelOrder(id string) error {
	return b.orders.Cancel(id)
}

// GetOrder returns a copy of the order.
func (b *Simulated) GetOrder(id string) (domain.Order, error) {
	return b.orders.Get(id)
}

// Orders exposes the underlying order manager for listing and stats.
func (b *Simulated) Orders() *order.Manager { return b.orders }

// Cash returns the current cash balance.
func (b *Simulated) Cash() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash
}

// GetPositions returns open positions sorted by symbol.
func (b *Simulated) GetPositions() []domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		if p.Quantity > 0 {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// GetAccount values the account at the given close prices. Positions with no
// price entry are valued at cost.
func (b *Simulated) GetAccount(prices map[string]float64) domain.AccountInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	var positionValue float64
	for sym, pos := range b.positions {
		if pos.Quantity <= 0 {
			continue
		}
		if price, ok := prices[sym]; ok {
			positionValue += float64(pos.Quantity) * price
		} else {
			positionValue += pos.TotalCost
		}
	}
	return domain.AccountInfo{
		TotalValue:     b.cash + positionValue,
		Cash:           b.cash,
		PositionValue:  positionValue,
		InitialCapital: b.initialCapital,
	}
}

// Trades returns all settled executions in order.
func (b *Simulated) Trades() []domain.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Trade(nil), b.trades...)
}
