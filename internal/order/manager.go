// Package order tracks the lifecycle of simulated orders. An order moves
// through PENDING -> SUBMITTED -> PARTIAL_FILLED -> FILLED, can be cancelled
// while still active, and can be rejected only before submission. Fills are
// only accepted once an order has been submitted.
package order

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vquant/internal/domain"
)

// Manager owns all orders of a session and enforces the state machine. It is
// safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	logger *slog.Logger
}

// NewManager creates an empty order manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		orders: make(map[string]*domain.Order),
		logger: logger,
	}
}

// Create registers a new order in PENDING state and returns a copy of it.
func (m *Manager) Create(symbol string, side domain.OrderSide, qty int64, typ domain.OrderType, price, stopPrice float64, strategyID string) (domain.Order, error) {
	if symbol == "" {
		return domain.Order{}, fmt.Errorf("%w: empty symbol", domain.ErrInvalidParams)
	}
	if qty <= 0 {
		return domain.Order{}, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidParams, qty)
	}
	switch typ {
	case domain.OrderTypeLimit:
		if price <= 0 {
			return domain.Order{}, fmt.Errorf("%w: limit order needs a positive price", domain.ErrInvalidParams)
		}
	case domain.OrderTypeStop:
		if stopPrice <= 0 {
			return domain.Order{}, fmt.Errorf("%w: stop order needs a positive stop price", domain.ErrInvalidParams)
		}
	case domain.OrderTypeStopLimit:
		if price <= 0 || stopPrice <= 0 {
			return domain.Order{}, fmt.Errorf("%w: stop-limit order needs positive price and stop price", domain.ErrInvalidParams)
		}
	case domain.OrderTypeMarket:
	default:
		return domain.Order{}, fmt.Errorf("%w: unknown order type %q", domain.ErrInvalidParams, typ)
	}

	now := time.Now()
	o := &domain.Order{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Type:       typ,
		Price:      price,
		StopPrice:  stopPrice,
		Status:     domain.OrderStatusPending,
		StrategyID: strategyID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	m.orders[o.ID] = o
	m.mu.Unlock()

	m.logger.Debug("order created",
		"order_id", o.ID,
		"symbol", symbol,
		"side", side,
		"type", typ,
		"quantity", qty)
	return *o, nil
}

// CreateMarket creates a market order in PENDING state.
func (m *Manager) CreateMarket(symbol string, side domain.OrderSide, qty int64, strategyID string) (domain.Order, error) {
	return m.Create(symbol, side, qty, domain.OrderTypeMarket, 0, 0, strategyID)
}

// CreateLimit creates a limit order in PENDING state.
func (m *Manager) CreateLimit(symbol string, side domain.OrderSide, qty int64, price float64, strategyID string) (domain.Order, error) {
	return m.Create(symbol, side, qty, domain.OrderTypeLimit, price, 0, strategyID)
}

// CreateStop creates a stop order in PENDING state.
func (m *Manager) CreateStop(symbol string, side domain.OrderSide, qty int64, stopPrice float64, strategyID string) (domain.Order, error) {
	return m.Create(symbol, side, qty, domain.OrderTypeStop, 0, stopPrice, strategyID)
}

// CreateStopLimit creates a stop-limit order in PENDING state.
func (m *Manager) CreateStopLimit(symbol string, side domain.OrderSide, qty int64, price, stopPrice float64, strategyID string) (domain.Order, error) {
	return m.Create(symbol, side, qty, domain.OrderTypeStopLimit, price, stopPrice, strategyID)
}

// Submit moves a PENDING order to SUBMITTED.
func (m *Manager) Submit(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("submit %s: %w", id, domain.ErrOrderNotFound)
	}
	if o.Status != domain.OrderStatusPending {
		return fmt.Errorf("submit %s: status %s: %w", id, o.Status, domain.ErrOrderNotActive)
	}
	o.Status = domain.OrderStatusSubmitted
	o.UpdatedAt = time.Now()
	return nil
}

// Fill records an execution against a SUBMITTED or PARTIAL_FILLED order. The
// filled average price is volume-weighted across fills and commission
// accumulates across them. Filling the full remaining quantity moves the
// order to FILLED.
func (m *Manager) Fill(id string, qty int64, price, commission float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("fill %s: %w", id, domain.ErrOrderNotFound)
	}
	if o.Status != domain.OrderStatusSubmitted && o.Status != domain.OrderStatusPartialFilled {
		return fmt.Errorf("fill %s: status %s: %w", id, o.Status, domain.ErrOrderNotActive)
	}
	if qty <= 0 || price <= 0 {
		return fmt.Errorf("%w: fill quantity and price must be positive", domain.ErrInvalidParams)
	}
	if commission < 0 {
		return fmt.Errorf("%w: commission must not be negative", domain.ErrInvalidParams)
	}
	if qty > o.UnfilledQty() {
		return fmt.Errorf("%w: fill of %d exceeds unfilled %d", domain.ErrInvalidParams, qty, o.UnfilledQty())
	}

	total := o.FilledAvgPrice*float64(o.FilledQty) + price*float64(qty)
	o.FilledQty += qty
	o.FilledAvgPrice = total / float64(o.FilledQty)
	o.Commission += commission
	if o.FilledQty == o.Quantity {
		o.Status = domain.OrderStatusFilled
	} else {
		o.Status = domain.OrderStatusPartialFilled
	}
	o.UpdatedAt = time.Now()

	m.logger.Debug("order filled",
		"order_id", id,
		"fill_qty", qty,
		"fill_price", price,
		"status", o.Status)
	return nil
}

// Cancel moves any still-active order to CANCELLED.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("cancel %s: %w", id, domain.ErrOrderNotFound)
	}
	if !o.IsActive() {
		return fmt.Errorf("cancel %s: status %s: %w", id, o.Status, domain.ErrOrderNotActive)
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = time.Now()
	return nil
}

// Reject moves a PENDING order to REJECTED with a reason. Orders that have
// already been submitted cannot be rejected, only cancelled.
func (m *Manager) Reject(id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("reject %s: %w", id, domain.ErrOrderNotFound)
	}
	if o.Status != domain.OrderStatusPending {
		return fmt.Errorf("reject %s: status %s: %w", id, o.Status, domain.ErrOrderNotActive)
	}
	o.Status = domain.OrderStatusRejected
	o.Message = reason
	o.UpdatedAt = time.Now()

	m.logger.Debug("order rejected", "order_id", id, "reason", reason)
	return nil
}

// Get returns a copy of the order with the given ID.
func (m *Manager) Get(id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("get %s: %w", id, domain.ErrOrderNotFound)
	}
	return *o, nil
}

// Active returns copies of all orders that can still receive fills or be
// cancelled, oldest first.
func (m *Manager) Active() []domain.Order {
	return m.filter(func(o *domain.Order) bool { return o.IsActive() })
}

// Pending returns copies of all orders awaiting submission, oldest first.
func (m *Manager) Pending() []domain.Order {
	return m.filter(func(o *domain.Order) bool { return o.Status == domain.OrderStatusPending })
}

// Completed returns copies of all orders in a terminal state, oldest first.
func (m *Manager) Completed() []domain.Order {
	return m.filter(func(o *domain.Order) bool { return o.IsTerminal() })
}

// BySymbol returns copies of all orders for a symbol, oldest first.
func (m *Manager) BySymbol(symbol string) []domain.Order {
	return m.filter(func(o *domain.Order) bool { return o.Symbol == symbol })
}

func (m *Manager) filter(keep func(*domain.Order) bool) []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Stats summarises the state of all orders the manager has seen.
type Stats struct {
	Total     int
	Active    int
	Filled    int
	Cancelled int
	Rejected  int
	FillRate  float64
}

// Summary returns order counts by state. FillRate is the share of all orders
// that reached FILLED.
func (m *Manager) Summary() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Stats
	s.Total = len(m.orders)
	for _, o := range m.orders {
		switch {
		case o.IsActive():
			s.Active++
		case o.Status == domain.OrderStatusFilled:
			s.Filled++
		case o.Status == domain.OrderStatusCancelled:
			s.Cancelled++
		case o.Status == domain.OrderStatusRejected:
			s.Rejected++
		}
	}
	if s.Total > 0 {
		s.FillRate = float64(s.Filled) / float64(s.Total)
	}
	return s
}
