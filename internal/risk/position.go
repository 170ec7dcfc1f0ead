package risk

import (
	"fmt"
	"log/slog"
	"sort"

	"vquant/internal/domain"
)

// PositionManager is the authoritative ledger for the interactive path. It
// tracks per-symbol quantity and weighted-average cost and derives weights
// and concentration statistics on demand. It is not safe for concurrent use.
type PositionManager struct {
	positions map[string]*domain.Position
	logger    *slog.Logger
}

// NewPositionManager creates an empty ledger.
func NewPositionManager(logger *slog.Logger) *PositionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &PositionManager{
		positions: make(map[string]*domain.Position),
		logger:    logger,
	}
}

// UpdatePosition applies a signed share delta at the given price: positive
// deltas buy (recomputing the weighted-average cost), negative deltas sell.
// Selling more than held is an error and leaves the ledger unchanged.
func (pm *PositionManager) UpdatePosition(symbol string, delta int64, price float64) error {
	if delta == 0 {
		return nil
	}
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive", domain.ErrInvalidParams)
	}

	pos, ok := pm.positions[symbol]
	if delta > 0 {
		if !ok {
			pos = &domain.Position{Symbol: symbol}
			pm.positions[symbol] = pos
		}
		pos.TotalCost += float64(delta) * price
		pos.Quantity += delta
		pos.AvgCost = pos.TotalCost / float64(pos.Quantity)
		return nil
	}

	sell := -delta
	if !ok || pos.Quantity < sell {
		held := int64(0)
		if ok {
			held = pos.Quantity
		}
		return fmt.Errorf("update %s: selling %d with %d held: %w", symbol, sell, held, domain.ErrInsufficientPosition)
	}
	pos.Quantity -= sell
	if pos.Quantity == 0 {
		pos.AvgCost = 0
		pos.TotalCost = 0
	} else {
		pos.TotalCost = float64(pos.Quantity) * pos.AvgCost
	}
	return nil
}

// GetPosition returns a copy of the position for the symbol, if held.
func (pm *PositionManager) GetPosition(symbol string) (domain.Position, bool) {
	pos, ok := pm.positions[symbol]
	if !ok || pos.Quantity <= 0 {
		return domain.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions sorted by symbol.
func (pm *PositionManager) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(pm.positions))
	for _, p := range pm.positions {
		if p.Quantity > 0 {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// TotalValue sums the market value of all open positions at the given
// prices. Symbols without a price entry are valued at cost.
func (pm *PositionManager) TotalValue(prices map[string]float64) float64 {
	var total float64
	for sym, pos := range pm.positions {
		if pos.Quantity <= 0 {
			continue
		}
		if price, ok := prices[sym]; ok {
			total += float64(pos.Quantity) * price
		} else {
			total += pos.TotalCost
		}
	}
	return total
}

// Weights returns each symbol's share of total position market value.
func (pm *PositionManager) Weights(prices map[string]float64) map[string]float64 {
	total := pm.TotalValue(prices)
	out := make(map[string]float64, len(pm.positions))
	if total <= 0 {
		return out
	}
	for sym, pos := range pm.positions {
		if pos.Quantity <= 0 {
			continue
		}
		value := pos.TotalCost
		if price, ok := prices[sym]; ok {
			value = float64(pos.Quantity) * price
		}
		out[sym] = value / total
	}
	return out
}

// Concentration summarises how spread out the portfolio is.
type Concentration struct {
	MaxWeight  float64
	AvgWeight  float64
	Herfindahl float64
}

// Concentration computes weight statistics over the open positions. The
// Herfindahl index is the sum of squared weights: 1 for a single holding,
// approaching 1/n for n equal holdings.
func (pm *PositionManager) Concentration(prices map[string]float64) Concentration {
	weights := pm.Weights(prices)
	var c Concentration
	if len(weights) == 0 {
		return c
	}
	for _, w := range weights {
		if w > c.MaxWeight {
			c.MaxWeight = w
		}
		c.AvgWeight += w
		c.Herfindahl += w * w
	}
	c.AvgWeight /= float64(len(weights))
	return c
}

// Rebalance computes the signed share deltas that would move each symbol to
// its target weight of totalValue at the given prices, lot-rounded toward
// zero. Deltas are computed, not applied.
func (pm *PositionManager) Rebalance(targets map[string]float64, prices map[string]float64, totalValue float64, lotSize int64) map[string]int64 {
	out := make(map[string]int64, len(targets))
	if totalValue <= 0 || lotSize <= 0 {
		return out
	}
	for sym, weight := range targets {
		price, ok := prices[sym]
		if !ok || price <= 0 {
			continue
		}
		target := int64(weight * totalValue / price)
		held := int64(0)
		if pos, ok := pm.positions[sym]; ok {
			held = pos.Quantity
		}
		delta := (target - held) / lotSize * lotSize
		if delta != 0 {
			out[sym] = delta
		}
	}
	// Held symbols missing from the target are fully sold.
	for sym, pos := range pm.positions {
		if pos.Quantity <= 0 {
			continue
		}
		if _, ok := targets[sym]; !ok {
			out[sym] = -pos.Quantity
		}
	}
	return out
}

// ClearPosition force-liquidates one symbol at the supplied price and
// returns the realized proceeds.
func (pm *PositionManager) ClearPosition(symbol string, price float64) (float64, error) {
	pos, ok := pm.positions[symbol]
	if !ok || pos.Quantity <= 0 {
		return 0, fmt.Errorf("clear %s: %w", symbol, domain.ErrInsufficientPosition)
	}
	proceeds := float64(pos.Quantity) * price
	pm.logger.Info("position cleared", "symbol", symbol, "quantity", pos.Quantity, "price", price)
	delete(pm.positions, symbol)
	return proceeds, nil
}

// ClearAll force-liquidates every position at the supplied prices and
// returns the total proceeds. Symbols without a price entry are liquidated
// at cost.
func (pm *PositionManager) ClearAll(prices map[string]float64) float64 {
	var total float64
	for sym, pos := range pm.positions {
		if pos.Quantity <= 0 {
			continue
		}
		price, ok := prices[sym]
		if !ok {
			price = pos.AvgCost
		}
		total += float64(pos.Quantity) * price
	}
	pm.positions = make(map[string]*domain.Position)
	return total
}
