// Package strategy defines the Strategy interface for signal-generating
// trading strategies and provides a Registry for managing multiple strategy
// implementations.
package strategy

import (
	"sort"

	"vquant/internal/domain"
)

// Strategy maps a bar series to an ordered sequence of trading signals.
// Implementations must be deterministic over their inputs and keep no
// mutable state beyond their construction parameters.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// GenerateSignals scans the chronologically ordered bar series and
	// returns zero or more signals in timestamp order. The Symbol field of
	// each signal is taken from the bars.
	GenerateSignals(bars []domain.Bar) ([]domain.Signal, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PositionSize returns a lot-rounded share quantity that risks roughly
// riskRatio of capital at the given price, never less than one lot.
func PositionSize(capital, price, riskRatio float64, lotSize int64) int64 {
	if price <= 0 || lotSize <= 0 {
		return 0
	}
	qty := int64(capital * riskRatio / price)
	qty = (qty / lotSize) * lotSize
	if qty < lotSize {
		return lotSize
	}
	return qty
}

// Closes extracts the close-price series from a bar slice.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
