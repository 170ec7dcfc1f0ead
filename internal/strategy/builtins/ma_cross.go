// Package builtins provides the built-in strategy implementations that ship
// with the vquant platform.
package builtins

import (
	"fmt"
	"math"
	"strconv"

	"vquant/internal/domain"
	"vquant/internal/indicators"
	"vquant/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MACross)(nil)

// MACross implements a moving average crossover strategy. It emits a buy
// signal when the fast SMA crosses above the slow SMA (golden cross) and a
// sell signal when it crosses below (death cross).
type MACross struct {
	fastPeriod int
	slowPeriod int
}

// NewMACross creates a MACross strategy. The fast period must be strictly
// smaller than the slow period.
func NewMACross(fastPeriod, slowPeriod int) (*MACross, error) {
	if fastPeriod <= 0 || slowPeriod <= 0 || fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("%w: fast period %d must be positive and less than slow period %d",
			domain.ErrInvalidParams, fastPeriod, slowPeriod)
	}
	return &MACross{fastPeriod: fastPeriod, slowPeriod: slowPeriod}, nil
}

// Name returns "ma-cross".
func (s *MACross) Name() string { return "ma-cross" }

// GenerateSignals scans the bar series for SMA crossovers.
func (s *MACross) GenerateSignals(bars []domain.Bar) ([]domain.Signal, error) {
	if len(bars) == 0 {
		return nil, nil
	}

	closes := strategy.Closes(bars)
	fast := indicators.SMA(closes, s.fastPeriod)
	slow := indicators.SMA(closes, s.slowPeriod)

	var signals []domain.Signal
	for i := 1; i < len(bars); i++ {
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) ||
			math.IsNaN(fast[i-1]) || math.IsNaN(slow[i-1]) {
			continue
		}

		goldenCross := fast[i] > slow[i] && fast[i-1] <= slow[i-1]
		deathCross := fast[i] < slow[i] && fast[i-1] >= slow[i-1]
		if !goldenCross && !deathCross {
			continue
		}

		sigType := domain.SignalBuy
		reason := "golden_cross"
		if deathCross {
			sigType = domain.SignalSell
			reason = "death_cross"
		}
		signals = append(signals, domain.Signal{
			Symbol:     bars[i].Symbol,
			Type:       sigType,
			Price:      bars[i].Close,
			Timestamp:  bars[i].Timestamp,
			Strength:   1.0,
			StrategyID: s.Name(),
			Metadata: map[string]string{
				"ma_fast": strconv.FormatFloat(fast[i], 'f', -1, 64),
				"ma_slow": strconv.FormatFloat(slow[i], 'f', -1, 64),
				"reason":  reason,
			},
		})
	}
	return signals, nil
}
