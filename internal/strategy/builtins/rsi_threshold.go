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
var _ strategy.Strategy = (*RSIThreshold)(nil)

// RSIThreshold trades RSI threshold recoveries: it buys when the RSI rises
// back above the oversold level and sells when it falls back below the
// overbought level.
type RSIThreshold struct {
	period     int
	oversold   float64
	overbought float64
}

// NewRSIThreshold creates an RSIThreshold strategy. The oversold level must
// be strictly below the overbought level.
func NewRSIThreshold(period int, oversold, overbought float64) (*RSIThreshold, error) {
	if period <= 0 || oversold >= overbought {
		return nil, fmt.Errorf("%w: rsi period=%d oversold=%v overbought=%v",
			domain.ErrInvalidParams, period, oversold, overbought)
	}
	return &RSIThreshold{period: period, oversold: oversold, overbought: overbought}, nil
}

// Name returns "rsi-threshold".
func (s *RSIThreshold) Name() string { return "rsi-threshold" }

// GenerateSignals scans the bar series for RSI threshold crossings.
func (s *RSIThreshold) GenerateSignals(bars []domain.Bar) ([]domain.Signal, error) {
	if len(bars) == 0 {
		return nil, nil
	}

	closes := strategy.Closes(bars)
	rsi := indicators.RSI(closes, s.period)

	var signals []domain.Signal
	for i := 1; i < len(bars); i++ {
		if math.IsNaN(rsi[i]) || math.IsNaN(rsi[i-1]) {
			continue
		}

		risingFromOversold := rsi[i] > s.oversold && rsi[i-1] <= s.oversold
		fallingFromOverbought := rsi[i] < s.overbought && rsi[i-1] >= s.overbought
		if !risingFromOversold && !fallingFromOverbought {
			continue
		}

		sigType := domain.SignalBuy
		reason := "rising_from_oversold"
		strength := (s.oversold - rsi[i-1]) / s.oversold
		if fallingFromOverbought {
			sigType = domain.SignalSell
			reason = "falling_from_overbought"
			strength = (rsi[i-1] - s.overbought) / (100 - s.overbought)
		}
		if strength < 0 {
			strength = 0
		}
		signals = append(signals, domain.Signal{
			Symbol:     bars[i].Symbol,
			Type:       sigType,
			Price:      bars[i].Close,
			Timestamp:  bars[i].Timestamp,
			Strength:   strength,
			StrategyID: s.Name(),
			Metadata: map[string]string{
				"rsi":    strconv.FormatFloat(rsi[i], 'f', -1, 64),
				"reason": reason,
			},
		})
	}
	return signals, nil
}
