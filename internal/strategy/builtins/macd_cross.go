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
var _ strategy.Strategy = (*MACDCross)(nil)

// MACDCross emits a buy signal when the MACD line crosses above its signal
// line and a sell signal on the opposite cross. Signal strength is the
// absolute histogram value at the crossover.
type MACDCross struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACDCross creates a MACDCross strategy with the given EMA periods.
func NewMACDCross(fastPeriod, slowPeriod, signalPeriod int) (*MACDCross, error) {
	if fastPeriod <= 0 || slowPeriod <= 0 || signalPeriod <= 0 || fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("%w: macd periods fast=%d slow=%d signal=%d",
			domain.ErrInvalidParams, fastPeriod, slowPeriod, signalPeriod)
	}
	return &MACDCross{
		fastPeriod:   fastPeriod,
		slowPeriod:   slowPeriod,
		signalPeriod: signalPeriod,
	}, nil
}

// Name returns "macd-cross".
func (s *MACDCross) Name() string { return "macd-cross" }

// GenerateSignals scans the bar series for MACD/signal-line crossovers.
func (s *MACDCross) GenerateSignals(bars []domain.Bar) ([]domain.Signal, error) {
	if len(bars) == 0 {
		return nil, nil
	}

	closes := strategy.Closes(bars)
	line, signalLine, hist := indicators.MACD(closes, s.fastPeriod, s.slowPeriod, s.signalPeriod)

	var signals []domain.Signal
	for i := 1; i < len(bars); i++ {
		if math.IsNaN(line[i]) || math.IsNaN(signalLine[i]) ||
			math.IsNaN(line[i-1]) || math.IsNaN(signalLine[i-1]) {
			continue
		}

		goldenCross := line[i] > signalLine[i] && line[i-1] <= signalLine[i-1]
		deathCross := line[i] < signalLine[i] && line[i-1] >= signalLine[i-1]
		if !goldenCross && !deathCross {
			continue
		}

		sigType := domain.SignalBuy
		reason := "macd_golden_cross"
		if deathCross {
			sigType = domain.SignalSell
			reason = "macd_death_cross"
		}
		signals = append(signals, domain.Signal{
			Symbol:     bars[i].Symbol,
			Type:       sigType,
			Price:      bars[i].Close,
			Timestamp:  bars[i].Timestamp,
			Strength:   math.Abs(hist[i]),
			StrategyID: s.Name(),
			Metadata: map[string]string{
				"macd":        strconv.FormatFloat(line[i], 'f', -1, 64),
				"macd_signal": strconv.FormatFloat(signalLine[i], 'f', -1, 64),
				"reason":      reason,
			},
		})
	}
	return signals, nil
}
