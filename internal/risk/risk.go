// Package risk provides guardrail evaluation over the account: exposure,
// daily loss, drawdown, and per-stock concentration checks, plus an
// interactive position ledger with weight and rebalancing helpers.
//
// Reports are recomputed from the current ledger on every call; the only
// state the evaluator keeps is the peak-value high-water mark and the
// daily-start value.
package risk

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"vquant/internal/domain"
	"vquant/internal/util"
)

// Level grades the current account risk.
type Level string

const (
	LevelSafe   Level = "safe"
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Thresholds are the limits the evaluator scores against, all expressed as
// fractions.
type Thresholds struct {
	MaxPositionRatio    float64 // max position value / total value
	MaxSingleStockRatio float64 // max per-symbol weight
	MaxDailyLossRatio   float64 // max loss since day start
	MaxDrawdownRatio    float64 // max decline from peak
	StopLossRatio       float64 // per-position loss trigger
	TakeProfitRatio     float64 // per-position gain trigger
}

// DefaultThresholds returns the conservative defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxPositionRatio:    0.95,
		MaxSingleStockRatio: 0.30,
		MaxDailyLossRatio:   0.05,
		MaxDrawdownRatio:    0.20,
		StopLossRatio:       0.08,
		TakeProfitRatio:     0.20,
	}
}

// Report is the outcome of one evaluation.
type Report struct {
	Level         Level
	Score         int
	PositionRatio float64
	DailyLoss     float64
	Drawdown      float64
	Concentrated  []string
	Warnings      []string
}

// Manager evaluates account state against thresholds. It is not safe for
// concurrent use.
type Manager struct {
	thresholds Thresholds
	logger     *slog.Logger

	peakValue     float64
	dayStartValue float64
	dayKey        string
}

// NewManager creates a risk manager. Zero-valued threshold fields fall back
// to the defaults.
func NewManager(t Thresholds, logger *slog.Logger) *Manager {
	def := DefaultThresholds()
	if t.MaxPositionRatio <= 0 {
		t.MaxPositionRatio = def.MaxPositionRatio
	}
	if t.MaxSingleStockRatio <= 0 {
		t.MaxSingleStockRatio = def.MaxSingleStockRatio
	}
	if t.MaxDailyLossRatio <= 0 {
		t.MaxDailyLossRatio = def.MaxDailyLossRatio
	}
	if t.MaxDrawdownRatio <= 0 {
		t.MaxDrawdownRatio = def.MaxDrawdownRatio
	}
	if t.StopLossRatio <= 0 {
		t.StopLossRatio = def.StopLossRatio
	}
	if t.TakeProfitRatio <= 0 {
		t.TakeProfitRatio = def.TakeProfitRatio
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{thresholds: t, logger: logger}
}

// Observe folds a valuation into the running state: the peak high-water mark
// always, and the daily-start value once per calendar date.
func (m *Manager) Observe(account domain.AccountInfo, dateKey string) {
	if account.TotalValue > m.peakValue {
		m.peakValue = account.TotalValue
	}
	if dateKey != m.dayKey {
		m.dayKey = dateKey
		m.dayStartValue = account.TotalValue
	}
}

// Evaluate scores the account and positions against the thresholds. Call
// Observe first so the peak and daily-start values are current.
func (m *Manager) Evaluate(account domain.AccountInfo, positions []domain.Position, prices map[string]float64) Report {
	var r Report

	if account.TotalValue > 0 {
		r.PositionRatio = account.PositionValue / account.TotalValue
	}
	if m.dayStartValue > 0 {
		r.DailyLoss = (m.dayStartValue - account.TotalValue) / m.dayStartValue
	}
	if m.peakValue > 0 {
		r.Drawdown = (m.peakValue - account.TotalValue) / m.peakValue
	}

	t := m.thresholds
	switch {
	case r.PositionRatio > t.MaxPositionRatio:
		r.Score += 2
		r.Warnings = append(r.Warnings, fmt.Sprintf("position ratio %.2f exceeds limit %.2f", r.PositionRatio, t.MaxPositionRatio))
	case r.PositionRatio >= 0.8*t.MaxPositionRatio:
		r.Score++
		r.Warnings = append(r.Warnings, fmt.Sprintf("position ratio %.2f approaching limit %.2f", r.PositionRatio, t.MaxPositionRatio))
	}

	switch {
	case r.DailyLoss > t.MaxDailyLossRatio:
		r.Score += 3
		r.Warnings = append(r.Warnings, fmt.Sprintf("daily loss %.2f exceeds limit %.2f", r.DailyLoss, t.MaxDailyLossRatio))
	case r.DailyLoss >= 0.5*t.MaxDailyLossRatio:
		r.Score++
		r.Warnings = append(r.Warnings, fmt.Sprintf("daily loss %.2f approaching limit %.2f", r.DailyLoss, t.MaxDailyLossRatio))
	}

	switch {
	case r.Drawdown > t.MaxDrawdownRatio:
		r.Score += 3
		r.Warnings = append(r.Warnings, fmt.Sprintf("drawdown %.2f exceeds limit %.2f", r.Drawdown, t.MaxDrawdownRatio))
	case r.Drawdown >= 0.5*t.MaxDrawdownRatio:
		r.Score++
		r.Warnings = append(r.Warnings, fmt.Sprintf("drawdown %.2f approaching limit %.2f", r.Drawdown, t.MaxDrawdownRatio))
	}

	if account.TotalValue > 0 {
		for _, pos := range positions {
			if pos.Quantity <= 0 {
				continue
			}
			price, ok := prices[pos.Symbol]
			if !ok {
				price = pos.AvgCost
			}
			weight := float64(pos.Quantity) * price / account.TotalValue
			if weight > t.MaxSingleStockRatio {
				r.Score++
				r.Concentrated = append(r.Concentrated, pos.Symbol)
				r.Warnings = append(r.Warnings, fmt.Sprintf("%s weight %.2f exceeds limit %.2f", pos.Symbol, weight, t.MaxSingleStockRatio))
			}
		}
		sort.Strings(r.Concentrated)
	}

	switch {
	case r.Score >= 5:
		r.Level = LevelHigh
	case r.Score >= 3:
		r.Level = LevelMedium
	case r.Score >= 1:
		r.Level = LevelLow
	default:
		r.Level = LevelSafe
	}

	if r.Level == LevelHigh || r.Level == LevelMedium {
		m.logger.Warn("risk level elevated", "level", r.Level, "score", r.Score, "warnings", len(r.Warnings))
	}
	return r
}

// ShouldReducePosition reports whether any of the hard limits on daily loss,
// drawdown, or position ratio has been breached.
func (m *Manager) ShouldReducePosition(r Report) bool {
	t := m.thresholds
	return r.DailyLoss > t.MaxDailyLossRatio ||
		r.Drawdown > t.MaxDrawdownRatio ||
		r.PositionRatio > t.MaxPositionRatio
}

// MaxPositionSize returns the largest lot-rounded quantity of one symbol the
// single-stock limit allows at the given price.
func (m *Manager) MaxPositionSize(totalValue, price float64, lotSize int64) int64 {
	if price <= 0 || totalValue <= 0 || lotSize <= 0 {
		return 0
	}
	qty := int64(m.thresholds.MaxSingleStockRatio * totalValue / price)
	return qty / lotSize * lotSize
}

// CheckStopLoss reports whether the position's loss at the current price has
// reached the stop-loss ratio.
func (m *Manager) CheckStopLoss(pos domain.Position, price float64) bool {
	if pos.Quantity <= 0 || pos.AvgCost <= 0 {
		return false
	}
	return (pos.AvgCost-price)/pos.AvgCost >= m.thresholds.StopLossRatio
}

// CheckTakeProfit reports whether the position's gain at the current price
// has reached the take-profit ratio.
func (m *Manager) CheckTakeProfit(pos domain.Position, price float64) bool {
	if pos.Quantity <= 0 || pos.AvgCost <= 0 {
		return false
	}
	return (price-pos.AvgCost)/pos.AvgCost >= m.thresholds.TakeProfitRatio
}

// ObserveDate is a convenience wrapper for Observe keyed by a time value.
func (m *Manager) ObserveDate(account domain.AccountInfo, at time.Time) {
	m.Observe(account, util.DateKey(at))
}
