package backtest

import (
	"time"

	"vquant/internal/domain"
	"vquant/internal/perf"
)

// Result is the full outcome of one simulation run.
type Result struct {
	StrategyName   string                 `json:"strategy_name"`
	InitialCapital float64                `json:"initial_capital"`
	FinalValue     float64                `json:"final_value"`
	Trades         []domain.Trade         `json:"trades"`
	Snapshots      []domain.DailySnapshot `json:"snapshots"`
	Performance    perf.Metrics           `json:"performance"`
}

// TotalReturn is the simple return of the run.
func (r *Result) TotalReturn() float64 {
	if r.InitialCapital == 0 {
		return 0
	}
	return (r.FinalValue - r.InitialCapital) / r.InitialCapital
}

func parseDateKey(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
