// Package backtest drives the bar-by-bar simulation loop: it replays a
// chronologically ordered bar series through a strategy, executes the
// resulting signals via the shared friction model, and records trades and
// daily account snapshots.
//
// The engine owns all run state (cash, positions, trades, snapshots) and
// resets it at the start of every run, so distinct runs are independent and
// reproducible. A run is a single-threaded synchronous fold over the bars;
// callers wanting parallelism run separate engines.
package backtest

import (
	"fmt"
	"sort"
	"time"

	"vquant/internal/domain"
	"vquant/internal/fill"
	"vquant/internal/perf"
	"vquant/internal/strategy"
	"vquant/internal/util"
)

// DefaultInitialCapital is used when Config.InitialCapital is unset.
const DefaultInitialCapital = 1000000.0

// Config holds the capital and friction parameters of a simulation.
type Config struct {
	InitialCapital float64
	Friction       fill.Model
	RiskFreeRate   float64
}

// Engine simulates strategy execution over historical bars. It is not safe
// for concurrent use; run one engine per goroutine.
type Engine struct {
	cfg      Config
	analyzer *perf.Analyzer

	cash      float64
	positions map[string]*domain.Position
	trades    []domain.Trade
	snapshots []domain.DailySnapshot
}

// NewEngine creates an Engine, applying defaults for unset config fields.
func NewEngine(cfg Config) *Engine {
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = DefaultInitialCapital
	}
	if cfg.Friction.LotSize == 0 {
		cfg.Friction = fill.NewModel()
	}
	return &Engine{
		cfg:      cfg,
		analyzer: perf.NewAnalyzer(cfg.RiskFreeRate),
	}
}

// reset clears all run state back to the initial capital.
func (e *Engine) reset() {
	e.cash = e.cfg.InitialCapital
	e.positions = make(map[string]*domain.Position)
	e.trades = nil
	e.snapshots = nil
}

// Positions returns the open positions after the most recent run, sorted by
// symbol.
func (e *Engine) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if p.Quantity > 0 {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Cash returns the cash balance after the most recent run.
func (e *Engine) Cash() float64 { return e.cash }

// Run replays the bar series through the strategy for a single symbol.
// Signals are executed against the close of their bar; the same close values
// every held share in that day's snapshot.
func (e *Engine) Run(strat strategy.Strategy, bars []domain.Bar, symbol string) (*Result, error) {
	if err := validateSeries(bars); err != nil {
		return nil, err
	}
	e.reset()

	signals, err := strat.GenerateSignals(bars)
	if err != nil {
		return nil, fmt.Errorf("generating signals: %w", err)
	}
	if symbol != "" {
		for i := range signals {
			signals[i].Symbol = symbol
		}
	}

	for _, bar := range bars {
		for _, sig := range signals {
			if !util.SameDate(sig.Timestamp, bar.Timestamp) {
				continue
			}
			e.execute(sig, bar.Close, bar.Timestamp)
		}
		e.snapshot(bar.Timestamp, func(string) (float64, bool) { return bar.Close, true })
	}

	return e.buildResult(strat.Name()), nil
}

// RunMulti replays several symbols through the strategy over the
// intersection of their trading calendars, summing account value across
// symbols. Each signal executes at its own symbol's close for the day.
func (e *Engine) RunMulti(strat strategy.Strategy, series map[string][]domain.Bar) (*Result, error) {
	if len(series) == 0 {
		return nil, domain.ErrEmptyData
	}
	for sym, bars := range series {
		if err := validateSeries(bars); err != nil {
			return nil, fmt.Errorf("series %s: %w", sym, err)
		}
	}
	e.reset()

	// Collect signals per symbol in symbol order, then globally time-order
	// with symbol as the tie-break so same-date signals execute in a fixed
	// sequence regardless of map iteration order.
	symbols := make([]string, 0, len(series))
	for sym := range series {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var signals []domain.Signal
	for _, sym := range symbols {
		sigs, err := strat.GenerateSignals(series[sym])
		if err != nil {
			return nil, fmt.Errorf("generating signals for %s: %w", sym, err)
		}
		for i := range sigs {
			sigs[i].Symbol = sym
		}
		signals = append(signals, sigs...)
	}
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Timestamp.Equal(signals[j].Timestamp) {
			return signals[i].Symbol < signals[j].Symbol
		}
		return signals[i].Timestamp.Before(signals[j].Timestamp)
	})

	// Close prices by symbol and date, and the common calendar.
	closes := make(map[string]map[string]float64, len(series))
	var common map[string]struct{}
	for sym, bars := range series {
		bySym := make(map[string]float64, len(bars))
		dates := make(map[string]struct{}, len(bars))
		for _, b := range bars {
			key := util.DateKey(b.Timestamp)
			bySym[key] = b.Close
			dates[key] = struct{}{}
		}
		closes[sym] = bySym
		if common == nil {
			common = dates
		} else {
			for d := range common {
				if _, ok := dates[d]; !ok {
					delete(common, d)
				}
			}
		}
	}

	commonDates := make([]string, 0, len(common))
	for d := range common {
		commonDates = append(commonDates, d)
	}
	sort.Strings(commonDates)

	for _, dateKey := range commonDates {
		for _, sig := range signals {
			if util.DateKey(sig.Timestamp) != dateKey {
				continue
			}
			price, ok := closes[sig.Symbol][dateKey]
			if !ok {
				continue
			}
			e.execute(sig, price, sig.Timestamp)
		}

		date, _ := parseDateKey(dateKey)
		e.snapshot(date, func(sym string) (float64, bool) {
			price, ok := closes[sym][dateKey]
			return price, ok
		})
	}

	return e.buildResult(strat.Name()), nil
}

// execute applies one signal against a reference price. Infeasible signals
// (sub-lot sizes, insufficient cash, nothing held) are dropped without
// touching any state; a feasible signal updates the ledger and the trade log
// together.
func (e *Engine) execute(sig domain.Signal, closePrice float64, date time.Time) {
	switch {
	case sig.IsBuy():
		e.executeBuy(sig, closePrice, date)
	case sig.IsSell():
		e.executeSell(sig, closePrice, date)
	}
}

func (e *Engine) executeBuy(sig domain.Signal, closePrice float64, date time.Time) {
	m := e.cfg.Friction

	qty := m.MaxAffordable(e.cash, closePrice)
	if sig.Quantity > 0 && sig.Quantity < qty {
		qty = m.RoundLot(sig.Quantity)
	}
	if qty < m.LotSize {
		return
	}

	f := m.Quote(domain.OrderSideBuy, qty, closePrice)
	totalCost := f.Amount + f.Commission
	if totalCost > e.cash {
		return
	}

	e.cash -= totalCost

	pos, ok := e.positions[sig.Symbol]
	if !ok {
		pos = &domain.Position{Symbol: sig.Symbol}
		e.positions[sig.Symbol] = pos
	}
	pos.TotalCost += f.Amount
	pos.Quantity += f.Quantity
	pos.AvgCost = pos.TotalCost / float64(pos.Quantity)

	e.trades = append(e.trades, domain.Trade{
		Date:       date,
		Symbol:     sig.Symbol,
		Side:       domain.OrderSideBuy,
		Price:      f.Price,
		Quantity:   f.Quantity,
		Amount:     f.Amount,
		Commission: f.Commission,
		CashAfter:  e.cash,
	})
}

func (e *Engine) executeSell(sig domain.Signal, closePrice float64, date time.Time) {
	pos, ok := e.positions[sig.Symbol]
	if !ok || pos.Quantity <= 0 {
		return
	}
	m := e.cfg.Friction

	qty := pos.Quantity
	if sig.Quantity > 0 && sig.Quantity < qty {
		qty = m.RoundLot(sig.Quantity)
	}
	if qty <= 0 {
		return
	}

	f := m.Quote(domain.OrderSideSell, qty, closePrice)
	revenue := f.Amount - f.Commission - f.StampDuty
	e.cash += revenue

	// Gross P&L convention: profit excludes fees even though the cash
	// movement above is net of them.
	cost := float64(f.Quantity) * pos.AvgCost
	profit := f.Amount - cost

	pos.Quantity -= f.Quantity
	if pos.Quantity <= 0 {
		pos.Quantity = 0
		pos.AvgCost = 0
		pos.TotalCost = 0
	} else {
		pos.TotalCost = float64(pos.Quantity) * pos.AvgCost
	}

	e.trades = append(e.trades, domain.Trade{
		Date:       date,
		Symbol:     sig.Symbol,
		Side:       domain.OrderSideSell,
		Price:      f.Price,
		Quantity:   f.Quantity,
		Amount:     f.Amount,
		Commission: f.Commission + f.StampDuty,
		Profit:     profit,
		CashAfter:  e.cash,
	})
}

// snapshot appends the end-of-day valuation, pricing each held position via
// priceFor.
func (e *Engine) snapshot(date time.Time, priceFor func(symbol string) (float64, bool)) {
	var positionValue float64
	for sym, pos := range e.positions {
		if pos.Quantity <= 0 {
			continue
		}
		if price, ok := priceFor(sym); ok {
			positionValue += float64(pos.Quantity) * price
		}
	}
	e.snapshots = append(e.snapshots, domain.DailySnapshot{
		Date:          date,
		TotalValue:    e.cash + positionValue,
		Cash:          e.cash,
		PositionValue: positionValue,
	})
}

func (e *Engine) buildResult(strategyName string) *Result {
	res := &Result{
		StrategyName:   strategyName,
		InitialCapital: e.cfg.InitialCapital,
		Trades:         append([]domain.Trade(nil), e.trades...),
		Snapshots:      append([]domain.DailySnapshot(nil), e.snapshots...),
	}
	if len(e.snapshots) > 0 {
		res.FinalValue = e.snapshots[len(e.snapshots)-1].TotalValue
	} else {
		res.FinalValue = e.cash
	}
	res.Performance = e.analyzer.Report(res.Snapshots, res.Trades, res.InitialCapital)
	return res
}

// validateSeries checks the engine preconditions: non-empty, chronologically
// ordered, unique dates.
func validateSeries(bars []domain.Bar) error {
	if len(bars) == 0 {
		return domain.ErrEmptyData
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("%w: bars out of order or duplicated at index %d", domain.ErrInvalidParams, i)
		}
	}
	return nil
}
