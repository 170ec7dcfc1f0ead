package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"vquant/internal/domain"
	"vquant/internal/fill"
)

type scriptedStrategy struct {
	name    string
	signals []domain.Signal
}

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) GenerateSignals(bars []domain.Bar) ([]domain.Signal, error) {
	return s.signals, nil
}

// buyFirstBar emits a one-lot buy on the first bar of whatever series it is
// handed, which makes it usable for multi-symbol runs without exhausting the
// cash on the first symbol.
type buyFirstBar struct{}

func (buyFirstBar) Name() string { return "buy-first-bar" }

func (buyFirstBar) GenerateSignals(bars []domain.Bar) ([]domain.Signal, error) {
	return []domain.Signal{{
		Type:      domain.SignalBuy,
		Price:     bars[0].Close,
		Timestamp: bars[0].Timestamp,
		Strength:  1,
		Quantity:  100,
	}}, nil
}

func dailyBars(t *testing.T, start string, closes []float64) []domain.Bar {
	t.Helper()
	day, err := time.Parse("2006-01-02", start)
	if err != nil {
		t.Fatalf("parse start date: %v", err)
	}
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: day.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestRunBuyFill(t *testing.T) {
	// capital 10000, close 10.0: effective price 10.01, affordable
	// floor(10000/10.01)=999 rounds to 900, amount 9009, commission
	// max(9009*0.0003, 5)=5, cash after 10000-9014=986.
	eng := NewEngine(Config{InitialCapital: 10000})
	bars := dailyBars(t, "2024-01-02", []float64{10.0})
	strat := &scriptedStrategy{name: "buy-once", signals: []domain.Signal{
		{Type: domain.SignalBuy, Price: 10.0, Timestamp: bars[0].Timestamp},
	}}

	res, err := eng.Run(strat, bars, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Quantity != 900 {
		t.Errorf("quantity = %d, want 900", tr.Quantity)
	}
	approx(t, "price", tr.Price, 10.01)
	approx(t, "amount", tr.Amount, 9009.0)
	approx(t, "commission", tr.Commission, 5.0)
	approx(t, "cash after", tr.CashAfter, 986.0)
	approx(t, "engine cash", eng.Cash(), 986.0)

	pos := eng.Positions()
	if len(pos) != 1 || pos[0].Quantity != 900 {
		t.Fatalf("positions = %+v, want one position of 900", pos)
	}
	approx(t, "avg cost", pos[0].AvgCost, 10.01)

	// Snapshot values the position at the raw close, so total value drops
	// by exactly the slippage plus commission.
	if len(res.Snapshots) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(res.Snapshots))
	}
	approx(t, "total value", res.Snapshots[0].TotalValue, 9986.0)
}

func TestRunRequestedQuantityLotRounded(t *testing.T) {
	eng := NewEngine(Config{InitialCapital: 100000})
	bars := dailyBars(t, "2024-01-02", []float64{10.0})
	strat := &scriptedStrategy{name: "buy-150", signals: []domain.Signal{
		{Type: domain.SignalBuy, Timestamp: bars[0].Timestamp, Quantity: 150},
	}}

	res, err := eng.Run(strat, bars, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].Quantity != 100 {
		t.Fatalf("trades = %+v, want one trade of 100 shares", res.Trades)
	}
}

func TestRunSubLotBuyDropped(t *testing.T) {
	// 500 of cash buys less than one lot at close 10: signal is dropped.
	eng := NewEngine(Config{InitialCapital: 500})
	bars := dailyBars(t, "2024-01-02", []float64{10.0})
	strat := &scriptedStrategy{name: "buy", signals: []domain.Signal{
		{Type: domain.SignalBuy, Timestamp: bars[0].Timestamp},
	}}

	res, err := eng.Run(strat, bars, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("got %d trades, want 0", len(res.Trades))
	}
	approx(t, "cash", eng.Cash(), 500)
}

func TestRunSellWithoutPositionDropped(t *testing.T) {
	eng := NewEngine(Config{InitialCapital: 10000})
	bars := dailyBars(t, "2024-01-02", []float64{10.0})
	strat := &scriptedStrategy{name: "sell", signals: []domain.Signal{
		{Type: domain.SignalSell, Timestamp: bars[0].Timestamp},
	}}

	res, err := eng.Run(strat, bars, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("got %d trades, want 0", len(res.Trades))
	}
	approx(t, "cash", eng.Cash(), 10000)
}

func TestRunSellGrossProfit(t *testing.T) {
	eng := NewEngine(Config{InitialCapital: 10000})
	bars := dailyBars(t, "2024-01-02", []float64{10.0, 12.0})
	strat := &scriptedStrategy{name: "round-trip", signals: []domain.Signal{
		{Type: domain.SignalBuy, Timestamp: bars[0].Timestamp},
		{Type: domain.SignalSell, Timestamp: bars[1].Timestamp},
	}}

	res, err := eng.Run(strat, bars, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(res.Trades))
	}

	sell := res.Trades[1]
	if sell.Side != domain.OrderSideSell || sell.Quantity != 900 {
		t.Fatalf("sell trade = %+v", sell)
	}
	// Sell 900 at 12*(1-0.001)=11.988: amount 10789.2; profit is gross of
	// fees against avg cost 10.01: 10789.2 - 9009 = 1780.2.
	approx(t, "sell amount", sell.Amount, 10789.2)
	approx(t, "profit", sell.Profit, 1780.2)

	// Cash moves net: commission max(10789.2*0.0003,5)=5, stamp duty
	// 10789.2*0.001=10.7892.
	approx(t, "cash after", eng.Cash(), 986.0+10789.2-5-10.7892)

	if got := len(eng.Positions()); got != 0 {
		t.Fatalf("got %d open positions, want 0", got)
	}
}

func TestRunSnapshotsCoverEveryBar(t *testing.T) {
	eng := NewEngine(Config{InitialCapital: 10000})
	closes := []float64{10, 11, 12, 11, 10}
	bars := dailyBars(t, "2024-01-02", closes)

	res, err := eng.Run(&scriptedStrategy{name: "idle"}, bars, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Snapshots) != len(bars) {
		t.Fatalf("got %d snapshots, want %d", len(res.Snapshots), len(bars))
	}
	for i, s := range res.Snapshots {
		if !s.Date.Equal(bars[i].Timestamp) {
			t.Errorf("snapshot %d date = %v, want %v", i, s.Date, bars[i].Timestamp)
		}
		approx(t, "idle total value", s.TotalValue, 10000)
	}
}

func TestRunDeterministic(t *testing.T) {
	bars := dailyBars(t, "2024-01-02", []float64{10, 11, 9, 12, 13, 8, 10})
	strat := &scriptedStrategy{name: "churn", signals: []domain.Signal{
		{Type: domain.SignalBuy, Timestamp: bars[0].Timestamp},
		{Type: domain.SignalSell, Timestamp: bars[3].Timestamp},
		{Type: domain.SignalBuy, Timestamp: bars[5].Timestamp},
	}}

	eng := NewEngine(Config{InitialCapital: 50000})
	first, err := eng.Run(strat, bars, "TEST")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := eng.Run(strat, bars, "TEST")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.FinalValue != second.FinalValue {
		t.Errorf("final value differs across runs: %v vs %v", first.FinalValue, second.FinalValue)
	}
	if len(first.Trades) != len(second.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(first.Trades), len(second.Trades))
	}
	for i := range first.Trades {
		if first.Trades[i] != second.Trades[i] {
			t.Errorf("trade %d differs: %+v vs %+v", i, first.Trades[i], second.Trades[i])
		}
	}
}

func TestRunEmptyData(t *testing.T) {
	eng := NewEngine(Config{})
	if _, err := eng.Run(&scriptedStrategy{name: "idle"}, nil, "TEST"); !errors.Is(err, domain.ErrEmptyData) {
		t.Fatalf("err = %v, want ErrEmptyData", err)
	}
}

func TestRunOutOfOrderBars(t *testing.T) {
	bars := dailyBars(t, "2024-01-02", []float64{10, 11})
	bars[0], bars[1] = bars[1], bars[0]
	eng := NewEngine(Config{})
	if _, err := eng.Run(&scriptedStrategy{name: "idle"}, bars, "TEST"); !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("err = %v, want ErrInvalidParams", err)
	}
}

func TestNewEngineDefaults(t *testing.T) {
	eng := NewEngine(Config{})
	if eng.cfg.InitialCapital != DefaultInitialCapital {
		t.Errorf("initial capital = %v, want %v", eng.cfg.InitialCapital, DefaultInitialCapital)
	}
	if eng.cfg.Friction.LotSize != fill.DefaultLotSize {
		t.Errorf("lot size = %d, want %d", eng.cfg.Friction.LotSize, fill.DefaultLotSize)
	}
}

func TestRunMultiCalendarIntersection(t *testing.T) {
	a := dailyBars(t, "2024-01-02", []float64{10, 10, 10, 10})
	b := dailyBars(t, "2024-01-03", []float64{20, 20, 20})
	for i := range a {
		a[i].Symbol = "AAA"
	}
	for i := range b {
		b[i].Symbol = "BBB"
	}

	eng := NewEngine(Config{InitialCapital: 100000})
	res, err := eng.RunMulti(&scriptedStrategy{name: "idle"}, map[string][]domain.Bar{
		"AAA": a,
		"BBB": b,
	})
	if err != nil {
		t.Fatalf("RunMulti: %v", err)
	}

	// AAA trades Jan 2-5, BBB Jan 3-5: three common dates.
	if len(res.Snapshots) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(res.Snapshots))
	}
	if got := res.Snapshots[0].Date.Format("2006-01-02"); got != "2024-01-03" {
		t.Errorf("first snapshot date = %s, want 2024-01-03", got)
	}
}

func TestRunMultiExecutesAtOwnClose(t *testing.T) {
	a := dailyBars(t, "2024-01-02", []float64{10, 10, 10})
	b := dailyBars(t, "2024-01-02", []float64{20, 20, 20})
	for i := range a {
		a[i].Symbol = "AAA"
	}
	for i := range b {
		b[i].Symbol = "BBB"
	}

	eng := NewEngine(Config{InitialCapital: 100000})
	res, err := eng.RunMulti(buyFirstBar{}, map[string][]domain.Bar{
		"AAA": a,
		"BBB": b,
	})
	if err != nil {
		t.Fatalf("RunMulti: %v", err)
	}

	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(res.Trades))
	}
	prices := map[string]float64{}
	for _, tr := range res.Trades {
		prices[tr.Symbol] = tr.Price
	}
	approx(t, "AAA fill price", prices["AAA"], 10.01)
	approx(t, "BBB fill price", prices["BBB"], 20.02)
}

// buyAllFirstBar emits an unsized buy on the first bar, so the engine sizes
// it to all remaining cash. Under multiple symbols this makes the execution
// order decide which buys fit.
type buyAllFirstBar struct{}

func (buyAllFirstBar) Name() string { return "buy-all-first-bar" }

func (buyAllFirstBar) GenerateSignals(bars []domain.Bar) ([]domain.Signal, error) {
	return []domain.Signal{{
		Type:      domain.SignalBuy,
		Price:     bars[0].Close,
		Timestamp: bars[0].Timestamp,
		Strength:  1,
	}}, nil
}

func TestRunMultiDeterministicUnderCashContention(t *testing.T) {
	// Four symbols all demanding the full cash balance on the same date.
	// Only one buy can fit, and it must be the same one on every run:
	// same-date signals execute in symbol order, not map order.
	series := func() map[string][]domain.Bar {
		out := make(map[string][]domain.Bar)
		for _, sym := range []string{"DDD", "BBB", "AAA", "CCC"} {
			bars := dailyBars(t, "2024-01-02", []float64{10, 10, 10})
			for i := range bars {
				bars[i].Symbol = sym
			}
			out[sym] = bars
		}
		return out
	}

	eng := NewEngine(Config{InitialCapital: 10000})
	first, err := eng.RunMulti(buyAllFirstBar{}, series())
	if err != nil {
		t.Fatalf("first RunMulti: %v", err)
	}
	if len(first.Trades) == 0 {
		t.Fatal("no trades executed")
	}
	if got := first.Trades[0].Symbol; got != "AAA" {
		t.Fatalf("first trade symbol = %s, want AAA", got)
	}

	for run := 0; run < 50; run++ {
		res, err := eng.RunMulti(buyAllFirstBar{}, series())
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if len(res.Trades) != len(first.Trades) {
			t.Fatalf("run %d: %d trades, first run had %d", run, len(res.Trades), len(first.Trades))
		}
		for i := range res.Trades {
			if res.Trades[i] != first.Trades[i] {
				t.Fatalf("run %d: trade %d = %+v, first run had %+v", run, i, res.Trades[i], first.Trades[i])
			}
		}
		if res.FinalValue != first.FinalValue {
			t.Fatalf("run %d: final value %v, first run had %v", run, res.FinalValue, first.FinalValue)
		}
	}
}

func TestRunCashConservation(t *testing.T) {
	// Every unit of cash that leaves the account shows up as buy amount plus
	// fees, and every unit that enters is sell amount minus fees:
	// cash_start - cash_end + sum(buy amount+fees) - sum(sell amount-fees) = 0.
	eng := NewEngine(Config{InitialCapital: 50000})
	bars := dailyBars(t, "2024-01-02", []float64{10, 11, 9, 12, 13})
	strat := &scriptedStrategy{name: "churn", signals: []domain.Signal{
		{Type: domain.SignalBuy, Timestamp: bars[0].Timestamp, Quantity: 1000},
		{Type: domain.SignalSell, Timestamp: bars[1].Timestamp, Quantity: 400},
		{Type: domain.SignalBuy, Timestamp: bars[2].Timestamp, Quantity: 500},
		{Type: domain.SignalSell, Timestamp: bars[3].Timestamp},
	}}

	res, err := eng.Run(strat, bars, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 4 {
		t.Fatalf("got %d trades, want 4", len(res.Trades))
	}

	cash := res.InitialCapital
	var flow float64
	for i, tr := range res.Trades {
		switch tr.Side {
		case domain.OrderSideBuy:
			cash -= tr.Amount + tr.Commission
			flow += tr.Amount + tr.Commission
		case domain.OrderSideSell:
			cash += tr.Amount - tr.Commission
			flow -= tr.Amount - tr.Commission
		}
		approx(t, "cash after trade", tr.CashAfter, cash)
		if i == len(res.Trades)-1 {
			approx(t, "conservation residual", res.InitialCapital-cash-flow, 0)
		}
	}
	approx(t, "engine cash", eng.Cash(), cash)
}

func TestRunMultiEmpty(t *testing.T) {
	eng := NewEngine(Config{})
	if _, err := eng.RunMulti(&scriptedStrategy{name: "idle"}, nil); !errors.Is(err, domain.ErrEmptyData) {
		t.Fatalf("err = %v, want ErrEmptyData", err)
	}
}
