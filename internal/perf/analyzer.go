// Package perf derives risk-adjusted performance statistics from an equity
// curve and a trade list. Every metric is a pure function of its inputs, and
// degenerate inputs (empty series, zero denominators) resolve to documented
// sentinel values instead of errors: ratios fall back to 0, and Sortino,
// Calmar, and profit factor return +Inf where their denominators vanish.
package perf

import (
	"math"
	"sort"
	"time"

	"vquant/internal/domain"
)

// TradingDaysPerYear is the annualization convention used throughout.
const TradingDaysPerYear = 252

// DefaultConfidence is the confidence level for VaR and CVaR.
const DefaultConfidence = 0.95

// Analyzer computes performance metrics against a risk-free rate.
type Analyzer struct {
	RiskFreeRate float64
	Confidence   float64
}

// NewAnalyzer creates an Analyzer with the given annual risk-free rate and
// the default VaR confidence level.
func NewAnalyzer(riskFreeRate float64) *Analyzer {
	return &Analyzer{
		RiskFreeRate: riskFreeRate,
		Confidence:   DefaultConfidence,
	}
}

// Metrics is the full set of statistics derived from one equity curve.
type Metrics struct {
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64
	SharpeRatio      float64
	MaxDrawdown      float64 // ≤ 0
	SortinoRatio     float64
	CalmarRatio      float64
	VaR              float64
	CVaR             float64
	TradingDays      int
	StartDate        time.Time
	EndDate          time.Time

	Trades TradeStats
}

// TradeStats summarizes closed (sell-side) trades. AvgLoss is the mean of
// losing-trade profits and therefore non-positive.
type TradeStats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	ProfitFactor  float64
	AvgWin        float64
	AvgLoss       float64
	TotalProfit   float64
	TotalLoss     float64
}

// DatedReturn is one daily return tagged with its date, used for benchmark
// comparisons over date intersections.
type DatedReturn struct {
	Date   time.Time
	Return float64
}

// Report computes the full metric set for an equity curve and its trades.
func (a *Analyzer) Report(snapshots []domain.DailySnapshot, trades []domain.Trade, initialCapital float64) Metrics {
	values := make([]float64, len(snapshots))
	for i, s := range snapshots {
		values[i] = s.TotalValue
	}

	m := Metrics{
		TotalReturn:      TotalReturn(values, initialCapital),
		AnnualizedReturn: AnnualizedReturn(values, initialCapital),
		MaxDrawdown:      MaxDrawdown(values),
		TradingDays:      len(values),
		Trades:           AnalyzeTrades(trades),
	}
	if len(snapshots) > 0 {
		m.StartDate = snapshots[0].Date
		m.EndDate = snapshots[len(snapshots)-1].Date
	}

	returns := dailyReturns(values)
	m.Volatility = sampleStd(returns) * math.Sqrt(TradingDaysPerYear)
	m.SharpeRatio = ratio(m.AnnualizedReturn-a.RiskFreeRate, m.Volatility)
	m.SortinoRatio = a.sortino(m.AnnualizedReturn, returns)
	m.CalmarRatio = calmar(m.AnnualizedReturn, m.MaxDrawdown)
	m.VaR = VaR(returns, a.Confidence)
	m.CVaR = CVaR(returns, a.Confidence)
	return m
}

// Returns converts a snapshot series into dated daily returns.
func Returns(snapshots []domain.DailySnapshot) []DatedReturn {
	if len(snapshots) < 2 {
		return nil
	}
	out := make([]DatedReturn, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].TotalValue
		if prev == 0 {
			continue
		}
		out = append(out, DatedReturn{
			Date:   snapshots[i].Date,
			Return: snapshots[i].TotalValue/prev - 1,
		})
	}
	return out
}

// BarReturns converts a close series into dated daily returns, for use as a
// benchmark against an equity curve.
func BarReturns(bars []domain.Bar) []DatedReturn {
	if len(bars) < 2 {
		return nil
	}
	out := make([]DatedReturn, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		out = append(out, DatedReturn{
			Date:   bars[i].Timestamp,
			Return: bars[i].Close/prev - 1,
		})
	}
	return out
}

// TotalReturn is final value over initial capital, minus one.
func TotalReturn(values []float64, initialCapital float64) float64 {
	if len(values) == 0 || initialCapital == 0 {
		return 0
	}
	return values[len(values)-1]/initialCapital - 1
}

// AnnualizedReturn compounds the total return to a 252-day year. Series
// shorter than two points return 0.
func AnnualizedReturn(values []float64, initialCapital float64) float64 {
	n := len(values)
	if n < 2 || initialCapital == 0 {
		return 0
	}
	total := TotalReturn(values, initialCapital)
	return math.Pow(1+total, TradingDaysPerYear/float64(n)) - 1
}

// MaxDrawdown is the largest peak-to-trough decline as a non-positive
// fraction of the running maximum.
func MaxDrawdown(values []float64) float64 {
	var maxDD float64
	runningMax := math.Inf(-1)
	for _, v := range values {
		if v > runningMax {
			runningMax = v
		}
		if runningMax > 0 {
			if dd := (v - runningMax) / runningMax; dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// VaR is the (1−confidence) percentile of daily returns, linearly
// interpolated. Empty input returns 0.
func VaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return percentile(returns, (1-confidence)*100)
}

// CVaR is the mean of the returns at or below the VaR threshold.
func CVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	threshold := VaR(returns, confidence)
	var sum float64
	var n int
	for _, r := range returns {
		if r <= threshold {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Beta is cov(portfolio, benchmark)/var(benchmark) over the date
// intersection of the two series. Fewer than two common dates, or a
// zero-variance benchmark, yield 0.
func Beta(returns, benchmark []DatedReturn) float64 {
	r, b := intersect(returns, benchmark)
	if len(r) < 2 {
		return 0
	}
	cov := sampleCov(r, b)
	variance := sampleCov(b, b)
	return ratio(cov, variance)
}

// Alpha is the portfolio's annualized return in excess of the CAPM
// expectation given its beta to the benchmark, computed over the date
// intersection.
func (a *Analyzer) Alpha(returns, benchmark []DatedReturn) float64 {
	r, b := intersect(returns, benchmark)
	if len(r) < 2 {
		return 0
	}
	beta := Beta(returns, benchmark)
	portAnnual := annualizeMean(mean(r))
	benchAnnual := annualizeMean(mean(b))
	return portAnnual - (a.RiskFreeRate + beta*(benchAnnual-a.RiskFreeRate))
}

// InformationRatio is the annualized excess return over the benchmark
// divided by the tracking error, computed over the date intersection.
// Zero tracking error yields 0.
func InformationRatio(returns, benchmark []DatedReturn) float64 {
	r, b := intersect(returns, benchmark)
	if len(r) < 2 {
		return 0
	}
	excess := make([]float64, len(r))
	for i := range r {
		excess[i] = r[i] - b[i]
	}
	trackingError := sampleStd(excess) * math.Sqrt(TradingDaysPerYear)
	return ratio(annualizeMean(mean(excess)), trackingError)
}

// AnalyzeTrades summarizes the sell trades of a run. Ties (zero profit)
// count toward the denominator of the win rate but neither wins nor losses.
func AnalyzeTrades(trades []domain.Trade) TradeStats {
	var stats TradeStats
	for _, t := range trades {
		if t.Side != domain.OrderSideSell {
			continue
		}
		stats.TotalTrades++
		switch {
		case t.Profit > 0:
			stats.WinningTrades++
			stats.TotalProfit += t.Profit
		case t.Profit < 0:
			stats.LosingTrades++
			stats.TotalLoss += -t.Profit
		}
	}
	if stats.TotalTrades == 0 {
		return stats
	}

	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades)
	if stats.TotalLoss > 0 {
		stats.ProfitFactor = stats.TotalProfit / stats.TotalLoss
	} else {
		stats.ProfitFactor = math.Inf(1)
	}
	if stats.WinningTrades > 0 {
		stats.AvgWin = stats.TotalProfit / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = -stats.TotalLoss / float64(stats.LosingTrades)
	}
	return stats
}

// sortino uses the downside deviation (stdev of negative returns only).
// No negative returns at all yields +Inf; a downside deviation of zero
// yields 0.
func (a *Analyzer) sortino(annualizedReturn float64, returns []float64) float64 {
	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) == 0 {
		return math.Inf(1)
	}
	downside := sampleStd(negatives) * math.Sqrt(TradingDaysPerYear)
	return ratio(annualizedReturn-a.RiskFreeRate, downside)
}

func calmar(annualizedReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return math.Inf(1)
	}
	return annualizedReturn / math.Abs(maxDrawdown)
}

// ---------------------------------------------------------------------------
// Numeric helpers
// ---------------------------------------------------------------------------

func dailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd returns the sample standard deviation (n−1 denominator), 0 for
// fewer than two samples.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// sampleCov returns the sample covariance of two equal-length series.
func sampleCov(xs, ys []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var sum float64
	for i := range xs {
		sum += (xs[i] - mx) * (ys[i] - my)
	}
	return sum / float64(len(xs)-1)
}

// percentile computes the p-th percentile (0–100) with linear interpolation
// between order statistics.
func percentile(xs []float64, p float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// annualizeMean compounds a mean daily return to a 252-day year.
func annualizeMean(dailyMean float64) float64 {
	return math.Pow(1+dailyMean, TradingDaysPerYear) - 1
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// intersect aligns two dated return series on their common dates, preserving
// chronological order.
func intersect(a, b []DatedReturn) (ra, rb []float64) {
	byDate := make(map[string]float64, len(b))
	for _, p := range b {
		byDate[dateKey(p.Date)] = p.Return
	}
	for _, p := range a {
		if v, ok := byDate[dateKey(p.Date)]; ok {
			ra = append(ra, p.Return)
			rb = append(rb, v)
		}
	}
	return ra, rb
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }
