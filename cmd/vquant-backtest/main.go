package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"vquant/internal/backtest"
	"vquant/internal/config"
	"vquant/internal/domain"
	"vquant/internal/fill"
	"vquant/internal/perf"
	"vquant/internal/store"
	"vquant/internal/strategy"
	"vquant/internal/strategy/builtins"
	"vquant/internal/util"
)

func main() {
	var (
		csvPath    = flag.String("csv", "", "load bars from a CSV file instead of the Parquet store")
		symbol     = flag.String("symbol", "", "symbol to backtest (required)")
		market     = flag.String("market", "us", "market for Parquet reads (us or cn)")
		startStr   = flag.String("start", "2020-01-01", "start date (YYYY-MM-DD) for Parquet reads")
		endStr     = flag.String("end", "", "end date (YYYY-MM-DD) for Parquet reads, default today")
		stratName  = flag.String("strategy", "ma-cross", "strategy name (see -list)")
		fast       = flag.Int("fast", 5, "fast period for ma-cross / macd-cross")
		slow       = flag.Int("slow", 20, "slow period for ma-cross / macd-cross")
		signal     = flag.Int("signal", 9, "signal period for macd-cross")
		rsiPeriod  = flag.Int("rsi-period", 14, "period for rsi-threshold")
		oversold   = flag.Float64("oversold", 30, "oversold level for rsi-threshold")
		overbought = flag.Float64("overbought", 70, "overbought level for rsi-threshold")
		benchSym   = flag.String("benchmark", "", "benchmark symbol for beta/alpha/IR (default from config)")
		benchCSV   = flag.String("benchmark-csv", "", "load benchmark bars from a CSV file")
		list       = flag.Bool("list", false, "list available strategies and exit")
		save       = flag.Bool("save", false, "save the result to the SQLite store")
	)
	flag.Parse()

	cfgPath := "config/vquant.yaml"
	if p := os.Getenv("VQUANT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	registry, err := buildRegistry(*fast, *slow, *signal, *rsiPeriod, *oversold, *overbought)
	if err != nil {
		log.Fatalf("invalid strategy parameters: %v", err)
	}
	if *list {
		for _, name := range registry.List() {
			fmt.Println(name)
		}
		return
	}

	if *symbol == "" {
		log.Fatal("-symbol is required")
	}
	strat, ok := registry.Get(*stratName)
	if !ok {
		log.Fatalf("unknown strategy %q; use -list to see available strategies", *stratName)
	}

	bars, err := loadBars(cfg, *csvPath, *symbol, *market, *startStr, *endStr)
	if err != nil {
		log.Fatalf("loading bars: %v", err)
	}

	engine := backtest.NewEngine(backtest.Config{
		InitialCapital: cfg.Backtest.InitialCapital,
		Friction: fill.Model{
			CommissionRate: cfg.Backtest.CommissionRate,
			MinCommission:  cfg.Backtest.MinCommission,
			StampDutyRate:  cfg.Backtest.StampDutyRate,
			Slippage:       cfg.Backtest.Slippage,
			LotSize:        cfg.Backtest.LotSize,
		},
		RiskFreeRate: cfg.Backtest.RiskFreeRate,
	})

	result, err := engine.Run(strat, bars, *symbol)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	printResult(result, *symbol, len(bars))

	benchmark := *benchSym
	if benchmark == "" {
		benchmark = cfg.Backtest.Benchmark
	}
	if benchmark != "" || *benchCSV != "" {
		benchBars, err := loadBars(cfg, *benchCSV, benchmark, *market, *startStr, *endStr)
		if err != nil {
			log.Fatalf("loading benchmark bars: %v", err)
		}
		printBenchmark(result, benchBars, benchmark, cfg.Backtest.RiskFreeRate)
	}

	if *save {
		sqlStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening SQLite store: %v", err)
		}
		defer sqlStore.Close()

		runID, err := sqlStore.SaveResult(context.Background(), *symbol, result)
		if err != nil {
			log.Fatalf("saving result: %v", err)
		}
		logger.Info("result saved", "run_id", runID)
	}
}

func buildRegistry(fast, slow, signal, rsiPeriod int, oversold, overbought float64) (*strategy.Registry, error) {
	registry := strategy.NewRegistry()

	maCross, err := builtins.NewMACross(fast, slow)
	if err != nil {
		return nil, err
	}
	registry.Register(maCross)

	macdCross, err := builtins.NewMACDCross(fast, slow, signal)
	if err != nil {
		return nil, err
	}
	registry.Register(macdCross)

	rsi, err := builtins.NewRSIThreshold(rsiPeriod, oversold, overbought)
	if err != nil {
		return nil, err
	}
	registry.Register(rsi)

	return registry, nil
}

func loadBars(cfg *config.Config, csvPath, symbol, market, startStr, endStr string) ([]domain.Bar, error) {
	if csvPath != "" {
		return store.LoadBarsCSV(csvPath, symbol)
	}

	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return nil, fmt.Errorf("parsing start date: %w", err)
	}
	end := time.Now().UTC()
	if endStr != "" {
		if end, err = time.Parse("2006-01-02", endStr); err != nil {
			return nil, fmt.Errorf("parsing end date: %w", err)
		}
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	return pstore.ReadBars(context.Background(), symbol, domain.Market(market), start, end)
}

func printResult(result *backtest.Result, symbol string, barCount int) {
	p := result.Performance
	fmt.Printf("Backtest: %s on %s (%d bars)\n", result.StrategyName, symbol, barCount)
	fmt.Printf("  initial capital:   %.2f\n", result.InitialCapital)
	fmt.Printf("  final value:       %.2f\n", result.FinalValue)
	fmt.Printf("  total return:      %.2f%%\n", p.TotalReturn*100)
	fmt.Printf("  annualized return: %.2f%%\n", p.AnnualizedReturn*100)
	fmt.Printf("  volatility:        %.2f%%\n", p.Volatility*100)
	fmt.Printf("  sharpe:            %.3f\n", p.SharpeRatio)
	fmt.Printf("  sortino:           %.3f\n", p.SortinoRatio)
	fmt.Printf("  calmar:            %.3f\n", p.CalmarRatio)
	fmt.Printf("  max drawdown:      %.2f%%\n", p.MaxDrawdown*100)
	fmt.Printf("  VaR(95):           %.2f%%\n", p.VaR*100)
	fmt.Printf("  CVaR(95):          %.2f%%\n", p.CVaR*100)
	fmt.Printf("  trades:            %d (win rate %.1f%%, profit factor %.2f)\n",
		len(result.Trades), p.Trades.WinRate*100, p.Trades.ProfitFactor)
}

func printBenchmark(result *backtest.Result, benchBars []domain.Bar, symbol string, riskFreeRate float64) {
	rets := perf.Returns(result.Snapshots)
	bench := perf.BarReturns(benchBars)
	analyzer := perf.NewAnalyzer(riskFreeRate)

	fmt.Printf("Benchmark: %s (%d bars)\n", symbol, len(benchBars))
	fmt.Printf("  beta:              %.3f\n", perf.Beta(rets, bench))
	fmt.Printf("  alpha:             %.2f%%\n", analyzer.Alpha(rets, bench)*100)
	fmt.Printf("  information ratio: %.3f\n", perf.InformationRatio(rets, bench))
}
