package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"vquant/internal/domain"
	"vquant/internal/store"
	"vquant/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*AlpacaDailyGatherer)(nil)

// AlpacaDailyGatherer fetches daily OHLCV bars for a configured list of US
// equity symbols via the Alpaca market-data API and writes them to a
// BarStore.
type AlpacaDailyGatherer struct {
	client    *marketdata.Client
	store     store.BarStore
	symbols   []string
	batchSize int
	limiter   *util.RateLimiter
	startDate string
	log       *slog.Logger
}

// NewAlpacaDailyGatherer creates a gatherer configured with the given Alpaca
// credentials, target store, symbol list, and rate limit.
func NewAlpacaDailyGatherer(apiKey, apiSecret, dataURL string, s store.BarStore, symbols []string, batchSize, rateLimitPerMin int, startDate string) *AlpacaDailyGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 200
	}

	return &AlpacaDailyGatherer{
		client:    marketdata.NewClient(opts),
		store:     s,
		symbols:   symbols,
		batchSize: batchSize,
		limiter:   util.NewRateLimiter(rateLimitPerMin),
		startDate: startDate,
		log:       slog.Default().With("gatherer", "alpaca-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *AlpacaDailyGatherer) Name() string { return "alpaca-daily" }

// Run fetches daily bars for the configured symbols and writes them to the
// store. Bar files are merged on write, so reruns are idempotent.
func (g *AlpacaDailyGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("no symbols configured: %w", domain.ErrInvalidParams)
	}
	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)

	runStart := time.Now()
	var total int
	for i := 0; i < len(g.symbols); i += g.batchSize {
		batchEnd := min(i+g.batchSize, len(g.symbols))
		batch := g.symbols[i:batchEnd]

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		var bars []domain.Bar
		err := util.Retry(ctx, 3, time.Second, func() error {
			var ferr error
			bars, ferr = g.fetchMultiBars(batch, start, end)
			return ferr
		})
		if err != nil {
			g.log.Error("batch fetch failed", "symbols", batch, "err", err)
			continue
		}
		if len(bars) == 0 {
			continue
		}

		if err := g.store.WriteBars(ctx, bars, domain.MarketUS); err != nil {
			return fmt.Errorf("writing bars: %w", err)
		}
		total += len(bars)

		g.log.Info("batch done",
			"symbols", len(batch),
			"bars", len(bars),
			"elapsed", time.Since(runStart).Round(time.Second))
	}

	g.log.Info("complete", "bars", total, "elapsed", time.Since(runStart).Round(time.Second))
	return nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *AlpacaDailyGatherer) fetchMultiBars(symbols []string, start, end time.Time) ([]domain.Bar, error) {
	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:    strings.ToUpper(symbol),
				Timestamp: ab.Timestamp,
				Open:      ab.Open,
				High:      ab.High,
				Low:       ab.Low,
				Close:     ab.Close,
				Volume:    int64(ab.Volume),
				Amount:    ab.VWAP * float64(ab.Volume),
			})
		}
	}
	return bars, nil
}
