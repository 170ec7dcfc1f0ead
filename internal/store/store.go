// Package store defines storage interfaces for persisting and retrieving
// domain objects such as bars, orders, and backtest results, with Parquet,
// SQLite, and CSV backends.
package store

import (
	"context"
	"time"

	"vquant/internal/backtest"
	"vquant/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, bars []domain.Bar, market domain.Market) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// OrderStore persists and retrieves order records.
type OrderStore interface {
	// SaveOrder inserts a new order into storage.
	SaveOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves a single order by its ID.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// ListOrders returns all orders matching the given status.
	ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)

	// UpdateOrder persists changes to an existing order.
	UpdateOrder(ctx context.Context, order *domain.Order) error
}

// ResultStore persists and retrieves backtest results.
type ResultStore interface {
	// SaveResult persists a run with its trades and snapshots and returns
	// the run ID.
	SaveResult(ctx context.Context, symbol string, result *backtest.Result) (int64, error)

	// GetResult retrieves a run by ID, including trades and snapshots.
	GetResult(ctx context.Context, runID int64) (*backtest.Result, error)

	// ListRuns returns summaries of all stored runs, newest first.
	ListRuns(ctx context.Context) ([]RunSummary, error)
}

// RunSummary is a stored run without its trade and snapshot detail.
type RunSummary struct {
	ID             int64
	Symbol         string
	StrategyName   string
	InitialCapital float64
	FinalValue     float64
	CreatedAt      time.Time
}
