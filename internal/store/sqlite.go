package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vquant/internal/backtest"
	"vquant/internal/domain"
	"vquant/internal/perf"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ OrderStore = (*SQLiteStore)(nil)
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements OrderStore and ResultStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol          TEXT NOT NULL,
	strategy_name   TEXT NOT NULL,
	initial_capital REAL NOT NULL,
	final_value     REAL NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_trades (
	run_id     INTEGER NOT NULL REFERENCES backtest_runs(id),
	date       TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	price      REAL NOT NULL,
	quantity   INTEGER NOT NULL,
	amount     REAL NOT NULL,
	commission REAL NOT NULL,
	profit     REAL NOT NULL,
	cash_after REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_snapshots (
	run_id         INTEGER NOT NULL REFERENCES backtest_runs(id),
	date           TEXT NOT NULL,
	total_value    REAL NOT NULL,
	cash           REAL NOT NULL,
	position_value REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	quantity         INTEGER NOT NULL,
	type             TEXT NOT NULL,
	price            REAL NOT NULL,
	stop_price       REAL NOT NULL,
	status           TEXT NOT NULL,
	filled_qty       INTEGER NOT NULL,
	filled_avg_price REAL NOT NULL,
	commission       REAL NOT NULL,
	strategy_id      TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	message          TEXT NOT NULL
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

// SaveOrder inserts a new order into the database.
func (s *SQLiteStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, symbol, side, quantity, type, price, stop_price,
			status, filled_qty, filled_avg_price, commission, strategy_id,
			created_at, updated_at, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Symbol, string(o.Side), o.Quantity, string(o.Type), o.Price, o.StopPrice,
		string(o.Status), o.FilledQty, o.FilledAvgPrice, o.Commission, o.StrategyID,
		o.CreatedAt.Format(time.RFC3339Nano), o.UpdatedAt.Format(time.RFC3339Nano), o.Message)
	return err
}

// GetOrder retrieves a single order by its ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, side, quantity, type, price, stop_price, status,
			filled_qty, filled_avg_price, commission, strategy_id,
			created_at, updated_at, message
		FROM orders WHERE id = ?`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders returns all orders matching the given status, oldest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, quantity, type, price, stop_price, status,
			filled_qty, filled_avg_price, commission, strategy_id,
			created_at, updated_at, message
		FROM orders WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// UpdateOrder persists changes to an existing order.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, o *domain.Order) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, filled_qty = ?, filled_avg_price = ?,
			commission = ?, updated_at = ?, message = ?
		WHERE id = ?`,
		string(o.Status), o.FilledQty, o.FilledAvgPrice, o.Commission,
		o.UpdatedAt.Format(time.RFC3339Nano), o.Message, o.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", o.ID, domain.ErrOrderNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var side, typ, status, createdAt, updatedAt string
	if err := row.Scan(&o.ID, &o.Symbol, &side, &o.Quantity, &typ, &o.Price, &o.StopPrice,
		&status, &o.FilledQty, &o.FilledAvgPrice, &o.Commission, &o.StrategyID,
		&createdAt, &updatedAt, &o.Message); err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(typ)
	o.Status = domain.OrderStatus(status)

	var err error
	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &o, nil
}

// ---------------------------------------------------------------------------
// ResultStore implementation
// ---------------------------------------------------------------------------

// SaveResult persists a run together with its trades and snapshots in one
// transaction and returns the run ID. Performance metrics are not stored;
// they are recomputed from the snapshots on load.
func (s *SQLiteStore) SaveResult(ctx context.Context, symbol string, result *backtest.Result) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (symbol, strategy_name, initial_capital, final_value, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		symbol, result.StrategyName, result.InitialCapital, result.FinalValue,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, tr := range result.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_trades (run_id, date, symbol, side, price, quantity,
				amount, commission, profit, cash_after)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, tr.Date.Format(time.RFC3339Nano), tr.Symbol, string(tr.Side),
			tr.Price, tr.Quantity, tr.Amount, tr.Commission, tr.Profit, tr.CashAfter); err != nil {
			return 0, err
		}
	}

	for _, snap := range result.Snapshots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO daily_snapshots (run_id, date, total_value, cash, position_value)
			VALUES (?, ?, ?, ?, ?)`,
			runID, snap.Date.Format(time.RFC3339Nano), snap.TotalValue, snap.Cash, snap.PositionValue); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// GetResult retrieves a run by ID, including trades and snapshots.
// Performance metrics are recomputed from the stored equity curve.
func (s *SQLiteStore) GetResult(ctx context.Context, runID int64) (*backtest.Result, error) {
	var result backtest.Result
	var symbol, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, strategy_name, initial_capital, final_value, created_at
		FROM backtest_runs WHERE id = ?`, runID).
		Scan(&symbol, &result.StrategyName, &result.InitialCapital, &result.FinalValue, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d not found: %w", runID, domain.ErrEmptyData)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, symbol, side, price, quantity, amount, commission, profit, cash_after
		FROM backtest_trades WHERE run_id = ? ORDER BY date`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tr domain.Trade
		var date, side string
		if err := rows.Scan(&date, &tr.Symbol, &side, &tr.Price, &tr.Quantity,
			&tr.Amount, &tr.Commission, &tr.Profit, &tr.CashAfter); err != nil {
			return nil, err
		}
		if tr.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
			return nil, fmt.Errorf("parsing trade date: %w", err)
		}
		tr.Side = domain.OrderSide(side)
		result.Trades = append(result.Trades, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snapRows, err := s.db.QueryContext(ctx, `
		SELECT date, total_value, cash, position_value
		FROM daily_snapshots WHERE run_id = ? ORDER BY date`, runID)
	if err != nil {
		return nil, err
	}
	defer snapRows.Close()
	for snapRows.Next() {
		var snap domain.DailySnapshot
		var date string
		if err := snapRows.Scan(&date, &snap.TotalValue, &snap.Cash, &snap.PositionValue); err != nil {
			return nil, err
		}
		if snap.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
			return nil, fmt.Errorf("parsing snapshot date: %w", err)
		}
		result.Snapshots = append(result.Snapshots, snap)
	}
	if err := snapRows.Err(); err != nil {
		return nil, err
	}

	result.Performance = perf.NewAnalyzer(0).Report(result.Snapshots, result.Trades, result.InitialCapital)
	return &result, nil
}

// ListRuns returns summaries of all stored runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, strategy_name, initial_capital, final_value, created_at
		FROM backtest_runs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Symbol, &r.StrategyName, &r.InitialCapital, &r.FinalValue, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
