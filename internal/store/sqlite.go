package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"meridian/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ OrderStore = (*SQLiteStore)(nil)
var _ PositionStore = (*SQLiteStore)(nil)
var _ SignalStore = (*SQLiteStore)(nil)
var _ BacktestRunStore = (*SQLiteStore)(nil)

// SQLiteStore implements OrderStore, PositionStore, SignalStore, and
// BacktestRunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	type             TEXT NOT NULL,
	status           TEXT NOT NULL,
	qty              REAL NOT NULL,
	limit_price      REAL NOT NULL DEFAULT 0,
	stop_price       REAL NOT NULL DEFAULT 0,
	filled_qty       REAL NOT NULL DEFAULT 0,
	filled_avg_price REAL NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS positions (
	symbol          TEXT PRIMARY KEY,
	qty             REAL NOT NULL,
	side            TEXT NOT NULL,
	avg_entry_price REAL NOT NULL,
	market_value    REAL NOT NULL,
	unrealized_pl   REAL NOT NULL,
	realized_pl     REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	type        TEXT NOT NULL,
	strength    REAL NOT NULL,
	qty         REAL NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals(strategy_id, created_at DESC);

CREATE TABLE IF NOT EXISTS backtest_runs (
	id          TEXT PRIMARY KEY,
	strategy    TEXT NOT NULL,
	symbols     TEXT NOT NULL,
	start_date  INTEGER NOT NULL,
	end_date    INTEGER NOT NULL,
	result      TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON backtest_runs(created_at DESC);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
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
func (s *SQLiteStore) SaveOrder(ctx context.Context, order *domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, symbol, side, type, status, qty, limit_price,
			stop_price, filled_qty, filled_avg_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.Symbol, order.Side, order.Type, order.Status,
		order.Qty, order.LimitPrice, order.StopPrice,
		order.FilledQty, order.FilledAvgPrice,
		order.CreatedAt.UnixMilli(), order.UpdatedAt.UnixMilli())
	return err
}

// GetOrder retrieves a single order by its ID. It returns sql.ErrNoRows when
// no order exists with that ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, side, type, status, qty, limit_price, stop_price,
			filled_qty, filled_avg_price, created_at, updated_at
		FROM orders WHERE id = ?`, id)
	return scanOrder(row)
}

// ListOrders returns all orders matching the given status, newest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, type, status, qty, limit_price, stop_price,
			filled_qty, filled_avg_price, created_at, updated_at
		FROM orders WHERE status = ? ORDER BY created_at DESC`, status)
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
func (s *SQLiteStore) UpdateOrder(ctx context.Context, order *domain.Order) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET symbol = ?, side = ?, type = ?, status = ?, qty = ?,
			limit_price = ?, stop_price = ?, filled_qty = ?, filled_avg_price = ?,
			updated_at = ?
		WHERE id = ?`,
		order.Symbol, order.Side, order.Type, order.Status, order.Qty,
		order.LimitPrice, order.StopPrice, order.FilledQty, order.FilledAvgPrice,
		order.UpdatedAt.UnixMilli(), order.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var createdMs, updatedMs int64
	err := row.Scan(&o.ID, &o.Symbol, &o.Side, &o.Type, &o.Status, &o.Qty,
		&o.LimitPrice, &o.StopPrice, &o.FilledQty, &o.FilledAvgPrice,
		&createdMs, &updatedMs)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = time.UnixMilli(createdMs).UTC()
	o.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &o, nil
}

// ---------------------------------------------------------------------------
// PositionStore implementation
// ---------------------------------------------------------------------------

// SavePosition inserts or updates a position for a symbol.
func (s *SQLiteStore) SavePosition(ctx context.Context, pos *domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (symbol, qty, side, avg_entry_price, market_value,
			unrealized_pl, realized_pl)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			qty = excluded.qty,
			side = excluded.side,
			avg_entry_price = excluded.avg_entry_price,
			market_value = excluded.market_value,
			unrealized_pl = excluded.unrealized_pl,
			realized_pl = excluded.realized_pl`,
		pos.Symbol, pos.Qty, pos.Side, pos.AvgEntryPrice, pos.MarketValue,
		pos.UnrealizedPL, pos.RealizedPL)
	return err
}

// GetPosition retrieves the current position for a symbol. It returns
// sql.ErrNoRows when no position exists.
func (s *SQLiteStore) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	var p domain.Position
	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, qty, side, avg_entry_price, market_value, unrealized_pl, realized_pl
		FROM positions WHERE symbol = ?`, symbol).
		Scan(&p.Symbol, &p.Qty, &p.Side, &p.AvgEntryPrice, &p.MarketValue,
			&p.UnrealizedPL, &p.RealizedPL)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPositions returns all open positions, sorted by symbol.
func (s *SQLiteStore) ListPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, qty, side, avg_entry_price, market_value, unrealized_pl, realized_pl
		FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.Symbol, &p.Qty, &p.Side, &p.AvgEntryPrice,
			&p.MarketValue, &p.UnrealizedPL, &p.RealizedPL); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// DeletePosition removes the position for a symbol.
func (s *SQLiteStore) DeletePosition(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol)
	return err
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

// SaveSignal inserts a new signal and fills in its generated ID.
func (s *SQLiteStore) SaveSignal(ctx context.Context, signal *domain.Signal) error {
	meta := "{}"
	if len(signal.Metadata) > 0 {
		b, err := json.Marshal(signal.Metadata)
		if err != nil {
			return fmt.Errorf("encoding signal metadata: %w", err)
		}
		meta = string(b)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (strategy_id, symbol, type, strength, qty, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		signal.StrategyID, signal.Symbol, signal.Type, signal.Strength,
		signal.Qty, meta, signal.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}
	signal.ID, err = res.LastInsertId()
	return err
}

// ListSignals returns the most recent signals for a strategy, up to limit.
func (s *SQLiteStore) ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy_id, symbol, type, strength, qty, metadata, created_at
		FROM signals WHERE strategy_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, strategyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var meta string
		var createdMs int64
		if err := rows.Scan(&sig.ID, &sig.StrategyID, &sig.Symbol, &sig.Type,
			&sig.Strength, &sig.Qty, &meta, &createdMs); err != nil {
			return nil, err
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &sig.Metadata); err != nil {
				return nil, fmt.Errorf("decoding signal metadata: %w", err)
			}
		}
		sig.CreatedAt = time.UnixMilli(createdMs).UTC()
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// ---------------------------------------------------------------------------
// BacktestRunStore implementation
// ---------------------------------------------------------------------------

// SaveBacktestRun persists a completed backtest run. The result payload is
// stored as JSON.
func (s *SQLiteStore) SaveBacktestRun(ctx context.Context, run *BacktestRun) error {
	symbols, err := json.Marshal(run.Symbols)
	if err != nil {
		return fmt.Errorf("encoding run symbols: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs (id, strategy, symbols, start_date, end_date, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, string(symbols),
		run.StartDate.UnixMilli(), run.EndDate.UnixMilli(),
		string(run.Result), run.CreatedAt.UnixMilli())
	return err
}

// GetBacktestRun retrieves a stored run by ID. It returns sql.ErrNoRows when
// the run does not exist.
func (s *SQLiteStore) GetBacktestRun(ctx context.Context, id string) (*BacktestRun, error) {
	var run BacktestRun
	var symbols, result string
	var startMs, endMs, createdMs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbols, start_date, end_date, result, created_at
		FROM backtest_runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Strategy, &symbols, &startMs, &endMs, &result, &createdMs)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(symbols), &run.Symbols); err != nil {
		return nil, fmt.Errorf("decoding run symbols: %w", err)
	}
	run.Result = json.RawMessage(result)
	run.StartDate = time.UnixMilli(startMs).UTC()
	run.EndDate = time.UnixMilli(endMs).UTC()
	run.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &run, nil
}

// ListBacktestRuns returns summaries of the most recent runs, newest first,
// without their result payloads.
func (s *SQLiteStore) ListBacktestRuns(ctx context.Context, limit int) ([]BacktestRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbols, start_date, end_date, created_at
		FROM backtest_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []BacktestRun
	for rows.Next() {
		var run BacktestRun
		var symbols string
		var startMs, endMs, createdMs int64
		if err := rows.Scan(&run.ID, &run.Strategy, &symbols, &startMs, &endMs, &createdMs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(symbols), &run.Symbols); err != nil {
			return nil, fmt.Errorf("decoding run symbols: %w", err)
		}
		run.StartDate = time.UnixMilli(startMs).UTC()
		run.EndDate = time.UnixMilli(endMs).UTC()
		run.CreatedAt = time.UnixMilli(createdMs).UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
