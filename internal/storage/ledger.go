package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridiantrade/core/internal/domain"
)

// LedgerStore is the append-only raw-SQL store for Trade, SystemLog and
// PerformanceMetric: records nothing ever updates in place, so these use
// database/sql directly rather than an ORM, matching the teacher's
// db.go's ProfileLedger tables.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore opens (and migrates) the ledger database.
func NewLedgerStore(db *DB) (*LedgerStore, error) {
	s := &LedgerStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LedgerStore) migrate(ctx context.Context) error {
	_, err := s.db.conn.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS trades (
	id                TEXT PRIMARY KEY,
	strategy_id       TEXT NOT NULL,
	exchange          TEXT NOT NULL,
	exchange_order_id TEXT NOT NULL UNIQUE,
	symbol            TEXT NOT NULL,
	side              TEXT NOT NULL,
	type              TEXT NOT NULL,
	amount            TEXT NOT NULL,
	price             TEXT NOT NULL,
	cost              TEXT NOT NULL,
	fee               TEXT NOT NULL,
	status            TEXT NOT NULL,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	closed_at         DATETIME
);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy_id);

CREATE TABLE IF NOT EXISTS system_logs (
	id          TEXT PRIMARY KEY,
	severity    TEXT NOT NULL,
	component   TEXT NOT NULL,
	message     TEXT NOT NULL,
	context     TEXT NOT NULL DEFAULT '{}',
	strategy_id TEXT NOT NULL DEFAULT '',
	trade_id    TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_system_logs_severity ON system_logs(severity);

CREATE TABLE IF NOT EXISTS performance_metrics (
	id           TEXT PRIMARY KEY,
	strategy_id  TEXT NOT NULL DEFAULT '',
	portfolio_id TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL,
	value        REAL NOT NULL,
	recorded_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_performance_metrics_strategy ON performance_metrics(strategy_id);
`)
	return err
}

// InsertTrade records a new order sent to the exchange. Trades are
// immutable once closed; UpdateTradeStatus is the only mutation path
// before that.
func (s *LedgerStore) InsertTrade(ctx context.Context, t domain.Trade) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.conn.ExecContext(ctx, `
INSERT INTO trades (id, strategy_id, exchange, exchange_order_id, symbol, side, type, amount, price, cost, fee, status, created_at, updated_at, closed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.StrategyID, t.Exchange, t.ExchangeOrderID, t.Symbol, string(t.Side), string(t.Type),
		t.Amount.String(), t.Price.String(), t.Cost.String(), t.Fee.String(), string(t.Status),
		t.CreatedAt, t.UpdatedAt, nullableTime(t.ClosedAt))
	if err != nil {
		return fmt.Errorf("storage: insert trade: %w", err)
	}
	return nil
}

// UpdateTradeStatus advances a trade's lifecycle status.
func (s *LedgerStore) UpdateTradeStatus(ctx context.Context, id string, status domain.TradeStatus, closedAt *time.Time) error {
	_, err := s.db.conn.ExecContext(ctx, `UPDATE trades SET status = ?, updated_at = ?, closed_at = ? WHERE id = ?`,
		string(status), time.Now(), nullableTime(closedAt), id)
	return err
}

// OpenOrPendingTrades returns every trade whose status is pending or open,
// feeding the reconciliation engine's order-reconciliation step.
func (s *LedgerStore) OpenOrPendingTrades(ctx context.Context) ([]domain.Trade, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
SELECT id, strategy_id, exchange, exchange_order_id, symbol, side, type, amount, price, cost, fee, status, created_at, updated_at, closed_at
FROM trades WHERE status IN ('pending', 'open')`)
	if err != nil {
		return nil, fmt.Errorf("storage: query open trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrade(rows *sql.Rows) (domain.Trade, error) {
	var t domain.Trade
	var side, typ, amount, price, cost, fee, status string
	var closedAt sql.NullTime
	if err := rows.Scan(&t.ID, &t.StrategyID, &t.Exchange, &t.ExchangeOrderID, &t.Symbol, &side, &typ,
		&amount, &price, &cost, &fee, &status, &t.CreatedAt, &t.UpdatedAt, &closedAt); err != nil {
		return domain.Trade{}, fmt.Errorf("storage: scan trade: %w", err)
	}
	t.Side = domain.Side(side)
	t.Type = domain.OrderType(typ)
	t.Status = domain.TradeStatus(status)
	t.Amount = mustDecimal(amount)
	t.Price = mustDecimal(price)
	t.Cost = mustDecimal(cost)
	t.Fee = mustDecimal(fee)
	if closedAt.Valid {
		ct := closedAt.Time
		t.ClosedAt = &ct
	}
	return t, nil
}

// WriteSystemLog appends a structured operator-visible log entry; critical
// events (reconciliation outcomes, emergency stops, risk denials) live here
// in addition to any runtime logger output.
func (s *LedgerStore) WriteSystemLog(ctx context.Context, entry domain.SystemLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	ctxJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("storage: marshal system log context: %w", err)
	}
	_, err = s.db.conn.ExecContext(ctx, `
INSERT INTO system_logs (id, severity, component, message, context, strategy_id, trade_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Severity), entry.Component, entry.Message, string(ctxJSON),
		entry.StrategyID, entry.TradeID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: insert system log: %w", err)
	}
	return nil
}

// RecordPerformanceMetric appends a named scalar; it never drives trading
// decisions, only reporting.
func (s *LedgerStore) RecordPerformanceMetric(ctx context.Context, m domain.PerformanceMetric) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now()
	}
	_, err := s.db.conn.ExecContext(ctx, `
INSERT INTO performance_metrics (id, strategy_id, portfolio_id, name, value, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.StrategyID, m.PortfolioID, m.Name, m.Value, m.RecordedAt)
	return err
}

// PerformanceMetricCount reports how many metric rows a strategy has,
// feeding the reconciliation engine's strategy-state sanity step.
func (s *LedgerStore) PerformanceMetricCount(ctx context.Context, strategyID string) (int, error) {
	var count int
	err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM performance_metrics WHERE strategy_id = ?`, strategyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("storage: count performance metrics: %w", err)
	}
	return count, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
