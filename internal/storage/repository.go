package storage

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/meridiantrade/core/internal/domain"
)

// Repository is the GORM-backed store for the mutable relational models:
// Portfolio, PortfolioRule, Strategy, Position, GridOrder. It composes
// with LedgerStore (the append-only raw-SQL tables) to satisfy
// reconcile.Store in full.
type Repository struct {
	gdb   *gorm.DB
	ledger *LedgerStore
}

// NewRepository opens a GORM connection over the same sqlite file family
// as db (sharing its *sql.DB via gorm's sqlite dialector), auto-migrates
// the relational models, and wraps the given LedgerStore for the
// append-only tables.
func NewRepository(db *DB, ledger *LedgerStore) (*Repository, error) {
	gdb, err := gorm.Open(sqlite.Dialector{Conn: db.Conn()}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open gorm: %w", err)
	}
	if err := gdb.AutoMigrate(
		&portfolioModel{}, &portfolioRuleModel{}, &strategyModel{}, &positionModel{}, &gridOrderModel{},
	); err != nil {
		return nil, fmt.Errorf("storage: automigrate: %w", err)
	}
	return &Repository{gdb: gdb, ledger: ledger}, nil
}

// ActivePortfolios implements reconcile.Store.
func (r *Repository) ActivePortfolios(ctx context.Context) ([]domain.Portfolio, error) {
	var rows []portfolioModel
	if err := r.gdb.WithContext(ctx).Where("active = ?", true).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Portfolio, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, nil
}

// PortfolioRules returns the active rule set bound to a portfolio, for
// Capital Manager ledger hydration at startup.
func (r *Repository) PortfolioRules(ctx context.Context, portfolioID string) ([]domain.PortfolioRule, error) {
	var rows []portfolioRuleModel
	if err := r.gdb.WithContext(ctx).Where("portfolio_id = ? AND active = ?", portfolioID, true).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PortfolioRule, 0, len(rows))
	for _, m := range rows {
		d, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// OpenPositions implements reconcile.Store.
func (r *Repository) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	var rows []positionModel
	if err := r.gdb.WithContext(ctx).Where("open = ?", true).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Position, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, nil
}

// ActiveStrategies implements reconcile.Store.
func (r *Repository) ActiveStrategies(ctx context.Context) ([]domain.Strategy, error) {
	var rows []strategyModel
	if err := r.gdb.WithContext(ctx).Where("active = ?", true).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Strategy, 0, len(rows))
	for _, m := range rows {
		d, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// SavePortfolio upserts a Portfolio.
func (r *Repository) SavePortfolio(ctx context.Context, p domain.Portfolio) error {
	return r.gdb.WithContext(ctx).Save(portfolioFromDomain(p)).Error
}

// SavePosition upserts a Position (closing a position is just another save
// with Open=false and ClosedAt set).
func (r *Repository) SavePosition(ctx context.Context, p domain.Position) error {
	return r.gdb.WithContext(ctx).Save(positionFromDomain(p)).Error
}

// SaveStrategy upserts a Strategy.
func (r *Repository) SaveStrategy(ctx context.Context, s domain.Strategy) error {
	m, err := strategyFromDomain(s)
	if err != nil {
		return err
	}
	return r.gdb.WithContext(ctx).Save(&m).Error
}

// SaveGridOrder upserts a GridOrder rung.
func (r *Repository) SaveGridOrder(ctx context.Context, g domain.GridOrder) error {
	return r.gdb.WithContext(ctx).Save(gridOrderFromDomain(g)).Error
}

// GridOrdersForStrategy returns the persisted grid layout for a strategy,
// letting a grid strategy recover its rungs after restart.
func (r *Repository) GridOrdersForStrategy(ctx context.Context, strategyID string) ([]domain.GridOrder, error) {
	var rows []gridOrderModel
	if err := r.gdb.WithContext(ctx).Where("strategy_id = ?", strategyID).Order("level").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.GridOrder, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, nil
}

// The remaining reconcile.Store methods delegate to the append-only
// ledger store.

func (r *Repository) OpenOrPendingTrades(ctx context.Context) ([]domain.Trade, error) {
	return r.ledger.OpenOrPendingTrades(ctx)
}

func (r *Repository) PerformanceMetricCount(ctx context.Context, strategyID string) (int, error) {
	return r.ledger.PerformanceMetricCount(ctx, strategyID)
}

func (r *Repository) WriteSystemLog(ctx context.Context, entry domain.SystemLog) error {
	return r.ledger.WriteSystemLog(ctx, entry)
}
