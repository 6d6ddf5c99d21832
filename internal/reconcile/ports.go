package reconcile

import (
	"context"

	"github.com/meridiantrade/core/internal/domain"
	"github.com/meridiantrade/core/internal/exchange"
)

// Store is the read surface onto the persisted ledger the engine compares
// against exchange state. internal/storage implements this.
type Store interface {
	ActivePortfolios(ctx context.Context) ([]domain.Portfolio, error)
	OpenPositions(ctx context.Context) ([]domain.Position, error)
	OpenOrPendingTrades(ctx context.Context) ([]domain.Trade, error)
	ActiveStrategies(ctx context.Context) ([]domain.Strategy, error)
	PerformanceMetricCount(ctx context.Context, strategyID string) (int, error)
	WriteSystemLog(ctx context.Context, entry domain.SystemLog) error
}

// ExchangeView is the subset of the Exchange Connector the engine needs to
// read authoritative state; it never places or cancels orders.
type ExchangeView interface {
	GetAccountBalance(ctx context.Context) (map[string]exchange.Balance, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderResponse, error)
}

// EmergencyStopper lets the engine escalate a CRITICAL finding to an
// emergency stop. Core Engine always wires this to the Capital Manager;
// there is no opt-in setting.
type EmergencyStopper interface {
	SetEmergencyStop(active bool, reason string)
}
