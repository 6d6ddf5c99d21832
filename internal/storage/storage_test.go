package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridiantrade/core/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := New(Config{Path: "file::memory:?cache=shared", Profile: ProfileStandard, Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ledger, err := NewLedgerStore(db)
	require.NoError(t, err)

	repo, err := NewRepository(db, ledger)
	require.NoError(t, err)
	return repo
}

func TestRepository_PortfolioRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := domain.Portfolio{ID: "p1", Name: "main", BaseCurrency: "USD", TotalCapital: decimal.NewFromInt(10000), Active: true}
	require.NoError(t, repo.SavePortfolio(ctx, p))

	got, err := repo.ActivePortfolios(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "main", got[0].Name)
}

func TestRepository_PositionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pos := domain.Position{ID: "pos1", StrategyID: "s1", Symbol: "BTC/USD", Side: "long", Size: decimal.NewFromInt(1), Open: true, OpenedAt: time.Now()}
	require.NoError(t, repo.SavePosition(ctx, pos))

	got, err := repo.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "BTC/USD", got[0].Symbol)
}

func TestLedgerStore_TradeAndSystemLogRoundTrip(t *testing.T) {
	db, err := New(Config{Path: "file::memory:?cache=shared", Profile: ProfileLedger, Name: "ledger-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewLedgerStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	trade := domain.Trade{
		ID: "t1", StrategyID: "s1", Exchange: "binance", ExchangeOrderID: "ex-1", Symbol: "BTC/USD",
		Side: domain.SideBuy, Type: domain.OrderTypeMarket, Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
		Cost: decimal.NewFromInt(100), Fee: decimal.Zero, Status: domain.TradeStatusOpen,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.InsertTrade(ctx, trade))

	open, err := store.OpenOrPendingTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "ex-1", open[0].ExchangeOrderID)

	require.NoError(t, store.WriteSystemLog(ctx, domain.SystemLog{
		Severity: domain.SeverityWarning, Component: "test", Message: "hello",
	}))

	require.NoError(t, store.RecordPerformanceMetric(ctx, domain.PerformanceMetric{StrategyID: "s1", Name: "sharpe_ratio", Value: 1.2}))
	count, err := store.PerformanceMetricCount(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
