package reconcile

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiantrade/core/internal/domain"
	"github.com/meridiantrade/core/internal/exchange"
)

type fakeStore struct {
	portfolios   []domain.Portfolio
	positions    []domain.Position
	trades       []domain.Trade
	strategies   []domain.Strategy
	metricCounts map[string]int
	logs         []domain.SystemLog
}

func (f *fakeStore) ActivePortfolios(ctx context.Context) ([]domain.Portfolio, error) { return f.portfolios, nil }
func (f *fakeStore) OpenPositions(ctx context.Context) ([]domain.Position, error)      { return f.positions, nil }
func (f *fakeStore) OpenOrPendingTrades(ctx context.Context) ([]domain.Trade, error)   { return f.trades, nil }
func (f *fakeStore) ActiveStrategies(ctx context.Context) ([]domain.Strategy, error)   { return f.strategies, nil }
func (f *fakeStore) PerformanceMetricCount(ctx context.Context, strategyID string) (int, error) {
	return f.metricCounts[strategyID], nil
}
func (f *fakeStore) WriteSystemLog(ctx context.Context, entry domain.SystemLog) error {
	f.logs = append(f.logs, entry)
	return nil
}

type fakeExchangeView struct {
	balances map[string]exchange.Balance
	orders   []exchange.OrderResponse
}

func (f *fakeExchangeView) GetAccountBalance(ctx context.Context) (map[string]exchange.Balance, error) {
	return f.balances, nil
}
func (f *fakeExchangeView) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderResponse, error) {
	return f.orders, nil
}

func newQuiescentFixtures() (*fakeStore, *fakeExchangeView) {
	store := &fakeStore{
		portfolios: []domain.Portfolio{
			{ID: "p1", BaseCurrency: "USD", TotalCapital: decimal.NewFromInt(10000)},
		},
		metricCounts: map[string]int{},
	}
	ex := &fakeExchangeView{
		balances: map[string]exchange.Balance{
			"USD": {Total: decimal.NewFromInt(10000)},
		},
	}
	return store, ex
}

func TestEngine_QuiescentSystem_NoDiscrepancies(t *testing.T) {
	store, ex := newQuiescentFixtures()
	eng := New(store, ex, decimal.Zero, nil, zerolog.Nop())

	report, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Discrepancies)
	assert.Equal(t, "completed", report.Status)
	require.Len(t, store.logs, 1)
}

func TestEngine_BalanceMismatch_ClassifiesBySeverity(t *testing.T) {
	store, ex := newQuiescentFixtures()
	ex.balances["USD"] = exchange.Balance{Total: decimal.NewFromInt(7000)} // 30% off -> HIGH

	eng := New(store, ex, decimal.Zero, nil, zerolog.Nop())
	report, err := eng.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, DiscrepancyBalanceMismatch, report.Discrepancies[0].Type)
	assert.Equal(t, SeverityHigh, report.Discrepancies[0].Severity)
	assert.Equal(t, "partial", report.Status)
}

func TestEngine_OrphanExchangeOrder_IsHighSeverityTradeRecordMissing(t *testing.T) {
	store, ex := newQuiescentFixtures()
	ex.orders = []exchange.OrderResponse{{ExchangeOrderID: "orphan-1", Symbol: "BTC/USD"}}

	eng := New(store, ex, decimal.Zero, nil, zerolog.Nop())
	report, err := eng.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, DiscrepancyTradeRecordMissing, report.Discrepancies[0].Type)
	assert.Equal(t, SeverityHigh, report.Discrepancies[0].Severity)
}

func TestEngine_MissingPosition_IsHighSeverity(t *testing.T) {
	store, ex := newQuiescentFixtures()
	store.positions = []domain.Position{{Symbol: "BTC/USD", Size: decimal.NewFromInt(1), Open: true}}

	eng := New(store, ex, decimal.Zero, nil, zerolog.Nop())
	report, err := eng.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, DiscrepancyMissingPosition, report.Discrepancies[0].Type)
}

func TestEngine_StrategyMissingMetrics_IsLowAndAutoCorrected(t *testing.T) {
	store, ex := newQuiescentFixtures()
	store.strategies = []domain.Strategy{{ID: "s1", Params: map[string]interface{}{"foo": "bar"}}}

	eng := New(store, ex, decimal.Zero, nil, zerolog.Nop())
	report, err := eng.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, SeverityLow, report.Discrepancies[0].Severity)
	assert.True(t, report.Discrepancies[0].Corrected)
	assert.Equal(t, "completed", report.Status)
}

type fakeEmergencyStopper struct {
	called bool
	reason string
}

func (f *fakeEmergencyStopper) SetEmergencyStop(active bool, reason string) {
	f.called = active
	f.reason = reason
}

func TestEngine_CriticalDiscrepancy_EscalatesWhenWired(t *testing.T) {
	store, ex := newQuiescentFixtures()
	stopper := &fakeEmergencyStopper{}
	eng := New(store, ex, decimal.Zero, stopper, zerolog.Nop())

	// The classification steps in this build never emit CRITICAL directly
	// (only HIGH); inject one to exercise the escalation hook in isolation.
	report := &Report{SessionID: "manual-test"}
	report.add(Discrepancy{Type: DiscrepancyBalanceMismatch, Severity: SeverityCritical, Subject: "p1"})
	eng.autoCorrect(report)

	assert.Equal(t, "partial", report.Status)
	assert.True(t, stopper.called)
}
