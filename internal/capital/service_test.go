package capital

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiantrade/core/internal/bus"
	"github.com/meridiantrade/core/internal/domain"
)

func fixedPrice(price decimal.Decimal) PriceLookup {
	return func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		return price, nil
	}
}

func newTestService() *Service {
	portfolio := domain.Portfolio{TotalCapital: decimal.NewFromInt(10000), AvailableCapital: decimal.NewFromInt(10000)}
	ledger := NewLedger(portfolio, nil, nil, decimal.Zero)
	b := bus.New(zerolog.Nop())
	return NewService(ledger, b, fixedPrice(decimal.NewFromInt(100)), zerolog.Nop())
}

func TestService_Validate_ApprovesWithinLimits(t *testing.T) {
	s := newTestService()
	resp, err := s.Validate(context.Background(), Proposal{
		StrategyID: "s1", Symbol: "BTC/USD", Side: domain.SideBuy,
		StrategyParams: map[string]interface{}{"requested_quantity": 1.0},
	})
	require.NoError(t, err)
	assert.Equal(t, ResultApproved, resp.Result)
	assert.True(t, resp.SuggestedStopLoss.LessThan(decimal.NewFromInt(100)))
	assert.True(t, resp.SuggestedTakeProfit.GreaterThan(decimal.NewFromInt(100)))
}

func TestService_Validate_EstimatedRiskScalesWithQuantity(t *testing.T) {
	s := newTestService()
	resp, err := s.Validate(context.Background(), Proposal{
		StrategyID: "s1", Symbol: "BTC/USD", Side: domain.SideBuy,
		StrategyParams: map[string]interface{}{"requested_quantity": 10.0},
	})
	require.NoError(t, err)
	require.Equal(t, ResultApproved, resp.Result)

	// Default 2% stop on a 100 price is a 2-per-unit risk; 10 units must
	// project 20, not 2 (the per-unit figure alone).
	assert.True(t, resp.EstimatedRiskAmount.Equal(decimal.NewFromInt(20)),
		"expected risk to scale with quantity, got %s", resp.EstimatedRiskAmount)
}

func TestService_Validate_RejectsDuringEmergencyStop(t *testing.T) {
	s := newTestService()
	s.SetEmergencyStop(true, "operator halt")
	resp, err := s.Validate(context.Background(), Proposal{
		StrategyID: "s1", Symbol: "BTC/USD", Side: domain.SideBuy,
		StrategyParams: map[string]interface{}{"requested_quantity": 1.0},
	})
	require.NoError(t, err)
	assert.Equal(t, ResultRejected, resp.Result)
}

func TestService_Start_SubscribesWithoutError(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.Start(context.Background()))
}

func TestService_HandleTradeExecuted_UpdatesLedger(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.Start(context.Background()))

	payload := map[string]interface{}{
		"Symbol":         "BTC/USD",
		"Side":           "buy",
		"FilledQuantity": "1",
		"AveragePrice":   "100",
		"Fees":           "0.1",
		"Status":         "filled",
	}
	require.True(t, s.bus.Publish("events", "events.trade_executed", payload, false))

	require.Eventually(t, func() bool {
		_, ok := s.ledger.Position("BTC/USD")
		return ok
	}, time.Second, 5*time.Millisecond)
}
