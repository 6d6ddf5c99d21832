package capital

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/meridiantrade/core/internal/domain"
)

func baseContext() *ValidationContext {
	return &ValidationContext{
		Proposal: Proposal{StrategyID: "s1", Symbol: "BTC/USD", Side: domain.SideBuy},
		Portfolio: domain.Portfolio{
			TotalCapital:     decimal.NewFromInt(10000),
			AvailableCapital: decimal.NewFromInt(10000),
		},
		Positions:      map[string]domain.Position{},
		BlockedSymbols: map[string]bool{},
		MarketPrice:    decimal.NewFromInt(100),
		Notional:       decimal.NewFromInt(500),
		EstimatedRisk:  decimal.NewFromInt(10),
	}
}

func TestDefaultChain_Order(t *testing.T) {
	chain := DefaultChain()
	names := make([]string, len(chain))
	for i, r := range chain {
		names[i] = r.Name()
	}
	assert.Equal(t, []string{
		"emergency_stop",
		"circuit_breaker",
		"blocked_symbol",
		"daily_loss_limit",
		"position_limit",
		"trade_size",
		"position_size",
		"portfolio_risk",
	}, names)
}

func TestEmergencyStopRule(t *testing.T) {
	vctx := baseContext()
	vctx.EmergencyStop = true
	out := EmergencyStopRule{}.Evaluate(vctx)
	assert.False(t, out.Pass)
	assert.Equal(t, ResultRejected, out.Result)
}

func TestCircuitBreakerRule(t *testing.T) {
	vctx := baseContext()
	vctx.CircuitTripped = true
	out := CircuitBreakerRule{}.Evaluate(vctx)
	assert.False(t, out.Pass)
}

func TestBlockedSymbolRule(t *testing.T) {
	vctx := baseContext()
	vctx.BlockedSymbols["BTC/USD"] = true
	out := BlockedSymbolRule{}.Evaluate(vctx)
	assert.False(t, out.Pass)

	vctx2 := baseContext()
	assert.True(t, BlockedSymbolRule{}.Evaluate(vctx2).Pass)
}

func TestDailyLossLimitRule_RejectsWhenProjectedExceedsCap(t *testing.T) {
	vctx := baseContext()
	vctx.Rules = []domain.PortfolioRule{
		{Kind: domain.RuleMaxDailyLossPercent, Active: true, Value: map[string]interface{}{"max_daily_loss_percent": 1.0}},
	}
	vctx.DailyRealizedPnL = decimal.NewFromInt(-90)
	vctx.EstimatedRisk = decimal.NewFromInt(50)
	out := DailyLossLimitRule{}.Evaluate(vctx)
	assert.False(t, out.Pass)
}

func TestDailyLossLimitRule_PassesWithNoRule(t *testing.T) {
	vctx := baseContext()
	assert.True(t, DailyLossLimitRule{}.Evaluate(vctx).Pass)
}

func TestPositionLimitRule_RejectsWhenOverTotal(t *testing.T) {
	vctx := baseContext()
	vctx.Rules = []domain.PortfolioRule{
		{Kind: domain.RuleMaxPositionsPerSymbol, Active: true, Value: map[string]interface{}{
			"max_positions_per_symbol": 5.0,
			"max_total_positions":      1.0,
		}},
	}
	vctx.Positions["ETH/USD"] = domain.Position{Symbol: "ETH/USD", Open: true}
	out := PositionLimitRule{}.Evaluate(vctx)
	assert.False(t, out.Pass)
}

func TestTradeSizeRule_RejectsTooSmall(t *testing.T) {
	vctx := baseContext()
	vctx.Rules = []domain.PortfolioRule{
		{Kind: domain.RuleMinPositionSizeValue, Active: true, Value: map[string]interface{}{"min_trade_amount": 1000.0}},
	}
	out := TradeSizeRule{}.Evaluate(vctx)
	assert.False(t, out.Pass)
}

func TestTradeSizeRule_RejectsTooLarge(t *testing.T) {
	vctx := baseContext()
	vctx.Rules = []domain.PortfolioRule{
		{Kind: domain.RuleMaxPositionSizeValue, Active: true, Value: map[string]interface{}{"max_trade_amount": 1000.0}},
	}
	vctx.Notional = decimal.NewFromInt(1000000)
	out := TradeSizeRule{}.Evaluate(vctx)
	assert.False(t, out.Pass)
}

func TestTradeSizeRule_NoMaxRuleImposesNoUpperBound(t *testing.T) {
	vctx := baseContext()
	vctx.Notional = decimal.NewFromInt(25000) // 250% of the 10000 portfolio
	out := TradeSizeRule{}.Evaluate(vctx)
	assert.True(t, out.Pass, "an absent max_trade_amount rule must not reject on notional alone")
}

func TestPositionSizeRule_ScalesDownRatherThanRejects(t *testing.T) {
	vctx := baseContext()
	vctx.Rules = []domain.PortfolioRule{
		{Kind: domain.RuleMaxPositionSizePercent, Active: true, Value: map[string]interface{}{"max_position_size_percent": 2.0}},
	}
	vctx.Notional = decimal.NewFromInt(500) // 5% of 10000, over the 2% cap
	vctx.ApprovedQuantity = decimal.NewFromInt(5)
	out := PositionSizeRule{}.Evaluate(vctx)
	assert.True(t, out.Pass)
	assert.True(t, vctx.Adjusted)
	assert.True(t, vctx.ApprovedQuantity.LessThan(decimal.NewFromInt(5)))
	assert.True(t, decimal.NewFromInt(2).Equal(vctx.ApprovedQuantity), "got %s", vctx.ApprovedQuantity) // 200 / 100 = 2
}

func TestPortfolioRiskRule_RejectsWhenExposurePlusRiskExceedsCap(t *testing.T) {
	vctx := baseContext()
	vctx.Rules = []domain.PortfolioRule{
		{Kind: domain.RuleMaxPortfolioExposure, Active: true, Value: map[string]interface{}{"max_portfolio_risk_percent": 1.0}},
	}
	vctx.Positions["ETH/USD"] = domain.Position{Size: decimal.NewFromInt(1), AverageEntry: decimal.NewFromInt(90)}
	vctx.EstimatedRisk = decimal.NewFromInt(50)
	out := PortfolioRiskRule{}.Evaluate(vctx)
	assert.False(t, out.Pass)
}
