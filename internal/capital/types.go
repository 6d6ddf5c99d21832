// Package capital implements the Capital Manager (spec section 4.5): the
// sole authority on whether a proposed trade may proceed, holding the
// authoritative in-memory portfolio ledger.
package capital

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridiantrade/core/internal/domain"
)

// Result is the validation outcome. A result sum type replaces the
// exception-based control flow the rule chain would otherwise need.
type Result string

const (
	ResultApproved        Result = "approved"
	ResultRejected        Result = "rejected"
	ResultRequiresApproval Result = "requires_approval"
)

// RiskLevel classifies an approved trade's size relative to the portfolio.
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskExtreme RiskLevel = "extreme"
)

// Proposal is the trade-proposal payload a strategy publishes on
// request.capital.allocation.{strategy_id}.
type Proposal struct {
	StrategyID     string
	Symbol         string
	Side           domain.Side
	SignalPrice    decimal.Decimal
	StopLossPrice  decimal.Decimal // zero means "not supplied"
	Confidence     float64
	StrategyParams map[string]interface{}
}

// ValidationResponse is the Capital Manager's answer to a Proposal.
type ValidationResponse struct {
	Result              Result
	ApprovedQuantity     decimal.Decimal
	RiskLevel            RiskLevel
	Reasons              []string
	SuggestedStopLoss    decimal.Decimal
	SuggestedTakeProfit  decimal.Decimal
	EstimatedRiskAmount  decimal.Decimal
	PortfolioImpact      decimal.Decimal // fraction of portfolio value this trade represents
}

// ValidationContext is the working state built once per proposal and
// threaded through every Rule in the chain, grounded on the teacher's
// TradeSafetyService building one context object ahead of its layered
// checks.
type ValidationContext struct {
	Proposal Proposal

	Portfolio       domain.Portfolio
	Rules           []domain.PortfolioRule
	Positions       map[string]domain.Position // keyed by symbol
	EmergencyStop   bool
	CircuitTripped  bool
	BlockedSymbols  map[string]bool
	DailyRealizedPnL decimal.Decimal

	MarketPrice       decimal.Decimal
	Notional          decimal.Decimal // requested notional before any sizing adjustment
	EstimatedRisk     decimal.Decimal // projected stop-loss exposure in quote currency: quantity * |price - stop_loss|

	// Outcome accumulators the chain mutates as it runs.
	ApprovedQuantity decimal.Decimal
	Reasons          []string
	Adjusted         bool
}

// TradeExecuted is the event payload published by the Exchange Connector on
// events.trade_executed.
type TradeExecuted struct {
	StrategyID     string
	OrderID        string
	Symbol         string
	Side           domain.Side
	FilledQuantity decimal.Decimal
	AveragePrice   decimal.Decimal
	Fees           decimal.Decimal
	Status         string // "filled" | "partial" | "cancelled" | "failed"
	Timestamp      time.Time
}

func ruleValueDecimal(rule domain.PortfolioRule, key string, def decimal.Decimal) decimal.Decimal {
	raw, ok := rule.Value[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case decimal.Decimal:
		return v
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return def
}

func ruleValueInt(rule domain.PortfolioRule, key string, def int) int {
	raw, ok := rule.Value[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}
