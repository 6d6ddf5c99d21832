package capital

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridiantrade/core/internal/domain"
)

// RuleOutcome is what one Rule decides: either the chain continues, or it
// stops here with a terminal Result.
type RuleOutcome struct {
	Pass   bool
	Result Result // only meaningful when Pass is false
	Reason string
}

func pass() RuleOutcome { return RuleOutcome{Pass: true} }

func reject(reason string) RuleOutcome {
	return RuleOutcome{Pass: false, Result: ResultRejected, Reason: reason}
}

// Rule is one independent, disableable link in the validation chain,
// generalized from the teacher's TradeSafetyService.ValidateTrade
// hard/soft-layer method chain into a slice of pluggable values so new
// rules are added by appending, not by editing a fixed method.
type Rule interface {
	Name() string
	Evaluate(vctx *ValidationContext) RuleOutcome
}

// DefaultChain returns the eight-rule chain from spec section 4.5 in its
// required evaluation order.
func DefaultChain() []Rule {
	return []Rule{
		EmergencyStopRule{},
		CircuitBreakerRule{},
		BlockedSymbolRule{},
		DailyLossLimitRule{},
		PositionLimitRule{},
		TradeSizeRule{},
		PositionSizeRule{},
		PortfolioRiskRule{},
	}
}

// EmergencyStopRule fails every proposal while the latch is set.
type EmergencyStopRule struct{}

func (EmergencyStopRule) Name() string { return "emergency_stop" }

func (EmergencyStopRule) Evaluate(vctx *ValidationContext) RuleOutcome {
	if vctx.EmergencyStop {
		return reject("system halted")
	}
	return pass()
}

// CircuitBreakerRule fails every proposal while a daily-loss or drawdown
// breaker is tripped.
type CircuitBreakerRule struct{}

func (CircuitBreakerRule) Name() string { return "circuit_breaker" }

func (CircuitBreakerRule) Evaluate(vctx *ValidationContext) RuleOutcome {
	if vctx.CircuitTripped {
		return reject("daily-loss or drawdown circuit breaker tripped")
	}
	return pass()
}

// BlockedSymbolRule rejects proposals for symbols on the blocklist.
type BlockedSymbolRule struct{}

func (BlockedSymbolRule) Name() string { return "blocked_symbol" }

func (BlockedSymbolRule) Evaluate(vctx *ValidationContext) RuleOutcome {
	if vctx.BlockedSymbols[vctx.Proposal.Symbol] {
		return reject(fmt.Sprintf("symbol %s is blocked", vctx.Proposal.Symbol))
	}
	return pass()
}

// DailyLossLimitRule rejects if today's realized loss plus this trade's
// projected risk would exceed max_daily_loss_percent of portfolio value.
type DailyLossLimitRule struct{}

func (DailyLossLimitRule) Name() string { return "daily_loss_limit" }

func (DailyLossLimitRule) Evaluate(vctx *ValidationContext) RuleOutcome {
	rule, ok := findRule(vctx.Rules, domain.RuleMaxDailyLossPercent)
	if !ok {
		return pass()
	}
	maxPct := ruleValueDecimal(rule, "max_daily_loss_percent", decimal.NewFromInt(100))
	lossCap := vctx.Portfolio.TotalCapital.Mul(maxPct).Div(decimal.NewFromInt(100))

	todayLoss := vctx.DailyRealizedPnL
	if todayLoss.IsPositive() {
		todayLoss = decimal.Zero // only losses count toward the cap
	}
	projected := todayLoss.Neg().Add(vctx.EstimatedRisk)
	if projected.GreaterThan(lossCap) {
		return reject("would exceed daily loss cap")
	}
	return pass()
}

// PositionLimitRule enforces total and per-symbol open position counts.
type PositionLimitRule struct{}

func (PositionLimitRule) Name() string { return "position_limit" }

func (PositionLimitRule) Evaluate(vctx *ValidationContext) RuleOutcome {
	rule, ok := findRule(vctx.Rules, domain.RuleMaxPositionsPerSymbol)
	maxPerSymbol := 1
	maxTotal := len(vctx.Positions) + 1
	if ok {
		maxPerSymbol = ruleValueInt(rule, "max_positions_per_symbol", maxPerSymbol)
		maxTotal = ruleValueInt(rule, "max_total_positions", maxTotal)
	}

	if len(vctx.Positions)+1 > maxTotal {
		return reject("too many positions")
	}
	if _, open := vctx.Positions[vctx.Proposal.Symbol]; open && maxPerSymbol < 1 {
		return reject("too many positions")
	}
	return pass()
}

// TradeSizeRule bounds notional to [min_trade_amount, max_trade_amount].
type TradeSizeRule struct{}

func (TradeSizeRule) Name() string { return "trade_size" }

func (TradeSizeRule) Evaluate(vctx *ValidationContext) RuleOutcome {
	minAmount := decimal.Zero
	if rule, ok := findRule(vctx.Rules, domain.RuleMinPositionSizeValue); ok {
		minAmount = ruleValueDecimal(rule, "min_trade_amount", minAmount)
	}
	if vctx.Notional.LessThan(minAmount) {
		return reject("trade too small")
	}

	// An absent max-trade rule imposes no upper bound here: that ceiling is
	// PositionSizeRule's job, and it is the one rule allowed to resize a
	// proposal down rather than reject it outright (spec section 4.5).
	if rule, ok := findRule(vctx.Rules, domain.RuleMaxPositionSizeValue); ok { // max_trade_amount
		maxAmount := ruleValueDecimal(rule, "max_trade_amount", vctx.Portfolio.TotalCapital)
		if vctx.Notional.GreaterThan(maxAmount) {
			return reject("trade too large")
		}
	}
	return pass()
}

// PositionSizeRule enforces notional / total_value <= max_position_size_percent,
// and is the one rule allowed to down-size a proposal rather than reject it
// outright, per spec section 4.5's sizing policy.
type PositionSizeRule struct{}

func (PositionSizeRule) Name() string { return "position_size" }

func (PositionSizeRule) Evaluate(vctx *ValidationContext) RuleOutcome {
	rule, ok := findRule(vctx.Rules, domain.RuleMaxPositionSizePercent)
	if !ok || vctx.Portfolio.TotalCapital.IsZero() {
		return pass()
	}
	maxPct := ruleValueDecimal(rule, "max_position_size_percent", decimal.NewFromInt(100))
	maxNotional := vctx.Portfolio.TotalCapital.Mul(maxPct).Div(decimal.NewFromInt(100))

	if vctx.Notional.LessThanOrEqual(maxNotional) {
		return pass()
	}

	if vctx.MarketPrice.IsZero() {
		return reject("position too large")
	}
	scaledQty := maxNotional.Div(vctx.MarketPrice).Truncate(8)
	if scaledQty.IsZero() {
		return reject("position too large")
	}

	vctx.ApprovedQuantity = scaledQty
	vctx.Adjusted = true
	vctx.Reasons = append(vctx.Reasons, "quantity scaled down to position-size limit")
	return pass()
}

// PortfolioRiskRule bounds current exposure plus this trade's projected
// stop-loss risk to max_portfolio_risk_percent of portfolio value.
type PortfolioRiskRule struct{}

func (PortfolioRiskRule) Name() string { return "portfolio_risk" }

func (PortfolioRiskRule) Evaluate(vctx *ValidationContext) RuleOutcome {
	rule, ok := findRule(vctx.Rules, domain.RuleMaxPortfolioExposure)
	if !ok || vctx.Portfolio.TotalCapital.IsZero() {
		return pass()
	}
	maxPct := ruleValueDecimal(rule, "max_portfolio_risk_percent", decimal.NewFromInt(100))
	riskCap := vctx.Portfolio.TotalCapital.Mul(maxPct).Div(decimal.NewFromInt(100))

	exposure := decimal.Zero
	for _, pos := range vctx.Positions {
		exposure = exposure.Add(pos.Size.Mul(pos.AverageEntry))
	}
	projected := exposure.Add(vctx.EstimatedRisk)
	if projected.GreaterThan(riskCap) {
		return reject("portfolio risk exceeded")
	}
	return pass()
}

func findRule(rules []domain.PortfolioRule, kind domain.RuleKind) (domain.PortfolioRule, bool) {
	for _, r := range rules {
		if r.Kind == kind && r.Active {
			return r, true
		}
	}
	return domain.PortfolioRule{}, false
}
