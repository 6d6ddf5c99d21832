package capital

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridiantrade/core/internal/domain"
)

// Ledger is the authoritative in-memory portfolio state: capital, open
// positions, active rules and the day's realized P&L. It lives only inside
// the Capital Manager process, per spec section 4.5 — other components see
// it only through bus events.
type Ledger struct {
	mu sync.RWMutex

	portfolio domain.Portfolio
	rules     []domain.PortfolioRule
	positions map[string]domain.Position // keyed by symbol

	dailyRealizedPnL decimal.Decimal
	dayStart         time.Time

	blockedSymbols map[string]bool
	circuitTripped bool
	emergencyStop  bool
	emergencyRsn   string
}

// NewLedger builds a ledger for portfolio with its active rules and
// previously open positions, matching the startup sequence of spec
// section 4.5 (steps 1-4 run by the caller before this constructor).
func NewLedger(portfolio domain.Portfolio, rules []domain.PortfolioRule, positions []domain.Position, dailyRealizedPnL decimal.Decimal) *Ledger {
	posMap := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		posMap[p.Symbol] = p
	}
	blocked := map[string]bool{}
	for _, r := range rules {
		if r.Kind == domain.RuleBlacklistedSymbols && r.Active {
			if syms, ok := r.Value["symbols"].([]interface{}); ok {
				for _, s := range syms {
					if str, ok := s.(string); ok {
						blocked[str] = true
					}
				}
			}
		}
	}
	return &Ledger{
		portfolio:        portfolio,
		rules:            rules,
		positions:        posMap,
		dailyRealizedPnL: dailyRealizedPnL,
		dayStart:         middayUTC(time.Now().UTC()),
		blockedSymbols:   blocked,
	}
}

func middayUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// rolloverIfNewDay resets the realized-P&L accumulator at UTC midnight.
func (l *Ledger) rolloverIfNewDay() {
	today := middayUTC(time.Now().UTC())
	if today.After(l.dayStart) {
		l.dailyRealizedPnL = decimal.Zero
		l.dayStart = today
	}
}

// BuildContext snapshots ledger state for one proposal's validation pass.
func (l *Ledger) BuildContext(p Proposal, marketPrice decimal.Decimal, defaultStopLossPercent decimal.Decimal) *ValidationContext {
	l.mu.Lock()
	l.rolloverIfNewDay()
	positions := make(map[string]domain.Position, len(l.positions))
	for k, v := range l.positions {
		positions[k] = v
	}
	blocked := make(map[string]bool, len(l.blockedSymbols))
	for k, v := range l.blockedSymbols {
		blocked[k] = v
	}
	rules := append([]domain.PortfolioRule(nil), l.rules...)
	portfolio := l.portfolio
	dailyPnL := l.dailyRealizedPnL
	emergencyStop := l.emergencyStop
	circuitTripped := l.circuitTripped
	l.mu.Unlock()

	stopLossPrice := p.StopLossPrice
	if stopLossPrice.IsZero() {
		if p.Side == domain.SideBuy {
			stopLossPrice = marketPrice.Mul(decimal.NewFromInt(1).Sub(defaultStopLossPercent.Div(decimal.NewFromInt(100))))
		} else {
			stopLossPrice = marketPrice.Mul(decimal.NewFromInt(1).Add(defaultStopLossPercent.Div(decimal.NewFromInt(100))))
		}
	}

	// Quantity is not known yet here (it depends on the caller's sizing
	// config); seed notional/risk per unit and let the caller finalize both
	// by multiplying in the approved/requested quantity once it is known.
	notional := marketPrice
	estimatedRisk := marketPrice.Sub(stopLossPrice).Abs()

	return &ValidationContext{
		Proposal:         p,
		Portfolio:        portfolio,
		Rules:            rules,
		Positions:        positions,
		EmergencyStop:    emergencyStop,
		CircuitTripped:   circuitTripped,
		BlockedSymbols:   blocked,
		DailyRealizedPnL: dailyPnL,
		MarketPrice:      marketPrice,
		Notional:         notional,
		EstimatedRisk:    estimatedRisk,
		ApprovedQuantity: decimal.Zero,
	}
}

// ApplyTradeExecuted folds a fill into the position map and realized P&L,
// per spec section 4.5's trade-executed handler.
func (l *Ledger) ApplyTradeExecuted(evt TradeExecuted) (tripped bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverIfNewDay()

	if evt.Status != "filled" && evt.Status != "partial" {
		return false
	}

	pos, exists := l.positions[evt.Symbol]
	if !exists {
		pos = domain.Position{
			StrategyID: evt.StrategyID,
			Symbol:     evt.Symbol,
			Side:       "long",
			Open:       true,
			OpenedAt:   evt.Timestamp,
		}
	}

	switch evt.Side {
	case domain.SideBuy:
		totalCost := pos.AverageEntry.Mul(pos.Size).Add(evt.AveragePrice.Mul(evt.FilledQuantity))
		pos.Size = pos.Size.Add(evt.FilledQuantity)
		if !pos.Size.IsZero() {
			pos.AverageEntry = totalCost.Div(pos.Size)
		}
		l.portfolio.AvailableCapital = l.portfolio.AvailableCapital.Sub(evt.AveragePrice.Mul(evt.FilledQuantity)).Sub(evt.Fees)
	case domain.SideSell:
		realized := evt.AveragePrice.Sub(pos.AverageEntry).Mul(evt.FilledQuantity).Sub(evt.Fees)
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		l.dailyRealizedPnL = l.dailyRealizedPnL.Add(realized)
		pos.Size = pos.Size.Sub(evt.FilledQuantity)
		l.portfolio.AvailableCapital = l.portfolio.AvailableCapital.Add(evt.AveragePrice.Mul(evt.FilledQuantity)).Sub(evt.Fees)
		if pos.Size.LessThanOrEqual(decimal.Zero) {
			pos.Open = false
			now := evt.Timestamp
			pos.ClosedAt = &now
		}
	}
	pos.TotalFees = pos.TotalFees.Add(evt.Fees)

	if pos.Open {
		l.positions[evt.Symbol] = pos
	} else {
		delete(l.positions, evt.Symbol)
	}

	if rule, ok := findRule(l.rules, domain.RuleMaxDailyLossPercent); ok && l.dailyRealizedPnL.IsNegative() {
		maxPct := ruleValueDecimal(rule, "max_daily_loss_percent", decimal.NewFromInt(100))
		lossCap := l.portfolio.TotalCapital.Mul(maxPct).Div(decimal.NewFromInt(100))
		if l.dailyRealizedPnL.Neg().GreaterThan(lossCap) {
			l.circuitTripped = true
			return true
		}
	}
	return false
}

// SetEmergencyStop sets or clears the one-way latch; callers decide policy
// for clearing it (the spec calls clearing a manual reset, not automatic).
func (l *Ledger) SetEmergencyStop(active bool, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emergencyStop = active
	l.emergencyRsn = reason
}

// EmergencyStopReason returns the latch's last recorded reason.
func (l *Ledger) EmergencyStopReason() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.emergencyRsn
}

// ResetCircuitBreaker clears a tripped breaker (operator action).
func (l *Ledger) ResetCircuitBreaker() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.circuitTripped = false
}

// Position returns the current open position for symbol, if any.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	return p, ok
}

// Snapshot returns a defensive copy of portfolio state for status reporting.
func (l *Ledger) Snapshot() (domain.Portfolio, map[string]domain.Position, decimal.Decimal) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	positions := make(map[string]domain.Position, len(l.positions))
	for k, v := range l.positions {
		positions[k] = v
	}
	return l.portfolio, positions, l.dailyRealizedPnL
}

func classifyRisk(positionSizePercent decimal.Decimal) RiskLevel {
	switch {
	case positionSizePercent.LessThanOrEqual(decimal.NewFromInt(2)):
		return RiskLow
	case positionSizePercent.LessThanOrEqual(decimal.NewFromInt(5)):
		return RiskMedium
	case positionSizePercent.LessThanOrEqual(decimal.NewFromInt(7)):
		return RiskHigh
	default:
		return RiskExtreme
	}
}

