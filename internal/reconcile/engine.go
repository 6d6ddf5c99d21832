package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/meridiantrade/core/internal/domain"
)

const (
	defaultMaxPositionVariance = "0.001" // 0.1%, spec section 4.6's default
	balanceMediumThreshold     = "0.05"  // 5%
	balanceHighThreshold       = "0.20"  // 20%
)

// Engine runs the seven-step reconciliation procedure of spec section 4.6.
type Engine struct {
	store        Store
	exchangeView ExchangeView

	maxPositionVariance decimal.Decimal

	// escalate is called once per run if escalation policy decides a
	// CRITICAL finding should trip the emergency stop. nil means the
	// engine never escalates automatically, matching the spec's "policy
	// decision, not automatic" note.
	escalate EmergencyStopper

	log zerolog.Logger
}

// New builds a reconciliation Engine. escalate may be nil.
func New(store Store, exchangeView ExchangeView, maxPositionVariance decimal.Decimal, escalate EmergencyStopper, log zerolog.Logger) *Engine {
	if maxPositionVariance.IsZero() {
		maxPositionVariance, _ = decimal.NewFromString(defaultMaxPositionVariance)
	}
	return &Engine{
		store:               store,
		exchangeView:        exchangeView,
		maxPositionVariance: maxPositionVariance,
		escalate:            escalate,
		log:                 log.With().Str("component", "reconciliation_engine").Logger(),
	}
}

// Run executes one reconciliation pass end to end.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		SessionID: uuid.NewString(),
		StartedAt: time.Now(),
	}
	e.log.Info().Str("session_id", report.SessionID).Msg("reconciliation started")

	if err := e.reconcileBalances(ctx, report); err != nil {
		return nil, fmt.Errorf("reconcile: balances: %w", err)
	}
	if err := e.reconcilePositions(ctx, report); err != nil {
		return nil, fmt.Errorf("reconcile: positions: %w", err)
	}
	if err := e.reconcileOrders(ctx, report); err != nil {
		return nil, fmt.Errorf("reconcile: orders: %w", err)
	}
	if err := e.reconcileStrategyState(ctx, report); err != nil {
		return nil, fmt.Errorf("reconcile: strategy state: %w", err)
	}

	e.autoCorrect(report)
	report.FinishedAt = time.Now()

	if err := e.persist(ctx, report); err != nil {
		return report, fmt.Errorf("reconcile: persist report: %w", err)
	}
	return report, nil
}

// reconcileBalances is step 2: compare each active portfolio's total
// capital against the exchange's balance in the portfolio's base currency.
func (e *Engine) reconcileBalances(ctx context.Context, report *Report) error {
	balances, err := e.exchangeView.GetAccountBalance(ctx)
	if err != nil {
		return err
	}
	portfolios, err := e.store.ActivePortfolios(ctx)
	if err != nil {
		return err
	}

	mediumPct, _ := decimal.NewFromString(balanceMediumThreshold)
	highPct, _ := decimal.NewFromString(balanceHighThreshold)

	for _, p := range portfolios {
		bal, ok := balances[p.BaseCurrency]
		if !ok {
			report.add(Discrepancy{
				Type:     DiscrepancyBalanceMismatch,
				Severity: SeverityHigh,
				Subject:  p.ID,
				Detail:   fmt.Sprintf("exchange reports no balance for %s", p.BaseCurrency),
			})
			continue
		}
		variance := relativeVariance(p.TotalCapital, bal.Total)
		switch {
		case variance.GreaterThan(highPct):
			report.add(Discrepancy{
				Type:     DiscrepancyBalanceMismatch,
				Severity: SeverityHigh,
				Subject:  p.ID,
				Detail:   fmt.Sprintf("ledger %s vs exchange %s %s (%.2f%% variance)", p.TotalCapital, bal.Total, p.BaseCurrency, variance.Mul(decimal.NewFromInt(100)).InexactFloat64()),
			})
		case variance.GreaterThan(mediumPct):
			report.add(Discrepancy{
				Type:     DiscrepancyBalanceMismatch,
				Severity: SeverityMedium,
				Subject:  p.ID,
				Detail:   fmt.Sprintf("ledger %s vs exchange %s %s (%.2f%% variance)", p.TotalCapital, bal.Total, p.BaseCurrency, variance.Mul(decimal.NewFromInt(100)).InexactFloat64()),
			})
		}
	}
	return nil
}

// reconcilePositions is step 3: every open Position must be backed by the
// expected base-asset balance on the exchange.
func (e *Engine) reconcilePositions(ctx context.Context, report *Report) error {
	balances, err := e.exchangeView.GetAccountBalance(ctx)
	if err != nil {
		return err
	}
	positions, err := e.store.OpenPositions(ctx)
	if err != nil {
		return err
	}

	for _, pos := range positions {
		base := baseAsset(pos.Symbol)
		bal, ok := balances[base]
		if !ok || bal.Total.IsZero() {
			report.add(Discrepancy{
				Type:     DiscrepancyMissingPosition,
				Severity: SeverityHigh,
				Subject:  pos.Symbol,
				Detail:   fmt.Sprintf("position of %s %s has no matching exchange balance", pos.Size, base),
			})
			continue
		}
		variance := relativeVariance(pos.Size, bal.Total)
		if variance.GreaterThan(e.maxPositionVariance) {
			report.add(Discrepancy{
				Type:     DiscrepancyPositionSizeMismatch,
				Severity: SeverityMedium,
				Subject:  pos.Symbol,
				Detail:   fmt.Sprintf("ledger size %s vs exchange balance %s %s", pos.Size, bal.Total, base),
			})
		}
	}
	return nil
}

// reconcileOrders is step 4: DB trades in pending/open must exist on the
// exchange, and exchange open orders must exist in the DB.
func (e *Engine) reconcileOrders(ctx context.Context, report *Report) error {
	exchangeOrders, err := e.exchangeView.GetOpenOrders(ctx, "")
	if err != nil {
		return err
	}
	trades, err := e.store.OpenOrPendingTrades(ctx)
	if err != nil {
		return err
	}

	byOrderID := make(map[string]bool, len(exchangeOrders))
	for _, o := range exchangeOrders {
		byOrderID[o.ExchangeOrderID] = true
	}
	byTradeID := make(map[string]bool, len(trades))
	for _, t := range trades {
		byTradeID[t.ExchangeOrderID] = true
		if !byOrderID[t.ExchangeOrderID] {
			report.add(Discrepancy{
				Type:     DiscrepancyMissingOrder,
				Severity: SeverityMedium,
				Subject:  t.ExchangeOrderID,
				Detail:   fmt.Sprintf("trade %s (%s) not found among exchange open orders", t.ID, t.Symbol),
			})
		}
	}
	for _, o := range exchangeOrders {
		if !byTradeID[o.ExchangeOrderID] {
			report.add(Discrepancy{
				Type:     DiscrepancyTradeRecordMissing,
				Severity: SeverityHigh,
				Subject:  o.ExchangeOrderID,
				Detail:   fmt.Sprintf("exchange order %s (%s) has no matching trade record", o.ExchangeOrderID, o.Symbol),
			})
		}
	}
	return nil
}

// reconcileStrategyState is step 5: every active strategy needs at least
// one recorded performance metric and non-nil parameters.
func (e *Engine) reconcileStrategyState(ctx context.Context, report *Report) error {
	strategies, err := e.store.ActiveStrategies(ctx)
	if err != nil {
		return err
	}
	for _, s := range strategies {
		count, err := e.store.PerformanceMetricCount(ctx, s.ID)
		if err != nil {
			return err
		}
		if count == 0 || s.Params == nil {
			report.add(Discrepancy{
				Type:     DiscrepancyStrategyStateIncomplete,
				Severity: SeverityLow,
				Subject:  s.ID,
				Detail:   "no recorded performance metrics or missing parameters",
			})
		}
	}
	return nil
}

// autoCorrect is step 6: LOW discrepancies are logged and marked corrected
// (the only remediation this build implements, per the Open Questions
// note that specific LOW corrections are left to the implementer); MEDIUM
// and above are logged at escalating levels and determine final status.
func (e *Engine) autoCorrect(report *Report) {
	highCount := 0
	for i := range report.Discrepancies {
		d := &report.Discrepancies[i]
		switch d.Severity {
		case SeverityLow:
			e.log.Info().Str("type", string(d.Type)).Str("subject", d.Subject).Str("detail", d.Detail).Msg("low-severity discrepancy auto-corrected (logged)")
			d.Corrected = true
		case SeverityMedium:
			e.log.Warn().Str("type", string(d.Type)).Str("subject", d.Subject).Str("detail", d.Detail).Msg("medium-severity discrepancy")
		case SeverityHigh:
			highCount++
			e.log.Error().Str("type", string(d.Type)).Str("subject", d.Subject).Str("detail", d.Detail).Msg("high-severity discrepancy")
		case SeverityCritical:
			e.log.Error().Str("type", string(d.Type)).Str("subject", d.Subject).Str("detail", d.Detail).Msg("critical discrepancy")
		}
	}

	if report.HasCriticalDiscrepancies() || highCount >= 1 {
		report.Status = "partial"
	} else {
		report.Status = "completed"
	}

	if report.HasCriticalDiscrepancies() && e.escalate != nil {
		e.escalate.SetEmergencyStop(true, fmt.Sprintf("reconciliation session %s found a critical discrepancy", report.SessionID))
	}
}

// persist is step 7: write the report summary to SystemLog.
func (e *Engine) persist(ctx context.Context, report *Report) error {
	severity := domain.SeverityInfo
	if report.Status == "partial" {
		severity = domain.SeverityWarning
	}
	if report.HasCriticalDiscrepancies() {
		severity = domain.SeverityCritical
	}

	return e.store.WriteSystemLog(ctx, domain.SystemLog{
		Severity:  severity,
		Component: "reconciliation_engine",
		Message:   fmt.Sprintf("reconciliation %s: %d discrepancies, status=%s", report.SessionID, len(report.Discrepancies), report.Status),
		Context: map[string]interface{}{
			"session_id":     report.SessionID,
			"low":            report.CountBySeverity(SeverityLow),
			"medium":         report.CountBySeverity(SeverityMedium),
			"high":           report.CountBySeverity(SeverityHigh),
			"critical":       report.CountBySeverity(SeverityCritical),
			"duration_ms":    report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
		},
		CreatedAt: report.FinishedAt,
	})
}

// relativeVariance returns |a-b| / b, or 0 when both are zero and infinite
// (represented here as a, clamped by callers' threshold comparisons) when
// only b is zero.
func relativeVariance(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		if a.IsZero() {
			return decimal.Zero
		}
		return a.Abs()
	}
	return a.Sub(b).Abs().Div(b)
}

// baseAsset extracts the base currency from a BASE/QUOTE symbol.
func baseAsset(symbol string) string {
	parts := strings.SplitN(symbol, "/", 2)
	return parts[0]
}
