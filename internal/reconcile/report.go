// Package reconcile implements the State Reconciliation Engine (spec
// section 4.6): periodic and on-demand comparison of the system's ledger
// against the exchange's authoritative view, with severity classification
// and a log-only auto-correction pass for LOW discrepancies.
//
// Grounded on the teacher's ReconciliationResult/ReconciliationService in
// satellites/reconciliation_service.go — same shape (a typed result struct,
// a threshold below which drift auto-corrects, zerolog at escalating
// levels by severity) generalized from a single-currency balance check
// into the multi-step balance/position/order/strategy procedure this spec
// requires.
package reconcile

import (
	"time"
)

// Severity is how urgently a Discrepancy needs operator attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DiscrepancyType enumerates the kinds of divergence the procedure detects.
type DiscrepancyType string

const (
	DiscrepancyMissingPosition      DiscrepancyType = "missing_position"
	DiscrepancyExtraPosition        DiscrepancyType = "extra_position"
	DiscrepancyPositionSizeMismatch DiscrepancyType = "position_size_mismatch"
	DiscrepancyMissingOrder         DiscrepancyType = "missing_order"
	DiscrepancyOrderStatusMismatch  DiscrepancyType = "order_status_mismatch"
	DiscrepancyBalanceMismatch      DiscrepancyType = "balance_mismatch"
	DiscrepancyTradeRecordMissing   DiscrepancyType = "trade_record_missing"

	// DiscrepancyStrategyStateIncomplete covers the strategy-state sanity
	// step; the spec's discrepancy-type table does not name one for it, so
	// this is an interpretive addition (recorded as an Open Question
	// decision) rather than a literal spec term.
	DiscrepancyStrategyStateIncomplete DiscrepancyType = "strategy_state_incomplete"
)

// Discrepancy is one divergence found during a reconciliation pass.
type Discrepancy struct {
	Type      DiscrepancyType
	Severity  Severity
	Subject   string // symbol, strategy id, or exchange order id this concerns
	Detail    string
	Corrected bool // true once the auto-correction pass has handled it
}

// Report is the full record of one reconciliation run.
type Report struct {
	SessionID     string
	StartedAt     time.Time
	FinishedAt    time.Time
	Discrepancies []Discrepancy
	Status        string // "completed" | "partial"
}

// CountBySeverity returns how many discrepancies carry the given severity.
func (r *Report) CountBySeverity(sev Severity) int {
	n := 0
	for _, d := range r.Discrepancies {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// HasCriticalDiscrepancies reports whether the run found any CRITICAL
// discrepancy; the CLI's `reconcile` subcommand exits 3 when this is true.
func (r *Report) HasCriticalDiscrepancies() bool {
	return r.CountBySeverity(SeverityCritical) > 0
}

func (r *Report) add(d Discrepancy) {
	r.Discrepancies = append(r.Discrepancies, d)
}
