package core

import (
	"context"
	"time"

	"github.com/meridiantrade/core/internal/domain"
	"github.com/meridiantrade/core/internal/reconcile"
	"github.com/meridiantrade/core/internal/reliability"
	"github.com/meridiantrade/core/internal/strategy"
)

// healthJob aggregates bus/exchange/strategy health every 30s and
// publishes a system-health event so external collaborators (dashboard,
// Telegram bot) need not poll each component directly.
type healthJob struct{ e *Engine }

func (j healthJob) Name() string { return "health" }

func (j healthJob) Run() error {
	status := j.e.Status()
	j.e.bus.Publish("events", "events.system.health", map[string]interface{}{
		"status": status,
	}, false)
	return nil
}

// reconciliationJob runs the seven-step state reconciliation procedure
// every 5 minutes and logs a system entry summarizing the outcome.
type reconciliationJob struct{ e *Engine }

func (j reconciliationJob) Name() string { return "reconciliation" }

func (j reconciliationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report, err := j.e.reconciler.Run(ctx)
	if err != nil {
		return err
	}

	severity := domain.SeverityInfo
	if report.HasCriticalDiscrepancies() {
		severity = domain.SeverityCritical
	} else if report.CountBySeverity(reconcile.SeverityHigh) > 0 {
		severity = domain.SeverityWarning
	}

	if j.e.archiver != nil {
		j.e.archiver.ArchiveJSON(ctx, reliability.ReconciliationReportKey(report.SessionID, report.FinishedAt), report)
	}

	entry := domain.SystemLog{
		Severity:  severity,
		Component: "reconciliation",
		Message:   "reconciliation cycle completed",
		Context: map[string]interface{}{
			"discrepancies": len(report.Discrepancies),
			"status":        report.Status,
		},
	}
	if err := j.e.ledger.WriteSystemLog(ctx, entry); err != nil {
		return err
	}
	if j.e.archiver != nil && severity == domain.SeverityCritical {
		j.e.archiver.ArchiveJSON(ctx, reliability.SystemLogKey(report.SessionID, report.FinishedAt), entry)
	}
	return nil
}

// metricsJob emits operational metrics (active strategy count, bus health)
// every 60s. These never drive trading decisions, only observability.
type metricsJob struct{ e *Engine }

func (j metricsJob) Name() string { return "metrics" }

func (j metricsJob) Run() error {
	active := 0
	for _, h := range j.e.strategies.HealthCheckAll() {
		if h.State == strategy.WorkerRunning {
			active++
		}
	}
	j.e.log.Info().
		Int("active_strategies", active).
		Interface("bus_health", j.e.bus.HealthCheck()).
		Msg("operational metrics")
	return nil
}
