package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridiantrade/core/internal/reconcile"
)

// Run starts every component in dependency order, registers the three
// background jobs (spec section 4.7: health every 30s, reconciliation
// every 5 minutes, metrics every 60s), then blocks until SIGINT/SIGTERM —
// grounded on the teacher's cmd/server/main.go signal-handling shape.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.strategies.StartAll(ctx); err != nil {
		return fmt.Errorf("core: start strategy manager: %w", err)
	}

	if err := e.sched.addJob(healthScheduleLine, healthJob{e: e}); err != nil {
		return fmt.Errorf("core: register health job: %w", err)
	}
	if err := e.sched.addJob(reconciliationScheduleLine, reconciliationJob{e: e}); err != nil {
		return fmt.Errorf("core: register reconciliation job: %w", err)
	}
	if err := e.sched.addJob(metricsScheduleLine, metricsJob{e: e}); err != nil {
		return fmt.Errorf("core: register metrics job: %w", err)
	}
	e.sched.start()

	serverErr := make(chan error, 1)
	go func() {
		if err := e.http.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	e.log.Info().Msg("core engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		e.log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			e.log.Error().Err(err).Msg("http server failed, shutting down")
		}
	case <-ctx.Done():
		e.log.Info().Msg("context canceled, shutting down")
	}

	return e.Shutdown()
}

// Shutdown tears every component down in the reverse order Run started
// them. A single 10-second timeout bounds the HTTP server's shutdown; the
// remaining steps run without a deadline.
func (e *Engine) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error

	if err := e.http.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	e.sched.stop()
	e.strategies.StopAll()
	if err := e.connector.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("exchange connector: %w", err))
	}
	if err := e.bus.Close(e.dlxSnapshotPath()); err != nil {
		errs = append(errs, fmt.Errorf("message bus: %w", err))
	}
	if err := e.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	e.log.Info().Msg("core engine stopped")
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ReconcileOnce runs a single reconciliation pass without starting the
// strategy supervisor, scheduler or HTTP server — backing the `reconcile`
// CLI subcommand (spec section 8).
func (e *Engine) ReconcileOnce(ctx context.Context) (*reconcile.Report, error) {
	return e.reconciler.Run(ctx)
}

// Status implements server.StatusProvider: an aggregate read of every
// component's own health check, used by GET /api/system/status.
func (e *Engine) Status() map[string]interface{} {
	return map[string]interface{}{
		"bus":       e.bus.HealthCheck(),
		"exchange":  e.connector.HealthCheck(),
		"strategies": e.strategies.HealthCheckAll(),
	}
}
