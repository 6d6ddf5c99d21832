// Command server is the entry point for the trading platform's core
// pipeline: message bus, exchange connector, capital manager, strategy
// supervisor and state reconciliation engine. It exposes three
// subcommands (spec section 8): start, reconcile, validate-config.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/meridiantrade/core/internal/config"
	"github.com/meridiantrade/core/internal/core"
	"github.com/meridiantrade/core/pkg/logger"
)

// Exit codes per spec section 8: 0 clean shutdown, 1 startup failure,
// 2 invalid config, 3 reconciliation found CRITICAL discrepancies.
const (
	exitOK                = 0
	exitStartupFailure    = 1
	exitConfigInvalid     = 2
	exitReconcileCritical = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := "start"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Error().Err(err).Msg("failed to load configuration")
		return exitConfigInvalid
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: !cfg.IsProduction()})

	switch cmd {
	case "validate-config":
		log.Info().Msg("configuration valid")
		return exitOK
	case "reconcile":
		return runReconcileOnce(cfg, log)
	case "start":
		return runStart(cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q (want start|reconcile|validate-config)\n", cmd)
		return exitStartupFailure
	}
}

func runStart(cfg *config.Config, log zerolog.Logger) int {
	log.Info().Msg("starting core engine")

	engine, err := core.New(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to wire core engine")
		return exitStartupFailure
	}

	if err := engine.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("core engine exited with error")
		return exitStartupFailure
	}
	return exitOK
}

func runReconcileOnce(cfg *config.Config, log zerolog.Logger) int {
	engine, err := core.New(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to wire core engine for one-shot reconciliation")
		return exitStartupFailure
	}
	defer func() { _ = engine.Shutdown() }()

	report, err := engine.ReconcileOnce(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("reconciliation run failed")
		return exitStartupFailure
	}
	if report.HasCriticalDiscrepancies() {
		log.Error().Int("discrepancies", len(report.Discrepancies)).Msg("reconciliation found critical discrepancies")
		return exitReconcileCritical
	}
	log.Info().Int("discrepancies", len(report.Discrepancies)).Msg("reconciliation completed")
	return exitOK
}
