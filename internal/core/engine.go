// Package core is the top-level lifecycle orchestrator (spec section 4.7):
// startup ordering, signal-handled graceful shutdown, background task
// scheduling and component health aggregation. It is grounded on the
// teacher's cmd/server/main.go dependency-injection-and-defer-ordered-
// shutdown idiom and internal/scheduler's cron wiring, generalized from a
// single-process web app to the trading pipeline's component graph.
package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meridiantrade/core/internal/bus"
	"github.com/meridiantrade/core/internal/capital"
	"github.com/meridiantrade/core/internal/config"
	"github.com/meridiantrade/core/internal/exchange"
	"github.com/meridiantrade/core/internal/reconcile"
	"github.com/meridiantrade/core/internal/reliability"
	"github.com/meridiantrade/core/internal/server"
	"github.com/meridiantrade/core/internal/storage"
	"github.com/meridiantrade/core/internal/strategy"
)

const (
	healthScheduleLine         = "@every 30s"
	reconciliationScheduleLine = "@every 5m"
	metricsScheduleLine        = "@every 60s"
)

// Engine wires the Message Bus, Exchange Connector, Capital Manager,
// Strategy Worker Manager, State Reconciliation Engine and the HTTP status
// surface together, and owns their startup/shutdown ordering.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger

	db         *storage.DB
	ledger     *storage.LedgerStore
	repo       *storage.Repository
	bus        *bus.Bus
	connector  *exchange.Connector
	capital    *capital.Service
	strategies *strategy.Manager
	reconciler *reconcile.Engine
	http       *server.Server
	archiver   *reliability.Archiver

	sched *scheduler
}

// New constructs every component in dependency order (storage, bus,
// exchange connector, capital manager, strategy manager, reconciliation
// engine, HTTP server). It already connects the exchange connector and
// subscribes the capital manager to the bus; the strategy manager, the
// background jobs and the HTTP server are started by Run, following the
// teacher's "wire everything, then start" main() shape.
func New(cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	e := &Engine{cfg: cfg, log: log.With().Str("component", "core_engine").Logger()}
	ctx := context.Background()

	db, err := storage.New(storage.Config{Path: cfg.DatabaseURL, Profile: storage.ProfileStandard, Name: "meridian"})
	if err != nil {
		return nil, fmt.Errorf("core: open database: %w", err)
	}
	e.db = db

	ledger, err := storage.NewLedgerStore(db)
	if err != nil {
		return nil, fmt.Errorf("core: open ledger store: %w", err)
	}
	e.ledger = ledger

	repo, err := storage.NewRepository(db, ledger)
	if err != nil {
		return nil, fmt.Errorf("core: open repository: %w", err)
	}
	e.repo = repo

	e.bus = bus.New(log)
	if err := e.bus.LoadSnapshot(e.dlxSnapshotPath()); err != nil {
		log.Warn().Err(err).Msg("failed to restore dead-letter snapshot, continuing with an empty queue")
	}

	// Connecting the exchange and hydrating the capital ledger from storage
	// are independent reads; run them concurrently via errgroup rather than
	// serializing two round-trips that don't depend on each other.
	e.connector = exchange.New("binance", log)
	var capitalLedger *capital.Ledger
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.connector.Connect(exchange.ConnectConfig{
			APIKey:    cfg.Binance.APIKey,
			APISecret: cfg.Binance.APISecret,
			Sandbox:   cfg.Binance.Testnet,
		}); err != nil {
			return fmt.Errorf("core: connect exchange: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		hydrated, err := e.hydrateCapitalLedger(gctx)
		if err != nil {
			return err
		}
		capitalLedger = hydrated
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.capital = capital.NewService(capitalLedger, e.bus, e.priceLookup, log)
	if err := e.capital.Start(ctx); err != nil {
		return nil, fmt.Errorf("core: start capital manager: %w", err)
	}

	e.strategies = strategy.NewManager(500, log)

	e.reconciler = reconcile.New(repo, reconcileExchangeView{e.connector}, decimal.Zero, e.capital, log)

	if cfg.Archive.Enabled() {
		archiver, err := reliability.New(ctx, reliability.Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("core: build archiver: %w", err)
		}
		e.archiver = archiver
	}

	e.sched = newScheduler(log)
	e.http = server.New(server.Config{Port: cfg.Port, Log: log, Status: e, DevMode: !cfg.IsProduction()})

	return e, nil
}

// hydrateCapitalLedger implements spec section 4.5's startup sequence:
// load the active portfolio (single-portfolio deployments only, per spec
// section 9's Open Question on multi-portfolio support), its rules and any
// positions still open from a previous run.
func (e *Engine) hydrateCapitalLedger(ctx context.Context) (*capital.Ledger, error) {
	portfolios, err := e.repo.ActivePortfolios(ctx)
	if err != nil {
		return nil, fmt.Errorf("core: load active portfolios: %w", err)
	}
	if len(portfolios) == 0 {
		return nil, fmt.Errorf("core: no active portfolio configured")
	}
	portfolio := portfolios[0]

	rules, err := e.repo.PortfolioRules(ctx, portfolio.ID)
	if err != nil {
		return nil, fmt.Errorf("core: load portfolio rules: %w", err)
	}
	positions, err := e.repo.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("core: load open positions: %w", err)
	}
	return capital.NewLedger(portfolio, rules, positions, decimal.Zero), nil
}

// priceLookup is the capital.PriceLookup backing the Capital Manager's
// stop-loss/take-profit sizing: the most recent 1-minute close from the
// Exchange Connector's cache-or-REST read path.
func (e *Engine) priceLookup(ctx context.Context, symbol string) (decimal.Decimal, error) {
	bars, err := e.connector.GetMarketData(ctx, symbol, "1m", 1)
	if err != nil {
		return decimal.Zero, fmt.Errorf("core: price lookup %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return decimal.Zero, fmt.Errorf("core: price lookup %s: no bars", symbol)
	}
	return bars[len(bars)-1].Close, nil
}

// dlxSnapshotPath returns where the bus persists its dead-letter ring
// buffer across restarts, derived from the configured database path with
// any sqlite DSN query parameters stripped.
func (e *Engine) dlxSnapshotPath() string {
	path := strings.TrimPrefix(e.cfg.DatabaseURL, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path + ".dlx.msgpack"
}

// reconcileExchangeView adapts *exchange.Connector to reconcile.ExchangeView
// (a read-only subset: it never places or cancels orders).
type reconcileExchangeView struct {
	c *exchange.Connector
}

func (v reconcileExchangeView) GetAccountBalance(ctx context.Context) (map[string]exchange.Balance, error) {
	return v.c.GetAccountBalance(ctx)
}

func (v reconcileExchangeView) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderResponse, error) {
	return v.c.GetOpenOrders(ctx, symbol)
}
