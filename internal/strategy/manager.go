package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// entry pairs a worker with the supervisor bookkeeping needed to restart it
// after an unexpected crash.
type entry struct {
	worker *Worker
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager supervises one Worker per configured Strategy: starting,
// stopping, restarting on crash with backoff, and aggregating health —
// generalized from the teacher's job-registration/supervision idiom
// (worker pool + periodic health sampling) into a long-lived per-strategy
// goroutine model instead of a batch-job pool.
type Manager struct {
	mu       sync.RWMutex
	log      zerolog.Logger
	workers  map[string]*entry
	frameLen int
}

// NewManager builds an empty supervisor. frameLen bounds each worker's
// OHLCVFrame lookback window.
func NewManager(frameLen int, log zerolog.Logger) *Manager {
	return &Manager{
		log:      log.With().Str("component", "strategy_manager").Logger(),
		workers:  make(map[string]*entry),
		frameLen: frameLen,
	}
}

// Add registers strat with the supervisor but does not start it.
func (m *Manager) Add(strat Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.workers[strat.ID()]; exists {
		return fmt.Errorf("strategy manager: strategy %s already registered", strat.ID())
	}
	w := NewWorker(strat, m.frameLen, m.log)
	m.workers[strat.ID()] = &entry{worker: w}
	return nil
}

// Remove stops (if running) and deregisters a strategy.
func (m *Manager) Remove(strategyID string) error {
	m.mu.Lock()
	e, ok := m.workers[strategyID]
	if ok {
		delete(m.workers, strategyID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("strategy manager: unknown strategy %s", strategyID)
	}
	if e.cancel != nil {
		e.worker.Stop()
	}
	return nil
}

// Start launches one strategy's worker under a supervising goroutine that
// restarts it with exponential backoff on crash, up to its restart budget.
func (m *Manager) Start(ctx context.Context, strategyID string) error {
	m.mu.Lock()
	e, ok := m.workers[strategyID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("strategy manager: unknown strategy %s", strategyID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.ctx = runCtx
	e.cancel = cancel
	m.mu.Unlock()

	e.worker.Start(runCtx)
	go m.superviseRestarts(runCtx, e)
	m.log.Info().Str("strategy_id", strategyID).Msg("strategy worker started")
	return nil
}

// superviseRestarts watches for a crashed state and relaunches the worker
// after an exponential backoff, forgiving the restart budget once the
// worker has run healthily for a sustained period.
func (m *Manager) superviseRestarts(ctx context.Context, e *entry) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	healthySince := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := e.worker.State()
			if state == WorkerRunning {
				if time.Since(healthySince) > 5*time.Minute {
					e.worker.resetBackoff()
				}
				continue
			}
			if state != WorkerCrashed {
				healthySince = time.Now()
				continue
			}

			delay, ok := e.worker.nextBackoff()
			if !ok {
				m.log.Error().Str("strategy_id", e.worker.strat.ID()).Msg("strategy worker exhausted restart budget, giving up")
				return
			}
			m.log.Warn().
				Str("strategy_id", e.worker.strat.ID()).
				Dur("backoff", delay).
				Msg("restarting crashed strategy worker")

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			e.worker.Start(ctx)
			healthySince = time.Now()
		}
	}
}

// Stop halts one strategy's worker.
func (m *Manager) Stop(strategyID string) error {
	m.mu.RLock()
	e, ok := m.workers[strategyID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("strategy manager: unknown strategy %s", strategyID)
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.worker.Stop()
	return nil
}

// Restart stops and restarts one strategy's worker, resetting its restart
// budget.
func (m *Manager) Restart(ctx context.Context, strategyID string) error {
	if err := m.Stop(strategyID); err != nil {
		return err
	}
	m.mu.RLock()
	e, ok := m.workers[strategyID]
	m.mu.RUnlock()
	if ok {
		e.worker.resetBackoff()
	}
	return m.Start(ctx, strategyID)
}

// StartAll starts every registered strategy.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		if err := m.Start(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StopAll stops every registered strategy.
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Stop(id)
	}
}

// Feed routes a bar to every worker whose strategy trades symbol.
func (m *Manager) Feed(symbol string, bar Bar) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.workers {
		if e.worker.strat.Symbol() == symbol {
			e.worker.Feed(bar)
		}
	}
}

// Proposals returns the worker hosting strategyID's proposal channel, or
// nil if the strategy is not registered.
func (m *Manager) Proposals(strategyID string) <-chan Proposal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.workers[strategyID]
	if !ok {
		return nil
	}
	return e.worker.Proposals()
}

// HealthCheckAll reports every registered worker's health.
func (m *Manager) HealthCheckAll() []Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Health, 0, len(m.workers))
	for _, e := range m.workers {
		out = append(out, e.worker.Health())
	}
	return out
}
