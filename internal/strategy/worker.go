package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// WorkerState is the lifecycle state of one strategy worker.
type WorkerState string

const (
	WorkerIdle     WorkerState = "idle"
	WorkerStarting WorkerState = "starting"
	WorkerRunning  WorkerState = "running"
	WorkerStopping WorkerState = "stopping"
	WorkerStopped  WorkerState = "stopped"
	WorkerCrashed  WorkerState = "crashed"
)

// ResourceUsage is a point-in-time sample taken alongside a worker's
// heartbeat. Because a worker is a goroutine rather than an OS process, the
// sample is of the whole host (gopsutil has no per-goroutine view); this is
// a known, documented approximation rather than true per-worker isolation.
type ResourceUsage struct {
	CPUPercent float64
	MemPercent float64
	SampledAt  time.Time
}

// Worker hosts exactly one Strategy, feeding it bars pushed by the exchange
// connector and emitting Proposals on the channel returned by Proposals();
// the worker does not publish them to the message bus itself.
// It is a supervised goroutine with its own restart/backoff state machine,
// per the REDESIGN FLAGS direction to drop the teacher's OS-process-per-job
// isolation in favor of in-process concurrency.
type Worker struct {
	mu    sync.RWMutex
	strat Strategy
	frame *OHLCVFrame
	log   zerolog.Logger

	state        WorkerState
	restarts     int
	maxRestarts  int
	backoff      time.Duration
	maxBackoff   time.Duration
	lastHeartbeat time.Time
	lastErr      error
	lastUsage    ResourceUsage

	proposals chan Proposal
	bars      chan Bar
	cancel    context.CancelFunc
}

// NewWorker builds a stopped worker around strat. frameSize bounds how many
// bars the worker's OHLCVFrame retains.
func NewWorker(strat Strategy, frameSize int, log zerolog.Logger) *Worker {
	l := log.With().Str("component", "strategy_worker").Str("strategy_id", strat.ID()).Logger()
	return &Worker{
		strat:       strat,
		frame:       NewOHLCVFrame(strat.Symbol(), "1m", frameSize),
		log:         l,
		state:       WorkerIdle,
		maxRestarts: 5,
		backoff:     time.Second,
		maxBackoff:  time.Minute,
		proposals:   make(chan Proposal, 64),
		bars:        make(chan Bar, 256),
	}
}

// Proposals exposes the channel strategy output is published on.
func (w *Worker) Proposals() <-chan Proposal {
	return w.proposals
}

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Feed delivers one bar to the worker's input queue, dropping it if the
// worker is not running (a stopped worker must not silently block a
// connector's dispatch goroutine).
func (w *Worker) Feed(bar Bar) bool {
	if w.State() != WorkerRunning {
		return false
	}
	select {
	case w.bars <- bar:
		return true
	default:
		w.log.Warn().Msg("worker input queue full, dropping bar")
		return false
	}
}

// Start launches the worker's run loop. It is idempotent: calling Start on
// an already-running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	if w.State() == WorkerRunning || w.State() == WorkerStarting {
		return
	}
	w.setState(WorkerStarting)

	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go w.runLoop(runCtx)
}

// Stop requests the worker loop exit. It returns without waiting for the
// loop; State reports WorkerStopped once the loop has exited.
func (w *Worker) Stop() {
	w.setState(WorkerStopping)
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (w *Worker) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.mu.Lock()
			w.lastErr = fmt.Errorf("strategy panic: %v", r)
			w.mu.Unlock()
			w.setState(WorkerCrashed)
			w.log.Error().Interface("panic", r).Msg("strategy worker crashed")
		}
	}()

	w.setState(WorkerRunning)
	w.log.Info().Msg("strategy worker started")
	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			w.setState(WorkerStopped)
			w.log.Info().Msg("strategy worker stopped")
			return

		case bar := <-w.bars:
			w.frame.Push(bar)
			if w.frame.Len() < w.strat.WarmupBars() {
				continue
			}
			w.strat.PopulateIndicators(w.frame)
			proposal := w.strat.OnData(w.frame)
			select {
			case w.proposals <- proposal:
			default:
				w.log.Warn().Msg("proposal channel full, dropping proposal")
			}

		case <-heartbeat.C:
			w.sampleResources()
		}
	}
}

// sampleResources records the host's current CPU/memory usage alongside
// this worker's heartbeat timestamp; Health reports the sample, and no
// resource caps are checked against it.
func (w *Worker) sampleResources() {
	usage := ResourceUsage{SampledAt: time.Now().UTC()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		usage.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		usage.MemPercent = vm.UsedPercent
	}

	w.mu.Lock()
	w.lastUsage = usage
	w.lastHeartbeat = usage.SampledAt
	w.mu.Unlock()
}

// Health reports the worker's state, last heartbeat and resource sample for
// the supervisor's health_check_all.
type Health struct {
	StrategyID    string        `json:"strategy_id"`
	State         WorkerState   `json:"state"`
	LastHeartbeat time.Time     `json:"last_heartbeat"`
	LastError     string        `json:"last_error,omitempty"`
	Usage         ResourceUsage `json:"resource_usage"`
	Restarts      int           `json:"restarts"`
}

func (w *Worker) Health() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h := Health{
		StrategyID:    w.strat.ID(),
		State:         w.state,
		LastHeartbeat: w.lastHeartbeat,
		Usage:         w.lastUsage,
		Restarts:      w.restarts,
	}
	if w.lastErr != nil {
		h.LastError = w.lastErr.Error()
	}
	return h
}

// nextBackoff advances and returns the exponential restart delay, capped at
// maxBackoff, and increments the restart counter. It reports false once
// maxRestarts has been exhausted.
func (w *Worker) nextBackoff() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.restarts >= w.maxRestarts {
		return 0, false
	}
	w.restarts++
	d := w.backoff
	w.backoff *= 2
	if w.backoff > w.maxBackoff {
		w.backoff = w.maxBackoff
	}
	return d, true
}

// resetBackoff is called after a sustained healthy run to forgive past
// crashes, matching the supervisor's "restart budget" semantics.
func (w *Worker) resetBackoff() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.restarts = 0
	w.backoff = time.Second
}
