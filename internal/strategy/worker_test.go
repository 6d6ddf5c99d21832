package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedStrategy always recommends the configured action once warm.
type fixedStrategy struct {
	id     string
	symbol string
	warmup int
	action Action
}

func (f *fixedStrategy) ID() string                             { return f.id }
func (f *fixedStrategy) Symbol() string                         { return f.symbol }
func (f *fixedStrategy) RequiredSubscriptions() []Subscription  { return nil }
func (f *fixedStrategy) PopulateIndicators(frame *OHLCVFrame)    {}
func (f *fixedStrategy) WarmupBars() int                        { return f.warmup }
func (f *fixedStrategy) OnData(frame *OHLCVFrame) Proposal {
	return Proposal{StrategyID: f.id, Symbol: f.symbol, Action: f.action, SuggestedAt: time.Now()}
}

func TestWorker_FeedBeforeStartIsDropped(t *testing.T) {
	w := NewWorker(&fixedStrategy{id: "s1", symbol: "BTC-USD", warmup: 1, action: ActionHold}, 10, zerolog.Nop())
	assert.False(t, w.Feed(Bar{}))
}

func TestWorker_StartFeedProposal(t *testing.T) {
	w := NewWorker(&fixedStrategy{id: "s1", symbol: "BTC-USD", warmup: 1, action: ActionBuy}, 10, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	require.Eventually(t, func() bool { return w.State() == WorkerRunning }, time.Second, 5*time.Millisecond)

	require.True(t, w.Feed(Bar{}))

	select {
	case p := <-w.Proposals():
		assert.Equal(t, ActionBuy, p.Action)
	case <-time.After(time.Second):
		t.Fatal("expected a proposal")
	}

	w.Stop()
	require.Eventually(t, func() bool { return w.State() == WorkerStopped }, time.Second, 5*time.Millisecond)
}

func TestWorker_HealthReportsState(t *testing.T) {
	w := NewWorker(&fixedStrategy{id: "s1", symbol: "BTC-USD", warmup: 1, action: ActionHold}, 10, zerolog.Nop())
	h := w.Health()
	assert.Equal(t, WorkerIdle, h.State)
	assert.Equal(t, "s1", h.StrategyID)
}
