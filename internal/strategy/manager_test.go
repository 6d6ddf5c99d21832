package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AddStartFeedStop(t *testing.T) {
	m := NewManager(50, zerolog.Nop())
	strat := &fixedStrategy{id: "s1", symbol: "BTC-USD", warmup: 1, action: ActionSell}
	require.NoError(t, m.Add(strat))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx, "s1"))

	proposals := m.Proposals("s1")
	require.NotNil(t, proposals)

	require.Eventually(t, func() bool {
		m.Feed("BTC-USD", Bar{})
		select {
		case p := <-proposals:
			return p.Action == ActionSell
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop("s1"))
}

func TestManager_DuplicateAddFails(t *testing.T) {
	m := NewManager(50, zerolog.Nop())
	strat := &fixedStrategy{id: "s1", symbol: "BTC-USD", warmup: 1, action: ActionHold}
	require.NoError(t, m.Add(strat))
	assert.Error(t, m.Add(strat))
}

func TestManager_UnknownStrategyOperationsFail(t *testing.T) {
	m := NewManager(50, zerolog.Nop())
	assert.Error(t, m.Start(context.Background(), "missing"))
	assert.Error(t, m.Stop("missing"))
	assert.Error(t, m.Remove("missing"))
}

func TestManager_HealthCheckAll(t *testing.T) {
	m := NewManager(50, zerolog.Nop())
	require.NoError(t, m.Add(&fixedStrategy{id: "s1", symbol: "BTC-USD", warmup: 1, action: ActionHold}))
	require.NoError(t, m.Add(&fixedStrategy{id: "s2", symbol: "ETH-USD", warmup: 1, action: ActionHold}))

	health := m.HealthCheckAll()
	assert.Len(t, health, 2)
}
