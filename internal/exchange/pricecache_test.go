package exchange

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCache_GetMissThenHit(t *testing.T) {
	c := NewPriceCache(8, 50*time.Millisecond)

	_, ok := c.Get("BTC-USD", "1m", 10)
	assert.False(t, ok)

	bars := []OHLCV{{}}
	c.PutREST("BTC-USD", "1m", 10, bars)

	got, ok := c.Get("BTC-USD", "1m", 10)
	require.True(t, ok)
	assert.Len(t, got, 1)
}

func TestPriceCache_ExpiresAfterTTL(t *testing.T) {
	c := NewPriceCache(8, 10*time.Millisecond)
	c.PutREST("ETH-USD", "1m", 10, []OHLCV{{}})

	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("ETH-USD", "1m", 10)
	assert.False(t, ok)
}

func TestPriceCache_WebSocketOverridesRest(t *testing.T) {
	c := NewPriceCache(8, time.Second)

	restBars := []OHLCV{{Volume: decimal.NewFromInt(1)}}
	wsBars := []OHLCV{{Volume: decimal.NewFromInt(2)}}

	c.PutREST("BTC-USD", "1m", 1, restBars)
	c.PutWebSocket("BTC-USD", "1m", 1, wsBars)

	got, ok := c.Get("BTC-USD", "1m", 1)
	require.True(t, ok)
	assert.True(t, got[0].Volume.Equal(wsBars[0].Volume))

	// A stale REST refresh must not clobber the still-live WS value.
	staleRest := []OHLCV{{Volume: decimal.NewFromInt(3)}}
	c.PutREST("BTC-USD", "1m", 1, staleRest)

	got, ok = c.Get("BTC-USD", "1m", 1)
	require.True(t, ok)
	assert.True(t, got[0].Volume.Equal(wsBars[0].Volume))
}

func TestPriceCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewPriceCache(2, time.Second)

	c.PutREST("A", "1m", 1, []OHLCV{{}})
	c.PutREST("B", "1m", 1, []OHLCV{{}})
	c.Get("A", "1m", 1) // A is now most-recently-used
	c.PutREST("C", "1m", 1, []OHLCV{{}})

	_, ok := c.Get("B", "1m", 1)
	assert.False(t, ok, "B should have been evicted as least recently used")

	_, ok = c.Get("A", "1m", 1)
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.Capacity)
}
