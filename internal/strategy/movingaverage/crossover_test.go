package movingaverage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiantrade/core/internal/strategy"
)

func decimalOf(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func pushBars(frame *strategy.OHLCVFrame, c *Crossover, closes []float64) strategy.Proposal {
	var last strategy.Proposal
	for _, v := range closes {
		frame.Push(strategy.Bar{Close: decimalOf(v)})
		c.PopulateIndicators(frame)
		last = c.OnData(frame)
	}
	return last
}

func TestCrossover_HoldsDuringWarmup(t *testing.T) {
	c := New("s1", "BTC-USD", "1m", 2, 4)
	frame := strategy.NewOHLCVFrame("BTC-USD", "1m", 100)

	p := pushBars(frame, c, []float64{10, 10, 10})
	assert.Equal(t, strategy.ActionHold, p.Action)
}

func TestCrossover_GoldenCrossEmitsBuy(t *testing.T) {
	c := New("s1", "BTC-USD", "1m", 2, 4)
	frame := strategy.NewOHLCVFrame("BTC-USD", "1m", 100)

	// Flat then a strong upward move should push the fast SMA above the slow one.
	closes := []float64{10, 10, 10, 10, 12, 20, 30}
	var last strategy.Proposal
	sawBuy := false
	for _, v := range closes {
		frame.Push(strategy.Bar{Close: decimalOf(v)})
		c.PopulateIndicators(frame)
		last = c.OnData(frame)
		if last.Action == strategy.ActionBuy {
			sawBuy = true
		}
	}
	require.True(t, sawBuy, "expected a golden-cross buy signal across the upward move")
}

func TestCrossover_RequiredSubscriptionsAndWarmup(t *testing.T) {
	c := New("s1", "BTC-USD", "5m", 10, 50)
	subs := c.RequiredSubscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, "BTC-USD", subs[0].Symbol)
	assert.Equal(t, "5m", subs[0].Timeframe)
	assert.Equal(t, 50, c.WarmupBars())
}
