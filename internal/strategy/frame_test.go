package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(close float64) Bar {
	return Bar{Close: decimal.NewFromFloat(close)}
}

func TestOHLCVFrame_PushAndEvict(t *testing.T) {
	f := NewOHLCVFrame("BTC-USD", "1m", 3)
	for _, c := range []float64{1, 2, 3, 4} {
		f.Push(bar(c))
	}
	require.Equal(t, 3, f.Len())
	assert.True(t, f.Close[0].Equal(decimal.NewFromFloat(2)))
	assert.True(t, f.LastClose().Equal(decimal.NewFromFloat(4)))
}

func TestOHLCVFrame_SMA(t *testing.T) {
	f := NewOHLCVFrame("BTC-USD", "1m", 10)
	_, ok := f.SMA(3)
	assert.False(t, ok, "SMA should be unavailable before enough bars")

	for _, c := range []float64{10, 20, 30} {
		f.Push(bar(c))
	}
	sma, ok := f.SMA(3)
	require.True(t, ok)
	assert.True(t, sma.Equal(decimal.NewFromFloat(20)))
}

func TestOHLCVFrame_SMASeries(t *testing.T) {
	f := NewOHLCVFrame("BTC-USD", "1m", 10)
	for _, c := range []float64{10, 20, 30, 40} {
		f.Push(bar(c))
	}
	series := f.SMASeries(2)
	require.Len(t, series, 4)
	assert.True(t, series[0].IsZero())
	assert.True(t, series[1].Equal(decimal.NewFromFloat(15)))
	assert.True(t, series[2].Equal(decimal.NewFromFloat(25)))
	assert.True(t, series[3].Equal(decimal.NewFromFloat(35)))
}

func TestOHLCVFrame_IndicatorStorage(t *testing.T) {
	f := NewOHLCVFrame("BTC-USD", "1m", 10)
	assert.Nil(t, f.Indicator("sma_5"))
	f.SetIndicator("sma_5", []decimal.Decimal{decimal.NewFromInt(1)})
	assert.Len(t, f.Indicator("sma_5"), 1)
}
