package strategy

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// OHLCVFrame is a column-oriented window of market data: each field is a
// parallel slice indexed by bar position, per the REDESIGN FLAGS' direction
// to replace a general dataframe dependency with a typed struct tailored to
// OHLCV data. Indicators are stored the same way so a strategy can read
// `frame.Indicator("sma_20")[i]` without recomputing history on every bar.
type OHLCVFrame struct {
	Symbol    string
	Timeframe string

	Open   []decimal.Decimal
	High   []decimal.Decimal
	Low    []decimal.Decimal
	Close  []decimal.Decimal
	Volume []decimal.Decimal

	indicators map[string][]decimal.Decimal
	maxLen     int
}

// NewOHLCVFrame builds an empty frame that retains at most maxLen bars,
// evicting from the front once the cap is exceeded (a strategy only ever
// needs a bounded lookback window, not the full history).
func NewOHLCVFrame(symbol, timeframe string, maxLen int) *OHLCVFrame {
	if maxLen <= 0 {
		maxLen = 500
	}
	return &OHLCVFrame{
		Symbol:     symbol,
		Timeframe:  timeframe,
		indicators: make(map[string][]decimal.Decimal),
		maxLen:     maxLen,
	}
}

// Push appends one bar, evicting the oldest bar (and aligned indicator
// values) if the frame is at capacity.
func (f *OHLCVFrame) Push(bar Bar) {
	f.Open = append(f.Open, bar.Open)
	f.High = append(f.High, bar.High)
	f.Low = append(f.Low, bar.Low)
	f.Close = append(f.Close, bar.Close)
	f.Volume = append(f.Volume, bar.Volume)

	if len(f.Close) > f.maxLen {
		f.Open = f.Open[1:]
		f.High = f.High[1:]
		f.Low = f.Low[1:]
		f.Close = f.Close[1:]
		f.Volume = f.Volume[1:]
		for name := range f.indicators {
			if len(f.indicators[name]) > 0 {
				f.indicators[name] = f.indicators[name][1:]
			}
		}
	}
}

// Len returns the number of bars currently held.
func (f *OHLCVFrame) Len() int {
	return len(f.Close)
}

// LastClose returns the most recent close, or a zero decimal if the frame
// is empty.
func (f *OHLCVFrame) LastClose() decimal.Decimal {
	if len(f.Close) == 0 {
		return decimal.Zero
	}
	return f.Close[len(f.Close)-1]
}

// SetIndicator overwrites the full indicator column by name.
func (f *OHLCVFrame) SetIndicator(name string, values []decimal.Decimal) {
	f.indicators[name] = values
}

// Indicator returns an indicator column by name, or nil if never computed.
func (f *OHLCVFrame) Indicator(name string) []decimal.Decimal {
	return f.indicators[name]
}

// closesAsFloat64 converts the close column to the float64 slices
// go-talib's indicator functions operate on.
func (f *OHLCVFrame) closesAsFloat64() []float64 {
	out := make([]float64, len(f.Close))
	for i, c := range f.Close {
		out[i], _ = c.Float64()
	}
	return out
}

// SMA computes a simple moving average over the last `period` closes via
// go-talib, truncated to 8 fraction digits. It returns the zero decimal and
// false if fewer than `period` bars are available.
func (f *OHLCVFrame) SMA(period int) (decimal.Decimal, bool) {
	n := len(f.Close)
	if period <= 0 || n < period {
		return decimal.Zero, false
	}
	series := talib.Sma(f.closesAsFloat64(), period)
	last := series[len(series)-1]
	if math.IsNaN(last) {
		return decimal.Zero, false
	}
	return roundTo8(decimal.NewFromFloat(last)), true
}

// SMASeries recomputes the full period-length SMA column via go-talib,
// suitable for PopulateIndicators' one-shot warmup pass. Positions with
// fewer than `period` bars of history (go-talib's NaN warmup) are left as
// the zero decimal, matching the prior hand-rolled behavior.
func (f *OHLCVFrame) SMASeries(period int) []decimal.Decimal {
	n := len(f.Close)
	out := make([]decimal.Decimal, n)
	if period <= 0 || n == 0 {
		return out
	}
	series := talib.Sma(f.closesAsFloat64(), period)
	for i, v := range series {
		if !math.IsNaN(v) {
			out[i] = roundTo8(decimal.NewFromFloat(v))
		}
	}
	return out
}
