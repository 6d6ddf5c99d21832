// Package movingaverage is the illustrative strategy shipped alongside the
// engine: a classic golden-cross/death-cross signal over a fast and slow
// simple moving average.
package movingaverage

import (
	"fmt"
	"time"

	"github.com/meridiantrade/core/internal/strategy"
)

// Crossover proposes a buy when the fast SMA crosses above the slow SMA
// (golden cross) and a sell on the reverse (death cross). It holds
// otherwise, including through the warmup period.
type Crossover struct {
	id         string
	symbol     string
	timeframe  string
	fastPeriod int
	slowPeriod int

	havePrev   bool
	prevFast   bool // true if fast was above slow on the previous bar
}

// New builds a Crossover strategy instance bound to symbol/timeframe with
// the given fast/slow SMA periods (e.g. 10/50).
func New(id, symbol, timeframe string, fastPeriod, slowPeriod int) *Crossover {
	return &Crossover{
		id:         id,
		symbol:     symbol,
		timeframe:  timeframe,
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
	}
}

func (c *Crossover) ID() string     { return c.id }
func (c *Crossover) Symbol() string { return c.symbol }

func (c *Crossover) RequiredSubscriptions() []strategy.Subscription {
	return []strategy.Subscription{{Symbol: c.symbol, Timeframe: c.timeframe}}
}

func (c *Crossover) WarmupBars() int {
	return c.slowPeriod
}

// PopulateIndicators recomputes both SMA columns over the whole frame. This
// is cheap enough at the frame sizes the worker keeps (a few hundred bars)
// to simply rerun on every bar rather than maintain incremental state.
func (c *Crossover) PopulateIndicators(frame *strategy.OHLCVFrame) {
	frame.SetIndicator(c.fastKey(), frame.SMASeries(c.fastPeriod))
	frame.SetIndicator(c.slowKey(), frame.SMASeries(c.slowPeriod))
}

func (c *Crossover) fastKey() string { return fmt.Sprintf("sma_%d", c.fastPeriod) }
func (c *Crossover) slowKey() string { return fmt.Sprintf("sma_%d", c.slowPeriod) }

// OnData compares the latest fast/slow indicator values with the fast-above-
// slow relationship remembered from its previous call, and emits Buy/Sell
// only on the bar a crossover actually occurs, Hold otherwise.
func (c *Crossover) OnData(frame *strategy.OHLCVFrame) strategy.Proposal {
	hold := strategy.Proposal{
		StrategyID:  c.id,
		Symbol:      c.symbol,
		Action:      strategy.ActionHold,
		Confidence:  0,
		Reason:      "insufficient history",
		SuggestedAt: time.Now().UTC(),
	}

	if frame.Len() < c.slowPeriod {
		return hold
	}

	fast := frame.Indicator(c.fastKey())
	slow := frame.Indicator(c.slowKey())
	n := len(fast)
	if n == 0 || len(slow) != n || fast[n-1].IsZero() || slow[n-1].IsZero() {
		return hold
	}

	fastAboveNow := fast[n-1].GreaterThan(slow[n-1])

	if !c.havePrev {
		c.havePrev = true
		c.prevFast = fastAboveNow
		hold.Reason = "establishing baseline"
		return hold
	}

	crossedUp := fastAboveNow && !c.prevFast
	crossedDown := !fastAboveNow && c.prevFast
	c.prevFast = fastAboveNow

	switch {
	case crossedUp:
		return strategy.Proposal{
			StrategyID:  c.id,
			Symbol:      c.symbol,
			Action:      strategy.ActionBuy,
			Confidence:  0.6,
			Reason:      fmt.Sprintf("golden cross: sma%d above sma%d", c.fastPeriod, c.slowPeriod),
			SuggestedAt: time.Now().UTC(),
		}
	case crossedDown:
		return strategy.Proposal{
			StrategyID:  c.id,
			Symbol:      c.symbol,
			Action:      strategy.ActionSell,
			Confidence:  0.6,
			Reason:      fmt.Sprintf("death cross: sma%d below sma%d", c.fastPeriod, c.slowPeriod),
			SuggestedAt: time.Now().UTC(),
		}
	default:
		hold.Reason = "no crossover"
		return hold
	}
}
