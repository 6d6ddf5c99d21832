// Package strategy defines the Strategy contract (spec section 4.3) and the
// worker/supervisor runtime that hosts configured strategy instances as
// goroutines rather than OS processes.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridiantrade/core/internal/exchange"
)

// Action is a strategy's trade recommendation for one evaluation pass.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Proposal is the sole output format a strategy produces. It carries no
// exchange interaction of its own — the Capital Manager decides whether and
// how to act on it, per spec section 4.3's "strategies never place orders
// directly" invariant.
type Proposal struct {
	StrategyID  string
	Symbol      string
	Action      Action
	Confidence  float64 // 0.0-1.0
	Reason      string
	SuggestedAt time.Time
}

// IsActionable reports whether the proposal recommends anything other than
// holding.
func (p Proposal) IsActionable() bool {
	return p.Action == ActionBuy || p.Action == ActionSell
}

// Strategy is the interface every trading algorithm implements. A strategy
// is pure: it reads an OHLCVFrame and emits proposals, and holds no exchange
// or bus handle of its own.
type Strategy interface {
	// ID uniquely identifies this configured strategy instance.
	ID() string

	// Symbol is the single market this strategy trades.
	Symbol() string

	// RequiredSubscriptions lists the symbol@timeframe feeds this strategy
	// needs fed into PopulateIndicators before OnData is meaningful.
	RequiredSubscriptions() []Subscription

	// PopulateIndicators computes and caches any indicators the strategy
	// needs from the given frame, ahead of a later OnData call. Splitting
	// indicator computation from decision-making lets a worker warm a
	// strategy up over historical bars before live evaluation begins.
	PopulateIndicators(frame *OHLCVFrame)

	// OnData evaluates the latest bar (already folded into frame) and
	// returns a Proposal. Returning a Hold action is the explicit
	// no-trade decision, not the absence of one.
	OnData(frame *OHLCVFrame) Proposal

	// WarmupBars is how many historical bars PopulateIndicators needs
	// before OnData's output should be trusted.
	WarmupBars() int
}

// Subscription names one symbol@timeframe market data feed.
type Subscription struct {
	Symbol    string
	Timeframe string
}

// Bar adapts an exchange.OHLCV into the strategy-facing vocabulary so this
// package does not otherwise depend on exchange internals.
type Bar = exchange.OHLCV

// roundTo8 truncates a decimal to the 8-fraction-digit precision spec
// section 3 requires for all strategy-facing price math.
func roundTo8(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(8)
}
