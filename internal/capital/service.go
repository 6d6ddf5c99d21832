package capital

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/meridiantrade/core/internal/bus"
	"github.com/meridiantrade/core/internal/domain"
)

// PriceLookup resolves a symbol's latest market price, backed by the
// Exchange Connector's cached reads.
type PriceLookup func(ctx context.Context, symbol string) (decimal.Decimal, error)

// Service wires the Ledger and rule chain to the message bus: it is the
// sole authority deciding whether a proposed trade may proceed, per spec
// section 4.5.
type Service struct {
	ledger                 *Ledger
	chain                  []Rule
	bus                    *bus.Bus
	prices                 PriceLookup
	defaultStopLossPercent decimal.Decimal
	log                    zerolog.Logger
}

// NewService builds a Capital Manager service around an already-populated
// Ledger (the caller runs the startup sequence's database loads before
// constructing this).
func NewService(ledger *Ledger, b *bus.Bus, prices PriceLookup, log zerolog.Logger) *Service {
	return &Service{
		ledger:                 ledger,
		chain:                  DefaultChain(),
		bus:                    b,
		prices:                 prices,
		defaultStopLossPercent: decimal.NewFromInt(2),
		log:                    log.With().Str("component", "capital_manager").Logger(),
	}
}

// Start subscribes to the capital_requests queue (allocation and validation
// proposals both route under request.capital.# per spec section 4.1) and to
// trade_events for fill reconciliation.
func (s *Service) Start(ctx context.Context) error {
	if !s.bus.Subscribe("capital_requests", s.handleProposal(ctx), false) {
		return fmt.Errorf("capital manager: subscribe capital_requests failed")
	}
	if !s.bus.Subscribe("trade_events", s.handleTradeExecuted, false) {
		return fmt.Errorf("capital manager: subscribe trade_events failed")
	}
	s.log.Info().Msg("capital manager subscribed")
	return nil
}

// handleProposal closes over ctx so Validate's price lookups can still be
// cancelled, since bus.Handler carries no context of its own.
func (s *Service) handleProposal(ctx context.Context) bus.Handler {
	return func(env *bus.Envelope) error {
		var p Proposal
		if err := decodePayload(env.Payload, &p); err != nil {
			return fmt.Errorf("capital manager: malformed proposal: %w", err)
		}
		resp, err := s.Validate(ctx, p)
		if err != nil {
			return err
		}
		s.log.Info().
			Str("strategy_id", p.StrategyID).
			Str("symbol", p.Symbol).
			Str("result", string(resp.Result)).
			Strs("reasons", resp.Reasons).
			Msg("trade proposal validated")
		return nil
	}
}

func (s *Service) handleTradeExecuted(env *bus.Envelope) error {
	var evt TradeExecuted
	if err := decodePayload(env.Payload, &evt); err != nil {
		return fmt.Errorf("capital manager: malformed trade_executed event: %w", err)
	}
	tripped := s.ledger.ApplyTradeExecuted(evt)
	if tripped {
		s.log.Error().Str("symbol", evt.Symbol).Msg("daily loss cap exceeded, circuit breaker tripped")
		s.publishSystemError("daily loss cap exceeded")
	}
	return nil
}

func (s *Service) publishSystemError(reason string) {
	payload := map[string]interface{}{"reason": reason, "component": "capital_manager"}
	if !s.bus.Publish("events", "events.system.error", payload, true) {
		s.log.Error().Msg("failed to publish system error event")
	}
}

// decodePayload round-trips an Envelope's map payload through JSON into a
// typed struct; the bus carries untyped maps so every consumer owns its own
// decoding the way handlers in the teacher's event-driven modules do.
func decodePayload(payload map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Validate runs a Proposal through the ordered rule chain and produces a
// ValidationResponse, applying the single position-size down-scaling
// exception described in spec section 4.5.
func (s *Service) Validate(ctx context.Context, p Proposal) (ValidationResponse, error) {
	price, err := s.prices(ctx, p.Symbol)
	if err != nil {
		return ValidationResponse{}, fmt.Errorf("capital manager: price lookup: %w", err)
	}

	vctx := s.ledger.BuildContext(p, price, s.defaultStopLossPercent)
	vctx.ApprovedQuantity = s.requestedQuantity(p, price)
	vctx.Notional = vctx.ApprovedQuantity.Mul(price)
	// BuildContext seeds EstimatedRisk as the per-unit stop-loss distance;
	// finalize it into a dollar exposure now that quantity is known.
	vctx.EstimatedRisk = vctx.EstimatedRisk.Mul(vctx.ApprovedQuantity)

	for _, rule := range s.chain {
		outcome := rule.Evaluate(vctx)
		if !outcome.Pass {
			return ValidationResponse{
				Result:           outcome.Result,
				ApprovedQuantity: decimal.Zero,
				Reasons:          append(vctx.Reasons, outcome.Reason),
			}, nil
		}
	}

	positionPct := decimal.Zero
	if !vctx.Portfolio.TotalCapital.IsZero() {
		notional := vctx.ApprovedQuantity.Mul(price)
		positionPct = notional.Div(vctx.Portfolio.TotalCapital).Mul(decimal.NewFromInt(100))
	}
	risk := classifyRisk(positionPct)
	if risk == RiskHigh || risk == RiskExtreme {
		s.log.Warn().
			Str("strategy_id", p.StrategyID).
			Str("symbol", p.Symbol).
			Str("risk_level", string(risk)).
			Msg("high-risk trade approved")
	}

	resp := ValidationResponse{
		Result:              ResultApproved,
		ApprovedQuantity:    vctx.ApprovedQuantity,
		RiskLevel:           risk,
		Reasons:             vctx.Reasons,
		EstimatedRiskAmount: vctx.EstimatedRisk,
		PortfolioImpact:     positionPct.Div(decimal.NewFromInt(100)),
	}
	resp.SuggestedStopLoss, resp.SuggestedTakeProfit = s.suggestedProtections(p, price)
	return resp, nil
}

// requestedQuantity derives the proposal's requested size. A quantity hint
// in StrategyParams["requested_quantity"] wins when present; otherwise a
// sell requests the whole open position for the symbol (zero if none), and
// a buy falls back to a full-notional default: available capital divided by
// price. The owning strategy's position-sizing config is not consulted.
func (s *Service) requestedQuantity(p Proposal, price decimal.Decimal) decimal.Decimal {
	if raw, ok := p.StrategyParams["requested_quantity"]; ok {
		switch v := raw.(type) {
		case float64:
			return decimal.NewFromFloat(v)
		case string:
			if d, err := decimal.NewFromString(v); err == nil {
				return d
			}
		}
	}
	if price.IsZero() {
		return decimal.Zero
	}
	portfolio, positions, _ := s.ledger.Snapshot()
	if p.Side == domain.SideSell {
		if pos, ok := positions[p.Symbol]; ok {
			return pos.Size
		}
		return decimal.Zero
	}
	if !portfolio.AvailableCapital.IsPositive() {
		return decimal.Zero
	}
	return portfolio.AvailableCapital.Div(price).Truncate(8)
}

func (s *Service) suggestedProtections(p Proposal, price decimal.Decimal) (stopLoss, takeProfit decimal.Decimal) {
	pct := s.defaultStopLossPercent.Div(decimal.NewFromInt(100))
	if p.Side == domain.SideBuy {
		stopLoss = price.Mul(decimal.NewFromInt(1).Sub(pct))
		takeProfit = price.Mul(decimal.NewFromInt(1).Add(pct.Mul(decimal.NewFromInt(2))))
	} else {
		stopLoss = price.Mul(decimal.NewFromInt(1).Add(pct))
		takeProfit = price.Mul(decimal.NewFromInt(1).Sub(pct.Mul(decimal.NewFromInt(2))))
	}
	return stopLoss.Truncate(8), takeProfit.Truncate(8)
}

// SetEmergencyStop sets or clears the one-way latch. Setting it is logged
// at error level.
func (s *Service) SetEmergencyStop(active bool, reason string) {
	s.ledger.SetEmergencyStop(active, reason)
	if active {
		s.log.Error().Str("reason", reason).Msg("EMERGENCY STOP engaged")
	} else {
		s.log.Warn().Msg("emergency stop cleared")
	}
}
