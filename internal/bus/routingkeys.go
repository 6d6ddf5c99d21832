package bus

import (
	"fmt"
	"strings"
)

// Bit-stable routing keys from spec section 6. Consumers must match on these
// literal strings (or the patterns queues bind with in New, bus.go) — never invent a
// parallel naming scheme.
const (
	EventTradeExecuted       = "events.trade_executed"
	EventStrategyStarted     = "events.strategy.started"
	EventStrategyStopped     = "events.strategy.stopped"
	EventSystemError         = "events.system.error"
	EventSystemHealth        = "events.system.health"

	CommandExecuteTrade   = "commands.execute_trade"
	CommandStartStrategy  = "commands.start_strategy"
	CommandStopStrategy   = "commands.stop_strategy"

	RequestCapitalValidation = "request.capital.validation"
	RequestPositionStatus    = "request.position.status"
)

// MarketDataRoutingKey builds the market_data.{exchange}.{symbol} routing
// key, lower-casing the exchange and stripping the "/" from the symbol as
// spec section 6 requires.
func MarketDataRoutingKey(exchange, symbol string) string {
	sym := strings.ToLower(strings.ReplaceAll(symbol, "/", ""))
	return fmt.Sprintf("market_data.%s.%s", strings.ToLower(exchange), sym)
}

// CapitalAllocationRoutingKey builds request.capital.allocation.{strategy_id}.
func CapitalAllocationRoutingKey(strategyID string) string {
	return fmt.Sprintf("request.capital.allocation.%s", strategyID)
}
