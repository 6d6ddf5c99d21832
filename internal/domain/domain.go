// Package domain holds the core data model shared by every component:
// Portfolio, PortfolioRule, Strategy, Trade, Position, GridOrder,
// PerformanceMetric and SystemLog. Entities reference each other by id only
// (no embedded pointers) so each store can own exactly one entity kind
// without cyclic in-memory graphs.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType enumerates the order types the exchange connector accepts.
type OrderType string

const (
	OrderTypeMarket     OrderType = "market"
	OrderTypeLimit      OrderType = "limit"
	OrderTypeStopLoss   OrderType = "stop_loss"
	OrderTypeTakeProfit OrderType = "take_profit"
)

// TradeStatus is the monotonic lifecycle of a Trade.
type TradeStatus string

const (
	TradeStatusPending  TradeStatus = "pending"
	TradeStatusOpen     TradeStatus = "open"
	TradeStatusClosed   TradeStatus = "closed"
	TradeStatusCanceled TradeStatus = "canceled"
	TradeStatusFailed   TradeStatus = "failed"
)

// Portfolio is the top-level capital allocation container.
type Portfolio struct {
	ID               string
	Name             string
	BaseCurrency     string
	TotalCapital     decimal.Decimal
	AvailableCapital decimal.Decimal
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RuleKind enumerates the supported PortfolioRule kinds.
type RuleKind string

const (
	RuleMaxPositionSizePercent    RuleKind = "max_position_size_percent"
	RuleMaxDailyLossPercent       RuleKind = "max_daily_loss_percent"
	RuleMaxPortfolioExposure      RuleKind = "max_portfolio_exposure_percent"
	RuleMinPositionSizeValue      RuleKind = "min_position_size_value"
	RuleMaxPositionSizeValue      RuleKind = "max_position_size_value"
	RuleMaxPositionsPerSymbol     RuleKind = "max_positions_per_symbol"
	RuleBlacklistedSymbols        RuleKind = "blacklisted_symbols"
)

// PortfolioRule is a typed risk limit bound to a Portfolio. Value holds the
// kind-specific payload (a percentage, a count, a symbol list, ...).
type PortfolioRule struct {
	ID          string
	PortfolioID string
	Kind        RuleKind
	Value       map[string]interface{}
	Active      bool
}

// Strategy is a configured instance of a strategy algorithm.
type Strategy struct {
	ID         string
	Name       string
	Type       string
	Exchange   string
	Symbol     string // BASE/QUOTE
	Params     map[string]interface{}
	Sizing     PositionSizingConfig
	Active     bool
	Portfolio  string // owning portfolio id
}

// PositionSizingConfig controls how a strategy sizes new positions.
type PositionSizingConfig struct {
	Method         string // e.g. "fixed_percent", "fixed_amount"
	PercentOfPort  decimal.Decimal
	FixedAmount    decimal.Decimal
}

// Trade is the immutable ledger record of one order sent to the exchange.
type Trade struct {
	ID              string
	StrategyID      string
	Exchange        string
	ExchangeOrderID string
	Symbol          string
	Side            Side
	Type            OrderType
	Amount          decimal.Decimal
	Price           decimal.Decimal // required for non-market orders
	Cost            decimal.Decimal
	Fee             decimal.Decimal
	Status          TradeStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClosedAt        *time.Time
}

// Position is the mutable aggregate of a strategy's open holding in one symbol.
type Position struct {
	ID            string
	StrategyID    string
	Symbol        string
	Side          string // "long" only for spot
	Size          decimal.Decimal
	AverageEntry  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	TotalFees     decimal.Decimal
	StopLoss      *decimal.Decimal
	TakeProfit    *decimal.Decimal
	Open          bool
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// GridOrder is the persistent state of one rung of a grid-trading strategy,
// keyed by (strategy, level, side). No grid strategy ships with this build;
// the schema exists so a future one can recover its layout after a restart.
type GridOrder struct {
	ID         string
	StrategyID string
	Level      int
	Side       Side
	Price      decimal.Decimal
	Amount     decimal.Decimal
	Filled     bool
}

// PerformanceMetric is an append-only named scalar for reporting. It never
// drives trading decisions.
type PerformanceMetric struct {
	ID          string
	StrategyID  string
	PortfolioID string
	Name        string
	Value       float64
	RecordedAt  time.Time
}

// LogSeverity enumerates SystemLog severities.
type LogSeverity string

const (
	SeverityDebug    LogSeverity = "debug"
	SeverityInfo     LogSeverity = "info"
	SeverityWarning  LogSeverity = "warning"
	SeverityCritical LogSeverity = "critical"
)

// SystemLog is a structured, persisted event record for operator review.
type SystemLog struct {
	ID         string
	Severity   LogSeverity
	Component  string
	Message    string
	Context    map[string]interface{}
	StrategyID string
	TradeID    string
	CreatedAt  time.Time
}
