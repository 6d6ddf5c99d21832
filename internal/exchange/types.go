package exchange

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridiantrade/core/internal/domain"
)

// OHLCV is one time-bucketed market data bar.
type OHLCV struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// OrderRequest is validated before wire transmission: symbol/side/type
// present, amount > 0, limit orders carry a price.
type OrderRequest struct {
	CorrelationID string
	Symbol        string
	Side          domain.Side
	Type          domain.OrderType
	Amount        decimal.Decimal
	Price         decimal.Decimal // required for non-market orders
}

// Validate enforces the OrderRequest invariants from spec section 4.2.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return errInvalidOrder("symbol is required")
	}
	if r.Side != domain.SideBuy && r.Side != domain.SideSell {
		return errInvalidOrder("side must be buy or sell")
	}
	switch r.Type {
	case domain.OrderTypeMarket, domain.OrderTypeLimit, domain.OrderTypeStopLoss, domain.OrderTypeTakeProfit:
	default:
		return errInvalidOrder("unknown order type")
	}
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return errInvalidOrder("amount must be positive")
	}
	if r.Type != domain.OrderTypeMarket && r.Price.LessThanOrEqual(decimal.Zero) {
		return errInvalidOrder("non-market orders require a positive price")
	}
	return nil
}

type orderValidationError struct{ msg string }

func (e orderValidationError) Error() string { return e.msg }
func errInvalidOrder(msg string) error       { return orderValidationError{msg} }

// OrderResponse is the exchange's view of one order, authoritative via
// GetOrderStatus.
type OrderResponse struct {
	CorrelationID   string
	ExchangeOrderID string
	Symbol          string
	Side            domain.Side
	Type            domain.OrderType
	Amount          decimal.Decimal
	FilledAmount    decimal.Decimal
	AveragePrice    decimal.Decimal
	Fee             decimal.Decimal
	Status          domain.TradeStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Balance is one currency's free/used/total balance.
type Balance struct {
	Free  decimal.Decimal
	Used  decimal.Decimal
	Total decimal.Decimal
}

// ConnectConfig carries exchange credentials and tuning.
type ConnectConfig struct {
	APIKey        string
	APISecret     string
	Sandbox       bool
	RateLimitRPS  float64
	Timeout       time.Duration
	CircuitMax    int
	CircuitOpenFor time.Duration
}
