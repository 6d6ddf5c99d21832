package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridiantrade/core/internal/domain"
)

// restOHLCVRow is the wire shape returned by the exchange's klines endpoint.
type restOHLCVRow struct {
	Timestamp int64  `json:"t"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
}

func (r restOHLCVRow) toOHLCV() (OHLCV, error) {
	var bar OHLCV
	var err error
	if bar.Open, err = decimal.NewFromString(r.Open); err != nil {
		return bar, err
	}
	if bar.High, err = decimal.NewFromString(r.High); err != nil {
		return bar, err
	}
	if bar.Low, err = decimal.NewFromString(r.Low); err != nil {
		return bar, err
	}
	if bar.Close, err = decimal.NewFromString(r.Close); err != nil {
		return bar, err
	}
	if bar.Volume, err = decimal.NewFromString(r.Volume); err != nil {
		return bar, err
	}
	bar.Timestamp = time.UnixMilli(r.Timestamp).UTC()
	return bar, nil
}

func (c *Connector) baseURL() string {
	if c.cfg.Sandbox {
		return "https://testnet.exchange.example/api/v3"
	}
	return "https://api.exchange.example/api/v3"
}

func (c *Connector) fetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]OHLCV, error) {
	var rows []restOHLCVRow
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": timeframe,
			"limit":    fmt.Sprintf("%d", limit),
		}).
		SetResult(&rows).
		Get(c.baseURL() + "/klines")
	if err != nil {
		return nil, fmt.Errorf("exchange: get_market_data: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("exchange: get_market_data: status %d", resp.StatusCode())
	}

	bars := make([]OHLCV, 0, len(rows))
	for _, r := range rows {
		bar, err := r.toOHLCV()
		if err != nil {
			return nil, fmt.Errorf("exchange: malformed bar: %w", err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

type restOrderResponse struct {
	OrderID      string `json:"order_id"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	Filled       string `json:"filled"`
	AveragePrice string `json:"average_price"`
	Fee          string `json:"fee"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
}

func (c *Connector) submitOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	var out restOrderResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"correlation_id": req.CorrelationID,
			"symbol":         req.Symbol,
			"side":           string(req.Side),
			"type":           string(req.Type),
			"amount":         req.Amount.String(),
			"price":          req.Price.String(),
		}).
		SetResult(&out).
		Post(c.baseURL() + "/order")
	if err != nil {
		return nil, fmt.Errorf("exchange: place_order: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("exchange: place_order rejected: status %d", resp.StatusCode())
	}
	return toOrderResponse(req.CorrelationID, out)
}

func (c *Connector) cancelOrder(ctx context.Context, exchangeOrderID, symbol string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"order_id": exchangeOrderID, "symbol": symbol}).
		Delete(c.baseURL() + "/order")
	if err != nil {
		return fmt.Errorf("exchange: cancel_order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("exchange: cancel_order failed: status %d", resp.StatusCode())
	}
	return nil
}

func (c *Connector) queryOrder(ctx context.Context, exchangeOrderID, symbol string) (*OrderResponse, error) {
	var out restOrderResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"order_id": exchangeOrderID, "symbol": symbol}).
		SetResult(&out).
		Get(c.baseURL() + "/order")
	if err != nil {
		return nil, fmt.Errorf("exchange: get_order_status: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("exchange: get_order_status: unknown id %s", exchangeOrderID)
	}
	return toOrderResponse("", out)
}

func (c *Connector) fetchBalances(ctx context.Context) (map[string]Balance, error) {
	var raw map[string]struct {
		Free  string `json:"free"`
		Used  string `json:"used"`
		Total string `json:"total"`
	}
	resp, err := c.rest.R().SetContext(ctx).SetResult(&raw).Get(c.baseURL() + "/account")
	if err != nil {
		return nil, fmt.Errorf("exchange: get_account_balance: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("exchange: get_account_balance: status %d", resp.StatusCode())
	}

	out := make(map[string]Balance, len(raw))
	for cur, v := range raw {
		free, _ := decimal.NewFromString(v.Free)
		used, _ := decimal.NewFromString(v.Used)
		total, _ := decimal.NewFromString(v.Total)
		out[cur] = Balance{Free: free, Used: used, Total: total}
	}
	return out, nil
}

func (c *Connector) fetchOpenOrders(ctx context.Context, symbol string) ([]OrderResponse, error) {
	var out []restOrderResponse
	req := c.rest.R().SetContext(ctx).SetResult(&out)
	if symbol != "" {
		req.SetQueryParam("symbol", symbol)
	}
	resp, err := req.Get(c.baseURL() + "/openOrders")
	if err != nil {
		return nil, fmt.Errorf("exchange: get_open_orders: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("exchange: get_open_orders: status %d", resp.StatusCode())
	}

	orders := make([]OrderResponse, 0, len(out))
	for _, r := range out {
		o, err := toOrderResponse("", r)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func toOrderResponse(correlationID string, r restOrderResponse) (*OrderResponse, error) {
	amount, _ := decimal.NewFromString(r.Amount)
	filled, _ := decimal.NewFromString(r.Filled)
	avg, _ := decimal.NewFromString(r.AveragePrice)
	fee, _ := decimal.NewFromString(r.Fee)

	createdAt := time.Now().UTC()
	if r.CreatedAt > 0 {
		createdAt = time.UnixMilli(r.CreatedAt).UTC()
	}

	return &OrderResponse{
		CorrelationID:   correlationID,
		ExchangeOrderID: r.OrderID,
		Symbol:          r.Symbol,
		Side:            domain.Side(r.Side),
		Type:            domain.OrderType(r.Type),
		Amount:          amount,
		FilledAmount:    filled,
		AveragePrice:    avg,
		Fee:             fee,
		Status:          mapStatus(r.Status),
		CreatedAt:       createdAt,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}

func mapStatus(s string) domain.TradeStatus {
	switch s {
	case "open", "new", "partially_filled":
		return domain.TradeStatusOpen
	case "filled", "closed":
		return domain.TradeStatusClosed
	case "canceled", "cancelled":
		return domain.TradeStatusCanceled
	case "rejected", "failed":
		return domain.TradeStatusFailed
	default:
		return domain.TradeStatusPending
	}
}
