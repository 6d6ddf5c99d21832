// Package exchange implements the Exchange Connector (spec section 4.2):
// the sole process-internal component that speaks to the exchange. It
// wraps a REST client (resty, grounded on 0xtitan6-polymarket-mm's use of
// go-resty for exchange calls), a WebSocket stream manager (nhooyr.io/websocket,
// grounded on the teacher's clients/tradernet/websocket_client.go reconnect
// idiom), an LRU price cache, a token-bucket rate limiter, and a
// per-connector circuit breaker.
package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MarketDataHandler receives a tick for one subscribed symbol.
type MarketDataHandler func(symbol string, bar OHLCV)

// Connector is the uniform, symbol-agnostic interface to one exchange.
type Connector struct {
	mu         sync.RWMutex
	name       string
	cfg        ConnectConfig
	connected  bool
	rest       *resty.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	cache      *PriceCache
	streams    *streamManager
	orders     map[string]*OrderResponse // keyed by correlation id
	log        zerolog.Logger
}

// New builds a disconnected Connector for the named exchange.
func New(name string, log zerolog.Logger) *Connector {
	l := log.With().Str("component", "exchange_connector").Str("exchange", name).Logger()
	return &Connector{
		name:    name,
		cache:   NewPriceCache(1024, 750*time.Millisecond),
		orders:  make(map[string]*OrderResponse),
		log:     l,
		breaker: NewCircuitBreaker(5, 5*time.Minute, l),
	}
}

// Connect validates credentials presence and wires the REST client, rate
// limiter and WebSocket stream manager. It does not itself prove the
// credentials are valid beyond non-emptiness — the first authenticated call
// surfaces real auth failures, matching the teacher's lazy-auth SDK style.
func (c *Connector) Connect(cfg ConnectConfig) error {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return fmt.Errorf("exchange connect: credentials invalid (empty key/secret)")
	}

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.CircuitMax <= 0 {
		cfg.CircuitMax = 5
	}
	if cfg.CircuitOpenFor <= 0 {
		cfg.CircuitOpenFor = 5 * time.Minute
	}

	c.mu.Lock()
	c.cfg = cfg
	c.rest = resty.New().SetTimeout(timeout)
	c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	c.breaker = NewCircuitBreaker(cfg.CircuitMax, cfg.CircuitOpenFor, c.log)
	c.streams = newStreamManager(c.log)
	c.connected = true
	c.mu.Unlock()

	c.log.Info().Bool("sandbox", cfg.Sandbox).Msg("exchange connector connected")
	return nil
}

// Disconnect tears down the WebSocket manager and marks the connector closed.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streams != nil {
		c.streams.Close()
	}
	c.connected = false
	c.log.Info().Msg("exchange connector disconnected")
	return nil
}

// awaitSlot blocks until the rate limiter admits the call or ctx is done.
func (c *Connector) awaitSlot(ctx context.Context) error {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (c *Connector) guard(ctx context.Context, idempotent bool) error {
	c.mu.RLock()
	connected := c.connected
	breaker := c.breaker
	c.mu.RUnlock()
	if !connected {
		return fmt.Errorf("exchange connector: not connected")
	}
	if breaker != nil && !breaker.Allow() {
		return ErrCircuitOpen{}
	}
	return c.awaitSlot(ctx)
}

func (c *Connector) recordOutcome(err error) {
	c.mu.RLock()
	breaker := c.breaker
	c.mu.RUnlock()
	if breaker == nil {
		return
	}
	if err != nil {
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess()
	}
}

// GetMarketData returns an ordered OHLCV sequence, serving from cache when fresh.
func (c *Connector) GetMarketData(ctx context.Context, symbol, timeframe string, limit int) ([]OHLCV, error) {
	if bars, ok := c.cache.Get(symbol, timeframe, limit); ok {
		return bars, nil
	}
	if err := c.guard(ctx, true); err != nil {
		return nil, err
	}

	bars, err := c.fetchOHLCV(ctx, symbol, timeframe, limit)
	c.recordOutcome(err)
	if err != nil {
		return nil, err
	}
	if err := validateBars(bars); err != nil {
		return nil, err
	}
	c.cache.PutREST(symbol, timeframe, limit, bars)
	return bars, nil
}

// validateBars rejects a market with close <= 0 before it reaches strategies
// (a boundary behavior required by spec section 8).
func validateBars(bars []OHLCV) error {
	for _, b := range bars {
		if b.Close.IsZero() || b.Close.IsNegative() {
			return fmt.Errorf("exchange connector: invalid bar close=%s", b.Close.String())
		}
	}
	return nil
}

// SubscribeMarketData opens (or reuses) a symbol@ohlcv stream and forwards
// ticks to handler, also updating the price cache so REST reads collapse
// onto the live value.
func (c *Connector) SubscribeMarketData(symbols []string, handler MarketDataHandler) error {
	c.mu.RLock()
	streams := c.streams
	c.mu.RUnlock()
	if streams == nil {
		return fmt.Errorf("exchange connector: not connected")
	}
	for _, sym := range symbols {
		s := sym
		streams.Subscribe(s, func(bar OHLCV) {
			c.cache.PutWebSocket(s, "1m", 1, []OHLCV{bar})
			handler(s, bar)
		})
	}
	return nil
}

// PlaceOrder validates and submits an order, recording it under its
// client-assigned correlation id alongside the eventual exchange order id.
func (c *Connector) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	if err := c.guard(ctx, false); err != nil {
		return nil, err
	}

	resp, err := c.submitOrder(ctx, req)
	c.recordOutcome(err)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.orders[req.CorrelationID] = resp
	c.mu.Unlock()
	return resp, nil
}

// CancelOrder cancels an open order by exchange id.
func (c *Connector) CancelOrder(ctx context.Context, exchangeOrderID, symbol string) error {
	if err := c.guard(ctx, false); err != nil {
		return err
	}
	err := c.cancelOrder(ctx, exchangeOrderID, symbol)
	c.recordOutcome(err)
	return err
}

// GetOrderStatus is the authoritative order query; the connector never
// polls for fills in the background — callers (the Capital Manager) trigger
// polls explicitly, per spec section 4.2.
func (c *Connector) GetOrderStatus(ctx context.Context, exchangeOrderID, symbol string) (*OrderResponse, error) {
	if err := c.guard(ctx, true); err != nil {
		return nil, err
	}
	resp, err := c.queryOrder(ctx, exchangeOrderID, symbol)
	c.recordOutcome(err)
	return resp, err
}

// GetAccountBalance returns free/used/total per currency.
func (c *Connector) GetAccountBalance(ctx context.Context) (map[string]Balance, error) {
	if err := c.guard(ctx, true); err != nil {
		return nil, err
	}
	bals, err := c.fetchBalances(ctx)
	c.recordOutcome(err)
	return bals, err
}

// GetOpenOrders lists open orders, optionally filtered by symbol.
func (c *Connector) GetOpenOrders(ctx context.Context, symbol string) ([]OrderResponse, error) {
	if err := c.guard(ctx, true); err != nil {
		return nil, err
	}
	orders, err := c.fetchOpenOrders(ctx, symbol)
	c.recordOutcome(err)
	return orders, err
}

// HealthReport summarizes connector health for Core Engine's aggregate check.
type HealthReport struct {
	Connected   bool         `json:"connected"`
	Circuit     CircuitState `json:"circuit_state"`
	CacheStats  CacheStats   `json:"cache_stats"`
}

// HealthCheck reports connection state, circuit state and cache stats.
func (c *Connector) HealthCheck() HealthReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state := CircuitClosed
	if c.breaker != nil {
		state = c.breaker.State()
	}
	return HealthReport{
		Connected:  c.connected,
		Circuit:    state,
		CacheStats: c.cache.Stats(),
	}
}
