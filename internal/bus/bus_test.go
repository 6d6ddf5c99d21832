package bus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBus() *Bus {
	return New(zerolog.Nop())
}

func TestMatchRoutingKey(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"market_data.*", "market_data.binance", true},
		{"market_data.*", "market_data.binance.btcusdt", false},
		{"request.capital.#", "request.capital.allocation.strat-1", true},
		{"request.capital.#", "request.capital.validation", true},
		{"#", "anything.at.all", true},
		{"events.system.*", "events.system.error", true},
		{"events.system.*", "events.trade_executed", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, matchRoutingKey(c.pattern, c.key), "%s vs %s", c.pattern, c.key)
	}
}

func TestPublishSubscribe_DeliversAndAcks(t *testing.T) {
	b := testBus()
	var got *Envelope
	done := make(chan struct{})
	b.Subscribe("market_data", func(e *Envelope) error {
		got = e
		close(done)
		return nil
	}, true)

	ok := b.Publish("events", MarketDataRoutingKey("binance", "BTC/USDT"), map[string]interface{}{"close": 50000.0}, true)
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}
	require.NotNil(t, got)
	assert.Equal(t, "market_data.binance.btcusdt", got.RoutingKey)
}

func TestPublish_Unroutable_GoesToDeadLetters(t *testing.T) {
	b := testBus()
	var got *Envelope
	done := make(chan struct{})
	b.Subscribe(DeadLetterQueueName, func(e *Envelope) error {
		got = e
		close(done)
		return nil
	}, true)

	ok := b.Publish("events", "no.such.binding.exists", map[string]interface{}{}, true)
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dead letter handler never invoked")
	}
	assert.Equal(t, "no.such.binding.exists", got.RoutingKey)
}

func TestSubscribe_HandlerErrorRoutesToDeadLetters(t *testing.T) {
	b := testBus()
	var mu sync.Mutex
	processed := 0
	b.Subscribe("capital_requests", func(e *Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		processed++
		if e.Payload["malformed"] == true {
			return fmt.Errorf("bad payload")
		}
		return nil
	}, true)

	dlHit := make(chan struct{}, 1)
	b.Subscribe(DeadLetterQueueName, func(e *Envelope) error {
		dlHit <- struct{}{}
		return nil
	}, true)

	b.Publish("requests", "request.capital.allocation.x", map[string]interface{}{"malformed": true}, true)

	select {
	case <-dlHit:
	case <-time.After(time.Second):
		t.Fatal("expected malformed message on dead letters")
	}

	// The subscriber must remain alive and keep processing subsequent messages.
	b.Publish("requests", "request.capital.allocation.x", map[string]interface{}{"malformed": false}, true)
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 2, processed)
	mu.Unlock()
}

func TestPublish_NotConnectedFails(t *testing.T) {
	b := testBus()
	b.Disconnect()
	ok := b.Publish("events", EventTradeExecuted, map[string]interface{}{}, true)
	assert.False(t, ok)
}

func TestHealthCheck(t *testing.T) {
	b := testBus()
	b.Subscribe("market_data", func(e *Envelope) error { return nil }, true)
	h := b.HealthCheck()
	assert.True(t, h.Connected)
	assert.GreaterOrEqual(t, h.QueueCount, 5)
	assert.Equal(t, 1, h.SubscriberCount)
}

func TestExpiredMessage_RoutesToDeadLetters(t *testing.T) {
	b := testBus()
	q := &queue{name: "market_data", messages: make(chan *Envelope, 1), sem: make(chan struct{}, 1), stop: make(chan struct{})}
	b.mu.Lock()
	b.queues["market_data"] = q
	b.mu.Unlock()

	dlHit := make(chan struct{}, 1)
	b.Subscribe(DeadLetterQueueName, func(e *Envelope) error {
		dlHit <- struct{}{}
		return nil
	}, true)

	env := newEnvelope("market_data.binance.btcusdt", map[string]interface{}{}, true, -time.Second)
	q.messages <- env
	b.Subscribe("market_data", func(e *Envelope) error {
		t.Fatal("expired message must not reach the handler")
		return nil
	}, true)

	select {
	case <-dlHit:
	case <-time.After(time.Second):
		t.Fatal("expired message should have been routed to dead letters")
	}
}
