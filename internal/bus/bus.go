// Package bus implements the message-bus-mediated pipeline described in
// spec section 4.1: topic-routed exchanges, durable named queues bound by
// routing-key pattern, a dead-letter sink, per-message TTL, and a bounded
// concurrency (prefetch) per queue. It is the sole inter-component
// communication path — no component holds a direct reference to another.
//
// This has no single teacher file to adapt (the retrieved pack's event bus
// implementation was not included), so it is grounded on two teacher shapes
// combined: internal/queue's Job/Priority/Manager struct-and-channel idiom,
// and internal/events' EventType-enum-plus-zerolog-logging idiom.
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTTL      = time.Hour
	defaultPrefetch = 100
	dlxExchange     = "dlx"
	dlxQueue        = "dead_letters"
)

type binding struct {
	queue   string
	pattern string
}

type queue struct {
	name     string
	messages chan *Envelope
	sem      chan struct{} // bounds concurrent in-flight handlers (prefetch)
	handler  Handler
	autoAck  bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Bus is a topic-routed, in-process publish/subscribe broker with durable
// named queues and dead-letter routing.
type Bus struct {
	mu        sync.RWMutex
	connected bool
	bindings  map[string][]binding // exchange -> bindings
	queues    map[string]*queue
	dlxRing   []*Envelope // recent dead-letter history, msgpack-snapshotted on Close
	log       zerolog.Logger
}

// New creates a Bus with the default topology from spec section 4.1:
// market_data, trade_commands, capital_requests, system_events, trade_events
// and the dead_letters sink bound to the dlx exchange.
func New(log zerolog.Logger) *Bus {
	b := &Bus{
		bindings: make(map[string][]binding),
		queues:   make(map[string]*queue),
		log:      log.With().Str("component", "message_bus").Logger(),
	}
	b.declareQueue(dlxQueue, defaultPrefetch)
	b.Bind(dlxExchange, dlxQueue, "#")

	b.declareQueue("market_data", defaultPrefetch)
	b.Bind("events", "market_data", "market_data.#")

	b.declareQueue("trade_commands", defaultPrefetch)
	b.Bind("commands", "trade_commands", "commands.*")

	b.declareQueue("capital_requests", defaultPrefetch)
	b.Bind("requests", "capital_requests", "request.capital.#")

	b.declareQueue("system_events", defaultPrefetch)
	b.Bind("events", "system_events", "events.system.*")

	b.declareQueue("trade_events", defaultPrefetch)
	b.Bind("events", "trade_events", "events.trade_executed")

	b.connected = true
	return b
}

func (b *Bus) declareQueue(name string, prefetch int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[name]; ok {
		return
	}
	b.queues[name] = &queue{
		name:     name,
		messages: make(chan *Envelope, 1024),
		sem:      make(chan struct{}, prefetch),
		stop:     make(chan struct{}),
	}
}

// Bind declares a queue bound to an exchange with a routing-key pattern.
func (b *Bus) Bind(exchange, queueName, pattern string) {
	b.declareQueue(queueName, defaultPrefetch)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings[exchange] = append(b.bindings[exchange], binding{queue: queueName, pattern: pattern})
}

// Publish routes message onto exchange under routingKey. It never panics;
// on failure (not connected) it returns false. Unroutable messages are sent
// to the dead-letter queue for offline inspection.
func (b *Bus) Publish(exchange, routingKey string, payload map[string]interface{}, persistent bool) bool {
	b.mu.RLock()
	connected := b.connected
	bindings := append([]binding(nil), b.bindings[exchange]...)
	b.mu.RUnlock()

	if !connected {
		b.log.Error().Str("exchange", exchange).Str("routing_key", routingKey).Msg("publish failed: not connected")
		return false
	}

	delivered := false
	for _, bnd := range bindings {
		if !matchRoutingKey(bnd.pattern, routingKey) {
			continue
		}
		env := newEnvelope(routingKey, payload, persistent, defaultTTL)
		b.enqueue(bnd.queue, env)
		delivered = true
	}

	if !delivered {
		env := newEnvelope(routingKey, payload, persistent, defaultTTL)
		b.enqueue(dlxQueue, env)
		b.log.Warn().Str("exchange", exchange).Str("routing_key", routingKey).Msg("unroutable message sent to dead letters")
	}
	return true
}

func (b *Bus) enqueue(queueName string, env *Envelope) {
	if queueName == dlxQueue {
		b.recordDeadLetter(env)
	}
	b.mu.RLock()
	q, ok := b.queues[queueName]
	b.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case q.messages <- env:
	default:
		b.log.Warn().Str("queue", queueName).Msg("queue full, dropping oldest-equivalent message to dead letters")
		b.enqueue(dlxQueue, env)
	}
}

// Subscribe registers handler as the single consumer of queue. Each queue
// has exactly one consumer goroutine pulling messages in FIFO order, but
// dispatch fans out: handlers for one queue run concurrently up to the
// prefetch bound (100), so they may finish out of order.
func (b *Bus) Subscribe(queueName string, handler Handler, autoAck bool) bool {
	b.mu.Lock()
	q, ok := b.queues[queueName]
	if !ok {
		q = &queue{
			name:     queueName,
			messages: make(chan *Envelope, 1024),
			sem:      make(chan struct{}, defaultPrefetch),
			stop:     make(chan struct{}),
		}
		b.queues[queueName] = q
	}
	q.handler = handler
	q.autoAck = autoAck
	b.mu.Unlock()

	q.wg.Add(1)
	go b.consume(q)
	return true
}

func (b *Bus) consume(q *queue) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case env, ok := <-q.messages:
			if !ok {
				return
			}
			if q.name != dlxQueue && env.expired() {
				b.log.Debug().Str("queue", q.name).Str("id", env.ID).Msg("message expired, routing to dead letters")
				b.enqueue(dlxQueue, env)
				continue
			}
			q.sem <- struct{}{}
			q.wg.Add(1)
			go func(e *Envelope) {
				defer q.wg.Done()
				defer func() { <-q.sem }()
				b.dispatch(q, e)
			}(env)
		}
	}
}

func (b *Bus) dispatch(q *queue, env *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("queue", q.name).Interface("panic", r).Msg("handler panicked, routing to dead letters")
			b.enqueue(dlxQueue, env)
		}
	}()
	if err := q.handler(env); err != nil {
		env.attempts++
		b.log.Error().Err(err).Str("queue", q.name).Str("routing_key", env.RoutingKey).Msg("handler rejected message, routing to dead letters")
		b.enqueue(dlxQueue, env)
		return
	}
	// handler returned normally: acknowledged. autoAck has no separate
	// meaning in this in-process model beyond documenting caller intent.
	_ = q.autoAck
}

// Unsubscribe stops the consumer goroutine for queueName, if any.
func (b *Bus) Unsubscribe(queueName string) {
	b.mu.RLock()
	q, ok := b.queues[queueName]
	b.mu.RUnlock()
	if !ok {
		return
	}
	close(q.stop)
	q.wg.Wait()
}

// Disconnect marks the bus as disconnected; subsequent Publish calls fail.
// It does not drop already-enqueued messages (robust-reconnect semantics:
// Connect restores delivery without requiring resubscription).
func (b *Bus) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

// Connect marks the bus as connected again after a Disconnect.
func (b *Bus) Connect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
}

// HealthCheck reports connection liveness and declared topology counts.
func (b *Bus) HealthCheck() HealthReport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := 0
	for _, q := range b.queues {
		if q.handler != nil {
			subs++
		}
	}
	dlxLen := 0
	if q, ok := b.queues[dlxQueue]; ok {
		dlxLen = len(q.messages)
	}
	return HealthReport{
		Connected:       b.connected,
		ExchangeCount:   len(b.bindings),
		QueueCount:      len(b.queues),
		SubscriberCount: subs,
		DeadLetterCount: dlxLen,
	}
}

// DeadLetterQueueName is exported so tests and operator tooling can inspect
// the DLX without hardcoding the string.
const DeadLetterQueueName = dlxQueue

// ErrNotConnected is returned by callers that choose to surface publish
// failures as errors instead of checking the bool return.
var ErrNotConnected = fmt.Errorf("bus: not connected")
