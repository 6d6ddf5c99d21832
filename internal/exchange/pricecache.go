package exchange

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// cacheKey identifies one cached market-data read.
type cacheKey struct {
	Symbol    string
	Timeframe string
	Limit     int
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s|%s|%d", k.Symbol, k.Timeframe, k.Limit)
}

type cacheEntry struct {
	key       cacheKey
	bars      []OHLCV
	expiresAt time.Time
	fromWS    bool
	elem      *list.Element
}

// PriceCache is an LRU cache of recent market data keyed by
// (symbol, timeframe, limit) with a short per-kind TTL. WebSocket ticks
// override any REST-cached value for the same key regardless of the
// REST entry's remaining TTL, collapsing repeated strategy reads into one
// network call per spec section 4.2.
type PriceCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	entries  map[string]*cacheEntry
}

// NewPriceCache builds a cache with the given capacity and default TTL
// (500ms-2s per spec; callers pick the value appropriate to their data kind).
func NewPriceCache(capacity int, ttl time.Duration) *PriceCache {
	if capacity <= 0 {
		capacity = 512
	}
	if ttl <= 0 {
		ttl = 500 * time.Millisecond
	}
	return &PriceCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*cacheEntry),
	}
}

// Get returns cached bars if present and not expired.
func (c *PriceCache) Get(symbol, timeframe string, limit int) ([]OHLCV, bool) {
	key := cacheKey{symbol, timeframe, limit}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	c.order.MoveToFront(e.elem)
	return e.bars, true
}

// PutREST stores a REST response, unless a still-live WebSocket value
// already occupies the slot (WebSocket always wins for the same key).
func (c *PriceCache) PutREST(symbol, timeframe string, limit int, bars []OHLCV) {
	c.put(symbol, timeframe, limit, bars, false)
}

// PutWebSocket stores a WebSocket tick update, always overriding any
// existing REST-cached value for the same key.
func (c *PriceCache) PutWebSocket(symbol, timeframe string, limit int, bars []OHLCV) {
	c.put(symbol, timeframe, limit, bars, true)
}

func (c *PriceCache) put(symbol, timeframe string, limit int, bars []OHLCV, fromWS bool) {
	key := cacheKey{symbol, timeframe, limit}
	ks := key.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[ks]; ok {
		if existing.fromWS && !fromWS && time.Now().Before(existing.expiresAt) {
			// a live WS value beats a REST refresh
			return
		}
		existing.bars = bars
		existing.fromWS = fromWS
		existing.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(existing.elem)
		return
	}

	e := &cacheEntry{key: key, bars: bars, fromWS: fromWS, expiresAt: time.Now().Add(c.ttl)}
	e.elem = c.order.PushFront(e)
	c.entries[ks] = e

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			old := oldest.Value.(*cacheEntry)
			delete(c.entries, old.key.String())
			c.order.Remove(oldest)
		}
	}
}

// Stats reports cache occupancy for health_check.
type CacheStats struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
}

func (c *PriceCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: c.order.Len(), Capacity: c.capacity}
}
