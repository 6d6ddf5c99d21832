package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	wsMinBackoff = 1 * time.Second
	wsMaxBackoff = 60 * time.Second
)

// streamKey is "symbol@channel", e.g. "BTC-USD@ohlcv".
type streamKey string

func newStreamKey(symbol string) streamKey {
	return streamKey(strings.ToUpper(symbol) + "@ohlcv")
}

// stream owns one reconnecting WebSocket connection multiplexed to every
// in-process subscriber registered for that symbol. Reconnection uses
// exponential backoff from 1s up to a 60s cap, mirroring the teacher's
// tradernet websocket client, and re-subscribes on every reconnect since
// the exchange does not remember subscriptions across a dropped socket.
type stream struct {
	key         streamKey
	symbol      string
	log         zerolog.Logger
	mu          sync.Mutex
	subscribers []MarketDataHandler
	cancel      context.CancelFunc
	done        chan struct{}
}

type wireTick struct {
	Symbol    string `json:"symbol"`
	Timestamp int64  `json:"t"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
}

func (s *stream) run(ctx context.Context, url string) {
	defer close(s.done)

	backoff := wsMinBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := s.connectOnce(ctx, url)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", s.symbol).Dur("backoff", backoff).Msg("market data stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > wsMaxBackoff {
			backoff = wsMaxBackoff
		}
	}
}

func (s *stream) connectOnce(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	sub := map[string]string{"op": "subscribe", "channel": "ohlcv", "symbol": s.symbol}
	if err := wsjson.Write(ctx, conn, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		var tick wireTick
		if err := wsjson.Read(ctx, conn, &tick); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		bar, err := (restOHLCVRow{
			Timestamp: tick.Timestamp,
			Open:      tick.Open,
			High:      tick.High,
			Low:       tick.Low,
			Close:     tick.Close,
			Volume:    tick.Volume,
		}).toOHLCV()
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", s.symbol).Msg("dropping malformed tick")
			continue
		}

		s.mu.Lock()
		handlers := append([]MarketDataHandler(nil), s.subscribers...)
		s.mu.Unlock()
		for _, h := range handlers {
			h(bar)
		}
	}
}

func (s *stream) addSubscriber(h func(OHLCV)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, func(_ string, bar OHLCV) { h(bar) })
}

// streamManager keeps exactly one stream per symbol regardless of how many
// strategies subscribe to it, per spec section 4.2.
type streamManager struct {
	mu      sync.Mutex
	log     zerolog.Logger
	streams map[streamKey]*stream
	wsURL   string
}

func newStreamManager(log zerolog.Logger) *streamManager {
	return &streamManager{
		log:     log.With().Str("component", "market_data_stream_manager").Logger(),
		streams: make(map[streamKey]*stream),
		wsURL:   "wss://stream.exchange.example/ws",
	}
}

// Subscribe registers handler against the stream for symbol, dialing a new
// connection only if one is not already running for that symbol.
func (m *streamManager) Subscribe(symbol string, handler func(OHLCV)) {
	key := newStreamKey(symbol)

	m.mu.Lock()
	s, ok := m.streams[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		s = &stream{
			key:    key,
			symbol: symbol,
			log:    m.log,
			cancel: cancel,
			done:   make(chan struct{}),
		}
		m.streams[key] = s
		go s.run(ctx, m.wsURL)
	}
	m.mu.Unlock()

	s.addSubscriber(handler)
}

// Close tears down every live stream and waits for their goroutines to exit.
func (m *streamManager) Close() {
	m.mu.Lock()
	streams := make([]*stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.streams = make(map[streamKey]*stream)
	m.mu.Unlock()

	for _, s := range streams {
		s.cancel()
		<-s.done
	}
}
