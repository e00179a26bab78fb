package upstream

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config names the upstream host and the symbols to subscribe to. The
// REST/WS hosts must match the Dry-Run Engine's upstream guard
// (spec.md §4.7 "upstream guard"); Feed does not itself enforce that,
// since it has no dependency on internal/dryrun.
type Config struct {
	WSURL   string // e.g. wss://fstream.binance.com/stream
	Symbols []string

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// DefaultConfig returns the spec's illustrative reconnect backoff
// bounds (spec.md §7 "exponential backoff with jitter").
func DefaultConfig(wsURL string, symbols []string) Config {
	return Config{WSURL: wsURL, Symbols: symbols, MinBackoff: time.Second, MaxBackoff: 30 * time.Second}
}

// Feed maintains one shared upstream WebSocket connection and demuxes
// incoming frames to per-symbol subscriber channels. Symbols are
// subscribed through the stream URL's query string, so nothing is
// written to the connection; reads happen on one internal goroutine
// per connection lifetime (spec.md §5 "shared resources").
type Feed struct {
	cfg Config

	mu          sync.RWMutex
	subscribers map[string][]chan<- StreamMessage

	reconnectCount int
}

// New constructs a Feed. Call Run to start the connect/read/reconnect
// loop; it blocks until ctx is canceled.
func New(cfg Config) *Feed {
	return &Feed{cfg: cfg, subscribers: make(map[string][]chan<- StreamMessage)}
}

// Subscribe registers ch to receive demuxed messages for symbol. The
// caller owns ch and must keep draining it; Feed does not buffer past
// the channel's own capacity, matching the per-symbol single-consumer
// ownership model (spec.md §5).
func (f *Feed) Subscribe(symbol string, ch chan<- StreamMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[symbol] = append(f.subscribers[symbol], ch)
}

// ReconnectCount reports how many times the connection has been
// reestablished since Run started, for health reporting.
func (f *Feed) ReconnectCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.reconnectCount
}

// Run maintains the connection for as long as ctx is alive,
// reconnecting with exponential backoff and jitter on every drop.
// Grounded on the pack's orderbook-manager maintainConnection loop,
// generalized from a fixed 5s sleep to the backoff schedule below.
func (f *Feed) Run(ctx context.Context) {
	backoff := f.cfg.MinBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connectAndListen(ctx); err != nil {
			log.Printf("upstream: connection error: %v; reconnecting in %v", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(backoff)):
			}
			backoff = nextBackoff(backoff, f.cfg.MaxBackoff)
			f.mu.Lock()
			f.reconnectCount++
			f.mu.Unlock()
			continue
		}
		// A nil error ends the loop: reset backoff and return. A ctx
		// cancellation mid-read closes the connection, so it surfaces
		// above as a read error and returns through the ctx.Done case.
		backoff = f.cfg.MinBackoff
		return
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// jitter applies +/-20% randomization so many symbols reconnecting at
// once don't all retry in lockstep.
func jitter(d time.Duration) time.Duration {
	delta := time.Duration(rand.Int63n(int64(d) / 5))
	if rand.Intn(2) == 0 {
		return d - delta
	}
	return d + delta
}

func (f *Feed) connectAndListen(ctx context.Context) error {
	streamURL := f.cfg.WSURL
	if len(f.cfg.Symbols) > 0 {
		streamURL = withStreamParams(streamURL, f.cfg.Symbols)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, streamURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.dispatch(raw)
	}
}

func withStreamParams(base string, symbols []string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("symbols", strings.Join(symbols, ","))
	u.RawQuery = q.Encode()
	return u.String()
}

// frameEnvelope is the minimal shape needed to route a raw frame to
// its symbol and kind before fully decoding it.
type frameEnvelope struct {
	Symbol string `json:"symbol"`
	Kind   string `json:"kind"`
}

func (f *Feed) dispatch(raw []byte) {
	var env frameEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("upstream: malformed frame: %v", err)
		return
	}

	msg := StreamMessage{Symbol: env.Symbol}
	switch env.Kind {
	case "depthSnapshot":
		var s DepthSnapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			log.Printf("upstream: bad depth snapshot for %s: %v", env.Symbol, err)
			return
		}
		msg.Snapshot = &s
	case "depthDiff":
		var d DepthDiff
		if err := json.Unmarshal(raw, &d); err != nil {
			log.Printf("upstream: bad depth diff for %s: %v", env.Symbol, err)
			return
		}
		msg.Diff = &d
	case "trade":
		var t Trade
		if err := json.Unmarshal(raw, &t); err != nil {
			log.Printf("upstream: bad trade for %s: %v", env.Symbol, err)
			return
		}
		msg.Trade = &t
	case "funding":
		var fr FundingTick
		if err := json.Unmarshal(raw, &fr); err != nil {
			log.Printf("upstream: bad funding tick for %s: %v", env.Symbol, err)
			return
		}
		msg.Funding = &fr
	case "openInterest":
		var oi OpenInterestPoll
		if err := json.Unmarshal(raw, &oi); err != nil {
			log.Printf("upstream: bad open interest poll for %s: %v", env.Symbol, err)
			return
		}
		msg.OI = &oi
	default:
		return
	}

	f.mu.RLock()
	subs := f.subscribers[env.Symbol]
	f.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			log.Printf("upstream: subscriber channel full for %s, dropping %s frame", env.Symbol, env.Kind)
		}
	}
}
