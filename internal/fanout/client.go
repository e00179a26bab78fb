package fanout

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Client represents one connected WebSocket client subscribed to a
// set of symbols. Adapted from the teacher's session.Client: the
// locate-code subscription set becomes a symbol-string set, and the
// JSON/binary format switch is dropped since the client wire format
// here is always a JSON metrics frame (spec.md §6).
type Client struct {
	ID   uint64
	Conn *websocket.Conn

	mu         sync.RWMutex
	symbols    map[string]bool
	allSymbols bool
	readOnly   bool

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// Dropped counts frames lost to a full queue: queued frames that
	// SendDropOldest evicts, and frames that Send refuses (which
	// includes integrity/status messages sent through Send).
	Dropped uint64
}

var clientIDCounter uint64

// NewClient wraps a WebSocket connection with a bounded send queue.
func NewClient(conn *websocket.Conn, bufferSize int, readOnly bool) *Client {
	return &Client{
		ID:       atomic.AddUint64(&clientIDCounter, 1),
		Conn:     conn,
		symbols:  make(map[string]bool),
		readOnly: readOnly,
		sendCh:   make(chan []byte, bufferSize),
		done:     make(chan struct{}),
	}
}

// ReadOnly reports whether this client holds only a viewer token.
func (c *Client) ReadOnly() bool { return c.readOnly }

// Subscribe adds symbols to this client's subscription set.
func (c *Client) Subscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbols {
		c.symbols[s] = true
	}
}

// SubscribeAll subscribes the client to every symbol the process serves.
func (c *Client) SubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allSymbols = true
}

// Unsubscribe removes symbols from the subscription set.
func (c *Client) Unsubscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbols {
		delete(c.symbols, s)
	}
}

// IsSubscribed reports whether the client should receive frames for symbol.
func (c *Client) IsSubscribed(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.allSymbols {
		return true
	}
	return c.symbols[symbol]
}

// Send enqueues data for delivery. Returns false if the client's queue
// is full; the caller is expected to drop the oldest queued metrics
// frame and retry, never to drop an integrity/status message (spec.md
// §4.10).
func (c *Client) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		atomic.AddUint64(&c.Dropped, 1)
		return false
	}
}

// SendDropOldest enqueues data, evicting the oldest queued frame first
// if the queue is full, so metrics frames never block the broadcaster
// and delivery stays in produced order for what remains queued.
func (c *Client) SendDropOldest(data []byte) {
	for {
		select {
		case c.sendCh <- data:
			return
		default:
			select {
			case <-c.sendCh:
				atomic.AddUint64(&c.Dropped, 1)
			default:
			}
		}
	}
}

// SendCh exposes the outbound queue for the write pump.
func (c *Client) SendCh() <-chan []byte { return c.sendCh }

// Done is closed when the client disconnects.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close terminates the client connection, idempotently.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}
