package fanout

import (
	"encoding/json"
	"log"
	"sync"
)

// Manager handles client registration, subscriptions, and frame
// fan-out across all symbols the process serves. Adapted from the
// teacher's session.Manager: the ticker→locate-code map is dropped
// since symbols here are addressed by string directly, and Broadcast
// now takes one composed Snapshot rather than an ITCH message batch.
type Manager struct {
	mu         sync.RWMutex
	clients    map[uint64]*Client
	bufferSize int
}

// NewManager creates a fan-out manager. bufferSize bounds each
// client's outbound queue before drop-oldest backpressure kicks in.
func NewManager(bufferSize int) *Manager {
	return &Manager{clients: make(map[uint64]*Client), bufferSize: bufferSize}
}

// Register adds a newly connected client.
func (m *Manager) Register(c *Client) {
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()
	log.Printf("fanout: client %d connected", c.ID)
}

// Unregister removes and closes a client.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	delete(m.clients, c.ID)
	m.mu.Unlock()
	c.Close()
	log.Printf("fanout: client %d disconnected (dropped %d frames)", c.ID, c.Dropped)
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// BroadcastSnapshot encodes snap once and fans it out to every client
// subscribed to snap.Symbol, dropping the oldest queued metrics frame
// per client on backpressure rather than blocking (spec.md §4.10).
func (m *Manager) BroadcastSnapshot(snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("fanout: snapshot encode error for %s: %v", snap.Symbol, err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if !c.IsSubscribed(snap.Symbol) {
			continue
		}
		c.SendDropOldest(data)
	}
}

// BroadcastIntegrity fans out an integrity/status message to every
// subscribed client without backpressure drop: these frames are never
// dropped (spec.md §4.10), so delivery uses the blocking-safe Send and
// simply counts a failure if a client's queue is already saturated by
// its own slow consumer rather than evicting metrics traffic to make
// room.
func (m *Manager) BroadcastIntegrity(msg IntegrityMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("fanout: integrity encode error for %s: %v", msg.Symbol, err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if !c.IsSubscribed(msg.Symbol) {
			continue
		}
		if !c.Send(data) {
			log.Printf("fanout: client %d queue saturated, integrity message for %s delayed", c.ID, msg.Symbol)
		}
	}
}
