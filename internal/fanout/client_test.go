package fanout

import (
	"sync/atomic"
	"testing"
)

func newTestClient(bufSize int) *Client {
	return NewClient(nil, bufSize, false)
}

func TestSubscribe(t *testing.T) {
	c := newTestClient(10)
	c.Subscribe([]string{"BTC-PERP", "ETH-PERP"})
	if !c.IsSubscribed("BTC-PERP") {
		t.Fatal("should be subscribed to BTC-PERP")
	}
	if c.IsSubscribed("SOL-PERP") {
		t.Fatal("should not be subscribed to SOL-PERP")
	}
}

func TestSubscribeAll(t *testing.T) {
	c := newTestClient(10)
	c.SubscribeAll()
	if !c.IsSubscribed("ANYTHING-PERP") {
		t.Fatal("should be subscribed to any symbol after SubscribeAll")
	}
}

func TestUnsubscribe(t *testing.T) {
	c := newTestClient(10)
	c.Subscribe([]string{"BTC-PERP", "ETH-PERP"})
	c.Unsubscribe([]string{"ETH-PERP"})
	if c.IsSubscribed("ETH-PERP") {
		t.Fatal("should not be subscribed to ETH-PERP after unsubscribe")
	}
	if !c.IsSubscribed("BTC-PERP") {
		t.Fatal("should still be subscribed to BTC-PERP")
	}
}

func TestSendBufferFull(t *testing.T) {
	c := newTestClient(2)
	ok1 := c.Send([]byte("msg1"))
	ok2 := c.Send([]byte("msg2"))
	ok3 := c.Send([]byte("msg3"))
	if !ok1 || !ok2 {
		t.Fatal("first two sends should succeed")
	}
	if ok3 {
		t.Fatal("third send should fail (buffer full)")
	}
	if atomic.LoadUint64(&c.Dropped) != 1 {
		t.Fatalf("Dropped = %d, want 1", c.Dropped)
	}
}

func TestSendDropOldestEvictsOldestNotNewest(t *testing.T) {
	c := newTestClient(2)
	c.SendDropOldest([]byte("a"))
	c.SendDropOldest([]byte("b"))
	c.SendDropOldest([]byte("c")) // evicts "a"

	first := <-c.SendCh()
	second := <-c.SendCh()
	if string(first) != "b" || string(second) != "c" {
		t.Fatalf("expected drop-oldest to keep [b c], got [%s %s]", first, second)
	}
	if atomic.LoadUint64(&c.Dropped) != 1 {
		t.Fatalf("Dropped = %d, want 1", c.Dropped)
	}
}

func TestUniqueIDs(t *testing.T) {
	atomic.StoreUint64(&clientIDCounter, 0)
	c1 := newTestClient(10)
	c2 := newTestClient(10)
	c3 := newTestClient(10)
	if c1.ID == c2.ID || c2.ID == c3.ID || c1.ID == c3.ID {
		t.Fatalf("client IDs should be unique: %d, %d, %d", c1.ID, c2.ID, c3.ID)
	}
}

func TestReadOnlyFlag(t *testing.T) {
	c := NewClient(nil, 10, true)
	if !c.ReadOnly() {
		t.Fatal("expected ReadOnly client to report ReadOnly() true")
	}
}
