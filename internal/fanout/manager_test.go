package fanout

import "testing"

func TestManagerRegisterUnregister(t *testing.T) {
	m := NewManager(10)
	c := newTestClient(10)
	m.Register(c)
	if m.ClientCount() != 1 {
		t.Fatalf("expected 1 client registered, got %d", m.ClientCount())
	}
	m.Unregister(c)
	if m.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unregister, got %d", m.ClientCount())
	}
}

func TestBroadcastSnapshotOnlyReachesSubscribedClients(t *testing.T) {
	m := NewManager(10)
	subscribed := newTestClient(10)
	subscribed.Subscribe([]string{"BTC-PERP"})
	other := newTestClient(10)
	other.Subscribe([]string{"ETH-PERP"})
	m.Register(subscribed)
	m.Register(other)

	m.BroadcastSnapshot(Snapshot{Type: "metrics", Symbol: "BTC-PERP"})

	select {
	case <-subscribed.SendCh():
	default:
		t.Fatal("expected subscribed client to receive the snapshot")
	}
	select {
	case <-other.SendCh():
		t.Fatal("expected unsubscribed client to receive nothing")
	default:
	}
}

func TestBroadcastIntegrityReachesSubscribedClients(t *testing.T) {
	m := NewManager(10)
	c := newTestClient(10)
	c.SubscribeAll()
	m.Register(c)

	m.BroadcastIntegrity(IntegrityMessage{Type: "integrity", Symbol: "BTC-PERP", Level: "CRITICAL", Message: "gap detected"})

	select {
	case <-c.SendCh():
	default:
		t.Fatal("expected integrity message to be delivered")
	}
}
