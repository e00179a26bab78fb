package upstream

import (
	"testing"
	"time"
)

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	if got := nextBackoff(time.Second, 30*time.Second); got != 2*time.Second {
		t.Fatalf("expected doubling to 2s, got %v", got)
	}
	if got := nextBackoff(20*time.Second, 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected cap at 30s, got %v", got)
	}
}

func TestJitterStaysWithinBand(t *testing.T) {
	base := 10 * time.Second
	for i := 0; i < 50; i++ {
		j := jitter(base)
		if j < base-2*time.Second || j > base+2*time.Second {
			t.Fatalf("jitter %v outside expected +/-20%% band around %v", j, base)
		}
	}
}

func TestDispatchRoutesBySymbolAndKind(t *testing.T) {
	f := New(Config{})
	ch := make(chan StreamMessage, 4)
	f.Subscribe("BTCUSDT", ch)

	f.dispatch([]byte(`{"symbol":"BTCUSDT","kind":"trade","ts":1000,"price":"100.5","qty":"2","isBuyerMaker":true}`))
	f.dispatch([]byte(`{"symbol":"ETHUSDT","kind":"trade","ts":1000,"price":"10","qty":"1"}`))

	select {
	case msg := <-ch:
		if msg.Trade == nil || msg.Symbol != "BTCUSDT" {
			t.Fatalf("expected a BTCUSDT trade message, got %+v", msg)
		}
	default:
		t.Fatal("expected a message to be delivered for the subscribed symbol")
	}

	select {
	case msg := <-ch:
		t.Fatalf("expected no message for unsubscribed symbol, got %+v", msg)
	default:
	}
}

func TestDispatchDropsUnknownKind(t *testing.T) {
	f := New(Config{})
	ch := make(chan StreamMessage, 4)
	f.Subscribe("BTCUSDT", ch)

	f.dispatch([]byte(`{"symbol":"BTCUSDT","kind":"unknown"}`))

	select {
	case msg := <-ch:
		t.Fatalf("expected unknown-kind frames to be dropped, got %+v", msg)
	default:
	}
}

func TestDispatchDepthSnapshotAndDiff(t *testing.T) {
	f := New(Config{})
	ch := make(chan StreamMessage, 4)
	f.Subscribe("BTCUSDT", ch)

	f.dispatch([]byte(`{"symbol":"BTCUSDT","kind":"depthSnapshot","lastUpdateId":5,"bids":[["100","2"]],"asks":[["101","3"]]}`))
	msg := <-ch
	if msg.Snapshot == nil || msg.Snapshot.LastUpdateID != 5 {
		t.Fatalf("expected a decoded depth snapshot, got %+v", msg)
	}

	f.dispatch([]byte(`{"symbol":"BTCUSDT","kind":"depthDiff","U":5,"u":6,"b":[["100","1"]],"a":[]}`))
	msg2 := <-ch
	if msg2.Diff == nil || msg2.Diff.FinalUpdateID != 6 {
		t.Fatalf("expected a decoded depth diff, got %+v", msg2)
	}
}
