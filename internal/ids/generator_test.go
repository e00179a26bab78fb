package ids

import (
	"regexp"
	"testing"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestDeterministicAcrossGenerators(t *testing.T) {
	a := New("run-1")
	b := New("run-1")

	for i := 0; i < 5; i++ {
		wantOrder := a.NextOrderID("BTC-PERP", "buy")
		gotOrder := b.NextOrderID("BTC-PERP", "buy")
		if wantOrder != gotOrder {
			t.Fatalf("order id %d: %s != %s", i, wantOrder, gotOrder)
		}
	}
}

func TestDifferentRunsDiverge(t *testing.T) {
	a := New("run-1")
	b := New("run-2")
	if a.NextOrderID("x") == b.NextOrderID("x") {
		t.Fatal("different runIDs produced identical IDs")
	}
}

func TestKindsAreIndependentCounters(t *testing.T) {
	g := New("run-1")
	order := g.NextOrderID("x")
	trade := g.NextTradeID("x")
	event := g.NextEventID("x")
	if order == trade || order == event || trade == event {
		t.Fatal("distinct kinds collided")
	}
}

func TestNeverMatchesUUIDFormat(t *testing.T) {
	g := New("run-1")
	for i := 0; i < 20; i++ {
		if uuidRe.MatchString(g.NextOrderID(i)) {
			t.Fatalf("generated ID matches UUID canonical format")
		}
	}
}

func TestSalientInputsChangeID(t *testing.T) {
	a := New("run-1")
	b := New("run-1")
	if a.NextOrderID("BTC-PERP") == b.NextOrderID("ETH-PERP") {
		t.Fatal("different salient inputs produced identical IDs at the same counter value")
	}
}
