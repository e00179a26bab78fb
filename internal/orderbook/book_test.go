package orderbook

import (
	"testing"
	"time"
)

func TestUnknownUntilSnapshot(t *testing.T) {
	b := New(DefaultConfig())
	if b.State() != StateUnknown {
		t.Fatal("new book should start UNKNOWN")
	}
	if _, ok := b.BestBid(); ok {
		t.Fatal("empty book should have no best bid")
	}
}

func TestSnapshotTransitionsToLive(t *testing.T) {
	b := New(DefaultConfig())
	now := time.Unix(1000, 0)
	b.ApplySnapshot(1, []Level{{Price: 100, Qty: 1}}, []Level{{Price: 101, Qty: 1}}, now)
	if b.State() != StateLive {
		t.Fatalf("state = %v, want LIVE", b.State())
	}
	bid, ok := b.BestBid()
	if !ok || bid != 100 {
		t.Fatalf("BestBid = %v,%v want 100,true", bid, ok)
	}
	ask, ok := b.BestAsk()
	if !ok || ask != 101 {
		t.Fatalf("BestAsk = %v,%v want 101,true", ask, ok)
	}
}

func TestSnapshotSortsAndDescendsBids(t *testing.T) {
	b := New(DefaultConfig())
	now := time.Unix(1000, 0)
	b.ApplySnapshot(1, []Level{{Price: 98, Qty: 1}, {Price: 100, Qty: 1}, {Price: 99, Qty: 1}}, nil, now)
	bids, _ := b.DepthAt(3)
	if bids[0].Price != 100 || bids[1].Price != 99 || bids[2].Price != 98 {
		t.Fatalf("bids not descending: %v", bids)
	}
}

func TestContiguousDiffUpdatesLevel(t *testing.T) {
	b := New(DefaultConfig())
	now := time.Unix(1000, 0)
	b.ApplySnapshot(10, []Level{{Price: 100, Qty: 1}}, []Level{{Price: 101, Qty: 1}}, now)

	res := b.ApplyDiff(11, 11, []Level{{Price: 100, Qty: 5}}, nil, now, now)
	if !res.OK {
		t.Fatalf("contiguous diff should apply cleanly, got reason %q", res.Reason)
	}
	if b.LevelSize(100, true) != 5 {
		t.Fatalf("LevelSize = %v, want 5", b.LevelSize(100, true))
	}
}

func TestDiffDeletesZeroQtyLevel(t *testing.T) {
	b := New(DefaultConfig())
	now := time.Unix(1000, 0)
	b.ApplySnapshot(10, []Level{{Price: 100, Qty: 1}}, nil, now)
	b.ApplyDiff(11, 11, []Level{{Price: 100, Qty: 0}}, nil, now, now)
	if _, ok := b.BestBid(); ok {
		t.Fatal("level with qty 0 should have been deleted")
	}
}

func TestGapTriggersResync(t *testing.T) {
	b := New(DefaultConfig())
	now := time.Unix(1000, 0)
	b.ApplySnapshot(10, []Level{{Price: 100, Qty: 1}}, nil, now)

	res := b.ApplyDiff(15, 15, []Level{{Price: 101, Qty: 1}}, nil, now, now)
	if res.OK {
		t.Fatal("diff with a gap should not apply")
	}
	if res.Reason != "gap" {
		t.Fatalf("reason = %q, want gap", res.Reason)
	}
	if b.State() != StateResyncing {
		t.Fatalf("state = %v, want RESYNCING", b.State())
	}
}

func TestFreshSnapshotRecoversFromResync(t *testing.T) {
	b := New(DefaultConfig())
	now := time.Unix(1000, 0)
	b.ApplySnapshot(10, []Level{{Price: 100, Qty: 1}}, nil, now)
	b.ApplyDiff(15, 15, nil, nil, now, now)
	if b.State() != StateResyncing {
		t.Fatal("expected RESYNCING before recovery snapshot")
	}
	b.ApplySnapshot(50, []Level{{Price: 100, Qty: 1}}, nil, now)
	if b.State() != StateLive {
		t.Fatalf("state after fresh snapshot = %v, want LIVE", b.State())
	}
}

func TestStalenessDemotesToStaleThenResync(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StaleMs = 100
	cfg.CritMs = 500
	b := New(cfg)
	base := time.Unix(1000, 0)
	b.ApplySnapshot(1, []Level{{Price: 100, Qty: 1}}, nil, base)

	mid := b.Integrity(base.Add(200 * time.Millisecond))
	if mid.Level != IntegrityDegraded {
		t.Fatalf("integrity at 200ms staleness = %v, want DEGRADED", mid.Level)
	}
	if b.State() != StateStale {
		t.Fatalf("state at 200ms staleness = %v, want STALE", b.State())
	}

	late := b.Integrity(base.Add(600 * time.Millisecond))
	if late.Level != IntegrityCritical {
		t.Fatalf("integrity at 600ms staleness = %v, want CRITICAL", late.Level)
	}
	if b.State() != StateResyncing {
		t.Fatalf("state at 600ms staleness = %v, want RESYNCING", b.State())
	}
}

func TestCrossedBookDetected(t *testing.T) {
	b := New(DefaultConfig())
	now := time.Unix(1000, 0)
	b.ApplySnapshot(1, []Level{{Price: 101, Qty: 1}}, []Level{{Price: 100, Qty: 1}}, now)
	integ := b.Integrity(now)
	if !integ.CrossedBookDetected {
		t.Fatal("bid >= ask should be reported as a crossed book")
	}
	if _, ok := b.BestBid(); !ok {
		t.Fatal("crossed book should still be kept, not cleared")
	}
}

func TestReconnectRecommendedLatches(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GapRecommendThreshold = 2
	b := New(cfg)
	now := time.Unix(1000, 0)
	b.ApplySnapshot(1, []Level{{Price: 100, Qty: 1}}, nil, now)

	b.ApplyDiff(5, 5, nil, nil, now, now)
	b.ApplyDiff(9, 9, nil, nil, now, now)

	integ := b.Integrity(now)
	if !integ.ReconnectRecommended {
		t.Fatal("reconnect should be recommended after hitting gap threshold")
	}

	b.ApplySnapshot(50, []Level{{Price: 100, Qty: 1}}, nil, now)
	integ = b.Integrity(now)
	if integ.ReconnectRecommended {
		t.Fatal("fresh snapshot should clear the reconnect latch")
	}
}

func TestMaxLevelsTrimming(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLevels = 3
	b := New(cfg)
	now := time.Unix(1000, 0)
	var bids []Level
	for i := 0; i < 10; i++ {
		bids = append(bids, Level{Price: float64(100 - i), Qty: 1})
	}
	b.ApplySnapshot(1, bids, nil, now)
	got, _ := b.DepthAt(10)
	if len(got) != 3 {
		t.Fatalf("depth length = %d, want 3 (trimmed to MaxLevels)", len(got))
	}
}
