package tape

import "testing"

func TestCVDAccumulatesSignedVolume(t *testing.T) {
	tp := New(DefaultConfig())
	tp.Add(Trade{TsMs: 1000, Qty: 2, Aggressor: AggressorBuy})
	tp.Add(Trade{TsMs: 2000, Qty: 1, Aggressor: AggressorSell})
	snap := tp.Snapshot(2000)
	if snap.CVD1m.CVD != 1 {
		t.Fatalf("CVD1m.CVD = %v, want 1 (2 buy - 1 sell)", snap.CVD1m.CVD)
	}
}

func TestCVDRotatesAtBarBoundary(t *testing.T) {
	tp := New(DefaultConfig())
	tp.Add(Trade{TsMs: 1000, Qty: 5, Aggressor: AggressorBuy})
	before := tp.Snapshot(1000).CVD1m.Delta
	if before != 5 {
		t.Fatalf("delta before rotation = %v, want 5", before)
	}
	tp.Add(Trade{TsMs: 61_000, Qty: 2, Aggressor: AggressorSell})
	after := tp.Snapshot(61_000).CVD1m.Delta
	if after != -2 {
		t.Fatalf("delta after rotation = %v, want -2 (new bar)", after)
	}
}

func TestBurstDetection(t *testing.T) {
	tp := New(DefaultConfig())
	for i := 0; i < 5; i++ {
		tp.Add(Trade{TsMs: int64(1000 * (i + 1)), Qty: 1, Aggressor: AggressorBuy})
	}
	snap := tp.Snapshot(5000)
	if !snap.BurstActive {
		t.Fatal("5 consecutive buys should trigger a burst")
	}
	if snap.BurstCount != 5 {
		t.Fatalf("BurstCount = %d, want 5", snap.BurstCount)
	}
}

func TestBurstResetsOnSideChange(t *testing.T) {
	tp := New(DefaultConfig())
	tp.Add(Trade{TsMs: 1000, Qty: 1, Aggressor: AggressorBuy})
	tp.Add(Trade{TsMs: 2000, Qty: 1, Aggressor: AggressorBuy})
	tp.Add(Trade{TsMs: 3000, Qty: 1, Aggressor: AggressorSell})
	snap := tp.Snapshot(3000)
	if snap.BurstCount != 1 {
		t.Fatalf("BurstCount after side flip = %d, want 1", snap.BurstCount)
	}
}

func TestSizeBucketClassification(t *testing.T) {
	cfg := DefaultConfig()
	tp := New(cfg)
	tp.Add(Trade{TsMs: 1000, Qty: 0.5, Aggressor: AggressorBuy})  // small
	tp.Add(Trade{TsMs: 2000, Qty: 5, Aggressor: AggressorBuy})    // mid
	tp.Add(Trade{TsMs: 3000, Qty: 20, Aggressor: AggressorSell})  // large

	snap := tp.Snapshot(3000)
	if snap.BuyVolSmall != 0.5 {
		t.Fatalf("BuyVolSmall = %v, want 0.5", snap.BuyVolSmall)
	}
	if snap.BuyVolMid != 5 {
		t.Fatalf("BuyVolMid = %v, want 5", snap.BuyVolMid)
	}
	if snap.SellVolLarge != 20 {
		t.Fatalf("SellVolLarge = %v, want 20", snap.SellVolLarge)
	}
}

func TestPrintsPerSecondEWMAIsPositiveAfterTrades(t *testing.T) {
	tp := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		tp.Add(Trade{TsMs: int64(500 * i), Qty: 1, Aggressor: AggressorBuy})
	}
	snap := tp.Snapshot(5000)
	if snap.PrintsPerSecond <= 0 {
		t.Fatalf("PrintsPerSecond = %v, want > 0 after steady trade flow", snap.PrintsPerSecond)
	}
}

func TestDeltaZZeroBeforeVarianceEstablished(t *testing.T) {
	tp := New(DefaultConfig())
	tp.Add(Trade{TsMs: 1000, Qty: 1, Aggressor: AggressorBuy})
	snap := tp.Snapshot(1000)
	if snap.DeltaZ != 0 {
		t.Fatalf("DeltaZ with a single sample = %v, want 0", snap.DeltaZ)
	}
}
