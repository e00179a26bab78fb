// Package tape aggregates a symbol's trade prints into rolling windows,
// cumulative volume delta (CVD) bars, burst detection, and a decaying
// prints-per-second rate (spec.md §4.4).
//
// Grounded on the teacher's engine.RNG Gaussian/EWMA-style running
// statistics (internal/engine/random.go) for the rolling mean/variance
// idiom, and on the teacher's per-symbol single-owner access pattern
// (no internal locking, exactly like orderbook.Simulator) since a Tape
// is only ever touched by the Symbol Coordinator's owning goroutine.
package tape

import "math"

// Aggressor is which side crossed the spread to trigger the trade.
type Aggressor int

const (
	AggressorBuy Aggressor = iota
	AggressorSell
)

// Trade is a single print fed into the tape.
type Trade struct {
	TsMs      int64
	Price     float64
	Qty       float64
	Aggressor Aggressor
}

// CVDState tiers a timeframe's delta z-score against a configurable
// band.
type CVDState int

const (
	CVDNormal CVDState = iota
	CVDHighVol
	CVDExtreme
)

func (s CVDState) String() string {
	switch s {
	case CVDHighVol:
		return "HighVol"
	case CVDExtreme:
		return "Extreme"
	default:
		return "Normal"
	}
}

// TimeframeCVD is the carried-forward CVD state for one bar timeframe
// (spec.md §3's "Timeframe CVD state").
type TimeframeCVD struct {
	CVD   float64
	Delta float64
	State CVDState

	barStartMs int64
	barQtyBuy  float64
	barQtySell float64
}

// bucket accumulates signed volume and trade counts over a fixed window,
// implemented as a ring of 1-second slots so old contributions age out
// without rescanning every trade.
type bucket struct {
	windowMs int64
	slotMs   int64
	slots    []slot
}

type slot struct {
	slotIdx   int64
	buyQty    float64
	sellQty   float64
	buyCount  int
	sellCount int
}

func newBucket(windowMs, slotMs int64) *bucket {
	n := int(windowMs / slotMs)
	if n < 1 {
		n = 1
	}
	return &bucket{windowMs: windowMs, slotMs: slotMs, slots: make([]slot, n)}
}

func (b *bucket) add(tsMs int64, qty float64, buy bool) {
	idx := tsMs / b.slotMs
	pos := int(((idx % int64(len(b.slots))) + int64(len(b.slots))) % int64(len(b.slots)))
	if b.slots[pos].slotIdx != idx {
		b.slots[pos] = slot{slotIdx: idx}
	}
	if buy {
		b.slots[pos].buyQty += qty
		b.slots[pos].buyCount++
	} else {
		b.slots[pos].sellQty += qty
		b.slots[pos].sellCount++
	}
}

// sums returns (buyQty, sellQty, buyCount, sellCount) for slots whose
// index falls within [nowIdx - n + 1, nowIdx].
func (b *bucket) sums(nowTsMs int64) (buyQty, sellQty float64, buyCount, sellCount int) {
	nowIdx := nowTsMs / b.slotMs
	minIdx := nowIdx - int64(len(b.slots)) + 1
	for _, s := range b.slots {
		if s.slotIdx >= minIdx && s.slotIdx <= nowIdx {
			buyQty += s.buyQty
			sellQty += s.sellQty
			buyCount += s.buyCount
			sellCount += s.sellCount
		}
	}
	return
}

// BucketSize classifies a trade's notional qty into small/mid/large.
type BucketSize int

const (
	BucketSmall BucketSize = iota
	BucketMid
	BucketLarge
)

// Config tunes the size-bucket thresholds and burst window.
type Config struct {
	MidQtyThreshold   float64
	LargeQtyThreshold float64
	BurstMinStreak    int
	EWMAHalfLifeSec   float64
}

// DefaultConfig returns illustrative thresholds; callers override from
// instrument metadata (tick/lot size varies per perp contract).
func DefaultConfig() Config {
	return Config{MidQtyThreshold: 1, LargeQtyThreshold: 10, BurstMinStreak: 4, EWMAHalfLifeSec: 5}
}

// Snapshot is the point-in-time read of a Tape's rolling state,
// returned to the microstructure derivators and the fan-out assembler.
type Snapshot struct {
	DeltaZ          float64
	CVD1m           TimeframeCVD
	CVD5m           TimeframeCVD
	CVD15m          TimeframeCVD
	BurstSide       Aggressor
	BurstCount      int
	BurstActive     bool
	PrintsPerSecond float64

	BuyVolSmall, SellVolSmall float64
	BuyVolMid, SellVolMid     float64
	BuyVolLarge, SellVolLarge float64
}

// Tape owns the rolling windows for one symbol. Single-owner; no
// internal mutex (matches the orderbook.Book-per-pipeline ownership
// model — the coordinator serializes access).
type Tape struct {
	cfg Config

	w1s  *bucket
	w5s  *bucket
	w1m  *bucket
	w5m  *bucket
	w15m *bucket

	cvd1m  TimeframeCVD
	cvd5m  TimeframeCVD
	cvd15m TimeframeCVD

	deltaMean float64
	deltaVar  float64
	deltaN    int

	lastSide      Aggressor
	streak        int
	haveLastSide  bool

	ewmaPrintRate float64
	lastTradeTsMs int64
	haveLastTrade bool

	// Cumulative volume by size bucket. Running totals rather than a
	// rolling window: the spec only requires a per-bucket split of
	// aggressive volume, not a decaying one, so a simple accumulator
	// suffices and avoids tripling the ring-buffer bookkeeping above.
	sizeBuySmall, sizeSellSmall float64
	sizeBuyMid, sizeSellMid     float64
	sizeBuyLarge, sizeSellLarge float64
}

// New constructs an empty Tape.
func New(cfg Config) *Tape {
	return &Tape{
		cfg:  cfg,
		w1s:  newBucket(1_000, 1_000),
		w5s:  newBucket(5_000, 1_000),
		w1m:  newBucket(60_000, 1_000),
		w5m:  newBucket(300_000, 5_000),
		w15m: newBucket(900_000, 5_000),
	}
}

// Add feeds one trade print into all rolling windows.
func (t *Tape) Add(tr Trade) {
	buy := tr.Aggressor == AggressorBuy

	t.w1s.add(tr.TsMs, tr.Qty, buy)
	t.w5s.add(tr.TsMs, tr.Qty, buy)
	t.w1m.add(tr.TsMs, tr.Qty, buy)
	t.w5m.add(tr.TsMs, tr.Qty, buy)
	t.w15m.add(tr.TsMs, tr.Qty, buy)

	switch t.ClassifyBucket(tr.Qty) {
	case BucketSmall:
		if buy {
			t.sizeBuySmall += tr.Qty
		} else {
			t.sizeSellSmall += tr.Qty
		}
	case BucketMid:
		if buy {
			t.sizeBuyMid += tr.Qty
		} else {
			t.sizeSellMid += tr.Qty
		}
	default:
		if buy {
			t.sizeBuyLarge += tr.Qty
		} else {
			t.sizeSellLarge += tr.Qty
		}
	}

	signed := tr.Qty
	if !buy {
		signed = -signed
	}
	t.updateDeltaZ(tr.TsMs, signed)
	t.rotateAndAccumulate(&t.cvd1m, 60_000, tr.TsMs, tr.Qty, buy)
	t.rotateAndAccumulate(&t.cvd5m, 300_000, tr.TsMs, tr.Qty, buy)
	t.rotateAndAccumulate(&t.cvd15m, 900_000, tr.TsMs, tr.Qty, buy)

	t.updateBurst(tr.Aggressor)
	t.updatePrintRate(tr.TsMs)
}

// updateDeltaZ maintains a running mean/variance of the 5s-window signed
// delta (Welford's online algorithm) so deltaZ doesn't require
// revisiting trade history.
func (t *Tape) updateDeltaZ(tsMs int64, signedQty float64) {
	buyQty, sellQty, _, _ := t.w5s.sums(tsMs)
	delta := buyQty - sellQty

	t.deltaN++
	d := delta - t.deltaMean
	t.deltaMean += d / float64(t.deltaN)
	d2 := delta - t.deltaMean
	t.deltaVar += d * d2
}

// deltaZCurrent returns the current z-score of the 5s-window delta
// against the running mean/variance (nil-safe: 0 until variance is
// established).
func (t *Tape) deltaZCurrent(nowTsMs int64) float64 {
	if t.deltaN < 2 {
		return 0
	}
	variance := t.deltaVar / float64(t.deltaN-1)
	if variance <= 0 {
		return 0
	}
	stddev := math.Sqrt(variance)
	buyQty, sellQty, _, _ := t.w5s.sums(nowTsMs)
	delta := buyQty - sellQty
	return (delta - t.deltaMean) / stddev
}

// rotateAndAccumulate rolls a CVD bar forward when the trade crosses a
// bar boundary, then folds the trade's signed qty into cvd/delta.
func (t *Tape) rotateAndAccumulate(tf *TimeframeCVD, barMs, tsMs int64, qty float64, buy bool) {
	barStart := (tsMs / barMs) * barMs
	if barStart != tf.barStartMs {
		tf.Delta = tf.barQtyBuy - tf.barQtySell
		tf.barQtyBuy = 0
		tf.barQtySell = 0
	}
	tf.barStartMs = barStart

	signed := qty
	if !buy {
		signed = -signed
		tf.barQtySell += qty
	} else {
		tf.barQtyBuy += qty
	}
	tf.CVD += signed
	tf.Delta = tf.barQtyBuy - tf.barQtySell

	absDelta := math.Abs(tf.Delta)
	switch {
	case absDelta > 3*tf.bandReference():
		tf.State = CVDExtreme
	case absDelta > tf.bandReference():
		tf.State = CVDHighVol
	default:
		tf.State = CVDNormal
	}
}

// bandReference is a simple fixed reference band; tuned per instrument
// in production via config, held constant here since spec.md leaves the
// exact banding to the implementer.
func (tf *TimeframeCVD) bandReference() float64 {
	return 1.0
}

func (t *Tape) updateBurst(side Aggressor) {
	if t.haveLastSide && side == t.lastSide {
		t.streak++
	} else {
		t.lastSide = side
		t.streak = 1
		t.haveLastSide = true
	}
}

// updatePrintRate maintains a decaying EWMA of prints-per-second.
func (t *Tape) updatePrintRate(tsMs int64) {
	if !t.haveLastTrade {
		t.lastTradeTsMs = tsMs
		t.haveLastTrade = true
		t.ewmaPrintRate = 0
		return
	}
	dtSec := float64(tsMs-t.lastTradeTsMs) / 1000.0
	t.lastTradeTsMs = tsMs
	if dtSec <= 0 {
		dtSec = 0.001
	}
	instantRate := 1.0 / dtSec
	// Half-life decay: alpha derived from half-life and elapsed time.
	alpha := 1 - math.Pow(0.5, dtSec/t.cfg.EWMAHalfLifeSec)
	t.ewmaPrintRate += alpha * (instantRate - t.ewmaPrintRate)
}

// Snapshot returns the current rolling state as of nowTsMs.
func (t *Tape) Snapshot(nowTsMs int64) Snapshot {
	buySmall, sellSmall := t.sumBySize(nowTsMs, BucketSmall)
	buyMid, sellMid := t.sumBySize(nowTsMs, BucketMid)
	buyLarge, sellLarge := t.sumBySize(nowTsMs, BucketLarge)

	burstActive := t.streak >= t.cfg.BurstMinStreak

	return Snapshot{
		DeltaZ:          t.deltaZCurrent(nowTsMs),
		CVD1m:           t.cvd1m,
		CVD5m:           t.cvd5m,
		CVD15m:          t.cvd15m,
		BurstSide:       t.lastSide,
		BurstCount:      t.streak,
		BurstActive:     burstActive,
		PrintsPerSecond: t.ewmaPrintRate,
		BuyVolSmall:     buySmall,
		SellVolSmall:    sellSmall,
		BuyVolMid:       buyMid,
		SellVolMid:      sellMid,
		BuyVolLarge:     buyLarge,
		SellVolLarge:    sellLarge,
	}
}

// sumBySize returns the cumulative buy/sell volume for a size bucket.
func (t *Tape) sumBySize(_ int64, size BucketSize) (buy, sell float64) {
	switch size {
	case BucketSmall:
		return t.sizeBuySmall, t.sizeSellSmall
	case BucketMid:
		return t.sizeBuyMid, t.sizeSellMid
	default:
		return t.sizeBuyLarge, t.sizeSellLarge
	}
}

// ClassifyBucket reports which size bucket a trade's quantity falls
// into, given the tape's configured thresholds.
func (t *Tape) ClassifyBucket(qty float64) BucketSize {
	switch {
	case qty >= t.cfg.LargeQtyThreshold:
		return BucketLarge
	case qty >= t.cfg.MidQtyThreshold:
		return BucketMid
	default:
		return BucketSmall
	}
}
