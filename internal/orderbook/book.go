// Package orderbook maintains a top-N limit order book reconciled from an
// upstream snapshot+diff feed, with gap detection and a resync state
// machine (spec.md §4.3).
//
// Grounded on the teacher's internal/orderbook.Book: the sorted
// price/qty level slices and RWMutex locking discipline carry over
// directly, generalized from a locally-simulated maker/taker book
// (Add/Cancel/Replace/Trade actions driving per-order state) to a book
// driven entirely by external snapshot and diff frames, with no concept
// of individual resting orders.
package orderbook

import (
	"sort"
	"sync"
	"time"
)

// State is the reconciliation lifecycle of a Book.
type State int

const (
	StateUnknown State = iota
	StateLive
	StateStale
	StateResyncing
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "LIVE"
	case StateStale:
		return "STALE"
	case StateResyncing:
		return "RESYNCING"
	default:
		return "UNKNOWN"
	}
}

// IntegrityLevel classifies how trustworthy the current book is.
type IntegrityLevel int

const (
	IntegrityOK IntegrityLevel = iota
	IntegrityDegraded
	IntegrityCritical
)

func (l IntegrityLevel) String() string {
	switch l {
	case IntegrityDegraded:
		return "DEGRADED"
	case IntegrityCritical:
		return "CRITICAL"
	default:
		return "OK"
	}
}

// Level is a single price/quantity point on one side of the book.
type Level struct {
	Price float64
	Qty   float64
}

// Integrity is the orderbook integrity record (spec.md §3).
type Integrity struct {
	Level                IntegrityLevel
	Message              string
	LastUpdateTs         int64
	SequenceGapCount     int
	CrossedBookDetected  bool
	AvgStalenessMs       float64
	ReconnectCount       int
	ReconnectRecommended bool
}

// Config tunes the staleness/resync thresholds and top-N depth kept.
type Config struct {
	StaleMs               int64
	CritMs                int64
	GapRecommendThreshold int
	MaxLevels             int
}

// DefaultConfig returns the spec's illustrative thresholds.
func DefaultConfig() Config {
	return Config{StaleMs: 3000, CritMs: 10000, GapRecommendThreshold: 5, MaxLevels: 50}
}

// Book is a single-symbol order book reconciled from snapshot+diff
// frames. A Book belongs to exactly one Symbol Coordinator pipeline
// (per-symbol single-actor serialization); the mutex here guards
// against the rare concurrent read from the fan-out assembler while
// the owning goroutine mutates it.
type Book struct {
	mu sync.RWMutex

	cfg Config

	state State

	bids []Level // descending by price
	asks []Level // ascending by price

	lastUpdateID int64

	lastDiffAt       time.Time
	lastSnapshotAt   time.Time
	stalenessSamples []float64

	sequenceGapCount int
	reconnectCount   int
	reconnectLatched bool
}

// New constructs a Book in StateUnknown awaiting its first snapshot.
func New(cfg Config) *Book {
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = 50
	}
	return &Book{cfg: cfg, state: StateUnknown}
}

// ApplySnapshot replaces both sides wholesale and sets lastUpdateId. Does
// not fail.
func (b *Book) ApplySnapshot(lastUpdateID int64, bids, asks []Level, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = sortedCopy(bids, true, b.cfg.MaxLevels)
	b.asks = sortedCopy(asks, false, b.cfg.MaxLevels)
	b.lastUpdateID = lastUpdateID
	b.lastSnapshotAt = now
	b.lastDiffAt = now
	b.state = StateLive
	b.sequenceGapCount = 0
	b.reconnectLatched = false
}

func sortedCopy(levels []Level, descending bool, maxLevels int) []Level {
	out := make([]Level, 0, len(levels))
	for _, l := range levels {
		if l.Qty > 0 {
			out = append(out, l)
		}
	}
	if descending {
		sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	}
	if len(out) > maxLevels {
		out = out[:maxLevels]
	}
	return out
}

// DiffResult reports whether a diff applied cleanly.
type DiffResult struct {
	OK     bool
	Reason string
}

// ApplyDiff merges an incremental update keyed by [firstUpdateID,
// finalUpdateID]. Returns {ok:false, reason:"gap"} if firstUpdateID is
// ahead of lastUpdateID+1, without mutating book sides, and transitions
// to RESYNCING; the caller waits for a fresh snapshot. eventTs/receiptTs
// feed the staleness sample used by Integrity.
func (b *Book) ApplyDiff(firstUpdateID, finalUpdateID int64, bids, asks []Level, eventTs, receiptTs time.Time) DiffResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateUnknown {
		return DiffResult{OK: false, Reason: "no_snapshot"}
	}
	if firstUpdateID > b.lastUpdateID+1 {
		b.sequenceGapCount++
		b.state = StateResyncing
		if b.sequenceGapCount >= b.cfg.GapRecommendThreshold {
			b.reconnectLatched = true
		}
		return DiffResult{OK: false, Reason: "gap"}
	}

	for _, l := range bids {
		b.bids = applyLevel(b.bids, l, true, b.cfg.MaxLevels)
	}
	for _, l := range asks {
		b.asks = applyLevel(b.asks, l, false, b.cfg.MaxLevels)
	}

	b.lastUpdateID = finalUpdateID
	b.lastDiffAt = receiptTs
	if b.state != StateResyncing {
		b.state = StateLive
	}

	if !eventTs.IsZero() && !receiptTs.IsZero() {
		ms := float64(receiptTs.Sub(eventTs).Milliseconds())
		if ms < 0 {
			ms = 0
		}
		b.stalenessSamples = append(b.stalenessSamples, ms)
		if len(b.stalenessSamples) > 200 {
			b.stalenessSamples = b.stalenessSamples[len(b.stalenessSamples)-200:]
		}
	}

	return DiffResult{OK: true}
}

// applyLevel inserts, updates, or deletes (qty==0) a single price level
// while keeping the slice sorted and trimmed to maxLevels.
func applyLevel(levels []Level, l Level, descending bool, maxLevels int) []Level {
	idx := sort.Search(len(levels), func(i int) bool {
		if descending {
			return levels[i].Price <= l.Price
		}
		return levels[i].Price >= l.Price
	})

	found := idx < len(levels) && levels[idx].Price == l.Price

	if l.Qty == 0 {
		if found {
			levels = append(levels[:idx], levels[idx+1:]...)
		}
		return levels
	}

	if found {
		levels[idx].Qty = l.Qty
		return levels
	}

	levels = append(levels, Level{})
	copy(levels[idx+1:], levels[idx:])
	levels[idx] = l

	if len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}
	return levels
}

// MarkReconnect records a fresh upstream reconnect. The coordinator
// calls this whenever it re-establishes the shared connection; the next
// snapshot clears ReconnectRecommended.
func (b *Book) MarkReconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnectCount++
}

// BestBid returns the highest bid, or (0, false) if the side is empty.
func (b *Book) BestBid() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 {
		return 0, false
	}
	return b.bids[0].Price, true
}

// BestAsk returns the lowest ask, or (0, false) if the side is empty.
func (b *Book) BestAsk() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 {
		return 0, false
	}
	return b.asks[0].Price, true
}

// LevelSize returns the resting quantity at price on the given side (0
// if absent). bidSide selects which side to search.
func (b *Book) LevelSize(price float64, bidSide bool) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := b.asks
	if bidSide {
		levels = b.bids
	}
	for _, l := range levels {
		if l.Price == price {
			return l.Qty
		}
	}
	return 0
}

// DepthAt returns up to n levels per side, best-first.
func (b *Book) DepthAt(n int) (bids, asks []Level) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bids = cloneN(b.bids, n)
	asks = cloneN(b.asks, n)
	return
}

func cloneN(levels []Level, n int) []Level {
	if n > len(levels) {
		n = len(levels)
	}
	out := make([]Level, n)
	copy(out, levels[:n])
	return out
}

// State returns the current reconciliation state.
func (b *Book) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Integrity computes the current integrity record relative to now:
// staleness, crossed-book detection, gap count, average staleness, and
// latched reconnect recommendation. It also advances the staleness-
// driven state transitions (LIVE<->STALE->RESYNCING).
func (b *Book) Integrity(now time.Time) Integrity {
	b.mu.Lock()
	defer b.mu.Unlock()

	staleness := int64(0)
	if !b.lastDiffAt.IsZero() {
		staleness = now.Sub(b.lastDiffAt).Milliseconds()
	}

	switch b.state {
	case StateLive:
		if staleness > b.cfg.CritMs {
			b.state = StateResyncing
		} else if staleness > b.cfg.StaleMs {
			b.state = StateStale
		}
	case StateStale:
		if staleness > b.cfg.CritMs {
			b.state = StateResyncing
		} else if staleness <= b.cfg.StaleMs {
			b.state = StateLive
		}
	}

	crossed := false
	if len(b.bids) > 0 && len(b.asks) > 0 && b.bids[0].Price >= b.asks[0].Price {
		crossed = true
	}

	avgStale := 0.0
	if len(b.stalenessSamples) > 0 {
		sum := 0.0
		for _, s := range b.stalenessSamples {
			sum += s
		}
		avgStale = sum / float64(len(b.stalenessSamples))
	}

	level := IntegrityOK
	msg := "nominal"
	switch {
	case b.state == StateResyncing:
		level = IntegrityCritical
		msg = "resyncing: awaiting fresh snapshot"
	case b.state == StateStale:
		level = IntegrityDegraded
		msg = "stale: no diff received within threshold"
	case crossed:
		level = IntegrityDegraded
		msg = "crossed book detected"
	}

	return Integrity{
		Level:                level,
		Message:              msg,
		LastUpdateTs:         b.lastDiffAt.UnixMilli(),
		SequenceGapCount:     b.sequenceGapCount,
		CrossedBookDetected:  crossed,
		AvgStalenessMs:       avgStale,
		ReconnectCount:       b.reconnectCount,
		ReconnectRecommended: b.reconnectLatched,
	}
}
