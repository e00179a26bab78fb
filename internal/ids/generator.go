// Package ids produces deterministic order/trade/event identifiers.
// Grounded on the teacher's orderbook.NextOrderID/NextMatchNumber atomic
// counters (internal/orderbook/order.go), generalized from a single
// process-global counter to a per-run, hash-salted counter so the full
// sequence of IDs is reproducible across runs and platforms given the
// same runId and inputs (spec.md §4.2).
package ids

import (
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Kind distinguishes the counter namespace an ID is drawn from.
type Kind string

const (
	KindOrder Kind = "order"
	KindTrade Kind = "trade"
	KindEvent Kind = "event"
)

// Generator produces deterministic, non-UUID hex IDs for a single dry-run.
// Safe for concurrent use; each Kind has its own monotonic counter.
type Generator struct {
	runID string

	orderSeq atomic.Uint64
	tradeSeq atomic.Uint64
	eventSeq atomic.Uint64
}

// New creates a Generator scoped to runID. Identical runID + identical
// call sequence (kind + salient inputs, in order) always yields an
// identical sequence of IDs.
func New(runID string) *Generator {
	return &Generator{runID: runID}
}

func (g *Generator) counter(kind Kind) *atomic.Uint64 {
	switch kind {
	case KindOrder:
		return &g.orderSeq
	case KindTrade:
		return &g.tradeSeq
	default:
		return &g.eventSeq
	}
}

// Next returns the next ID for the given kind, salted with arbitrary
// "salient inputs" the caller supplies (e.g. symbol, side, price) so
// that two distinct events at the same counter value still hash
// differently if their inputs differ — while remaining 100% determined
// by (runID, kind, counter, salient) and nothing else (no time.Now, no
// crypto/rand).
func (g *Generator) Next(kind Kind, salient ...any) string {
	counter := g.counter(kind)
	seq := counter.Add(1)

	h := xxhash.New()
	fmt.Fprintf(h, "%s|%s|%d", g.runID, kind, seq)
	for _, s := range salient {
		fmt.Fprintf(h, "|%v", s)
	}
	sum := h.Sum64()

	// 16 lowercase hex chars: fixed width, never matches the UUID
	// canonical regex (8-4-4-4-12 with dashes), satisfying the
	// determinism invariant in spec.md §8.
	return fmt.Sprintf("%016x", sum)
}

// NextOrderID is a typed convenience wrapper over Next(KindOrder, ...).
func (g *Generator) NextOrderID(salient ...any) string { return g.Next(KindOrder, salient...) }

// NextTradeID is a typed convenience wrapper over Next(KindTrade, ...).
func (g *Generator) NextTradeID(salient ...any) string { return g.Next(KindTrade, salient...) }

// NextEventID is a typed convenience wrapper over Next(KindEvent, ...).
func (g *Generator) NextEventID(salient ...any) string { return g.Next(KindEvent, salient...) }
