package orchestrator

import "github.com/ndrandal/perpflow/internal/dryrun"

// chaseState tracks a maker entry's cancel-then-replace reprice loop
// (spec.md §4.8 "Entry chase"). All timing is driven by the nowMs the
// caller supplies; nothing here reads the wall clock. Kept unexported;
// callers observe it only through ChaseSnapshot.
type chaseState struct {
	orderID       string
	side          dryrun.Side
	qty           float64
	lastPrice     float64
	startedAtMs   int64
	lastRepriceMs int64
	expiresAtMs   int64
	repricesUsed  int
	timedOut      bool
	filled        bool
}

// ChaseSnapshot is the read-only view folded into the orchestrator
// Snapshot (spec.md §6 "orchestrator snapshot").
type ChaseSnapshot struct {
	Active        bool
	OrderID       string
	RepricesUsed  int
	MaxReprices   int
	ExpiresAtMs   int64
	ChaseTimedOut bool

	// FallbackTriggeredCount is the running count of fired taker
	// fallbacks, lifetime for this Orchestrator (spec.md §4.8 "Fallback
	// taker": "the counter fallbackTriggeredCount increments").
	FallbackTriggeredCount int
}

// ChaseAction is what the caller should do with the resting maker
// order this tick.
type ChaseAction int

const (
	ChaseActionNone ChaseAction = iota
	ChaseActionPlace
	ChaseActionReplace
	ChaseActionTerminate
)

// startChase begins a new chase at the given price.
func (o *Orchestrator) startChase(orderID string, side dryrun.Side, qty, price float64, nowMs int64) {
	o.chase = &chaseState{
		orderID:       orderID,
		side:          side,
		qty:           qty,
		lastPrice:     price,
		startedAtMs:   nowMs,
		lastRepriceMs: nowMs,
		expiresAtMs:   nowMs + o.cfg.ChaseTTLMs,
	}
}

// tickChase evaluates the active chase against the current best price
// for its side, deciding whether to hold, reprice, or terminate
// (spec.md §4.8 step 2-3). bestPrice is the current best same-side
// price (bid for LONG entries, ask for SHORT entries).
func (o *Orchestrator) tickChase(nowMs int64, bestPrice float64) (ChaseAction, float64) {
	c := o.chase
	if c == nil || c.filled || c.timedOut {
		return ChaseActionNone, 0
	}

	if nowMs >= c.expiresAtMs {
		c.timedOut = true
		return ChaseActionTerminate, 0
	}
	if c.repricesUsed >= o.cfg.MaxReprices {
		c.timedOut = true
		return ChaseActionTerminate, 0
	}
	if nowMs-c.lastRepriceMs < o.cfg.RepriceMs {
		return ChaseActionNone, 0
	}

	moved := bestPrice - c.lastPrice
	if moved < 0 {
		moved = -moved
	}
	threshold := o.cfg.TickSize * o.cfg.RepriceTicksK
	if moved <= threshold {
		return ChaseActionNone, 0
	}

	c.lastPrice = bestPrice
	c.lastRepriceMs = nowMs
	c.repricesUsed++
	return ChaseActionReplace, bestPrice
}

// markChaseFilled terminates the chase as filled, clearing it so the
// next Decide call starts clean.
func (o *Orchestrator) markChaseFilled() {
	if o.chase != nil {
		o.chase.filled = true
	}
}

// clearChase drops the chase state entirely (terminal: filled,
// reprice-capped, or expired).
func (o *Orchestrator) clearChase() {
	o.chase = nil
}

func (o *Orchestrator) chaseSnapshot() ChaseSnapshot {
	if o.chase == nil {
		return ChaseSnapshot{MaxReprices: o.cfg.MaxReprices, FallbackTriggeredCount: o.fallbackTriggeredCount}
	}
	return ChaseSnapshot{
		Active:                 !o.chase.filled && !o.chase.timedOut,
		OrderID:                o.chase.orderID,
		RepricesUsed:           o.chase.repricesUsed,
		MaxReprices:            o.cfg.MaxReprices,
		ExpiresAtMs:            o.chase.expiresAtMs,
		ChaseTimedOut:          o.chase.timedOut,
		FallbackTriggeredCount: o.fallbackTriggeredCount,
	}
}

// fallbackEligible reports whether the chase has timed out and
// conditions permit a single capped-notional taker fallback (spec.md
// §4.8 "Fallback taker").
func (o *Orchestrator) fallbackEligible(gatesPass bool, impulse ImpulseInputs) bool {
	if o.chase == nil || !o.chase.timedOut {
		return false
	}
	if !gatesPass {
		return false
	}
	return evalImpulse(impulse, o.cfg.FallbackDeltaZMin, o.cfg.FallbackPrintsPerSecMin, o.cfg.FallbackSpreadMaxBps)
}
