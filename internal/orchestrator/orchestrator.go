// Package orchestrator implements the gated decision pipeline that
// turns C3/C4/C5 telemetry into an execution intent and, where
// applicable, intended Dry-Run Engine orders (spec.md §4.8). It never
// calls the engine itself: callers (the Session Service, C9) pass
// Inputs in and fold the returned Snapshot's orders into an engine
// tick, breaking the cyclic "session knows engine knows session"
// reference the source exhibits.
//
// Grounded on the teacher's engine.StressController phase/timer idiom
// (internal/engine/stress.go): a small enum-tagged phase, an explicit
// timer/counter pair driving phase transitions, and a Tick-shaped
// entrypoint — generalized from a random intensity walk to a
// deterministic gate pipeline with hysteresis counters and an
// absolute-deadline chase timer. Unlike the teacher, nothing here
// reads the wall clock; all timing is driven by the nowMs the caller
// supplies.
package orchestrator

import (
	"github.com/ndrandal/perpflow/internal/dryrun"
)

// Intent is the orchestrator's top-level decision for one tick.
type Intent int

const (
	IntentHold Intent = iota
	IntentEntry
	IntentAdd
	IntentExitRisk
)

func (i Intent) String() string {
	switch i {
	case IntentHold:
		return "HOLD"
	case IntentEntry:
		return "ENTRY"
	case IntentAdd:
		return "ADD"
	case IntentExitRisk:
		return "EXIT_RISK"
	default:
		return "UNKNOWN"
	}
}

// GateResult is the pass/fail outcome of one gate, carrying the first
// failing check's name for debug.blockReason (spec.md §4.8 "Failure
// semantics").
type GateResult struct {
	Pass   bool
	Reason string
}

func passGate() GateResult { return GateResult{Pass: true} }
func failGate(reason string) GateResult { return GateResult{Pass: false, Reason: reason} }

// Config holds the orchestrator's tunable thresholds. Values are
// illustrative defaults, not normative (spec.md §9 open questions);
// operators are expected to override them per symbol.
type Config struct {
	ReadinessMinSamples int

	// Gate A (Regime)
	TrendinessMin float64
	ChopMax       float64
	VolOfVolMax   float64
	SpreadMaxBps  float64

	// Gate B (Flow)
	DeltaZMin float64

	// Gate C (Location)
	SessionVWAPDistanceMaxBps float64
	RealizedVol1mMax          float64

	ConsecutiveConfirmations int

	// Entry chase
	BaseEntryNotional float64 // target notional sized into each fresh entry
	RepriceMs         int64
	MaxReprices       int
	TickSize          float64
	RepriceTicksK     float64
	ChaseTTLMs        int64

	// Fallback taker
	FallbackPrintsPerSecMin float64
	FallbackDeltaZMin       float64
	FallbackSpreadMaxBps    float64
	FallbackNotionalFrac    float64

	// Adds
	AddMinUnrealizedPnlPct float64
	AddGapCooldownMs       int64
	AddSignalScoreMin      float64
	AddSpreadMaxBps        float64
	MaxPositionNotional    float64
	AddSchedule            [2]float64 // fraction of current position notional for ADD_1, ADD_2

	// Risk exit
	MakerExitAttempts int

	// DirectionLock
	ReversalMinConfirmations int
	FlipCooldownMs           int64
}

// DefaultConfig returns illustrative thresholds matching the
// magnitudes used in spec.md's worked examples.
func DefaultConfig() Config {
	return Config{
		ReadinessMinSamples:       30,
		TrendinessMin:             0.25,
		ChopMax:                   0.6,
		VolOfVolMax:               3.0,
		SpreadMaxBps:              5.0,
		DeltaZMin:                 1.0,
		SessionVWAPDistanceMaxBps: 50.0,
		RealizedVol1mMax:          5.0,
		ConsecutiveConfirmations:  3,
		BaseEntryNotional:         1000,
		RepriceMs:                 1500,
		MaxReprices:               4,
		TickSize:                  0.1,
		RepriceTicksK:             2.0,
		ChaseTTLMs:                20000,
		FallbackPrintsPerSecMin:   2.0,
		FallbackDeltaZMin:         1.5,
		FallbackSpreadMaxBps:      8.0,
		FallbackNotionalFrac:      0.25,
		AddMinUnrealizedPnlPct:    0.3,
		AddGapCooldownMs:          30000,
		AddSignalScoreMin:         0.6,
		AddSpreadMaxBps:           6.0,
		MaxPositionNotional:       10000,
		AddSchedule:               [2]float64{0.5, 0.25},
		MakerExitAttempts:         2,
		ReversalMinConfirmations:  3,
		FlipCooldownMs:            60000,
	}
}

// Orchestrator is a per-symbol decision engine. It holds only the
// state needed across ticks (hysteresis counters, chase progress,
// direction lock) — all market/telemetry data is supplied fresh each
// Decide call.
type Orchestrator struct {
	cfg Config

	candidateSide   *dryrun.Side
	candidateStreak int

	lastFlipTsMs int64
	haveLastFlip bool

	chase                  *chaseState
	exitAttempts           ExitAttemptState
	fallbackTriggeredCount int
}

// New constructs an Orchestrator with the given config.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// NotifyOrderFilled tells the orchestrator its active chase order
// filled, so the next Decide call starts a fresh chase rather than
// continuing the terminal one. Callers invoke this after folding a
// Dry-Run Engine TickLog whose OrderResults include the chase order's
// ID at StatusFilled.
func (o *Orchestrator) NotifyOrderFilled(orderID string) {
	if o.chase != nil && o.chase.orderID == orderID {
		o.markChaseFilled()
		o.clearChase()
	}
}
