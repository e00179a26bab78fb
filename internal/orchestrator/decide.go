package orchestrator

import "github.com/ndrandal/perpflow/internal/dryrun"

// Inputs is everything Decide needs for one tick, composed by the
// Session Service from C3/C4/C5 state plus the Dry-Run Engine's
// current position (spec.md data-flow: "C8 consuming C3/C4/C5
// state").
type Inputs struct {
	NowMs int64

	SampleCount int

	DesiredSide dryrun.Side // side under evaluation this tick
	Regime      RegimeInputs
	Flow        FlowInputs
	Location    LocationInputs
	Impulse     ImpulseInputs

	Position *dryrun.Position

	BestSamePrice float64 // best same-side price, for the chase loop
	Add           AddInputs
	RiskExit      RiskExitInputs
	Reversal      ReversalConfirmations
}

// Snapshot is the orchestrator's decision for one tick (spec.md §6
// "orchestrator snapshot").
type Snapshot struct {
	Intent Intent
	Side   dryrun.Side

	Readiness GateResult
	GateA     GateResult
	GateB     GateResult
	GateC     GateResult

	Impulse  bool
	Add      AddDecision
	ExitRisk RiskExitDecision

	Chase ChaseSnapshot

	Orders []dryrun.OrderRequest

	Debug struct {
		BlockReason string
	}
}

// Decide runs the gate pipeline and returns the tick's decision. It
// never mutates anything outside the Orchestrator itself and never
// invokes the Dry-Run Engine; the caller folds Snapshot.Orders into
// its own engine Tick call.
func (o *Orchestrator) Decide(in Inputs) (snap Snapshot) {
	snap.Side = in.DesiredSide
	// Captured after every other decision path has had a chance to
	// start/reprice/clear the chase, so the snapshot reflects this
	// tick's outcome rather than the state entering the tick.
	defer func() { snap.Chase = o.chaseSnapshot() }()

	if in.Position == nil {
		// Flat: any prior exit escalation is done, so the next risk exit
		// starts again from the maker attempt.
		o.exitAttempts = ExitAttemptState{}
	}

	// Risk exit takes priority over everything else: an open position
	// in danger must be addressed before any new entry/add logic runs.
	if in.Position != nil {
		exit := evalRiskExit(in.RiskExit)
		snap.ExitRisk = exit
		if exit.Triggered {
			snap.Intent = IntentExitRisk
			snap.Debug.BlockReason = exit.Reason
			snap.Orders = o.buildExitOrders(in)
			return snap
		}
	}

	snap.Readiness = evalReadiness(in.SampleCount, o.cfg)
	if !snap.Readiness.Pass {
		snap.Intent = IntentHold
		snap.Debug.BlockReason = snap.Readiness.Reason
		return snap
	}

	snap.GateA = evalGateA(in.Regime, o.cfg)
	if !snap.GateA.Pass {
		snap.Intent = IntentHold
		snap.Debug.BlockReason = snap.GateA.Reason
		o.resetCandidate()
		return snap
	}

	snap.GateB = evalGateB(in.DesiredSide, in.Flow, o.cfg)
	if !snap.GateB.Pass {
		snap.Intent = IntentHold
		snap.Debug.BlockReason = snap.GateB.Reason
		o.resetCandidate()
		return snap
	}

	snap.GateC = evalGateC(in.Location, o.cfg)
	if !snap.GateC.Pass {
		snap.Intent = IntentHold
		snap.Debug.BlockReason = snap.GateC.Reason
		o.resetCandidate()
		return snap
	}

	snap.Impulse = evalImpulse(in.Impulse, o.cfg.DeltaZMin, 0, 1<<30)

	// All gates pass. An existing same-side position means this tick is
	// an add candidate; otherwise it's a fresh entry candidate subject
	// to hysteresis confirmation.
	if in.Position != nil && in.Position.Side == in.DesiredSide {
		add := evalAdd(in.Position, in.DesiredSide, in.Add, o.cfg)
		snap.Add = add
		if add.Eligible {
			snap.Intent = IntentAdd
			snap.Orders = o.buildAddOrder(in, add)
			return snap
		}
		snap.Intent = IntentHold
		snap.Debug.BlockReason = add.Reason
		return snap
	}

	if in.Position != nil && in.Position.Side != in.DesiredSide {
		// No auto close-to-reverse: a side flip while a position is open
		// only proceeds once the DirectionLock's confirmation count and
		// flip cooldown are satisfied, and even then it takes the
		// position flat via a risk exit rather than an immediate
		// reversal order (spec.md §4.8 "DirectionLock").
		if !o.reversalAllowed(in.Reversal, in.NowMs) {
			snap.Intent = IntentHold
			snap.Debug.BlockReason = "directionLock: insufficient reversal confirmations"
			return snap
		}
		o.recordFlip(in.NowMs)
		snap.Intent = IntentExitRisk
		snap.Debug.BlockReason = "directionLock: flipping to flat ahead of reversal"
		snap.Orders = o.buildExitOrders(in)
		return snap
	}

	if !o.confirmCandidate(in.DesiredSide) {
		snap.Intent = IntentHold
		snap.Debug.BlockReason = "hysteresis: awaiting consecutive confirmations"
		return snap
	}

	snap.Intent = IntentEntry
	snap.Orders = o.buildEntryOrders(in)
	return snap
}

func (o *Orchestrator) resetCandidate() {
	o.candidateSide = nil
	o.candidateStreak = 0
}

// confirmCandidate implements the hysteresis rule: a side change only
// takes effect after cfg.ConsecutiveConfirmations successive ticks
// agree (spec.md §4.8 "Hysteresis").
func (o *Orchestrator) confirmCandidate(side dryrun.Side) bool {
	if o.candidateSide == nil || *o.candidateSide != side {
		s := side
		o.candidateSide = &s
		o.candidateStreak = 1
	} else {
		o.candidateStreak++
	}
	return o.candidateStreak >= o.cfg.ConsecutiveConfirmations
}
