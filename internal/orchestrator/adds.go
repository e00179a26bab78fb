package orchestrator

import "github.com/ndrandal/perpflow/internal/dryrun"

// AddInputs carries the per-tick values needed to judge an add-on
// rung (spec.md §4.8 "Adds").
type AddInputs struct {
	UnrealizedPnlPct float64
	SignalScore      float64
	SpreadBps        float64
	CurrentNotional  float64
	NowMs            int64
}

// AddDecision reports whether an add-on rung fires this tick.
type AddDecision struct {
	Eligible bool
	Rung     int // 1 or 2
	Fraction float64
	Reason   string
}

// evalAdd checks rung eligibility against a same-side open position.
// Rung 1 requires no prior adds; rung 2 requires exactly one.
func evalAdd(pos *dryrun.Position, side dryrun.Side, in AddInputs, cfg Config) AddDecision {
	if pos == nil || pos.Side != side {
		return AddDecision{Reason: "adds: no same-side position open"}
	}
	if pos.AddsUsed >= len(cfg.AddSchedule) {
		return AddDecision{Reason: "adds: schedule exhausted"}
	}
	if in.UnrealizedPnlPct < cfg.AddMinUnrealizedPnlPct {
		return AddDecision{Reason: "adds: unrealized pnl below minimum"}
	}
	if in.NowMs-pos.LastAddTsMs < cfg.AddGapCooldownMs {
		return AddDecision{Reason: "adds: cooldown not elapsed"}
	}
	if in.SignalScore < cfg.AddSignalScoreMin {
		return AddDecision{Reason: "adds: signal score below minimum"}
	}
	if in.SpreadBps > cfg.AddSpreadMaxBps {
		return AddDecision{Reason: "adds: spread above limit"}
	}
	rung := pos.AddsUsed
	fraction := cfg.AddSchedule[rung]
	// fraction is expressed as a multiple of the position's current
	// notional; the caller scales it to an actual order size.
	addedNotional := in.CurrentNotional * fraction
	if in.CurrentNotional+addedNotional > cfg.MaxPositionNotional {
		return AddDecision{Reason: "adds: would exceed max position notional"}
	}
	return AddDecision{Eligible: true, Rung: rung + 1, Fraction: fraction}
}
