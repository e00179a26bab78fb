package orchestrator

import "github.com/ndrandal/perpflow/internal/orderbook"

// RiskExitInputs carries the per-tick signals that can trigger a risk
// exit (spec.md §4.8 "Risk exit").
type RiskExitInputs struct {
	RegimeFlip bool
	CVDFlip    bool
	OBIFlip    bool
	Integrity  orderbook.IntegrityLevel
}

// RiskExitDecision reports whether a risk exit should fire this tick.
type RiskExitDecision struct {
	Triggered bool
	Reason    string
}

// evalRiskExit triggers on regime flip, a simultaneous CVD+OBI flow
// flip, or CRITICAL book integrity.
func evalRiskExit(in RiskExitInputs) RiskExitDecision {
	if in.Integrity == orderbook.IntegrityCritical {
		return RiskExitDecision{Triggered: true, Reason: "riskExit: book integrity critical"}
	}
	if in.RegimeFlip {
		return RiskExitDecision{Triggered: true, Reason: "riskExit: regime flip"}
	}
	if in.CVDFlip && in.OBIFlip {
		return RiskExitDecision{Triggered: true, Reason: "riskExit: flow flip (CVD and OBI)"}
	}
	return RiskExitDecision{}
}

// ExitAttemptState tracks a risk exit's maker-then-taker escalation
// (spec.md §4.8 "Exit uses maker reduceOnly attempts up to
// makerExitAttempts; on exhaustion, falls back to taker IOC
// reduceOnly").
type ExitAttemptState struct {
	AttemptsUsed int
}

// nextExitRole reports whether the next reduceOnly attempt should be
// a maker (resting) or taker (IOC) order.
func (s *ExitAttemptState) nextExitRole(maxMakerAttempts int) string {
	if s.AttemptsUsed < maxMakerAttempts {
		return "maker"
	}
	return "taker"
}
