package orchestrator

import "github.com/ndrandal/perpflow/internal/dryrun"

// RegimeInputs feeds Gate A (spec.md §4.8 gate table).
type RegimeInputs struct {
	Trendiness  float64
	Chop        float64
	VolOfVol    float64
	SpreadBps   float64
	SharpOIDrop bool
}

// FlowInputs feeds Gate B.
type FlowInputs struct {
	CVDSlopeSign        int // -1, 0, +1
	OBIDeepSupportsSide bool
	DeltaZ              float64
}

// LocationInputs feeds Gate C.
type LocationInputs struct {
	SessionVWAPDistanceBps float64
	RealizedVol1m          float64
}

// ImpulseInputs feeds the fallback-taker impulse check.
type ImpulseInputs struct {
	PrintsPerSecond float64
	DeltaZ          float64
	SpreadBps       float64
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// evalReadiness checks the warmup gate: enough microstructure samples
// to be decidable.
func evalReadiness(sampleCount int, cfg Config) GateResult {
	if sampleCount < cfg.ReadinessMinSamples {
		return failGate("readiness: insufficient samples")
	}
	return passGate()
}

// evalGateA checks tradable regime: trendy, not choppy, not
// vol-of-vol-unstable, spread sane, no sharp OI drop.
func evalGateA(in RegimeInputs, cfg Config) GateResult {
	if in.Trendiness < cfg.TrendinessMin {
		return failGate("gateA: trendiness below minimum")
	}
	if in.Chop > cfg.ChopMax {
		return failGate("gateA: chop above maximum")
	}
	if in.VolOfVol > cfg.VolOfVolMax {
		return failGate("gateA: volOfVol above maximum")
	}
	if in.SpreadBps > cfg.SpreadMaxBps {
		return failGate("gateA: spread above maximum")
	}
	if in.SharpOIDrop {
		return failGate("gateA: sharp OI drop detected")
	}
	return passGate()
}

// evalGateB checks that order flow confirms the intended side.
func evalGateB(side dryrun.Side, in FlowInputs, cfg Config) GateResult {
	wantSign := 1
	if side == dryrun.SideShort {
		wantSign = -1
	}
	if in.CVDSlopeSign != wantSign {
		return failGate("gateB: CVD slope does not confirm side")
	}
	if !in.OBIDeepSupportsSide {
		return failGate("gateB: deep OBI does not support side")
	}
	if abs(in.DeltaZ) < cfg.DeltaZMin {
		return failGate("gateB: deltaZ below minimum")
	}
	return passGate()
}

// evalGateC checks that current location (distance to session VWAP,
// realized vol) is within a sane band.
func evalGateC(in LocationInputs, cfg Config) GateResult {
	if abs(in.SessionVWAPDistanceBps) > cfg.SessionVWAPDistanceMaxBps {
		return failGate("gateC: distance to sessionVWAP out of band")
	}
	if in.RealizedVol1m > cfg.RealizedVol1mMax {
		return failGate("gateC: realized vol 1m out of band")
	}
	return passGate()
}

// evalImpulse checks the short-horizon impulse condition gating
// fallback-taker eligibility.
func evalImpulse(in ImpulseInputs, zMin, pMin, spreadMax float64) bool {
	return in.PrintsPerSecond >= pMin && abs(in.DeltaZ) >= zMin && in.SpreadBps <= spreadMax
}
