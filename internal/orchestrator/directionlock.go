package orchestrator

// ReversalConfirmations are the four independent signals a reversal
// past the DirectionLock must confirm against (spec.md §4.8
// "DirectionLock"): regime change, flow change, CVD-slope sign flip,
// OI direction flip.
type ReversalConfirmations struct {
	RegimeChange    bool
	FlowChange      bool
	CVDSlopeFlip    bool
	OIDirectionFlip bool
}

func (c ReversalConfirmations) count() int {
	n := 0
	if c.RegimeChange {
		n++
	}
	if c.FlowChange {
		n++
	}
	if c.CVDSlopeFlip {
		n++
	}
	if c.OIDirectionFlip {
		n++
	}
	return n
}

// reversalAllowed reports whether a close-to-reverse is permitted:
// at least cfg.ReversalMinConfirmations of the four signals agree, and
// the minimum flip cooldown has elapsed since the last flip.
func (o *Orchestrator) reversalAllowed(confirmations ReversalConfirmations, nowMs int64) bool {
	if confirmations.count() < o.cfg.ReversalMinConfirmations {
		return false
	}
	if o.haveLastFlip && nowMs-o.lastFlipTsMs < o.cfg.FlipCooldownMs {
		return false
	}
	return true
}

// recordFlip marks nowMs as the last reversal, starting the flip
// cooldown.
func (o *Orchestrator) recordFlip(nowMs int64) {
	o.lastFlipTsMs = nowMs
	o.haveLastFlip = true
}
