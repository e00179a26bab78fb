package microstructure

import "math"

// Toxicity groups order-flow-toxicity signals used to gauge whether the
// current flow is likely informed (spec.md §4.5 "Toxicity").
type Toxicity struct {
	VPINApprox        *float64
	SignedVolumeRatio *float64
	ImpactPerNotional *float64
	TradeToBookRatio  *float64
	BurstPersistence  *float64
}

// ToxicityInputs is the bucketed flow and book state a caller (the
// orchestrator, typically) gathers from the tape and book for one
// evaluation tick.
type ToxicityInputs struct {
	BuyVolume      float64
	SellVolume     float64
	PriceMoveAbs   float64 // |close - open| over the evaluation bucket
	TopOfBookDepth float64
	BurstCount     int
	BurstMinStreak int
}

// DeriveToxicity computes VPIN-style and related signals.
//
// VPINApprox follows the standard bucketed approximation: the absolute
// imbalance between buy and sell volume within a bucket, normalized by
// total bucket volume (Easley/López de Prado/O'Hara's volume-clock VPIN,
// simplified to a single bucket rather than a rolling average of buckets
// since the caller already supplies one pre-bucketed window).
func DeriveToxicity(in ToxicityInputs) Toxicity {
	var out Toxicity

	total := in.BuyVolume + in.SellVolume
	out.VPINApprox = safeDiv(math.Abs(in.BuyVolume-in.SellVolume), total)
	out.SignedVolumeRatio = safeDiv(in.BuyVolume-in.SellVolume, total)
	out.ImpactPerNotional = safeDiv(in.PriceMoveAbs, total)
	out.TradeToBookRatio = safeDiv(total, in.TopOfBookDepth)

	if in.BurstMinStreak > 0 {
		out.BurstPersistence = ptr(math.Min(1, float64(in.BurstCount)/float64(in.BurstMinStreak)))
	}

	return out
}
