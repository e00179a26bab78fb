package microstructure

import "math"

// Derivatives groups perp-specific signals: the spread between the
// traded instrument and its reference index/mark, and a liquidation
// proxy for nearby forced-close pressure (spec.md §4.5 "Derivatives").
type Derivatives struct {
	MarkLastDeviation  *float64
	IndexLastDeviation *float64
	PerpBasis          *float64
	BasisZ             *float64
	LiquidationProxy   *float64
}

// DeriveDerivatives computes mark/index deviation, basis, and a
// liquidation-pressure proxy. basisHistory is the trailing window of
// basis samples used for the z-score (caller maintains the ring; this
// function is pure given the slice it receives).
func DeriveDerivatives(lastPrice, markPrice, indexPrice float64, basisHistory []float64) Derivatives {
	var out Derivatives

	out.MarkLastDeviation = safeDiv(markPrice-lastPrice, lastPrice)
	out.IndexLastDeviation = safeDiv(indexPrice-lastPrice, lastPrice)

	basis := safeDiv(markPrice-indexPrice, indexPrice)
	out.PerpBasis = basis

	if basis != nil && len(basisHistory) >= 2 {
		mean, stddev := meanStddev(basisHistory)
		if stddev > 0 {
			out.BasisZ = ptr((*basis - mean) / stddev)
		}
	}

	// Liquidation proxy: a crude estimate of how much the market has
	// moved against a fully-leveraged long/short since the index was
	// last in line with mark, scaled by the squared basis deviation —
	// larger absolute basis means more stored liquidation pressure on
	// the side the basis favors.
	if basis != nil {
		out.LiquidationProxy = ptr(math.Abs(*basis) * (*basis) * 100)
	}

	return out
}

func meanStddev(xs []float64) (mean, stddev float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= n - 1
	return mean, math.Sqrt(variance)
}
