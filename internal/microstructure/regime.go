package microstructure

import "math"

// Regime groups realized-volatility and trendiness signals (spec.md
// §4.5 "Regime").
type Regime struct {
	RealizedVol1m  *float64
	RealizedVol5m  *float64
	RealizedVol15m *float64
	VolOfVol       *float64
	MicroATR       *float64
	Chop           *float64
	Trendiness     *float64
}

// DeriveRegime computes realized vol at three horizons from log-return
// samples, a vol-of-vol measure from the 1m series, a micro-ATR from
// precomputed true ranges, and chop/trendiness from net vs. gross
// movement.
func DeriveRegime(logReturns1m, logReturns5m, logReturns15m []float64, trueRanges []float64, closes []float64) Regime {
	var out Regime

	rv1 := realizedVol(logReturns1m)
	rv5 := realizedVol(logReturns5m)
	rv15 := realizedVol(logReturns15m)
	out.RealizedVol1m = rv1
	out.RealizedVol5m = rv5
	out.RealizedVol15m = rv15

	out.VolOfVol = rollingVolOfVol(logReturns1m)
	out.MicroATR = microATR(trueRanges)
	out.Chop, out.Trendiness = chopAndTrend(closes)

	return out
}

func realizedVol(returns []float64) *float64 {
	if len(returns) < 2 {
		return nil
	}
	_, stddev := meanStddev(returns)
	return ptr(stddev)
}

// rollingVolOfVol buckets the return series into non-overlapping windows
// of 5 samples, computes stddev per bucket, then the stddev of those
// bucket stddevs.
func rollingVolOfVol(returns []float64) *float64 {
	const bucketSize = 5
	if len(returns) < bucketSize*2 {
		return nil
	}
	var bucketStds []float64
	for i := 0; i+bucketSize <= len(returns); i += bucketSize {
		_, std := meanStddev(returns[i : i+bucketSize])
		bucketStds = append(bucketStds, std)
	}
	if len(bucketStds) < 2 {
		return nil
	}
	_, vov := meanStddev(bucketStds)
	return ptr(vov)
}

func microATR(trueRanges []float64) *float64 {
	if len(trueRanges) == 0 {
		return nil
	}
	sum := 0.0
	for _, tr := range trueRanges {
		sum += tr
	}
	return ptr(sum / float64(len(trueRanges)))
}

// chopAndTrend compares net displacement to gross path length over the
// given close series: chop near 1 means price retraced as much as it
// advanced; trendiness near 1 means it moved mostly one direction.
func chopAndTrend(closes []float64) (*float64, *float64) {
	if len(closes) < 2 {
		return nil, nil
	}
	net := math.Abs(closes[len(closes)-1] - closes[0])
	gross := 0.0
	for i := 1; i < len(closes); i++ {
		gross += math.Abs(closes[i] - closes[i-1])
	}
	if gross == 0 {
		return nil, nil
	}
	trend := net / gross
	chop := 1 - trend
	return ptr(chop), ptr(trend)
}
