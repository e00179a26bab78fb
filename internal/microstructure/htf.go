package microstructure

import "math"

// Kline is a single OHLCV bar (spec.md §3).
type Kline struct {
	OpenTimeMs int64
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// HTFFrame is the higher-timeframe structure state per {1h, 4h}
// (spec.md §3).
type HTFFrame struct {
	BarStartMs       int64
	Close            float64
	ATR              *float64
	LastSwingHigh    *float64
	LastSwingLow     *float64
	StructureBreakUp bool
	StructureBreakDn bool
}

// DeriveHTF computes ATR over the bounded bars window and a k-symmetric
// swing high/low, then reports whether the latest close broke the prior
// structure. k is the pivot symmetry width (bars on each side that must
// confirm the pivot); atrPeriod bounds the ATR lookback.
func DeriveHTF(bars []Kline, k, atrPeriod int) HTFFrame {
	var out HTFFrame
	if len(bars) == 0 {
		return out
	}
	last := bars[len(bars)-1]
	out.BarStartMs = last.OpenTimeMs
	out.Close = last.Close

	out.ATR = atr(bars, atrPeriod)

	swingHighIdx, swingLowIdx := lastSwings(bars, k)
	if swingHighIdx >= 0 {
		v := bars[swingHighIdx].High
		out.LastSwingHigh = &v
		if last.Close > v {
			out.StructureBreakUp = true
		}
	}
	if swingLowIdx >= 0 {
		v := bars[swingLowIdx].Low
		out.LastSwingLow = &v
		if last.Close < v {
			out.StructureBreakDn = true
		}
	}

	return out
}

func atr(bars []Kline, period int) *float64 {
	if len(bars) < 2 {
		return nil
	}
	start := len(bars) - period
	if start < 1 {
		start = 1
	}
	var sum float64
	count := 0
	for i := start; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		tr := math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
		sum += tr
		count++
	}
	if count == 0 {
		return nil
	}
	v := sum / float64(count)
	return &v
}

// lastSwings finds the most recent k-symmetric pivot high/low: a bar
// whose high is strictly greater than the k bars to its left and not
// less than the k bars to its right (pivot low uses the mirrored
// condition on lows), scanning from the most recent bar backward.
func lastSwings(bars []Kline, k int) (highIdx, lowIdx int) {
	highIdx, lowIdx = -1, -1
	if k < 1 || len(bars) < 2*k+1 {
		return
	}
	for i := len(bars) - 1 - k; i >= k; i-- {
		if highIdx == -1 && isSwingHigh(bars, i, k) {
			highIdx = i
		}
		if lowIdx == -1 && isSwingLow(bars, i, k) {
			lowIdx = i
		}
		if highIdx != -1 && lowIdx != -1 {
			break
		}
	}
	return
}

func isSwingHigh(bars []Kline, i, k int) bool {
	center := bars[i].High
	for j := i - k; j < i; j++ {
		if bars[j].High >= center {
			return false
		}
	}
	for j := i + 1; j <= i+k; j++ {
		if bars[j].High > center {
			return false
		}
	}
	return true
}

func isSwingLow(bars []Kline, i, k int) bool {
	center := bars[i].Low
	for j := i - k; j < i; j++ {
		if bars[j].Low <= center {
			return false
		}
	}
	for j := i + 1; j <= i+k; j++ {
		if bars[j].Low < center {
			return false
		}
	}
	return true
}
