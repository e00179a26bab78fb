package microstructure

import "math"

// Liquidity is the set of book-shape signals spec.md §4.5 groups under
// "Liquidity".
type Liquidity struct {
	Microprice            *float64
	Imbalance1            *float64
	Imbalance5            *float64
	Imbalance10           *float64
	Imbalance20           *float64
	Imbalance50           *float64
	BookSlopeBid          *float64
	BookSlopeAsk          *float64
	Convexity             *float64
	WallScore             *float64
	VoidScore             *float64
	ExpectedSlippageBuy   *float64
	ExpectedSlippageSell  *float64
	EffectiveSpread       *float64
	RealizedSpreadShort   *float64
}

// DeriveLiquidity computes book-shape signals. notional is the fixed
// size used for expected-slippage simulation; lastTradePrice and
// midTPlusN feed the realized spread calc (0/zero-value when
// unavailable, which nils RealizedSpreadShort). EffectiveSpread is the
// quoted spread over mid and needs only both sides of the book.
func DeriveLiquidity(book BookView, notional float64, lastTradePrice float64, lastTradeWasBuy bool, midTPlusN float64) Liquidity {
	var out Liquidity

	bestBid, okBid := book.bestBid()
	bestAsk, okAsk := book.bestAsk()

	if okBid && okAsk {
		bidQty := book.Bids[0].Qty
		askQty := book.Asks[0].Qty
		if denom := bidQty + askQty; denom > 0 {
			mp := (bestBid*askQty + bestAsk*bidQty) / denom
			out.Microprice = ptr(mp)
		}
	}

	out.Imbalance1 = imbalanceAtDepth(book, 1)
	out.Imbalance5 = imbalanceAtDepth(book, 5)
	out.Imbalance10 = imbalanceAtDepth(book, 10)
	out.Imbalance20 = imbalanceAtDepth(book, 20)
	out.Imbalance50 = imbalanceAtDepth(book, 50)

	out.BookSlopeBid = bookSlope(book.Bids)
	out.BookSlopeAsk = bookSlope(book.Asks)

	if out.BookSlopeBid != nil && out.BookSlopeAsk != nil {
		out.Convexity = ptr(*out.BookSlopeAsk - *out.BookSlopeBid)
	}

	out.WallScore = wallScore(book)
	out.VoidScore = voidScore(book)

	out.ExpectedSlippageBuy = expectedSlippage(book.Asks, notional, bestAsk, okAsk)
	out.ExpectedSlippageSell = expectedSlippage(book.Bids, notional, bestBid, okBid)

	if okBid && okAsk {
		mid := (bestBid + bestAsk) / 2
		if mid > 0 {
			spread := bestAsk - bestBid
			out.EffectiveSpread = ptr(spread / mid)
		}
	}

	if lastTradePrice > 0 && midTPlusN > 0 {
		sign := 1.0
		if !lastTradeWasBuy {
			sign = -1.0
		}
		out.RealizedSpreadShort = ptr(2 * sign * (lastTradePrice - midTPlusN) / lastTradePrice)
	}

	return out
}

func imbalanceAtDepth(book BookView, n int) *float64 {
	bid := sumQty(book.Bids, n)
	ask := sumQty(book.Asks, n)
	return safeDiv(bid-ask, bid+ask)
}

// bookSlope fits qty-vs-distance-from-best with a simple linear
// regression slope; positive slope means depth builds quickly moving
// away from best.
func bookSlope(levels []BookLevel) *float64 {
	if len(levels) < 2 {
		return nil
	}
	best := levels[0].Price
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(levels))
	for _, l := range levels {
		x := math.Abs(l.Price - best)
		y := l.Qty
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}
	slope := (n*sumXY - sumX*sumY) / denom
	return ptr(slope)
}

// wallScore flags an outsized level relative to the mean depth of the
// first 10 levels on either side; 0 = no wall, approaching 1 = a single
// level dominates the visible book.
func wallScore(book BookView) *float64 {
	bids, asks := book.Bids, book.Asks
	if len(bids) > 10 {
		bids = bids[:10]
	}
	if len(asks) > 10 {
		asks = asks[:10]
	}
	levels := append(append([]BookLevel{}, bids...), asks...)
	if len(levels) == 0 {
		return nil
	}
	n := len(levels)
	var sum, max float64
	for _, l := range levels {
		sum += l.Qty
		if l.Qty > max {
			max = l.Qty
		}
	}
	mean := sum / float64(n)
	if mean == 0 {
		return nil
	}
	score := (max/mean - 1) / float64(n)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return ptr(score)
}

// voidScore counts, on each side, the gaps between adjacent levels that
// are wider than three times that side's mean level spacing, divided by
// the total number of levels on both sides: a proxy for thin liquidity
// pockets. Every level passed in is considered, not only the top 10.
func voidScore(book BookView) *float64 {
	bidGaps := countVoids(book.Bids)
	askGaps := countVoids(book.Asks)
	total := bidGaps + askGaps
	denom := len(book.Bids) + len(book.Asks)
	if denom == 0 {
		return nil
	}
	return ptr(float64(total) / float64(denom))
}

func countVoids(levels []BookLevel) int {
	if len(levels) < 3 {
		return 0
	}
	gaps := 0
	var diffs []float64
	for i := 1; i < len(levels); i++ {
		diffs = append(diffs, math.Abs(levels[i].Price-levels[i-1].Price))
	}
	mean := 0.0
	for _, d := range diffs {
		mean += d
	}
	mean /= float64(len(diffs))
	for _, d := range diffs {
		if mean > 0 && d > 3*mean {
			gaps++
		}
	}
	return gaps
}

// expectedSlippage walks levels accumulating qty until notional is
// filled, returning the volume-weighted average fill price's
// distance from best in relative terms.
func expectedSlippage(levels []BookLevel, notional float64, best float64, okBest bool) *float64 {
	if !okBest || notional <= 0 || len(levels) == 0 {
		return nil
	}
	remainingNotional := notional
	filledQty := 0.0
	filledNotional := 0.0
	for _, l := range levels {
		levelNotional := l.Qty * l.Price
		take := l.Qty
		if levelNotional > remainingNotional {
			take = remainingNotional / l.Price
		}
		filledQty += take
		filledNotional += take * l.Price
		remainingNotional -= take * l.Price
		if remainingNotional <= 0 {
			break
		}
	}
	if filledQty == 0 {
		return nil
	}
	avgPrice := filledNotional / filledQty
	return ptr((avgPrice - best) / best)
}
