package microstructure

// PassiveFlow is the set of signals describing how resting liquidity
// changes between two book observations (spec.md §4.5 "Passive flow").
type PassiveFlow struct {
	AddRateBid     *float64
	AddRateAsk     *float64
	CancelRateBid  *float64
	CancelRateAsk  *float64
	DepthDeltaAdd  *float64
	DepthDeltaCancel *float64
	DepthDeltaTrade  *float64
	QueueDeltaBest *float64
	SpoofScore     *float64
	RefreshRate    *float64
}

// BookDelta is the decomposition of a book change the coordinator
// computes by diffing two consecutive snapshots against the trade tape
// between them: how much of the depth change is attributable to new
// passive orders, cancels, or trade-driven consumption.
type BookDelta struct {
	DtSec          float64
	AddedBidQty    float64
	AddedAskQty    float64
	CanceledBidQty float64
	CanceledAskQty float64
	TradedQty      float64
	QueueDeltaBest float64
	// CancelBurstCount is the number of cancel events at or near best
	// that were not followed by a matching trade within a short window
	// — a crude spoofing signature (place-then-pull at the touch).
	CancelBurstCount int
	TotalEvents      int
}

// DerivePassiveFlow turns a BookDelta into rate-normalized signals.
func DerivePassiveFlow(d BookDelta) PassiveFlow {
	var out PassiveFlow

	out.AddRateBid = safeDiv(d.AddedBidQty, d.DtSec)
	out.AddRateAsk = safeDiv(d.AddedAskQty, d.DtSec)
	out.CancelRateBid = safeDiv(d.CanceledBidQty, d.DtSec)
	out.CancelRateAsk = safeDiv(d.CanceledAskQty, d.DtSec)

	out.DepthDeltaAdd = ptr(d.AddedBidQty + d.AddedAskQty)
	out.DepthDeltaCancel = ptr(d.CanceledBidQty + d.CanceledAskQty)
	out.DepthDeltaTrade = ptr(d.TradedQty)

	out.QueueDeltaBest = ptr(d.QueueDeltaBest)

	out.SpoofScore = safeDiv(float64(d.CancelBurstCount), float64(d.TotalEvents))

	out.RefreshRate = safeDiv(d.AddedBidQty+d.AddedAskQty+d.CanceledBidQty+d.CanceledAskQty, d.DtSec)

	return out
}
