package dryrun

import "github.com/ndrandal/perpflow/internal/fixedpoint"

// applyFill folds one fill into the engine's position, updating
// weighted-average entry on adds and realizing PnL on reductions
// (including a same-fill flip through flat). Fee is charged separately
// by the caller.
func (e *Engine) applyFill(side Side, qty, price fixedpoint.Fp) (realizedPnl fixedpoint.Fp) {
	if fixedpoint.Sign(qty) <= 0 {
		return 0
	}

	if e.position == nil {
		e.position = &Position{Side: side, Qty: qty, EntryVWAP: price}
		return 0
	}

	if e.position.Side == side {
		totalQty := fixedpoint.Add(e.position.Qty, qty)
		oldNotional := fixedpoint.Mul(e.position.Qty, e.position.EntryVWAP)
		addNotional := fixedpoint.Mul(qty, price)
		newVWAP, err := fixedpoint.Div(fixedpoint.Add(oldNotional, addNotional), totalQty)
		if err == nil {
			e.position.EntryVWAP = newVWAP
		}
		e.position.Qty = totalQty
		return 0
	}

	pnlPerUnit := fixedpoint.Mul(fixedpoint.Sub(price, e.position.EntryVWAP), signFp(e.position.Side))

	if fixedpoint.Cmp(qty, e.position.Qty) < 0 {
		realizedPnl = fixedpoint.Mul(pnlPerUnit, qty)
		e.position.Qty = fixedpoint.Sub(e.position.Qty, qty)
		return realizedPnl
	}

	closingQty := e.position.Qty
	realizedPnl = fixedpoint.Mul(pnlPerUnit, closingQty)
	remainder := fixedpoint.Sub(qty, closingQty)

	if fixedpoint.Sign(remainder) == 0 {
		e.position = nil
		return realizedPnl
	}
	e.position = &Position{Side: side, Qty: remainder, EntryVWAP: price}
	return realizedPnl
}

// unrealizedPnl computes mark-to-market PnL on the current position at
// markPrice. Returns 0 if flat.
func (e *Engine) unrealizedPnl(markPrice fixedpoint.Fp) fixedpoint.Fp {
	if e.position == nil {
		return 0
	}
	perUnit := fixedpoint.Mul(fixedpoint.Sub(markPrice, e.position.EntryVWAP), signFp(e.position.Side))
	return fixedpoint.Mul(perUnit, e.position.Qty)
}

// checkLiquidation reports whether walletBalance + unrealizedPnl has
// fallen below position.notional * maintenanceMarginRate (spec.md §4.7
// step 5). Returns false when flat.
func (e *Engine) checkLiquidation(markPrice fixedpoint.Fp) bool {
	if e.position == nil {
		return false
	}
	notional := fixedpoint.Mul(e.position.Qty, markPrice)
	threshold := fixedpoint.Mul(notional, e.cfg.MaintenanceMarginRate)
	equity := fixedpoint.Add(e.walletBalance, e.unrealizedPnl(markPrice))
	return fixedpoint.Cmp(equity, threshold) < 0
}

// forceLiquidate closes the entire position at the best available
// price in wb regardless of depth sufficiency; any residual quantity
// beyond available depth is still closed at the worst touched level (or
// the last traded level price if the book is fully exhausted), per
// spec.md §4.7 step 5: "the loss is taken at the worst available
// level."
func (e *Engine) forceLiquidate(wb *workingBook) OrderResult {
	pos := e.position
	closingSide := SideShort
	if pos.Side == SideShort {
		closingSide = SideLong
	}

	levels := *wb.oppositeSide(closingSide)
	worstPrice := pos.EntryVWAP
	if len(levels) > 0 {
		worstPrice = levels[len(levels)-1].Price
	}

	filledQty, notional := wb.consume(closingSide, pos.Qty, nil)
	remaining := fixedpoint.Sub(pos.Qty, filledQty)

	avg := avgPrice(filledQty, notional)
	if fixedpoint.Sign(remaining) > 0 {
		// Book fully exhausted: close the remainder at the worst level
		// of the side just consumed (or at the entry VWAP if that side
		// was empty and nothing was touched at all).
		notional = fixedpoint.Add(notional, fixedpoint.Mul(remaining, worstPrice))
		filledQty = pos.Qty
		avg = avgPrice(filledQty, notional)
	}

	realized := e.applyFill(closingSide, filledQty, avg)
	e.walletBalance = fixedpoint.Add(e.walletBalance, realized)

	return OrderResult{
		FilledQty:    pos.Qty,
		AvgFillPrice: avg,
		Status:       StatusForcedLiquidation,
		ReasonCode:   "FORCED_LIQUIDATION",
	}
}
