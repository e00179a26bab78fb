package dryrun

import (
	"sort"

	"github.com/ndrandal/perpflow/internal/fixedpoint"
)

// Tick advances the engine by one event: funding accrual, order
// matching in submission order, a working-order sweep, position
// update, and a liquidation check (spec.md §4.7). No wall-clock read
// occurs; all timing derives from input.TimestampMs.
func (e *Engine) Tick(input EventInput) TickLog {
	eventID := e.ids.NextEventID(input.TimestampMs, len(input.Orders))

	fundingImpact := e.accrueFunding(input.TimestampMs, input.MarkPrice)

	wb := newWorkingBook(input.Book)

	var results []OrderResult
	var realizedTotal, feeTotal fixedpoint.Fp

	for _, req := range input.Orders {
		res, realized, fee := e.processOrder(input.TimestampMs, wb, req)
		results = append(results, res)
		realizedTotal = fixedpoint.Add(realizedTotal, realized)
		feeTotal = fixedpoint.Add(feeTotal, fee)
	}

	sweepResults, sweepRealized, sweepFee := e.sweepRestingOrders(wb)
	results = append(results, sweepResults...)
	realizedTotal = fixedpoint.Add(realizedTotal, sweepRealized)
	feeTotal = fixedpoint.Add(feeTotal, sweepFee)

	liquidated := false
	if e.checkLiquidation(input.MarkPrice) {
		results = append(results, e.forceLiquidate(wb))
		liquidated = true
	}

	return TickLog{
		EventID:              eventID,
		OrderResults:         results,
		RealizedPnl:          realizedTotal,
		Fee:                  feeTotal,
		FundingImpact:        fundingImpact,
		LiquidationTriggered: liquidated,
		WalletBalance:        e.walletBalance,
		Position:             e.Position(),
	}
}

// processOrder dispatches a single OrderRequest per its Kind (spec.md
// §4.7 step 2).
func (e *Engine) processOrder(nowMs int64, wb *workingBook, req OrderRequest) (OrderResult, fixedpoint.Fp, fixedpoint.Fp) {
	orderID := req.OrderID
	if orderID == "" {
		orderID = e.ids.NextOrderID(req.Side, req.Kind, req.Qty)
	}

	switch req.Kind {
	case KindMarketIOC:
		return e.matchMarketIOC(orderID, req, wb)
	case KindLimitGTC:
		return e.placeLimitGTC(nowMs, orderID, req, wb)
	case KindLimitIOCReduceOnly:
		return e.matchLimitIOCReduceOnly(orderID, req, wb)
	default:
		return OrderResult{OrderID: orderID, Status: StatusRejected, ReasonCode: "UNKNOWN_KIND"}, 0, 0
	}
}

func (e *Engine) matchMarketIOC(orderID string, req OrderRequest, wb *workingBook) (OrderResult, fixedpoint.Fp, fixedpoint.Fp) {
	filledQty, notional := wb.consume(req.Side, req.Qty, nil)
	avg := avgPrice(filledQty, notional)

	var realized fixedpoint.Fp
	if fixedpoint.Sign(filledQty) > 0 {
		realized = e.applyFill(req.Side, filledQty, avg)
		e.walletBalance = fixedpoint.Add(e.walletBalance, realized)
	}

	fee := fixedpoint.Mul(notional, e.cfg.TakerFeeRate)
	e.walletBalance = fixedpoint.Sub(e.walletBalance, fee)

	status := StatusFilled
	if fixedpoint.Cmp(filledQty, req.Qty) < 0 {
		status = StatusPartiallyFilled
	}
	tradeIDs := e.tradeIDsFor(orderID, filledQty)

	return OrderResult{
		OrderID:      orderID,
		TradeIDs:     tradeIDs,
		FilledQty:    filledQty,
		AvgFillPrice: avg,
		Status:       status,
		ReasonCode:   req.ReasonCode,
	}, realized, fee
}

func (e *Engine) matchLimitIOCReduceOnly(orderID string, req OrderRequest, wb *workingBook) (OrderResult, fixedpoint.Fp, fixedpoint.Fp) {
	capQty := req.Qty
	if e.position == nil || e.position.Side == req.Side {
		// Reduce-only against no opposing exposure: nothing to reduce.
		return OrderResult{OrderID: orderID, Status: StatusRejected, ReasonCode: "REDUCE_ONLY_NO_POSITION"}, 0, 0
	}
	if fixedpoint.Cmp(e.position.Qty, capQty) < 0 {
		capQty = e.position.Qty
	}

	limit := req.Price
	filledQty, notional := wb.consume(req.Side, capQty, &limit)
	avg := avgPrice(filledQty, notional)

	var realized fixedpoint.Fp
	if fixedpoint.Sign(filledQty) > 0 {
		realized = e.applyFill(req.Side, filledQty, avg)
		e.walletBalance = fixedpoint.Add(e.walletBalance, realized)
	}

	fee := fixedpoint.Mul(notional, e.cfg.TakerFeeRate)
	e.walletBalance = fixedpoint.Sub(e.walletBalance, fee)

	status := StatusFilled
	if fixedpoint.Sign(filledQty) == 0 {
		status = StatusCanceled
	} else if fixedpoint.Cmp(filledQty, req.Qty) < 0 {
		status = StatusPartiallyFilled
	}

	return OrderResult{
		OrderID:      orderID,
		TradeIDs:     e.tradeIDsFor(orderID, filledQty),
		FilledQty:    filledQty,
		AvgFillPrice: avg,
		Status:       status,
		ReasonCode:   req.ReasonCode,
	}, realized, fee
}

func (e *Engine) placeLimitGTC(nowMs int64, orderID string, req OrderRequest, wb *workingBook) (OrderResult, fixedpoint.Fp, fixedpoint.Fp) {
	if req.PostOnly && wouldCross(wb, req.Side, req.Price) {
		return OrderResult{OrderID: orderID, Status: StatusRejected, ReasonCode: "POSTONLY_REJECT"}, 0, 0
	}

	e.openOrders[orderID] = &OpenOrder{
		OrderID:      orderID,
		Side:         req.Side,
		Price:        req.Price,
		RemainingQty: req.Qty,
		ReduceOnly:   req.ReduceOnly,
		PostOnly:     req.PostOnly,
		CreatedTsMs:  nowMs,
		TTLMs:        req.TTLMs,
		ReasonCode:   req.ReasonCode,
		Role:         req.Role,
	}

	return OrderResult{OrderID: orderID, Status: StatusResting, ReasonCode: req.ReasonCode}, 0, 0
}

// sweepRestingOrders matches every currently-resting order against the
// working book at the resting price (spec.md §4.7 step 3), in
// ascending OrderID order for determinism (map iteration order is not
// stable in Go).
func (e *Engine) sweepRestingOrders(wb *workingBook) ([]OrderResult, fixedpoint.Fp, fixedpoint.Fp) {
	ids := make([]string, 0, len(e.openOrders))
	for id := range e.openOrders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var results []OrderResult
	var realizedTotal, feeTotal fixedpoint.Fp

	for _, id := range ids {
		oo := e.openOrders[id]
		limit := oo.Price
		if !wouldCross(wb, oo.Side, limit) {
			continue
		}

		filledQty, _ := wb.consume(oo.Side, oo.RemainingQty, &limit)
		if fixedpoint.Sign(filledQty) == 0 {
			continue
		}
		avg := limit
		notional := fixedpoint.Mul(filledQty, limit)

		realized := e.applyFill(oo.Side, filledQty, avg)
		e.walletBalance = fixedpoint.Add(e.walletBalance, realized)
		realizedTotal = fixedpoint.Add(realizedTotal, realized)

		fee := fixedpoint.Mul(notional, e.cfg.MakerFeeRate)
		e.walletBalance = fixedpoint.Sub(e.walletBalance, fee)
		feeTotal = fixedpoint.Add(feeTotal, fee)

		oo.RemainingQty = fixedpoint.Sub(oo.RemainingQty, filledQty)
		status := StatusPartiallyFilled
		if fixedpoint.Sign(oo.RemainingQty) == 0 {
			status = StatusFilled
			delete(e.openOrders, id)
		}

		results = append(results, OrderResult{
			OrderID:      id,
			TradeIDs:     e.tradeIDsFor(id, filledQty),
			FilledQty:    filledQty,
			AvgFillPrice: avg,
			Status:       status,
			ReasonCode:   oo.ReasonCode,
		})
	}

	return results, realizedTotal, feeTotal
}

func (e *Engine) tradeIDsFor(orderID string, filledQty fixedpoint.Fp) []string {
	if fixedpoint.Sign(filledQty) == 0 {
		return nil
	}
	return []string{e.ids.NextTradeID(orderID, filledQty)}
}
