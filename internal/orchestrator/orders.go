package orchestrator

import (
	"github.com/ndrandal/perpflow/internal/dryrun"
	"github.com/ndrandal/perpflow/internal/fixedpoint"
)

func mustFp(v float64) fixedpoint.Fp { return fixedpoint.MustToFp(v) }

// notionalToQty converts a target notional at the given price into a
// quantity, guarding against a zero or missing price (no book yet).
func notionalToQty(notional, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return notional / price
}

// buildEntryOrders starts (or continues) the maker chase loop and
// returns the order the caller should submit this tick: a fresh
// postOnly LIMIT if no chase is active, a cancel-then-replace pair's
// replacement leg if a reprice is due, a capped-notional MARKET order
// if the chase has timed out and fallback conditions hold, or nothing
// if the chase is still resting and untouched (spec.md §4.8 "Entry
// chase", "Fallback taker").
func (o *Orchestrator) buildEntryOrders(in Inputs) []dryrun.OrderRequest {
	if o.chase == nil {
		price := entryChasePrice(in.DesiredSide, in.BestSamePrice, o.cfg.TickSize)
		qty := notionalToQty(o.cfg.BaseEntryNotional, price)
		o.startChase("", in.DesiredSide, qty, price, in.NowMs)
		return []dryrun.OrderRequest{{
			Kind:     dryrun.KindLimitGTC,
			Side:     in.DesiredSide,
			Qty:      mustFp(qty),
			Price:    mustFp(price),
			PostOnly: true,
			TTLMs:    o.cfg.ChaseTTLMs,
			Role:     "entry",
		}}
	}

	action, newPrice := o.tickChase(in.NowMs, in.BestSamePrice)
	switch action {
	case ChaseActionReplace:
		return []dryrun.OrderRequest{{
			Kind:     dryrun.KindLimitGTC,
			Side:     in.DesiredSide,
			Qty:      mustFp(o.chase.qty),
			Price:    mustFp(newPrice),
			PostOnly: true,
			TTLMs:    o.cfg.ChaseTTLMs,
			Role:     "entry",
		}}
	case ChaseActionTerminate:
		if o.fallbackEligible(true, in.Impulse) {
			o.clearChase()
			fallbackNotional := o.cfg.FallbackNotionalFrac * o.cfg.BaseEntryNotional
			o.fallbackTriggeredCount++
			return []dryrun.OrderRequest{{
				Kind: dryrun.KindMarketIOC,
				Side: in.DesiredSide,
				Qty:  mustFp(notionalToQty(fallbackNotional, in.BestSamePrice)),
				Role: "entry-fallback",
			}}
		}
		o.clearChase()
		return nil
	default:
		return nil
	}
}

// buildAddOrder emits a single postOnly add-on LIMIT at the add's
// same-side best price, sized to the rung's declining fraction of the
// position's current notional (spec.md §4.8 "Adds").
func (o *Orchestrator) buildAddOrder(in Inputs, add AddDecision) []dryrun.OrderRequest {
	addedNotional := add.Fraction * in.Add.CurrentNotional
	return []dryrun.OrderRequest{{
		Kind:     dryrun.KindLimitGTC,
		Side:     in.DesiredSide,
		Qty:      mustFp(notionalToQty(addedNotional, in.BestSamePrice)),
		Price:    mustFp(in.BestSamePrice),
		PostOnly: true,
		Role:     "add",
	}}
}

// buildExitOrders emits a reduceOnly order per the maker-then-taker
// escalation: maker attempts first, taker IOC once exhausted (spec.md
// §4.8 "Risk exit"). o.exitAttempts tracks the escalation across ticks
// for the life of the open position; Decide resets it once flat.
func (o *Orchestrator) buildExitOrders(in Inputs) []dryrun.OrderRequest {
	closingSide := dryrun.SideShort
	if in.Position.Side == dryrun.SideShort {
		closingSide = dryrun.SideLong
	}

	role := o.exitAttempts.nextExitRole(o.cfg.MakerExitAttempts)
	o.exitAttempts.AttemptsUsed++

	if role == "maker" {
		return []dryrun.OrderRequest{{
			Kind:       dryrun.KindLimitGTC,
			Side:       closingSide,
			Qty:        in.Position.Qty,
			Price:      mustFp(in.BestSamePrice),
			PostOnly:   true,
			ReduceOnly: true,
			Role:       "risk-exit-maker",
		}}
	}
	return []dryrun.OrderRequest{{
		Kind:       dryrun.KindLimitIOCReduceOnly,
		Side:       closingSide,
		Qty:        in.Position.Qty,
		Price:      mustFp(in.BestSamePrice),
		ReduceOnly: true,
		Role:       "risk-exit-taker",
	}}
}

func entryChasePrice(side dryrun.Side, bestSamePrice, tickSize float64) float64 {
	if side == dryrun.SideLong {
		return bestSamePrice + tickSize
	}
	return bestSamePrice - tickSize
}
