package tradesession

import (
	"github.com/ndrandal/perpflow/internal/dryrun"
	"github.com/ndrandal/perpflow/internal/fixedpoint"
	"github.com/ndrandal/perpflow/internal/orchestrator"
)

// OnDepthEvent drives one tick of the session: validate the event,
// derive the orchestrator's decision from the caller-supplied
// telemetry, prepend any queued manual test orders, tick the engine,
// fold the result back into the orchestrator and the rolling log
// buffers, and return the tick's log.
func (s *Session) OnDepthEvent(ev DepthEvent) (dryrun.TickLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != LifecycleRunning {
		return dryrun.TickLog{}, ErrNotRunning
	}
	if s.haveLastEvent && ev.TimestampMs <= s.lastEventTsMs {
		return dryrun.TickLog{}, ErrStaleTimestamp
	}
	if s.haveLastEvent && s.cfg.MinEventSpacingMs > 0 && ev.TimestampMs-s.lastEventTsMs < s.cfg.MinEventSpacingMs {
		return dryrun.TickLog{}, ErrSpacingViolation
	}

	if len(ev.Book.Bids) == 0 || len(ev.Book.Asks) == 0 {
		s.appendLog("heartbeat: empty book side, no advance")
		s.haveLastEvent = true
		s.lastEventTsMs = ev.TimestampMs
		return dryrun.TickLog{}, nil
	}

	pos := s.engine.Position()
	bestSame := bestSamePrice(ev.Book, ev.Telemetry.DesiredSide)

	inputs := orchestrator.Inputs{
		NowMs:         ev.TimestampMs,
		SampleCount:   ev.Telemetry.SampleCount,
		DesiredSide:   ev.Telemetry.DesiredSide,
		Regime:        ev.Telemetry.Regime,
		Flow:          ev.Telemetry.Flow,
		Location:      ev.Telemetry.Location,
		Impulse:       ev.Telemetry.Impulse,
		Position:      pos,
		BestSamePrice: bestSame,
		RiskExit:      ev.Telemetry.RiskExit,
		Reversal:      ev.Telemetry.Reversal,
	}
	if pos != nil {
		inputs.Add = orchestrator.AddInputs{
			UnrealizedPnlPct: unrealizedPnlPct(pos, ev.MarkPrice),
			SignalScore:      ev.Telemetry.SignalScore,
			SpreadBps:        ev.Telemetry.SpreadBps,
			CurrentNotional:  fixedpoint.FromFp(fixedpoint.Mul(pos.Qty, ev.MarkPrice)),
			NowMs:            ev.TimestampMs,
		}
	}

	snap := s.orch.Decide(inputs)

	orders := make([]dryrun.OrderRequest, 0, len(s.manualQueue)+len(ev.ManualOrders)+len(snap.Orders))
	orders = append(orders, s.manualQueue...)
	orders = append(orders, ev.ManualOrders...)
	orders = append(orders, snap.Orders...)

	tickLog := s.engine.Tick(dryrun.EventInput{
		TimestampMs: ev.TimestampMs,
		MarkPrice:   ev.MarkPrice,
		Book:        ev.Book,
		Orders:      orders,
	})

	for _, res := range tickLog.OrderResults {
		if res.Status == dryrun.StatusFilled {
			s.orch.NotifyOrderFilled(res.OrderID)
		}
	}

	s.tickLogs.push(tickLog)
	s.appendLog("tick processed: " + snap.Intent.String())

	s.manualQueue = nil
	s.haveLastEvent = true
	s.lastEventTsMs = ev.TimestampMs
	s.eventCount++

	return tickLog, nil
}

// bestSamePrice picks the best resting price on the side the
// orchestrator is evaluating entries/adds against: the best bid for a
// long candidate, the best ask for a short candidate.
func bestSamePrice(book dryrun.BookSnapshot, side dryrun.Side) float64 {
	if side == dryrun.SideShort {
		if len(book.Asks) == 0 {
			return 0
		}
		return fixedpoint.FromFp(book.Asks[0].Price)
	}
	if len(book.Bids) == 0 {
		return 0
	}
	return fixedpoint.FromFp(book.Bids[0].Price)
}

// unrealizedPnlPct is the position's unrealized PnL as a percentage of
// its entry notional, signed by side (spec.md §4.8 add-on gate input).
func unrealizedPnlPct(pos *dryrun.Position, mark fixedpoint.Fp) float64 {
	entryNotional := fixedpoint.FromFp(fixedpoint.Mul(pos.Qty, pos.EntryVWAP))
	if entryNotional == 0 {
		return 0
	}
	diff := fixedpoint.FromFp(fixedpoint.Sub(mark, pos.EntryVWAP))
	pnl := diff * fixedpoint.FromFp(pos.Qty)
	if pos.Side == dryrun.SideShort {
		pnl = -pnl
	}
	return pnl / entryNotional * 100
}
