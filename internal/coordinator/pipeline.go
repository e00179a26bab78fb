package coordinator

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/ndrandal/perpflow/internal/dryrun"
	"github.com/ndrandal/perpflow/internal/fanout"
	"github.com/ndrandal/perpflow/internal/fixedpoint"
	"github.com/ndrandal/perpflow/internal/microstructure"
	"github.com/ndrandal/perpflow/internal/orchestrator"
	"github.com/ndrandal/perpflow/internal/orderbook"
	"github.com/ndrandal/perpflow/internal/tape"
	"github.com/ndrandal/perpflow/internal/tradesession"
	"github.com/ndrandal/perpflow/internal/upstream"
)

// regimeWindowSize bounds how many mid-price samples the pipeline keeps
// for the rolling closes/returns series DeriveRegime consumes. This is
// a tick-sampled proxy for the bar-aggregated series a full backtester
// would use; internal/backfill's kline cache is the authoritative
// higher-timeframe source (HTF below), this window only feeds the
// faster regime/chop signals.
const regimeWindowSize = 256

// symbolPipeline is the single-actor state for one symbol: the order
// book (C3), trade tape (C4), derived microstructure series (C5), and
// the session (C9) it drives. Touched only by its own run goroutine;
// the coordinator's SessionProvider lookup only reaches the *session*
// field, which is independently safe for concurrent Status() reads.
type symbolPipeline struct {
	symbol string
	coord  *Coordinator

	book    *orderbook.Book
	tape    *tape.Tape
	session *tradesession.Session

	midWindow    []float64
	lastMid      float64
	haveLastMid  bool
	basisWindow  []float64
	sessionVWAP  *microstructure.SessionVWAP
	htf1h        microstructure.HTFFrame
	lastFunding  *upstream.FundingTick
	lastOI       *upstream.OpenInterestPoll
	lastBroadcastMs int64
	lastPersistMs   int64

	// Prior-tick state for the DirectionLock reversal confirmations
	// (spec.md §4.8): each is compared against the current tick's value
	// to produce a change/flip flag, then rolled forward.
	haveReversalState   bool
	prevRegimeTrending  bool
	prevCVDSign         int
	prevOBISupportsSide bool
	prevOIDirection     int

	// oiValue/oiDirection track the sign of change across successive
	// open-interest polls, which arrive far less often than book ticks.
	oiValue     float64
	haveOIValue bool
	oiDirection int
}

func newSymbolPipeline(sym string, c *Coordinator) *symbolPipeline {
	sess := tradesession.New(sym, tradesession.NewRunID(), c.cfg.EngineCfg, c.cfg.OrchestratorCfg, c.cfg.SessionCfg)
	return &symbolPipeline{
		symbol:      sym,
		coord:       c,
		book:        orderbook.New(orderbook.DefaultConfig()),
		tape:        tape.New(tape.DefaultConfig()),
		session:     sess,
		midWindow:   make([]float64, 0, regimeWindowSize),
		sessionVWAP: microstructure.NewSessionVWAP(time.Now()),
	}
}

// run is the pipeline's actor loop: it owns ch exclusively and
// serializes every mutation to book/tape/session through this one
// goroutine (spec.md §5 "within a symbol, operations are serialized
// through a single logical actor").
func (p *symbolPipeline) run(ctx context.Context, ch <-chan upstream.StreamMessage) {
	if p.coord.backfillCo != nil {
		p.warmupFromBackfill(ctx)
	}
	if err := p.session.Start(); err != nil {
		log.Printf("coordinator[%s]: session start failed: %v", p.symbol, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			p.session.Stop()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.handleMessage(msg)
		}
	}
}

func (p *symbolPipeline) warmupFromBackfill(ctx context.Context) {
	if err := p.coord.backfillCo.Ensure(ctx, p.symbol); err != nil {
		log.Printf("coordinator[%s]: backfill warmup failed: %v", p.symbol, err)
		return
	}
	bars, err := p.coord.backfillCo.LoadCached(ctx, p.symbol, 200)
	if err != nil {
		log.Printf("coordinator[%s]: backfill load failed: %v", p.symbol, err)
		return
	}
	p.htf1h = microstructure.DeriveHTF(bars, 3, 14)
}

func (p *symbolPipeline) handleMessage(msg upstream.StreamMessage) {
	now := time.Now()

	switch {
	case msg.Snapshot != nil:
		p.archiveRaw("orderbook", msg.Snapshot)
		bids := parseLevels(msg.Snapshot.Bids)
		asks := parseLevels(msg.Snapshot.Asks)
		p.book.ApplySnapshot(msg.Snapshot.LastUpdateID, bids, asks, now)
		p.onBookChanged(now)

	case msg.Diff != nil:
		p.archiveRaw("orderbook", msg.Diff)
		bids := parseLevels(msg.Diff.Bids)
		asks := parseLevels(msg.Diff.Asks)
		eventTs := time.UnixMilli(msg.Diff.EventTimeMs)
		res := p.book.ApplyDiff(msg.Diff.FirstUpdateID, msg.Diff.FinalUpdateID, bids, asks, eventTs, now)
		if !res.OK && res.Reason == "gap" {
			log.Printf("coordinator[%s]: sequence gap, awaiting resync snapshot", p.symbol)
		}
		p.onBookChanged(now)

	case msg.Trade != nil:
		p.archiveRaw("trade", msg.Trade)
		p.onTrade(msg.Trade, now)

	case msg.Funding != nil:
		p.archiveRaw("funding", msg.Funding)
		p.lastFunding = msg.Funding

	case msg.OI != nil:
		p.archiveRaw("funding", msg.OI)
		p.lastOI = msg.OI
		p.updateOIDirection(msg.OI)
	}
}

// updateOIDirection records the sign of change between successive
// open-interest polls; 0 (unknown) until a second poll lands.
func (p *symbolPipeline) updateOIDirection(poll *upstream.OpenInterestPoll) {
	v, err := strconv.ParseFloat(poll.Value, 64)
	if err != nil {
		return
	}
	if p.haveOIValue {
		switch {
		case v > p.oiValue:
			p.oiDirection = 1
		case v < p.oiValue:
			p.oiDirection = -1
		default:
			p.oiDirection = 0
		}
	}
	p.oiValue = v
	p.haveOIValue = true
}

func (p *symbolPipeline) onTrade(tr *upstream.Trade, now time.Time) {
	price, err := strconv.ParseFloat(tr.Price, 64)
	if err != nil {
		return
	}
	qty, err := strconv.ParseFloat(tr.Qty, 64)
	if err != nil {
		return
	}

	aggressor := tape.AggressorBuy
	if tr.IsBuyerMaker {
		aggressor = tape.AggressorSell
	}
	p.tape.Add(tape.Trade{TsMs: tr.TimestampMs, Price: price, Qty: qty, Aggressor: aggressor})
	p.sessionVWAP.Add(now, price, qty)
}

func (p *symbolPipeline) onBookChanged(now time.Time) {
	bestBid, okBid := p.book.BestBid()
	bestAsk, okAsk := p.book.BestAsk()
	if !okBid || !okAsk {
		return
	}
	mid := (bestBid + bestAsk) / 2
	p.midWindow = append(p.midWindow, mid)
	if len(p.midWindow) > regimeWindowSize {
		p.midWindow = p.midWindow[len(p.midWindow)-regimeWindowSize:]
	}
	p.haveLastMid = true
	p.lastMid = mid

	p.tick(now, mid)
}

// tick assembles one depth event from the pipeline's current state and
// feeds it to the session, then broadcasts a fan-out snapshot subject
// to the throttle (spec.md §4.9, §4.10).
func (p *symbolPipeline) tick(now time.Time, mid float64) {
	nowMs := now.UnixMilli()

	bidLevels, askLevels := p.book.DepthAt(50)
	book := dryrun.BookSnapshot{Bids: toOrderLevels(bidLevels), Asks: toOrderLevels(askLevels)}

	telemetry := p.assembleTelemetry(nowMs, mid, bidLevels, askLevels)

	ev := tradesession.DepthEvent{
		TimestampMs: nowMs,
		MarkPrice:   fixedpoint.MustToFp(mid),
		Book:        book,
		Telemetry:   telemetry,
	}

	if _, err := p.session.OnDepthEvent(ev); err != nil {
		return
	}

	if p.coord.throttle.Allow(p.symbol, nowMs) {
		p.broadcast(nowMs, mid, bidLevels, askLevels)
	}

	if (p.coord.sessionStore != nil || p.coord.sessionMirror != nil) && nowMs-p.lastPersistMs >= p.coord.cfg.SessionPersistIntervalMs {
		p.lastPersistMs = nowMs
		p.persistStatus()
	}
}

func (p *symbolPipeline) assembleTelemetry(nowMs int64, mid float64, bidLevels, askLevels []orderbook.Level) tradesession.TelemetryInputs {
	tapeSnap := p.tape.Snapshot(nowMs)
	regime := microstructure.DeriveRegime(logReturns(p.midWindow), nil, nil, trueRanges(p.midWindow), p.midWindow)
	integrity := p.book.Integrity(time.UnixMilli(nowMs))

	cvdSlope := 0
	switch {
	case tapeSnap.DeltaZ > 0:
		cvdSlope = 1
	case tapeSnap.DeltaZ < 0:
		cvdSlope = -1
	}

	var spreadBps float64
	if bestBid, ok := p.book.BestBid(); ok {
		if bestAsk, ok2 := p.book.BestAsk(); ok2 && mid > 0 {
			spreadBps = (bestAsk - bestBid) / mid * 10000
		}
	}

	var sessionVWAPDistanceBps float64
	if p.sessionVWAP.Value != nil && *p.sessionVWAP.Value != 0 {
		sessionVWAPDistanceBps = (mid - *p.sessionVWAP.Value) / *p.sessionVWAP.Value * 10000
	}

	var realizedVol1m float64
	if regime.RealizedVol1m != nil {
		realizedVol1m = *regime.RealizedVol1m
	}
	var trendiness, chop float64
	if regime.Trendiness != nil {
		trendiness = *regime.Trendiness
	}
	if regime.Chop != nil {
		chop = *regime.Chop
	}
	var volOfVol float64
	if regime.VolOfVol != nil {
		volOfVol = *regime.VolOfVol
	}

	desiredSide := dryrun.SideLong
	if cvdSlope < 0 {
		desiredSide = dryrun.SideShort
	}

	obiSupportsSide := deepOBISupportsSide(bidLevels, askLevels, desiredSide)
	trending := trendiness > chop

	signalScore := clamp01(0.4*trendiness + 0.3*clamp01(abs(tapeSnap.DeltaZ)/3) + 0.3*clamp01(tapeSnap.PrintsPerSecond/5))

	reversal := orchestrator.ReversalConfirmations{}
	if p.haveReversalState {
		reversal.RegimeChange = trending != p.prevRegimeTrending
		reversal.FlowChange = obiSupportsSide != p.prevOBISupportsSide
		reversal.CVDSlopeFlip = cvdSlope != 0 && p.prevCVDSign != 0 && cvdSlope != p.prevCVDSign
		reversal.OIDirectionFlip = p.oiDirection != 0 && p.prevOIDirection != 0 && p.oiDirection != p.prevOIDirection
	}
	p.prevRegimeTrending = trending
	p.prevCVDSign = cvdSlope
	p.prevOBISupportsSide = obiSupportsSide
	p.prevOIDirection = p.oiDirection
	p.haveReversalState = true

	return tradesession.TelemetryInputs{
		SampleCount: len(p.midWindow),
		DesiredSide: desiredSide,
		Regime: orchestrator.RegimeInputs{
			Trendiness: trendiness,
			Chop:       chop,
			VolOfVol:   volOfVol,
			SpreadBps:  spreadBps,
		},
		Flow: orchestrator.FlowInputs{
			CVDSlopeSign:        cvdSlope,
			OBIDeepSupportsSide: obiSupportsSide,
			DeltaZ:              tapeSnap.DeltaZ,
		},
		Location: orchestrator.LocationInputs{
			SessionVWAPDistanceBps: sessionVWAPDistanceBps,
			RealizedVol1m:          realizedVol1m,
		},
		Impulse: orchestrator.ImpulseInputs{
			PrintsPerSecond: tapeSnap.PrintsPerSecond,
			DeltaZ:          tapeSnap.DeltaZ,
			SpreadBps:       spreadBps,
		},
		SpreadBps:   spreadBps,
		SignalScore: signalScore,
		RiskExit: orchestrator.RiskExitInputs{
			Integrity: integrity.Level,
		},
		Reversal: reversal,
	}
}

// deepOBISupportsSide compares resting volume across the full fetched
// depth on each side: a long candidate is supported when bids outweigh
// asks, a short candidate when asks outweigh bids (spec.md §4.8 Gate B
// "deep OBI supports side").
func deepOBISupportsSide(bids, asks []orderbook.Level, side dryrun.Side) bool {
	var bidVol, askVol float64
	for _, l := range bids {
		bidVol += l.Qty
	}
	for _, l := range asks {
		askVol += l.Qty
	}
	if side == dryrun.SideShort {
		return askVol > bidVol
	}
	return bidVol > askVol
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (p *symbolPipeline) broadcast(nowMs int64, mid float64, bids, asks []orderbook.Level) {
	if p.coord.fanoutMgr == nil {
		return
	}
	integrity := p.book.Integrity(time.UnixMilli(nowMs))
	snap := fanout.Snapshot{
		Type:        "metrics",
		Symbol:      p.symbol,
		State:       p.book.State().String(),
		EventTimeMs: nowMs,
		Integrity:   integrity,
		Bids:        fanout.CumulativeBookLevels(bids),
		Asks:        fanout.CumulativeBookLevels(asks),
		MidPrice:    mid,
	}
	p.coord.fanoutMgr.BroadcastSnapshot(snap)

	if integrity.Level == orderbook.IntegrityCritical {
		p.coord.fanoutMgr.BroadcastIntegrity(fanout.IntegrityMessage{
			Type:    "integrity",
			Symbol:  p.symbol,
			Level:   integrity.Level.String(),
			Message: integrity.Message,
		})
	}
}

// persistStatus mirrors the session's status to Mongo (authoritative,
// queryable) and, independently, to a local JSONL file under
// SESSION_DIR (spec.md §6) so the last-known status survives a crash
// even when Mongo is unreachable.
func (p *symbolPipeline) persistStatus() {
	status := p.session.Status()

	if p.coord.sessionStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.coord.sessionStore.Save(ctx, p.symbol+":"+status.RunID, status); err != nil {
			log.Printf("coordinator[%s]: session persist failed: %v", p.symbol, err)
		}
		cancel()
	}

	if p.coord.sessionMirror != nil {
		if err := p.coord.sessionMirror.Append(p.symbol, "status", status); err != nil {
			log.Printf("coordinator[%s]: session mirror write failed: %v", p.symbol, err)
		}
	}
}

func (p *symbolPipeline) archiveRaw(kind string, payload any) {
	if p.coord.archiveWriter == nil {
		return
	}
	if err := p.coord.archiveWriter.Append(p.symbol, kind, payload); err != nil {
		log.Printf("coordinator[%s]: archive append failed: %v", p.symbol, err)
	}
}

func parseLevels(raw [][2]string) []orderbook.Level {
	out := make([]orderbook.Level, 0, len(raw))
	for _, r := range raw {
		price, err := strconv.ParseFloat(r[0], 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(r[1], 64)
		if err != nil {
			continue
		}
		out = append(out, orderbook.Level{Price: price, Qty: qty})
	}
	return out
}

func toOrderLevels(levels []orderbook.Level) []dryrun.BookLevel {
	out := make([]dryrun.BookLevel, len(levels))
	for i, l := range levels {
		out[i] = dryrun.BookLevel{Price: fixedpoint.MustToFp(l.Price), Qty: fixedpoint.MustToFp(l.Qty)}
	}
	return out
}

// logReturns derives a trailing log-return proxy series from a mid-price
// window: consecutive percentage changes rather than true log returns,
// close enough for the realized-vol/vol-of-vol magnitude checks
// DeriveRegime performs and cheap to maintain per tick.
func logReturns(mids []float64) []float64 {
	if len(mids) < 2 {
		return nil
	}
	out := make([]float64, 0, len(mids)-1)
	for i := 1; i < len(mids); i++ {
		if mids[i-1] == 0 {
			continue
		}
		out = append(out, (mids[i]-mids[i-1])/mids[i-1])
	}
	return out
}

// trueRanges approximates a true-range series from a mid-price window
// in the absence of per-tick OHLC: the absolute tick-to-tick move.
func trueRanges(mids []float64) []float64 {
	if len(mids) < 2 {
		return nil
	}
	out := make([]float64, 0, len(mids)-1)
	for i := 1; i < len(mids); i++ {
		d := mids[i] - mids[i-1]
		if d < 0 {
			d = -d
		}
		out = append(out, d)
	}
	return out
}
