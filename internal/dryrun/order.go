package dryrun

import "github.com/ndrandal/perpflow/internal/fixedpoint"

// OrderKind selects the matching behavior for an incoming order
// (spec.md §4.7).
type OrderKind int

const (
	KindMarketIOC OrderKind = iota
	KindLimitGTC
	KindLimitIOCReduceOnly
)

// OrderRequest is one entry in an event tick's orders[] (spec.md
// §4.7).
type OrderRequest struct {
	OrderID    string // caller-supplied correlation id; empty lets the engine mint one
	Kind       OrderKind
	Side       Side
	Qty        fixedpoint.Fp
	Price      fixedpoint.Fp // ignored for KindMarketIOC
	PostOnly   bool
	ReduceOnly bool
	TTLMs      int64
	ReasonCode string
	Role       string
}

// OrderStatus is the terminal disposition of one OrderRequest.
type OrderStatus int

const (
	StatusFilled OrderStatus = iota
	StatusPartiallyFilled
	StatusCanceled
	StatusRejected
	StatusResting
	StatusForcedLiquidation
)

func (s OrderStatus) String() string {
	switch s {
	case StatusFilled:
		return "FILLED"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusCanceled:
		return "CANCELED"
	case StatusRejected:
		return "REJECTED"
	case StatusResting:
		return "RESTING"
	case StatusForcedLiquidation:
		return "FORCED_LIQUIDATION"
	default:
		return "UNKNOWN"
	}
}

// OrderResult is the per-order outcome folded into a TickLog.
type OrderResult struct {
	OrderID      string
	TradeIDs     []string
	FilledQty    fixedpoint.Fp
	AvgFillPrice fixedpoint.Fp
	Status       OrderStatus
	ReasonCode   string
}

// OpenOrder is a resting limit order keyed by OrderID (spec.md §3). At
// most one live entry-role order per symbol per side is a contract the
// orchestrator enforces; the engine itself accepts whatever it is
// given.
type OpenOrder struct {
	OrderID      string
	Side         Side
	Price        fixedpoint.Fp
	RemainingQty fixedpoint.Fp
	ReduceOnly   bool
	PostOnly     bool
	CreatedTsMs  int64
	TTLMs        int64
	ReasonCode   string
	Role         string
}

// BookLevel is a single price/qty point used for matching.
type BookLevel struct {
	Price fixedpoint.Fp
	Qty   fixedpoint.Fp
}

// BookSnapshot is the book state an event tick carries (spec.md §4.7
// step 3 "working-order sweep" matches resting orders against this).
type BookSnapshot struct {
	Bids []BookLevel // descending by price
	Asks []BookLevel // ascending by price
}

// EventInput is one tick's worth of engine input (spec.md §4.7).
type EventInput struct {
	TimestampMs int64
	MarkPrice   fixedpoint.Fp
	Book        BookSnapshot
	Orders      []OrderRequest
}

// TickLog is the engine's emitted record for one Tick call (spec.md
// §4.7 step 6).
type TickLog struct {
	EventID              string
	OrderResults         []OrderResult
	RealizedPnl          fixedpoint.Fp
	Fee                  fixedpoint.Fp
	FundingImpact        fixedpoint.Fp
	LiquidationTriggered bool
	WalletBalance        fixedpoint.Fp
	Position             *Position
}
