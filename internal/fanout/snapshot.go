// Package fanout assembles the unified per-symbol "metrics" frame
// (spec.md §6) and broadcasts it to subscribed WebSocket clients at a
// bounded cadence, with per-client backpressure that drops the oldest
// metrics frame rather than blocking the broadcaster (spec.md §4.10).
//
// Directly adapted from the teacher's internal/session package
// (Manager/Client/Handler): the client registration, send-channel
// buffering, and read/write pump shape all carry over, generalized
// from ITCH-message locate-code fan-out to symbol-string fan-out of a
// single composed JSON payload per tick instead of a batch of
// protocol messages.
package fanout

import "github.com/ndrandal/perpflow/internal/orderbook"

// BookLevel is one price/qty/cumulative-qty row in the snapshot's
// bids/asks arrays (spec.md §6 "bids[[price,qty,cumQty]]").
type BookLevel struct {
	Price  float64 `json:"price"`
	Qty    float64 `json:"qty"`
	CumQty float64 `json:"cumQty"`
}

// Snapshot is the unified per-symbol payload C10 assembles from
// C3/C4/C5/C7/C8/C9 state each tick (spec.md §6 "metrics" frame,
// condensed). Optional sections are nil when the upstream data source
// for them isn't configured (e.g. openInterest, funding, crossMarket).
type Snapshot struct {
	Type        string `json:"type"`
	Symbol      string `json:"symbol"`
	State       string `json:"state"`
	EventTimeMs int64  `json:"event_time_ms"`

	SnapshotRef struct {
		EventID   string `json:"eventId"`
		StateHash string `json:"stateHash"`
		Ts        int64  `json:"ts"`
	} `json:"snapshot"`

	TimeAndSales any `json:"timeAndSales"`
	CVD          struct {
		TF1m  any `json:"tf1m"`
		TF5m  any `json:"tf5m"`
		TF15m any `json:"tf15m"`
	} `json:"cvd"`
	Absorption     any `json:"absorption"`
	OpenInterest   any `json:"openInterest,omitempty"`
	Funding        any `json:"funding,omitempty"`
	LegacyMetrics  any `json:"legacyMetrics"`
	Integrity      orderbook.Integrity `json:"orderbookIntegrity"`
	SignalDisplay  any `json:"signalDisplay"`
	StrategyPos    any `json:"strategyPosition,omitempty"`
	Liquidity      any `json:"liquidityMetrics"`
	PassiveFlow    any `json:"passiveFlowMetrics"`
	Derivatives    any `json:"derivativesMetrics"`
	Toxicity       any `json:"toxicityMetrics"`
	Regime         any `json:"regimeMetrics"`
	CrossMarket    any `json:"crossMarketMetrics,omitempty"`
	SessionVWAP    any `json:"sessionVwap,omitempty"`
	HTF            any `json:"htf,omitempty"`
	Bootstrap      any `json:"bootstrap,omitempty"`
	OrchestratorV1 any `json:"orchestratorV1,omitempty"`

	Bids        []BookLevel `json:"bids"`
	Asks        []BookLevel `json:"asks"`
	MidPrice    float64     `json:"midPrice"`
	LastUpdate  int64       `json:"lastUpdateId"`
}

// IntegrityMessage is the WebSocket-level integrity/status frame
// (spec.md §4.10 "integrity/status messages are never dropped").
type IntegrityMessage struct {
	Type    string `json:"type"`
	Symbol  string `json:"symbol"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// CumulativeBookLevels converts raw book levels into the snapshot's
// cumulative-qty rows, walking from best price outward.
func CumulativeBookLevels(levels []orderbook.Level) []BookLevel {
	out := make([]BookLevel, len(levels))
	var cum float64
	for i, l := range levels {
		cum += l.Qty
		out[i] = BookLevel{Price: l.Price, Qty: l.Qty, CumQty: cum}
	}
	return out
}
