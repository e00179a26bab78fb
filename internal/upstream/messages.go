// Package upstream is the exchange-facing WebSocket/REST client
// (spec.md §6 "upstream wire protocol"). One Feed instance maintains a
// single shared connection, demuxed per symbol, reconnecting with
// exponential backoff on drop; one RESTClient wraps the shared outbound
// REST permit pool used both for backfill klines and for the
// open-interest poll. Funding updates arrive as stream frames.
//
// Grounded on the `SamKhachatryan-arbitrage.trade` orderbook-manager's
// maintainConnection/connectAndListen reconnect loop from the example
// pack, generalized from a fixed 5s retry to exponential backoff with
// jitter (spec.md §7 "transient upstream: exponential backoff with
// jitter"), and on `coachpo-meltica-gateway`'s binance-provider for the
// shape of decoding exchange JSON frames into typed messages.
package upstream

// DepthSnapshot is a depth snapshot frame, decoded by Feed from the
// stream, used to (re)seed a book after a gap or at startup (spec.md
// §6).
type DepthSnapshot struct {
	LastUpdateID int64          `json:"lastUpdateId"`
	Bids         [][2]string    `json:"bids"`
	Asks         [][2]string    `json:"asks"`
}

// DepthDiff is one incremental depth update frame (spec.md §6).
type DepthDiff struct {
	FirstUpdateID int64       `json:"U"`
	FinalUpdateID int64       `json:"u"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`
	EventTimeMs   int64       `json:"eventTimeMs"`
}

// Trade is one executed-trade tape print (spec.md §6).
type Trade struct {
	TimestampMs  int64  `json:"ts"`
	Price        string `json:"price"`
	Qty          string `json:"qty"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

// FundingTick is one funding-rate update.
type FundingTick struct {
	TimestampMs int64  `json:"ts"`
	Rate        string `json:"rate"`
	NextTimeMs  int64  `json:"nextFundingTimeMs"`
}

// OpenInterestPoll is one open-interest REST poll result.
type OpenInterestPoll struct {
	TimestampMs int64  `json:"ts"`
	Value       string `json:"openInterest"`
}

// StreamMessage is the demuxed envelope a Feed delivers per symbol: at
// most one of the typed fields is non-nil per message.
type StreamMessage struct {
	Symbol  string
	Snapshot *DepthSnapshot
	Diff     *DepthDiff
	Trade    *Trade
	Funding  *FundingTick
	OI       *OpenInterestPoll
}
