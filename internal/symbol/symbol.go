// Package symbol holds the static metadata for permitted perpetual
// futures instruments (spec.md §6 "GET /api/dry-run/symbols").
//
// Grounded on the teacher's symbol.Symbol/AllSymbols/ByTicker shape:
// a struct-slice literal of static instrument metadata plus lookup
// maps, generalized from 30 simulated cash-equity tickers across
// sectors to a short list of USDT-margined perpetual contracts, each
// carrying the tick/lot sizing the Dry-Run Engine and orderbook
// reconciler need instead of a sector/volatility profile.
package symbol

// Symbol is one permitted perpetual futures instrument.
type Symbol struct {
	Ticker      string // e.g. "BTCUSDT", matches the upstream wire symbol
	DisplayName string // e.g. "BTC-PERP", used in client-facing payloads
	TickSize    float64
	LotSize     float64
	MaxLeverage int
}

// AllSymbols returns the permitted instrument set (spec.md §6).
func AllSymbols() []Symbol {
	return []Symbol{
		{Ticker: "BTCUSDT", DisplayName: "BTC-PERP", TickSize: 0.1, LotSize: 0.001, MaxLeverage: 125},
		{Ticker: "ETHUSDT", DisplayName: "ETH-PERP", TickSize: 0.01, LotSize: 0.001, MaxLeverage: 100},
		{Ticker: "SOLUSDT", DisplayName: "SOL-PERP", TickSize: 0.001, LotSize: 0.01, MaxLeverage: 50},
		{Ticker: "BNBUSDT", DisplayName: "BNB-PERP", TickSize: 0.01, LotSize: 0.01, MaxLeverage: 75},
		{Ticker: "XRPUSDT", DisplayName: "XRP-PERP", TickSize: 0.0001, LotSize: 1, MaxLeverage: 75},
	}
}

// ByTicker returns a lookup map from upstream ticker to Symbol.
func ByTicker() map[string]*Symbol {
	syms := AllSymbols()
	m := make(map[string]*Symbol, len(syms))
	for i := range syms {
		m[syms[i].Ticker] = &syms[i]
	}
	return m
}

// Tickers returns just the ticker strings, in AllSymbols order.
func Tickers() []string {
	syms := AllSymbols()
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.Ticker
	}
	return out
}
