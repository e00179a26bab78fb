package symbol

import "testing"

func TestAllSymbolsNonEmpty(t *testing.T) {
	syms := AllSymbols()
	if len(syms) == 0 {
		t.Fatal("expected at least one symbol")
	}
}

func TestTickersUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, s := range AllSymbols() {
		if seen[s.Ticker] {
			t.Fatalf("duplicate ticker %s", s.Ticker)
		}
		seen[s.Ticker] = true
	}
}

func TestPositiveSizing(t *testing.T) {
	for _, s := range AllSymbols() {
		if s.TickSize <= 0 {
			t.Fatalf("non-positive tick size for %s", s.Ticker)
		}
		if s.LotSize <= 0 {
			t.Fatalf("non-positive lot size for %s", s.Ticker)
		}
		if s.MaxLeverage <= 0 {
			t.Fatalf("non-positive max leverage for %s", s.Ticker)
		}
	}
}

func TestByTickerLookup(t *testing.T) {
	m := ByTicker()
	s, ok := m["BTCUSDT"]
	if !ok {
		t.Fatal("BTCUSDT not found in ByTicker")
	}
	if s.DisplayName != "BTC-PERP" {
		t.Fatalf("BTCUSDT display name expected BTC-PERP, got %s", s.DisplayName)
	}
}

func TestByTickerMissing(t *testing.T) {
	m := ByTicker()
	if _, ok := m["ZZZZUSDT"]; ok {
		t.Fatal("expected ZZZZUSDT to be missing")
	}
}

func TestTickersMatchesAllSymbols(t *testing.T) {
	syms := AllSymbols()
	tickers := Tickers()
	if len(tickers) != len(syms) {
		t.Fatalf("expected %d tickers, got %d", len(syms), len(tickers))
	}
	for i, s := range syms {
		if tickers[i] != s.Ticker {
			t.Fatalf("tickers[%d] = %s, expected %s", i, tickers[i], s.Ticker)
		}
	}
}
