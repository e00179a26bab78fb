package microstructure

import (
	"testing"
	"time"
)

func TestMicropriceWeightsTowardLargerSide(t *testing.T) {
	book := BookView{
		Bids: []BookLevel{{Price: 100, Qty: 10}},
		Asks: []BookLevel{{Price: 101, Qty: 1}},
	}
	liq := DeriveLiquidity(book, 0, 0, true, 0)
	if liq.Microprice == nil {
		t.Fatal("microprice should be computable with both sides present")
	}
	// heavier bid qty should pull microprice toward the ask (book.Depth.md convention: price*oppositeQty)
	if *liq.Microprice <= 100 || *liq.Microprice >= 101 {
		t.Fatalf("microprice = %v, want between bid/ask", *liq.Microprice)
	}
}

func TestImbalanceNilWhenBookEmpty(t *testing.T) {
	liq := DeriveLiquidity(BookView{}, 0, 0, true, 0)
	if liq.Imbalance1 != nil {
		t.Fatal("imbalance should be nil for an empty book")
	}
	if liq.Microprice != nil {
		t.Fatal("microprice should be nil for an empty book")
	}
}

func TestExpectedSlippageNilWithoutBestPrice(t *testing.T) {
	liq := DeriveLiquidity(BookView{}, 1000, 0, true, 0)
	if liq.ExpectedSlippageBuy != nil {
		t.Fatal("slippage should be nil without a best ask")
	}
}

func TestVPINApproxRange(t *testing.T) {
	tox := DeriveToxicity(ToxicityInputs{BuyVolume: 100, SellVolume: 20, TopOfBookDepth: 50, BurstMinStreak: 4, BurstCount: 2})
	if tox.VPINApprox == nil {
		t.Fatal("VPIN should be computable with nonzero volume")
	}
	if *tox.VPINApprox <= 0 || *tox.VPINApprox > 1 {
		t.Fatalf("VPIN = %v, want in (0,1]", *tox.VPINApprox)
	}
}

func TestToxicityNilOnZeroVolume(t *testing.T) {
	tox := DeriveToxicity(ToxicityInputs{})
	if tox.VPINApprox != nil {
		t.Fatal("VPIN should be nil with zero total volume")
	}
}

func TestDerivativesBasisAndLiquidationProxy(t *testing.T) {
	d := DeriveDerivatives(100, 101, 100, []float64{0.005, 0.003, 0.004, 0.006})
	if d.PerpBasis == nil {
		t.Fatal("basis should be computable")
	}
	if d.LiquidationProxy == nil {
		t.Fatal("liquidation proxy should be computable when basis is")
	}
}

func TestDerivativesNilOnZeroIndex(t *testing.T) {
	d := DeriveDerivatives(100, 101, 0, nil)
	if d.PerpBasis != nil {
		t.Fatal("basis should be nil with a zero index price")
	}
}

func TestRegimeRealizedVolRequiresSamples(t *testing.T) {
	r := DeriveRegime([]float64{0.01}, nil, nil, nil, nil)
	if r.RealizedVol1m != nil {
		t.Fatal("realized vol should be nil with fewer than 2 samples")
	}
	r2 := DeriveRegime([]float64{0.01, -0.01, 0.02}, nil, nil, nil, nil)
	if r2.RealizedVol1m == nil {
		t.Fatal("realized vol should be computable with >=2 samples")
	}
}

func TestChopAndTrendinessSumToOne(t *testing.T) {
	closes := []float64{100, 101, 100, 101, 102}
	chop, trend := chopAndTrend(closes)
	if chop == nil || trend == nil {
		t.Fatal("chop/trend should be computable")
	}
	if sum := *chop + *trend; sum < 0.999 || sum > 1.001 {
		t.Fatalf("chop+trend = %v, want ~1", sum)
	}
}

func TestCurrentSessionBoundaries(t *testing.T) {
	cases := []struct {
		hour int
		want SessionName
	}{
		{0, SessionAsia},
		{7, SessionAsia},
		{8, SessionLondon},
		{12, SessionLondon},
		{13, SessionNY},
		{23, SessionNY},
	}
	for _, c := range cases {
		ts := time.Date(2026, 1, 1, c.hour, 0, 0, 0, time.UTC)
		got, _ := CurrentSession(ts)
		if got != c.want {
			t.Errorf("hour %d: session = %v, want %v", c.hour, got, c.want)
		}
	}
}

func TestSessionVWAPRollsOverAtBoundary(t *testing.T) {
	v := NewSessionVWAP(time.Date(2026, 1, 1, 7, 59, 0, 0, time.UTC))
	v.Add(time.Date(2026, 1, 1, 7, 59, 30, 0, time.UTC), 100, 1)
	if v.Name != SessionAsia {
		t.Fatalf("session = %v, want asia before boundary", v.Name)
	}
	v.Add(time.Date(2026, 1, 1, 8, 0, 30, 0, time.UTC), 100, 1)
	if v.Name != SessionLondon {
		t.Fatalf("session = %v, want london after rollover", v.Name)
	}
	if v.ElapsedMs < 0 {
		t.Fatal("elapsed should reset to a small positive value after rollover")
	}
}

func TestHTFSwingDetection(t *testing.T) {
	bars := make([]Kline, 0, 11)
	base := int64(0)
	highs := []float64{100, 101, 102, 110, 103, 102, 101, 100, 99, 98, 97}
	for i, h := range highs {
		bars = append(bars, Kline{OpenTimeMs: base + int64(i)*60_000, Open: h - 1, High: h, Low: h - 2, Close: h - 0.5})
	}
	frame := DeriveHTF(bars, 2, 5)
	if frame.LastSwingHigh == nil {
		t.Fatal("expected a detectable swing high")
	}
}

func TestHTFEmptyBars(t *testing.T) {
	frame := DeriveHTF(nil, 2, 5)
	if frame.ATR != nil || frame.LastSwingHigh != nil {
		t.Fatal("empty bars should yield a zero-value frame")
	}
}
