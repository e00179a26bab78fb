package coordinator

import (
	"testing"

	"github.com/ndrandal/perpflow/internal/dryrun"
	"github.com/ndrandal/perpflow/internal/fanout"
	"github.com/ndrandal/perpflow/internal/orchestrator"
	"github.com/ndrandal/perpflow/internal/orderbook"
	"github.com/ndrandal/perpflow/internal/tradesession"
)

func testCoordinator() *Coordinator {
	cfg := DefaultConfig(dryrun.DefaultConfig(dryrun.MainnetHosts()))
	return New(cfg, nil, fanout.NewManager(8), nil, nil, nil, nil)
}

func TestSessionLookupMissingSymbol(t *testing.T) {
	c := testCoordinator()
	if _, ok := c.Session("BTCUSDT"); ok {
		t.Fatal("expected no session before any pipeline is registered")
	}
}

func TestSessionLookupFindsRegisteredPipeline(t *testing.T) {
	c := testCoordinator()
	p := newSymbolPipeline("BTCUSDT", c)
	c.pipelines["BTCUSDT"] = p

	sess, ok := c.Session("BTCUSDT")
	if !ok || sess != p.session {
		t.Fatalf("expected to find the registered pipeline's session, ok=%v", ok)
	}
}

func TestParseLevelsSkipsMalformedRows(t *testing.T) {
	raw := [][2]string{{"100.5", "2.0"}, {"bad", "1.0"}, {"101.0", "notnum"}, {"102.25", "0.5"}}
	levels := parseLevels(raw)
	if len(levels) != 2 {
		t.Fatalf("expected 2 valid levels, got %d", len(levels))
	}
	if levels[0].Price != 100.5 || levels[0].Qty != 2.0 {
		t.Fatalf("unexpected first level: %+v", levels[0])
	}
	if levels[1].Price != 102.25 || levels[1].Qty != 0.5 {
		t.Fatalf("unexpected second level: %+v", levels[1])
	}
}

func TestToOrderLevelsPreservesCount(t *testing.T) {
	in := []orderbook.Level{{Price: 10, Qty: 1}, {Price: 9, Qty: 2}}
	out := toOrderLevels(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(out))
	}
}

func TestLogReturnsRequiresAtLeastTwoSamples(t *testing.T) {
	if got := logReturns([]float64{1.0}); got != nil {
		t.Fatalf("expected nil for a single sample, got %v", got)
	}
	got := logReturns([]float64{100, 110, 99})
	if len(got) != 2 {
		t.Fatalf("expected 2 return samples, got %d", len(got))
	}
	if got[0] <= 0 {
		t.Fatalf("expected a positive first return (100->110), got %v", got[0])
	}
	if got[1] >= 0 {
		t.Fatalf("expected a negative second return (110->99), got %v", got[1])
	}
}

func TestTrueRangesAreAbsoluteMoves(t *testing.T) {
	got := trueRanges([]float64{100, 90, 95})
	if len(got) != 2 {
		t.Fatalf("expected 2 true-range samples, got %d", len(got))
	}
	if got[0] != 10 || got[1] != 5 {
		t.Fatalf("unexpected true ranges: %v", got)
	}
}

func TestAssembleTelemetryDesiredSideFollowsFlow(t *testing.T) {
	c := testCoordinator()
	p := newSymbolPipeline("BTCUSDT", c)
	p.midWindow = []float64{100, 101, 102, 103}

	telemetry := p.assembleTelemetry(1000, 103, nil, nil)
	if telemetry.SampleCount != len(p.midWindow) {
		t.Fatalf("expected sample count %d, got %d", len(p.midWindow), telemetry.SampleCount)
	}
	if telemetry.Regime == (orchestrator.RegimeInputs{}) {
		t.Fatalf("expected a non-zero regime input from a trending window")
	}
	if telemetry.DesiredSide != dryrun.SideLong && telemetry.DesiredSide != dryrun.SideShort {
		t.Fatalf("unexpected desired side: %v", telemetry.DesiredSide)
	}
}

func TestNewSymbolPipelineStartsInUnknownBookState(t *testing.T) {
	c := testCoordinator()
	p := newSymbolPipeline("ETHUSDT", c)
	if p.book.State() != orderbook.StateUnknown {
		t.Fatalf("expected a fresh book to start in StateUnknown, got %v", p.book.State())
	}
	if p.session.Status().State != tradesession.LifecycleIdle {
		t.Fatalf("expected a fresh session to start idle, got %v", p.session.Status().State)
	}
}
