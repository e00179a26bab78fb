package backfill

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ndrandal/perpflow/internal/microstructure"
)

type stubFetcher struct {
	calls   atomic.Int64
	bars    []microstructure.Kline
	err     error
	delay   time.Duration
	mu      sync.Mutex
}

func (s *stubFetcher) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]microstructure.Kline, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.bars, nil
}

func testConfig() Config {
	return Config{Interval: "1m", Limit: 10, RetryInterval: 50 * time.Millisecond, RequestsPerSec: 1000, Burst: 1000}
}

func TestEnsureMarksDoneOnSuccess(t *testing.T) {
	f := &stubFetcher{bars: []microstructure.Kline{{OpenTimeMs: 1, Close: 100}}}
	c := New(testConfig(), f, nil)

	if err := c.Ensure(context.Background(), "BTC-PERP"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	st, ok := c.State("BTC-PERP")
	if !ok || !st.Done {
		t.Fatal("expected Done=true after successful fetch")
	}
	if st.BarsLoaded != 1 {
		t.Fatalf("BarsLoaded = %d, want 1", st.BarsLoaded)
	}
}

func TestEnsureIdempotentOnceDone(t *testing.T) {
	f := &stubFetcher{bars: []microstructure.Kline{{OpenTimeMs: 1}}}
	c := New(testConfig(), f, nil)

	_ = c.Ensure(context.Background(), "BTC-PERP")
	_ = c.Ensure(context.Background(), "BTC-PERP")

	if f.calls.Load() != 1 {
		t.Fatalf("fetch called %d times, want 1 (second Ensure should be a no-op)", f.calls.Load())
	}
}

func TestEnsureCoalescesConcurrentCalls(t *testing.T) {
	f := &stubFetcher{bars: []microstructure.Kline{{OpenTimeMs: 1}}, delay: 30 * time.Millisecond}
	c := New(testConfig(), f, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Ensure(context.Background(), "ETH-PERP")
		}()
	}
	wg.Wait()

	if f.calls.Load() != 1 {
		t.Fatalf("fetch called %d times, want 1 (singleflight should coalesce)", f.calls.Load())
	}
}

func TestEnsureRespectsRetryInterval(t *testing.T) {
	f := &stubFetcher{err: errors.New("upstream unavailable")}
	cfg := testConfig()
	cfg.RetryInterval = 200 * time.Millisecond
	c := New(cfg, f, nil)

	_ = c.Ensure(context.Background(), "BTC-PERP")
	_ = c.Ensure(context.Background(), "BTC-PERP")

	if f.calls.Load() != 1 {
		t.Fatalf("fetch called %d times within retry interval, want 1", f.calls.Load())
	}

	st, _ := c.State("BTC-PERP")
	if st.LastError == "" {
		t.Fatal("expected LastError to be recorded on failure")
	}
}

func TestEnsureRetriesAfterIntervalElapses(t *testing.T) {
	f := &stubFetcher{err: errors.New("upstream unavailable")}
	cfg := testConfig()
	cfg.RetryInterval = 10 * time.Millisecond
	c := New(cfg, f, nil)

	_ = c.Ensure(context.Background(), "BTC-PERP")
	time.Sleep(20 * time.Millisecond)
	_ = c.Ensure(context.Background(), "BTC-PERP")

	if f.calls.Load() != 2 {
		t.Fatalf("fetch called %d times, want 2 after retry interval elapsed", f.calls.Load())
	}
}
