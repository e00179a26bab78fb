// Package backfill coordinates bounded-concurrency historical kline
// prefetch per symbol, so an HTF derivator (internal/microstructure)
// never blocks the Symbol Coordinator's hot path waiting on a REST
// round trip (spec.md §4.6).
//
// Grounded on stadam23-Eve-flipper's esi.OrderCache: the
// singleflight.Group-guarded fetch-or-await pattern and the
// RWMutex-protected entry map carry over directly, generalized from an
// ETag-conditional HTTP cache to a retry-with-backoff kline cache
// backed by modernc.org/sqlite for process-restart persistence.
package backfill

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ndrandal/perpflow/internal/microstructure"
)

// Fetcher retrieves klines from the upstream REST API. Implemented by
// internal/upstream; abstracted here so the coordinator can be unit
// tested against a stub.
type Fetcher interface {
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]microstructure.Kline, error)
}

// State is the persisted-in-memory per-symbol backfill status (spec.md
// §4.6).
type State struct {
	InProgress bool
	Done       bool
	BarsLoaded int
	StartedAt  time.Time
	DoneAt     time.Time
	FetchCount int
	LastAttempt time.Time
	LastError  string
}

// Config tunes retry behavior and the REST rate limit shared across all
// symbols backed by this Coordinator.
type Config struct {
	Interval       string
	Limit          int
	RetryInterval  time.Duration
	RequestsPerSec float64
	Burst          int
}

// DefaultConfig returns the spec's illustrative 1m-kline backfill
// defaults.
func DefaultConfig() Config {
	return Config{Interval: "1m", Limit: 500, RetryInterval: 30 * time.Second, RequestsPerSec: 5, Burst: 5}
}

// Coordinator is the bounded concurrent backfill prefetcher. One
// Coordinator is shared across all symbols; its permit pool bounds
// aggregate REST throughput regardless of how many symbols call
// Ensure concurrently.
type Coordinator struct {
	cfg     Config
	fetcher Fetcher
	limiter *rate.Limiter
	group   singleflight.Group

	db *sql.DB

	mu     sync.RWMutex
	states map[string]*State
}

// New constructs a Coordinator. db may be nil, in which case the kline
// cache is purely in-memory for the process lifetime (acceptable for
// tests; production wiring passes a modernc.org/sqlite-backed *sql.DB).
func New(cfg Config, fetcher Fetcher, db *sql.DB) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		fetcher: fetcher,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		db:      db,
		states:  make(map[string]*State),
	}
}

// Ensure idempotently backfills symbol's kline history. If a fetch is
// already in flight for symbol, the caller awaits the same result
// (singleflight). If previously completed, returns immediately. If the
// previous attempt failed, respects RetryInterval before retrying
// (spec.md §4.6). Failure is soft: the error is recorded in State and
// also returned, but the caller (the orchestrator) must tolerate it by
// marking the ATR source UNKNOWN rather than treating it as fatal.
func (c *Coordinator) Ensure(ctx context.Context, symbol string) error {
	c.mu.Lock()
	st, ok := c.states[symbol]
	if !ok {
		st = &State{}
		c.states[symbol] = st
	}
	if st.Done {
		c.mu.Unlock()
		return nil
	}
	if st.LastError != "" && time.Since(st.LastAttempt) < c.cfg.RetryInterval {
		c.mu.Unlock()
		return fmt.Errorf("backfill: %s: retry interval not yet elapsed (last error: %s)", symbol, st.LastError)
	}
	c.mu.Unlock()

	_, err, _ := c.group.Do(symbol, func() (any, error) {
		return nil, c.fetchOnce(ctx, symbol)
	})
	return err
}

func (c *Coordinator) fetchOnce(ctx context.Context, symbol string) error {
	c.mu.Lock()
	st := c.states[symbol]
	st.InProgress = true
	st.StartedAt = time.Now()
	st.LastAttempt = st.StartedAt
	st.FetchCount++
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		c.recordFailure(symbol, err)
		return err
	}

	bars, err := c.fetcher.FetchKlines(ctx, symbol, c.cfg.Interval, c.cfg.Limit)
	if err != nil {
		c.recordFailure(symbol, err)
		return err
	}

	if c.db != nil {
		if err := c.persistKlines(ctx, symbol, bars); err != nil {
			c.recordFailure(symbol, err)
			return err
		}
	}

	c.mu.Lock()
	st.InProgress = false
	st.Done = true
	st.BarsLoaded = len(bars)
	st.DoneAt = time.Now()
	st.LastError = ""
	c.mu.Unlock()

	return nil
}

func (c *Coordinator) recordFailure(symbol string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.states[symbol]
	st.InProgress = false
	st.LastError = err.Error()
}

// State returns a copy of symbol's current backfill state.
func (c *Coordinator) State(symbol string) (State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.states[symbol]
	if !ok {
		return State{}, false
	}
	return *st, true
}

func (c *Coordinator) persistKlines(ctx context.Context, symbol string, bars []microstructure.Kline) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO klines (symbol, interval, open_time_ms, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, open_time_ms) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, c.cfg.Interval, b.OpenTimeMs, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// EnsureSchema creates the klines table used by persistKlines/LoadCached.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS klines (
			symbol        TEXT NOT NULL,
			interval      TEXT NOT NULL,
			open_time_ms  INTEGER NOT NULL,
			open          REAL NOT NULL,
			high          REAL NOT NULL,
			low           REAL NOT NULL,
			close         REAL NOT NULL,
			volume        REAL NOT NULL,
			PRIMARY KEY (symbol, interval, open_time_ms)
		)
	`)
	return err
}

// LoadCached returns the most recent limit bars for symbol from the
// local cache, oldest first.
func (c *Coordinator) LoadCached(ctx context.Context, symbol string, limit int) ([]microstructure.Kline, error) {
	if c.db == nil {
		return nil, nil
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT open_time_ms, open, high, low, close, volume FROM klines
		WHERE symbol = ? AND interval = ?
		ORDER BY open_time_ms DESC LIMIT ?
	`, symbol, c.cfg.Interval, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []microstructure.Kline
	for rows.Next() {
		var k microstructure.Kline
		if err := rows.Scan(&k.OpenTimeMs, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}
