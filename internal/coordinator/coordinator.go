// Package coordinator implements the Symbol Coordinator (spec.md
// §4.11): it owns the one shared upstream market-data connection,
// demultiplexes it into per-symbol pipelines, and supervises each
// pipeline's task with a bounded shutdown grace window.
//
// Grounded on the teacher's cmd/feedsim/main.go wiring: one goroutine
// per symbol (symbolRunner), a shared trade-persistence path, and
// signal-driven graceful shutdown via a canceled context. Generalized
// from per-goroutine independent simulators (each owning its own fake
// feed) to per-goroutine pipelines fed by one shared, demuxed
// upstream.Feed connection, matching spec.md §5's "shared resources:
// the upstream connection is read-only-shared; writes to per-symbol
// state are single-producer; no cross-symbol locks."
package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ndrandal/perpflow/internal/archive"
	"github.com/ndrandal/perpflow/internal/backfill"
	"github.com/ndrandal/perpflow/internal/dryrun"
	"github.com/ndrandal/perpflow/internal/fanout"
	"github.com/ndrandal/perpflow/internal/orchestrator"
	"github.com/ndrandal/perpflow/internal/persist"
	"github.com/ndrandal/perpflow/internal/tradesession"
	"github.com/ndrandal/perpflow/internal/upstream"
)

// Config tunes the coordinator and the pipelines it supervises.
type Config struct {
	// ShutdownGrace bounds how long Run waits for per-symbol pipelines
	// to drain after ctx is canceled (spec.md §5 "grace window, default
	// 5s").
	ShutdownGrace time.Duration

	// BroadcastMinIntervalMs is the fan-out cadence ceiling per symbol
	// (spec.md §4.10).
	BroadcastMinIntervalMs int64

	// StreamBufferSize is the per-symbol channel depth the coordinator
	// subscribes with on the shared upstream.Feed.
	StreamBufferSize int

	// SessionPersistIntervalMs bounds how often a running session's
	// state is upserted to persist.SessionStore.
	SessionPersistIntervalMs int64

	EngineCfg       dryrun.Config
	OrchestratorCfg orchestrator.Config
	SessionCfg      tradesession.Config
}

// DefaultConfig returns illustrative defaults; engineCfg must be
// supplied by the caller since it carries the mainnet host guard
// (spec.md §4.7 "upstream guard").
func DefaultConfig(engineCfg dryrun.Config) Config {
	return Config{
		ShutdownGrace:            5 * time.Second,
		BroadcastMinIntervalMs:   200,
		StreamBufferSize:         256,
		SessionPersistIntervalMs: 5000,
		EngineCfg:                engineCfg,
		OrchestratorCfg:          orchestrator.DefaultConfig(),
		SessionCfg:               tradesession.DefaultConfig(),
	}
}

// Coordinator owns the shared upstream feed and one pipeline per
// symbol. It implements internal/api.SessionProvider so the HTTP
// control surface can resolve a symbol to its running session without
// internal/api depending on this package.
type Coordinator struct {
	cfg Config

	feed      *upstream.Feed
	fanoutMgr *fanout.Manager
	throttle  *fanout.Throttle

	backfillCo    *backfill.Coordinator // nil disables kline-seeded regime warmup
	archiveWriter *archive.Writer       // nil disables raw-event archival
	sessionStore  *persist.SessionStore // nil disables session persistence
	sessionMirror *archive.Writer       // nil disables the local session-status JSONL mirror

	mu        sync.RWMutex
	pipelines map[string]*symbolPipeline

	wg sync.WaitGroup
}

// New constructs a Coordinator. backfillCo, archiveWriter,
// sessionStore, and sessionMirror may be nil to disable the optional
// concern they back.
func New(cfg Config, feed *upstream.Feed, fanoutMgr *fanout.Manager, backfillCo *backfill.Coordinator, archiveWriter *archive.Writer, sessionStore *persist.SessionStore, sessionMirror *archive.Writer) *Coordinator {
	return &Coordinator{
		cfg:           cfg,
		feed:          feed,
		fanoutMgr:     fanoutMgr,
		throttle:      fanout.NewThrottle(cfg.BroadcastMinIntervalMs),
		backfillCo:    backfillCo,
		archiveWriter: archiveWriter,
		sessionStore:  sessionStore,
		sessionMirror: sessionMirror,
		pipelines:     make(map[string]*symbolPipeline),
	}
}

// Session implements api.SessionProvider (spec.md §6 control surface).
func (c *Coordinator) Session(sym string) (*tradesession.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pipelines[sym]
	if !ok {
		return nil, false
	}
	return p.session, true
}

// Run starts one pipeline goroutine per symbol plus the shared feed's
// connect/reconnect loop, and blocks until ctx is canceled. On
// cancellation it waits up to cfg.ShutdownGrace for every pipeline to
// release its resting resources before returning.
func (c *Coordinator) Run(ctx context.Context, symbols []string) {
	for _, sym := range symbols {
		p := newSymbolPipeline(sym, c)

		c.mu.Lock()
		c.pipelines[sym] = p
		c.mu.Unlock()

		ch := make(chan upstream.StreamMessage, c.cfg.StreamBufferSize)
		c.feed.Subscribe(sym, ch)

		c.wg.Add(1)
		go func(p *symbolPipeline, ch chan upstream.StreamMessage) {
			defer c.wg.Done()
			p.run(ctx, ch)
		}(p, ch)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.feed.Run(ctx)
	}()

	<-ctx.Done()

	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(c.cfg.ShutdownGrace):
		log.Printf("coordinator: shutdown grace window (%s) elapsed before all pipelines drained", c.cfg.ShutdownGrace)
	}
}
