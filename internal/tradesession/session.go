// Package tradesession implements the per-symbol Session Service
// (spec.md §4.9): a lifecycle wrapper around one Dry-Run Engine and
// one Orchestrator that accepts depth events, derives the orchestrator
// decision, folds manual test orders in, ticks the engine, and folds
// the resulting log into bounded ring buffers.
//
// Session is the one place that calls both the Orchestrator and the
// Dry-Run Engine; neither of those packages knows the other exists.
// This breaks the cyclic "session knows engine knows session"
// reference the source exhibits (spec.md §9 design notes): inputs are
// passed in here, and outputs are folded out here, with no callback in
// either direction.
//
// Grounded on the teacher's per-symbol symbolRunner/stressRunner loop
// in cmd/feedsim/main.go (tick → sim.Step → enqueue/broadcast),
// generalized from a goroutine-owned loop to a plain object whose
// OnDepthEvent is driven by whatever owns the upstream connection (the
// Symbol Coordinator, C11).
package tradesession

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ndrandal/perpflow/internal/dryrun"
	"github.com/ndrandal/perpflow/internal/fixedpoint"
	"github.com/ndrandal/perpflow/internal/orchestrator"
)

// Lifecycle is the session's coarse state machine (spec.md §4.9).
type Lifecycle int

const (
	LifecycleIdle Lifecycle = iota
	LifecycleRunning
	LifecycleStopped
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleIdle:
		return "idle"
	case LifecycleRunning:
		return "running"
	case LifecycleStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	ErrNotRunning       = errors.New("tradesession: session is not running")
	ErrStaleTimestamp   = errors.New("tradesession: event timestamp not strictly greater than last")
	ErrSpacingViolation = errors.New("tradesession: event arrived before minimum inter-event spacing")
)

// NewRunID mints a fresh run identifier for a session (spec.md §3
// "Dry-run session"). Unlike internal/ids' deterministic engine IDs,
// run identifiers themselves are opaque and only need to be unique per
// process lifetime.
func NewRunID() string { return uuid.NewString() }

// Config tunes the session's event-handling policy.
type Config struct {
	MinEventSpacingMs int64
	LogRingSize       int
	TickLogRingSize   int
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{MinEventSpacingMs: 50, LogRingSize: 200, TickLogRingSize: 200}
}

// TelemetryInputs is the slice of orchestrator.Inputs the Session
// Service cannot derive on its own — the caller (Symbol Coordinator)
// assembles these from C3 (orderbook), C4 (tape), and C5
// (microstructure) state each tick.
type TelemetryInputs struct {
	SampleCount int
	DesiredSide dryrun.Side
	Regime      orchestrator.RegimeInputs
	Flow        orchestrator.FlowInputs
	Location    orchestrator.LocationInputs
	Impulse     orchestrator.ImpulseInputs
	SignalScore float64
	SpreadBps   float64
	RiskExit    orchestrator.RiskExitInputs
	Reversal    orchestrator.ReversalConfirmations
}

// DepthEvent is one inbound depth tick driving the session.
type DepthEvent struct {
	TimestampMs  int64
	MarkPrice    fixedpoint.Fp
	Book         dryrun.BookSnapshot
	Telemetry    TelemetryInputs
	ManualOrders []dryrun.OrderRequest
}

// Session is a single-symbol lifecycle wrapper. Safe for concurrent
// Status() reads while OnDepthEvent is serialized by the caller (the
// Symbol Coordinator's single-actor-per-symbol model, spec.md §5); the
// internal mutex only protects Status() against a concurrent event.
type Session struct {
	mu sync.Mutex

	symbol string
	runID  string
	cfg    Config

	state Lifecycle

	engineCfg dryrun.Config
	orchCfg   orchestrator.Config
	engine    *dryrun.Engine
	orch      *orchestrator.Orchestrator

	manualQueue []dryrun.OrderRequest

	haveLastEvent bool
	lastEventTsMs int64
	eventCount    int64

	logs     *ring[string]
	tickLogs *ring[dryrun.TickLog]
}

// New constructs a Session in the idle state. Call Start before
// feeding it depth events.
func New(sym, runID string, engineCfg dryrun.Config, orchCfg orchestrator.Config, cfg Config) *Session {
	return &Session{
		symbol:    sym,
		runID:     runID,
		cfg:       cfg,
		engineCfg: engineCfg,
		orchCfg:   orchCfg,
		logs:      newRing[string](cfg.LogRingSize),
		tickLogs:  newRing[dryrun.TickLog](cfg.TickLogRingSize),
	}
}

// Start transitions idle→running, constructing a fresh engine and
// orchestrator. Returns an error if not currently idle.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != LifecycleIdle {
		return fmt.Errorf("tradesession: cannot start from state %s", s.state)
	}
	e, err := dryrun.New(s.runID, s.engineCfg)
	if err != nil {
		return err
	}
	s.engine = e
	s.orch = orchestrator.New(s.orchCfg)
	s.state = LifecycleRunning
	s.appendLog("session started")
	return nil
}

// Stop transitions running→stopped. Resting orders are left as-is;
// the caller is expected to have already issued a risk exit if it
// wants the position flattened.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == LifecycleRunning {
		s.state = LifecycleStopped
		s.appendLog("session stopped")
	}
}

// Reset returns the session to idle, discarding engine/orchestrator
// state and counters. A new runID must be supplied by the caller via
// a subsequent New + Start if a fresh run identity is desired;
// Reset keeps the existing runID for continuity of the console log.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = LifecycleIdle
	s.engine = nil
	s.orch = nil
	s.haveLastEvent = false
	s.lastEventTsMs = 0
	s.eventCount = 0
	s.manualQueue = nil
	s.logs = newRing[string](s.cfg.LogRingSize)
	s.tickLogs = newRing[dryrun.TickLog](s.cfg.TickLogRingSize)
	s.appendLog("session reset")
}

// QueueManualOrder enqueues an operator-submitted test order. It is
// prepended ahead of the orchestrator's own orders on the next
// OnDepthEvent call (spec.md §4.9 "prepend any queued manual test
// orders").
func (s *Session) QueueManualOrder(req dryrun.OrderRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manualQueue = append(s.manualQueue, req)
}

func (s *Session) appendLog(line string) {
	s.logs.push(line)
}
