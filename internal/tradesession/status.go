package tradesession

import (
	"time"

	"github.com/ndrandal/perpflow/internal/dryrun"
	"github.com/ndrandal/perpflow/internal/fixedpoint"
	"github.com/ndrandal/perpflow/internal/wire"
)

// Status is a point-in-time read of a session for the fan-out/API
// layers (spec.md §6 "session status").
type Status struct {
	Symbol     string
	RunID      string
	State      Lifecycle
	EventCount int64

	// SessionLocalNanos stamps when the snapshot was taken, nanoseconds
	// since UTC midnight, so two statuses for the same run can be
	// ordered without comparing full timestamps.
	SessionLocalNanos int64

	Position    *dryrun.Position
	WalletBal   float64
	OpenOrders  []dryrun.OpenOrder
	RecentLogs  []string
	RecentTicks []dryrun.TickLog
}

// Status returns a snapshot. Safe to call concurrently with
// OnDepthEvent.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Symbol:            s.symbol,
		RunID:             s.runID,
		State:             s.state,
		EventCount:        s.eventCount,
		SessionLocalNanos: wire.NanosFromMidnight(time.Now()),
	}
	if s.engine != nil {
		st.Position = s.engine.Position()
		st.WalletBal = fixedpoint.FromFp(s.engine.WalletBalance())
		st.OpenOrders = s.engine.OpenOrders()
	}
	st.RecentLogs = s.logs.tail(s.logs.len())
	st.RecentTicks = s.tickLogs.tail(s.tickLogs.len())
	return st
}
