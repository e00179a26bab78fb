package microstructure

import "time"

// SessionName identifies one of the three UTC-anchored trading sessions
// spec.md §4.5 defines.
type SessionName int

const (
	SessionAsia SessionName = iota
	SessionLondon
	SessionNY
)

func (s SessionName) String() string {
	switch s {
	case SessionLondon:
		return "london"
	case SessionNY:
		return "ny"
	default:
		return "asia"
	}
}

// sessionBoundaryHoursUTC are the session-start hours, UTC-anchored per
// spec.md §4.5: asia 00:00, london 08:00, ny 13:00.
var sessionBoundaryHoursUTC = []struct {
	hour int
	name SessionName
}{
	{0, SessionAsia},
	{8, SessionLondon},
	{13, SessionNY},
}

// CurrentSession returns which session is active at t (UTC) and the
// UTC timestamp (ms) that session began.
func CurrentSession(t time.Time) (SessionName, int64) {
	t = t.UTC()
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	active := sessionBoundaryHoursUTC[0]
	for _, b := range sessionBoundaryHoursUTC {
		boundary := dayStart.Add(time.Duration(b.hour) * time.Hour)
		if !t.Before(boundary) {
			active = b
		}
	}
	start := dayStart.Add(time.Duration(active.hour) * time.Hour)
	return active.name, start.UnixMilli()
}

// SessionVWAP is the per-session anchored VWAP state (spec.md §3).
type SessionVWAP struct {
	Name              SessionName
	SessionStartMs    int64
	ElapsedMs         int64
	Value             *float64
	PriceDistanceBps  *float64
	SessionHigh       float64
	SessionLow        float64
	SessionRangePct   *float64

	cumPriceQty float64
	cumQty      float64
}

// NewSessionVWAP starts a fresh accumulator anchored at the session
// that contains startTime.
func NewSessionVWAP(startTime time.Time) *SessionVWAP {
	name, startMs := CurrentSession(startTime)
	return &SessionVWAP{Name: name, SessionStartMs: startMs}
}

// Add folds one trade into the session accumulator, resetting on a
// session rollover (the caller passes the current time each tick; the
// accumulator detects and applies rollover itself).
func (s *SessionVWAP) Add(now time.Time, price, qty float64) {
	name, startMs := CurrentSession(now)
	if startMs != s.SessionStartMs {
		*s = *NewSessionVWAP(now)
		name, startMs = s.Name, s.SessionStartMs
	}
	s.Name = name
	s.SessionStartMs = startMs
	s.ElapsedMs = now.UnixMilli() - startMs

	s.cumPriceQty += price * qty
	s.cumQty += qty

	if s.SessionHigh == 0 || price > s.SessionHigh {
		s.SessionHigh = price
	}
	if s.SessionLow == 0 || price < s.SessionLow {
		s.SessionLow = price
	}

	if s.cumQty > 0 {
		s.Value = ptr(s.cumPriceQty / s.cumQty)
	}
	if s.Value != nil && *s.Value > 0 {
		s.PriceDistanceBps = ptr((price - *s.Value) / *s.Value * 10_000)
	}
	if s.SessionLow > 0 {
		s.SessionRangePct = ptr((s.SessionHigh - s.SessionLow) / s.SessionLow * 100)
	}
}
