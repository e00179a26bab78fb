// Package wire holds small encoding helpers shared by the upstream client
// and the client fan-out, in the spirit of the teacher's internal/itch
// package (NanosFromMidnight, fixed padding) but trimmed to what a
// JSON-only wire format still needs.
package wire

import "time"

// NanosFromMidnight returns nanoseconds since UTC midnight for the given
// instant. Used to stamp session-local sequence markers the way the
// teacher's itch.NanosFromMidnight stamped ITCH message timestamps.
func NanosFromMidnight(t time.Time) int64 {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return t.Sub(midnight).Nanoseconds()
}
