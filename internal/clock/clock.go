// Package clock abstracts wall-clock time so version timestamps are
// testable without sleeping or stubbing time.Now globally.
package clock

import "time"

// Clock produces the current time for a new version.
type Clock interface {
	NowUTC() time.Time
}

// SystemClock is the production Clock. Timestamps are truncated to
// seconds, matching the precision OCFL inventories store.
type SystemClock struct{}

// NowUTC returns the current time truncated to seconds, in UTC.
func (SystemClock) NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// FixedClock is a Clock that always returns the same instant, for
// deterministic tests.
type FixedClock struct {
	T time.Time
}

// NowUTC returns the fixed instant.
func (f FixedClock) NowUTC() time.Time {
	return f.T
}

// SequenceClock returns instants one second apart starting at T,
// advancing on every call. Useful for tests asserting a version
// history has strictly increasing timestamps.
type SequenceClock struct {
	T    time.Time
	next int
}

// NowUTC returns the next instant in the sequence.
func (s *SequenceClock) NowUTC() time.Time {
	t := s.T.Add(time.Duration(s.next) * time.Second)
	s.next++
	return t
}
