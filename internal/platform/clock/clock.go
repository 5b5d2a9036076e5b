// Package clock supplies timestamps to the allergy domain.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC and never returns a value earlier than
// one it has already returned, even if the wall clock steps backwards.
type System struct {
	mu   sync.Mutex
	last time.Time
}

func NewSystem() *System { return &System{} }

func (s *System) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if now.Before(s.last) {
		return s.last
	}
	s.last = now
	return now
}

// Manual is a clock that only moves when told to. Used in tests and for
// deterministic replays.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (m *Manual) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
