// Package clock supplies the timestamps stamped on host entries and store
// metadata, so tests can pin them.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// RealClock reports wall time in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// MockClock only moves when Advance is called. CurrentTime is read under
// the lock, so set it before sharing the clock.
type MockClock struct {
	CurrentTime time.Time

	mu sync.Mutex
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	now := m.CurrentTime
	m.mu.Unlock()
	return now
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

var (
	_ Clock = RealClock{}
	_ Clock = (*MockClock)(nil)
)
