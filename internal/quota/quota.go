// Package quota tracks the daily web-search request budget.
//
// State lives for the process lifetime only: a restart resets usage to zero.
// That is a deliberate simplification for a single long-running process, not
// something to paper over with persistence.
package quota

import (
	"sync"
	"time"

	"search-digest/internal/models"
)

// Manager owns the daily counter. Individual operations are serialized behind
// one mutex, but Check and Increment are separate calls: concurrent callers
// must serialize the check-then-increment pair themselves or the limit can
// be overshot. The default sequential pipeline satisfies this trivially.
type Manager struct {
	mu         sync.Mutex
	dailyLimit int
	usedToday  int
	resetDate  time.Time // local date of the last reset, truncated to a day

	now func() time.Time // swappable in tests
}

// NewManager creates a manager with the given daily limit.
func NewManager(dailyLimit int) *Manager {
	return newManager(dailyLimit, time.Now)
}

func newManager(dailyLimit int, now func() time.Time) *Manager {
	return &Manager{
		dailyLimit: dailyLimit,
		resetDate:  dateOf(now()),
		now:        now,
	}
}

// Check reports whether budget remains for one more request, applying any
// pending date rollover first. Callers must Check before Increment.
func (m *Manager) Check() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	return m.usedToday < m.dailyLimit
}

// Increment records one consumed request.
func (m *Manager) Increment() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usedToday++
}

// Remaining returns the unused budget for today, never negative.
func (m *Manager) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	if left := m.dailyLimit - m.usedToday; left > 0 {
		return left
	}
	return 0
}

// Status returns a snapshot for the quota endpoint and error payloads.
func (m *Manager) Status() models.QuotaStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	remaining := m.dailyLimit - m.usedToday
	if remaining < 0 {
		remaining = 0
	}
	return models.QuotaStatus{
		Remaining:  remaining,
		UsedToday:  m.usedToday,
		DailyLimit: m.dailyLimit,
		ResetDate:  m.resetDate.Format("2006-01-02"),
	}
}

// rolloverLocked zeroes the counter the first time the local date moves past
// resetDate. Caller holds m.mu.
func (m *Manager) rolloverLocked() {
	today := dateOf(m.now())
	if today.After(m.resetDate) {
		m.usedToday = 0
		m.resetDate = today
	}
}

func dateOf(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
