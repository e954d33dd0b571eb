package cancellation

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/jobs/id"
)

// DefaultPollInterval is how often WaitForCompletion checks the registry.
const DefaultPollInterval = 100 * time.Millisecond

// Manager maps live job ids to their tokens. It is safe for concurrent use.
type Manager struct {
	mu           sync.RWMutex
	tokens       map[id.JobID]*Token
	pollInterval time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPollInterval sets how often WaitForCompletion checks for an empty
// registry.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// NewManager creates an empty registry.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		tokens:       make(map[id.JobID]*Token),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register returns the token for jobID, creating it on first use.
func (m *Manager) Register(jobID id.JobID) *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[jobID]; ok {
		return t
	}
	t := NewToken()
	m.tokens[jobID] = t
	return t
}

// Unregister forgets jobID. Unknown ids are ignored.
func (m *Manager) Unregister(jobID id.JobID) {
	m.mu.Lock()
	delete(m.tokens, jobID)
	m.mu.Unlock()
}

// Get returns the token for jobID.
func (m *Manager) Get(jobID id.JobID) (*Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[jobID]
	return t, ok
}

// CancelJob cancels the token for jobID and reports whether it was
// registered. The token stays registered until its job unregisters it, so
// concurrent calls for the same id all succeed.
func (m *Manager) CancelJob(jobID id.JobID) bool {
	t, ok := m.Get(jobID)
	if !ok {
		return false
	}
	t.Cancel()
	return true
}

// CancelAll cancels every registered token and returns how many there were.
func (m *Manager) CancelAll() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tokens {
		t.Cancel()
	}
	return len(m.tokens)
}

// ActiveCount returns the number of registered tokens.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}

// WaitForCompletion polls until the registry is empty, maxWait elapses or
// ctx ends. It reports whether the registry drained.
func (m *Manager) WaitForCompletion(ctx context.Context, maxWait time.Duration) bool {
	if m.ActiveCount() == 0 {
		return true
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if m.ActiveCount() == 0 {
				return true
			}
		case <-deadline.C:
			return m.ActiveCount() == 0
		case <-ctx.Done():
			return m.ActiveCount() == 0
		}
	}
}
