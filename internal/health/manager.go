package health

import (
	"context"
	"sync"
	"time"
)

const defaultCheckTimeout = 5 * time.Second

// Manager runs registered checks in parallel and aggregates their
// statuses.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

// NewManager creates an empty manager with the default per-check
// timeout.
func NewManager() *Manager {
	return &Manager{timeout: defaultCheckTimeout}
}

// WithTimeout overrides the per-check timeout.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return m
}

// AddChecker registers a check. Registration order is kept for
// CheckNames.
func (m *Manager) AddChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Check runs every registered check concurrently, each bounded by the
// per-check timeout, and returns the results keyed by check name. A
// check that does not stamp its own latency gets the measured one.
func (m *Manager) Check(ctx context.Context) map[string]*Result {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	timeout := m.timeout
	m.mu.RUnlock()

	type named struct {
		name   string
		result *Result
	}
	ch := make(chan named, len(checkers))

	for _, checker := range checkers {
		go func(c Checker) {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			result := c.Check(checkCtx)
			if result.Latency == 0 {
				result.Latency = time.Since(start)
			}
			ch <- named{name: c.Name(), result: result}
		}(checker)
	}

	results := make(map[string]*Result, len(checkers))
	for range checkers {
		nr := <-ch
		results[nr.name] = nr.result
	}
	return results
}

// OverallStatus folds per-check results into one status: any unhealthy
// check wins, then any degraded one. No checks counts as healthy.
func (m *Manager) OverallStatus(results map[string]*Result) Status {
	status := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// CheckNames lists the registered checks in registration order.
func (m *Manager) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.checkers))
	for i, checker := range m.checkers {
		names[i] = checker.Name()
	}
	return names
}
