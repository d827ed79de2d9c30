package health

import (
	"context"
	"sync/atomic"
	"time"
)

// ProbeManager wraps a Manager with the state the probe endpoints need:
// process start time, the shutdown flag, and the served version.
type ProbeManager struct {
	*Manager

	startTime  time.Time
	inShutdown atomic.Bool
	version    string
}

// NewProbeManager creates a probe manager reporting the given version.
func NewProbeManager(version string) *ProbeManager {
	return &ProbeManager{
		Manager:   NewManager(),
		startTime: time.Now(),
		version:   version,
	}
}

// MarkShutdown flips readiness to unhealthy so load balancers stop
// routing here while in-flight requests drain.
func (pm *ProbeManager) MarkShutdown() {
	pm.inShutdown.Store(true)
}

// IsShuttingDown reports whether shutdown has started.
func (pm *ProbeManager) IsShuttingDown() bool {
	return pm.inShutdown.Load()
}

// Uptime is how long the process has been serving.
func (pm *ProbeManager) Uptime() time.Duration {
	return time.Since(pm.startTime)
}

// Version returns the served version string.
func (pm *ProbeManager) Version() string {
	return pm.version
}

// ProbeResult is the body of a probe response.
type ProbeResult struct {
	Status    Status             `json:"status"`
	Version   string             `json:"version,omitempty"`
	Uptime    string             `json:"uptime,omitempty"`
	Checks    map[string]*Result `json:"checks,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// CheckLiveness answers whether the process is alive. It never runs
// dependency checks; a draining server is still alive, just degraded.
func (pm *ProbeManager) CheckLiveness(ctx context.Context) *ProbeResult {
	status := StatusHealthy
	if pm.IsShuttingDown() {
		status = StatusDegraded
	}
	return pm.snapshot(status, nil)
}

// CheckReadiness answers whether the service should receive traffic.
// Shutdown short-circuits to unhealthy without running any checks;
// otherwise the registered dependency checks decide.
func (pm *ProbeManager) CheckReadiness(ctx context.Context) *ProbeResult {
	if pm.IsShuttingDown() {
		return pm.snapshot(StatusUnhealthy, nil)
	}

	checks := pm.Manager.Check(ctx)
	return pm.snapshot(pm.Manager.OverallStatus(checks), checks)
}

func (pm *ProbeManager) snapshot(status Status, checks map[string]*Result) *ProbeResult {
	if checks == nil {
		checks = make(map[string]*Result)
	}
	return &ProbeResult{
		Status:    status,
		Version:   pm.version,
		Uptime:    pm.Uptime().Round(time.Second).String(),
		Checks:    checks,
		Timestamp: time.Now(),
	}
}
