package health

import (
	"context"
	"fmt"

	"github.com/plansmith/plansmith/internal/backend"
	"github.com/plansmith/plansmith/internal/probe"
)

// BackendChecker checks the configured generation backends. Local
// inference servers are probed live; cloud and CLI entries count as
// fallback capacity only.
type BackendChecker struct {
	prober     *probe.Prober
	candidates []backend.Candidate
}

// NewBackendChecker creates a health checker over the configured
// backend candidates.
func NewBackendChecker(prober *probe.Prober, candidates []backend.Candidate) *BackendChecker {
	return &BackendChecker{
		prober:     prober,
		candidates: candidates,
	}
}

// Name returns the name of this health check.
func (c *BackendChecker) Name() string {
	return "generation-backends"
}

// Check probes the local inference servers.
// Returns:
//   - Healthy if at least one local backend is online
//   - Degraded if locals are configured but all offline (cloud or CLI
//     fallback may still serve requests)
//   - Unhealthy if no backends are configured at all
func (c *BackendChecker) Check(ctx context.Context) *Result {
	if len(c.candidates) == 0 {
		return Unhealthy("no generation backends configured").
			WithDetail("backend_count", 0)
	}

	// The probe annotates candidates in place; work on a copy so the
	// checker never mutates shared configuration.
	probed := make([]backend.Candidate, len(c.candidates))
	copy(probed, c.candidates)
	outcomes := c.prober.Probe(ctx, probed)

	localCount := 0
	onlineCount := 0
	fallbackCount := 0
	backendDetails := make(map[string]interface{})

	for i, cand := range probed {
		switch cand.Kind {
		case backend.KindLocalHTTP:
			localCount++
			detail := map[string]interface{}{
				"online":     outcomes[i].Online,
				"latency_ms": outcomes[i].Latency.Milliseconds(),
			}
			if outcomes[i].Online {
				onlineCount++
				detail["loaded_model"] = outcomes[i].LoadedModel
			} else if outcomes[i].Error != "" {
				detail["error"] = outcomes[i].Error
			}
			backendDetails[cand.ID] = detail
		default:
			fallbackCount++
			backendDetails[cand.ID] = map[string]interface{}{
				"kind": string(cand.Kind),
			}
		}
	}

	result := &Result{
		Details: make(map[string]interface{}),
	}
	result.Details["local_backends"] = localCount
	result.Details["online_backends"] = onlineCount
	result.Details["fallback_backends"] = fallbackCount
	result.Details["backends"] = backendDetails

	if onlineCount > 0 {
		result.Status = StatusHealthy
		result.Message = fmt.Sprintf("%d/%d local backends online", onlineCount, localCount)
		return result
	}

	result.Status = StatusDegraded
	if localCount == 0 {
		result.Message = "no local backends configured, fallback only"
	} else {
		result.Message = fmt.Sprintf("all %d local backends offline", localCount)
	}
	return result
}
