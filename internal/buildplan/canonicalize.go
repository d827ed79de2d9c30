package buildplan

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
)

// Canonicalize returns a canonical JSON representation of a plan
// with stable ordering for consistent hashing
func Canonicalize(plan *BuildPlan) ([]byte, error) {
	phases := make([]map[string]interface{}, len(plan.Phases))
	for i, phase := range plan.Phases {
		phases[i] = map[string]interface{}{
			"id":    phase.ID,
			"name":  phase.Name,
			"order": phase.Order,
		}
	}

	packets := make([]map[string]interface{}, len(plan.Packets))
	for i, packet := range plan.Packets {
		m := map[string]interface{}{
			"id":       packet.ID,
			"phase_id": packet.PhaseID,
			"title":    packet.Title,
			"type":     string(packet.Type),
			"priority": string(packet.Priority),
			"status":   string(packet.Status),
		}
		if packet.Description != "" {
			m["description"] = packet.Description
		}
		if len(packet.Tasks) > 0 {
			m["tasks"] = packet.Tasks
		}
		if len(packet.DependsOn) > 0 {
			deps := append([]string(nil), packet.DependsOn...)
			sort.Strings(deps)
			m["depends_on"] = deps
		}
		packets[i] = m
	}

	data := map[string]interface{}{
		"phases":  phases,
		"packets": packets,
	}
	if plan.Title != "" {
		data["title"] = plan.Title
	}

	// Marshal with sorted keys
	return json.Marshal(sortKeys(data))
}

// Fingerprint computes the blake3 hash of a canonicalized plan.
// Two plans with identical content always fingerprint the same, so callers
// can detect no-op regenerations.
func Fingerprint(plan *BuildPlan) (string, error) {
	canonical, err := Canonicalize(plan)
	if err != nil {
		return "", fmt.Errorf("canonicalize plan: %w", err)
	}

	hasher := blake3.New()
	if _, err := hasher.Write(canonical); err != nil {
		return "", fmt.Errorf("hash plan: %w", err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// sortKeys recursively sorts map keys for stable JSON output
func sortKeys(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sorted := make(map[string]interface{}, len(val))
		for _, k := range keys {
			sorted[k] = sortKeys(val[k])
		}
		return sorted

	case []interface{}:
		for i, item := range val {
			val[i] = sortKeys(item)
		}
		return val

	case []map[string]interface{}:
		for i, item := range val {
			val[i] = sortKeys(item).(map[string]interface{})
		}
		return val

	default:
		return v
	}
}
