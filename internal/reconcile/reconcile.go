// Package reconcile merges freshly generated work packets against the
// caller's snapshot of previously tracked packets. Regeneration must never
// lose a packet the caller was already tracking, no matter what the model
// returned.
package reconcile

import (
	"github.com/plansmith/plansmith/internal/buildplan"
)

// MergeStats counts how each packet identity fared during a merge.
// Missing counts packets the model silently dropped and the merge
// re-inserted.
type MergeStats struct {
	Preserved int `json:"preserved"`
	Updated   int `json:"updated"`
	Added     int `json:"added"`
	Missing   int `json:"missing"`
}

// Total returns the number of packets in the merged output.
func (s MergeStats) Total() int {
	return s.Preserved + s.Updated + s.Added + s.Missing
}

// Merge reconciles newly generated packets with the caller's snapshot.
// Generated packets whose id matches a snapshot entry are kept and marked
// existing; unmatched generated packets count as added. Snapshot ids absent
// from the generated set are re-inserted after all generated packets, so
// the merged set always covers every id the caller sent. Dropped packets
// keep their original phase when the snapshot names one, otherwise they
// land in defaultPhaseID.
func Merge(newPackets []buildplan.WorkPacket, existing []buildplan.ExistingPacket, defaultPhaseID string) ([]buildplan.WorkPacket, MergeStats) {
	var stats MergeStats

	index := make(map[string]buildplan.ExistingPacket, len(existing))
	for _, e := range existing {
		index[e.ID] = e
	}

	merged := make([]buildplan.WorkPacket, 0, len(newPackets)+len(existing))
	seen := make(map[string]bool, len(newPackets))

	for _, packet := range newPackets {
		snapshot, matched := index[packet.ID]
		if matched {
			packet.Existing = true
			seen[packet.ID] = true
			if changed(packet, snapshot) {
				stats.Updated++
			} else {
				stats.Preserved++
			}
		} else {
			packet.Existing = false
			stats.Added++
		}
		merged = append(merged, packet)
	}

	for _, e := range existing {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		merged = append(merged, reinsert(e, defaultPhaseID))
		stats.Missing++
	}

	return merged, stats
}

// changed reports whether the regenerated packet diverges from its
// snapshot. Title always participates; description only when the snapshot
// carries one, since reduced snapshots omit it.
func changed(packet buildplan.WorkPacket, snapshot buildplan.ExistingPacket) bool {
	if packet.Title != snapshot.Title {
		return true
	}
	if snapshot.Description != "" && packet.Description != snapshot.Description {
		return true
	}
	return false
}

func reinsert(e buildplan.ExistingPacket, defaultPhaseID string) buildplan.WorkPacket {
	phaseID := e.PhaseID
	if phaseID == "" {
		phaseID = defaultPhaseID
	}
	packet := buildplan.WorkPacket{
		ID:          e.ID,
		PhaseID:     phaseID,
		Title:       e.Title,
		Description: e.Description,
		Priority:    e.Priority,
		Status:      e.Status,
		Tasks:       e.Tasks,
		Existing:    true,
	}
	packet.Normalize()
	return packet
}
