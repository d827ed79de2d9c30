// Package extract recovers build plans from raw model output.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/plansmith/plansmith/internal/buildplan"
)

// Details records which recovery steps ran during extraction. When Plan
// returns nil, Reason carries a short diagnostic for tracing.
type Details struct {
	FencesStripped bool   `json:"fences_stripped,omitempty"`
	Unwrapped      bool   `json:"unwrapped,omitempty"`
	AssignedIDs    int    `json:"assigned_ids,omitempty"`
	RepairedRefs   int    `json:"repaired_refs,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Plan scans raw model output for a build plan. It tolerates prose around
// the JSON object, markdown code fences with or without a language tag, and
// a nested {"plan": ...} envelope. A nil plan means the output was not
// usable; callers treat that as a signal to retry or fall back, never as an
// error to raise.
func Plan(raw string) (*buildplan.BuildPlan, Details) {
	var d Details

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		d.Reason = "empty output"
		return nil, d
	}

	stripped := stripFences(trimmed)
	d.FencesStripped = stripped != trimmed

	candidate, ok := scanObject(stripped)
	if !ok {
		d.Reason = "no balanced JSON object in output"
		return nil, d
	}

	decoded, unwrapped, err := decodePlan(candidate)
	if err != nil {
		d.Reason = fmt.Sprintf("invalid JSON: %v", err)
		return nil, d
	}
	d.Unwrapped = unwrapped

	plan := decoded.toBuildPlan()
	if len(plan.Phases) == 0 {
		d.Reason = "plan has no phases"
		return nil, d
	}

	d.AssignedIDs = plan.EnsurePacketIDs()
	d.RepairedRefs = plan.RepairPhaseRefs()
	plan.Normalize()

	if err := plan.Validate(); err != nil {
		d.Reason = err.Error()
		return nil, d
	}
	return plan, d
}

// stripFences removes a leading ```lang fence and a trailing ``` fence.
func stripFences(text string) string {
	out := text
	if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```")
		out = strings.TrimLeft(out, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		out = strings.TrimSpace(out)
	}
	if strings.HasSuffix(out, "```") {
		out = strings.TrimSuffix(out, "```")
		out = strings.TrimSpace(out)
	}
	return out
}

// scanObject locates the first top-level JSON object by balanced-brace
// scanning. Braces inside string values are skipped, so nested JSON in
// description fields does not terminate the scan early. Regex cannot do
// this correctly.
func scanObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escape := false
	for i, r := range text {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if inString {
			if escape {
				escape = false
				continue
			}
			if r == '\\' {
				escape = true
				continue
			}
			if r == '"' {
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1]), true
			}
		}
	}
	return "", false
}

type rawPhase struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
	Order int    `json:"order"`
}

type rawPacket struct {
	ID          string   `json:"id"`
	PhaseID     string   `json:"phase_id"`
	Phase       string   `json:"phase"`
	Title       string   `json:"title"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Priority    string   `json:"priority"`
	Status      string   `json:"status"`
	Tasks       []string `json:"tasks"`
	DependsOn   []string `json:"depends_on"`
	Depends     []string `json:"depends"`
}

type rawPlan struct {
	Title       string      `json:"title"`
	Phases      []rawPhase  `json:"phases"`
	Packets     []rawPacket `json:"packets"`
	WorkPackets []rawPacket `json:"work_packets"`
}

// decodePlan parses the candidate object, falling back to a {"plan": ...}
// envelope when the root object carries no phases.
func decodePlan(candidate string) (rawPlan, bool, error) {
	var plan rawPlan
	if err := json.Unmarshal([]byte(candidate), &plan); err != nil {
		return rawPlan{}, false, err
	}
	if len(plan.Phases) > 0 {
		return plan, false, nil
	}
	var wrapped struct {
		Plan rawPlan `json:"plan"`
	}
	if err := json.Unmarshal([]byte(candidate), &wrapped); err == nil && len(wrapped.Plan.Phases) > 0 {
		return wrapped.Plan, true, nil
	}
	return plan, false, nil
}

func (rp rawPlan) toBuildPlan() *buildplan.BuildPlan {
	packets := rp.Packets
	if len(packets) == 0 && len(rp.WorkPackets) > 0 {
		packets = rp.WorkPackets
	}

	plan := &buildplan.BuildPlan{
		Title:  strings.TrimSpace(rp.Title),
		Phases: make([]buildplan.Phase, 0, len(rp.Phases)),
	}
	for i, ph := range rp.Phases {
		name := ph.Name
		if name == "" {
			name = ph.Title
		}
		id := strings.TrimSpace(ph.ID)
		if id == "" {
			id = fmt.Sprintf("phase-%d", i+1)
		}
		order := ph.Order
		if order == 0 {
			order = i + 1
		}
		plan.Phases = append(plan.Phases, buildplan.Phase{
			ID:    id,
			Name:  strings.TrimSpace(name),
			Order: order,
		})
	}
	for _, pk := range packets {
		phaseID := pk.PhaseID
		if phaseID == "" {
			phaseID = pk.Phase
		}
		title := pk.Title
		if title == "" {
			title = pk.Name
		}
		deps := pk.DependsOn
		if len(deps) == 0 && len(pk.Depends) > 0 {
			deps = pk.Depends
		}
		plan.Packets = append(plan.Packets, buildplan.WorkPacket{
			ID:          strings.TrimSpace(pk.ID),
			PhaseID:     strings.TrimSpace(phaseID),
			Title:       strings.TrimSpace(title),
			Description: strings.TrimSpace(pk.Description),
			Type:        buildplan.PacketType(pk.Type),
			Priority:    buildplan.Priority(pk.Priority),
			Status:      buildplan.Status(pk.Status),
			Tasks:       pk.Tasks,
			DependsOn:   deps,
		})
	}
	return plan
}
