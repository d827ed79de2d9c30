package extract

import (
	"strings"
	"testing"

	"github.com/plansmith/plansmith/internal/buildplan"
)

const planJSON = `{
  "title": "Checkout service",
  "phases": [
    {"id": "phase-1", "name": "Foundation", "order": 1},
    {"id": "phase-2", "name": "Features", "order": 2}
  ],
  "packets": [
    {"id": "wp-1", "phase_id": "phase-1", "title": "Scaffolding", "type": "setup", "priority": "high", "status": "pending"},
    {"id": "wp-2", "phase_id": "phase-2", "title": "Cart API", "type": "feature", "priority": "medium", "status": "pending", "depends_on": ["wp-1"]}
  ]
}`

func TestPlanCleanJSON(t *testing.T) {
	plan, details := Plan(planJSON)
	if plan == nil {
		t.Fatalf("expected plan, got nil: %s", details.Reason)
	}
	if len(plan.Phases) != 2 {
		t.Errorf("expected 2 phases, got %d", len(plan.Phases))
	}
	if len(plan.Packets) != 2 {
		t.Errorf("expected 2 packets, got %d", len(plan.Packets))
	}
	if plan.Title != "Checkout service" {
		t.Errorf("unexpected title %q", plan.Title)
	}
}

func TestPlanFencedWithProse(t *testing.T) {
	raw := "Here is the plan you asked for:\n\n```json\n" + planJSON + "\n```\n\nLet me know if you want changes."

	plan, details := Plan(raw)
	if plan == nil {
		t.Fatalf("expected plan, got nil: %s", details.Reason)
	}
	if len(plan.Packets) != 2 {
		t.Errorf("expected 2 packets, got %d", len(plan.Packets))
	}
}

func TestPlanFenceWithoutLanguageTag(t *testing.T) {
	raw := "```\n" + planJSON + "\n```"

	plan, details := Plan(raw)
	if plan == nil {
		t.Fatalf("expected plan, got nil: %s", details.Reason)
	}
}

func TestPlanUnusableOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t "},
		{"no JSON", "Sorry, I could not generate a plan this time."},
		{"truncated", planJSON[:len(planJSON)/2]},
		{"unbalanced brace", `{"phases": [{"id": "p1"`},
		{"array not object", `[1, 2, 3]`},
		{"no phases", `{"title": "x", "packets": []}`},
		{"empty phases", `{"phases": [], "packets": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, details := Plan(tt.raw)
			if plan != nil {
				t.Errorf("expected nil plan, got %+v", plan)
			}
			if details.Reason == "" {
				t.Error("expected a failure reason")
			}
		})
	}
}

func TestPlanWrappedEnvelope(t *testing.T) {
	raw := `{"plan": ` + planJSON + `}`

	plan, details := Plan(raw)
	if plan == nil {
		t.Fatalf("expected plan, got nil: %s", details.Reason)
	}
	if !details.Unwrapped {
		t.Error("expected Unwrapped to be set")
	}
	if len(plan.Phases) != 2 {
		t.Errorf("expected 2 phases, got %d", len(plan.Phases))
	}
}

func TestPlanBracesInsideStrings(t *testing.T) {
	raw := `{
  "phases": [{"id": "p1", "name": "Only", "order": 1}],
  "packets": [
    {"id": "wp-1", "phase_id": "p1", "title": "Parser", "description": "Handle inputs like {\"a\": {\"b\": 1}} and escaped \\\" quotes"}
  ]
}`

	plan, details := Plan(raw)
	if plan == nil {
		t.Fatalf("expected plan, got nil: %s", details.Reason)
	}
	if !strings.Contains(plan.Packets[0].Description, `{"a": {"b": 1}}`) {
		t.Errorf("description mangled: %q", plan.Packets[0].Description)
	}
}

func TestPlanRepairsDanglingPhaseRef(t *testing.T) {
	raw := `{
  "phases": [{"id": "p1", "name": "Only", "order": 1}],
  "packets": [{"id": "wp-1", "phase_id": "p-gone", "title": "Orphan"}]
}`

	plan, details := Plan(raw)
	if plan == nil {
		t.Fatalf("expected plan, got nil: %s", details.Reason)
	}
	if details.RepairedRefs != 1 {
		t.Errorf("expected 1 repaired ref, got %d", details.RepairedRefs)
	}
	if plan.Packets[0].PhaseID != "p1" {
		t.Errorf("expected orphan reassigned to p1, got %s", plan.Packets[0].PhaseID)
	}
}

func TestPlanAssignsMissingPacketIDs(t *testing.T) {
	raw := `{
  "phases": [{"id": "p1", "name": "Only", "order": 1}],
  "packets": [{"phase_id": "p1", "title": "No id"}]
}`

	plan, details := Plan(raw)
	if plan == nil {
		t.Fatalf("expected plan, got nil: %s", details.Reason)
	}
	if details.AssignedIDs != 1 {
		t.Errorf("expected 1 assigned id, got %d", details.AssignedIDs)
	}
	if plan.Packets[0].ID == "" {
		t.Error("packet id still empty")
	}
}

func TestPlanFieldAliases(t *testing.T) {
	raw := `{
  "phases": [{"id": "p1", "title": "Named via title", "order": 1}],
  "work_packets": [
    {"id": "wp-1", "phase": "p1", "name": "Aliased packet", "depends": ["wp-0"]}
  ]
}`

	plan, details := Plan(raw)
	if plan == nil {
		t.Fatalf("expected plan, got nil: %s", details.Reason)
	}
	if plan.Phases[0].Name != "Named via title" {
		t.Errorf("phase title alias not applied: %q", plan.Phases[0].Name)
	}
	pk := plan.Packets[0]
	if pk.PhaseID != "p1" || pk.Title != "Aliased packet" {
		t.Errorf("packet aliases not applied: %+v", pk)
	}
	if len(pk.DependsOn) != 1 || pk.DependsOn[0] != "wp-0" {
		t.Errorf("depends alias not applied: %+v", pk.DependsOn)
	}
}

func TestPlanNormalizesEnums(t *testing.T) {
	raw := `{
  "phases": [{"id": "p1", "name": "Only", "order": 1}],
  "packets": [{"id": "wp-1", "phase_id": "p1", "title": "x", "type": "INFRA", "priority": "P0", "status": "todo"}]
}`

	plan, details := Plan(raw)
	if plan == nil {
		t.Fatalf("expected plan, got nil: %s", details.Reason)
	}
	pk := plan.Packets[0]
	if pk.Type != buildplan.TypeSetup {
		t.Errorf("expected type setup, got %s", pk.Type)
	}
	if pk.Priority != buildplan.PriorityHigh {
		t.Errorf("expected priority high, got %s", pk.Priority)
	}
	if pk.Status != buildplan.StatusPending {
		t.Errorf("expected status pending, got %s", pk.Status)
	}
}

func TestPlanDuplicatePacketIDsRejected(t *testing.T) {
	raw := `{
  "phases": [{"id": "p1", "name": "Only", "order": 1}],
  "packets": [
    {"id": "wp-1", "phase_id": "p1", "title": "a"},
    {"id": "wp-1", "phase_id": "p1", "title": "b"}
  ]
}`

	plan, details := Plan(raw)
	if plan != nil {
		t.Fatalf("expected nil plan for duplicate ids, got %+v", plan)
	}
	if !strings.Contains(details.Reason, "duplicate") {
		t.Errorf("expected duplicate-id reason, got %q", details.Reason)
	}
}

func TestScanObjectFirstObjectWins(t *testing.T) {
	text := `prefix {"a": 1} middle {"b": 2}`

	obj, ok := scanObject(text)
	if !ok {
		t.Fatal("expected an object")
	}
	if obj != `{"a": 1}` {
		t.Errorf("expected first object, got %q", obj)
	}
}
