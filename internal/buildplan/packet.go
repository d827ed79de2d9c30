package buildplan

// PacketType categorizes the kind of work a packet represents.
type PacketType string

// Valid packet types
const (
	TypeSetup         PacketType = "setup"
	TypeFeature       PacketType = "feature"
	TypeIntegration   PacketType = "integration"
	TypeTesting       PacketType = "testing"
	TypeDocumentation PacketType = "documentation"
	TypeRefactor      PacketType = "refactor"
)

// NormalizePacketType maps free-form model output to a canonical packet type.
// Unknown values default to feature rather than failing the plan.
func NormalizePacketType(value string) PacketType {
	v := PacketType(lower(value))
	switch v {
	case TypeSetup, TypeFeature, TypeIntegration, TypeTesting, TypeDocumentation, TypeRefactor:
		return v
	case "infra", "infrastructure", "chore":
		return TypeSetup
	case "test", "tests", "qa":
		return TypeTesting
	case "docs", "doc":
		return TypeDocumentation
	default:
		return TypeFeature
	}
}

// WorkPacket is one unit of planned work inside a phase
type WorkPacket struct {
	ID          string     `json:"id"`
	PhaseID     string     `json:"phase_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        PacketType `json:"type"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	Tasks       []string   `json:"tasks,omitempty"`
	DependsOn   []string   `json:"depends_on,omitempty"`

	// Existing marks packets that were already tracked by the caller
	// before this generation run.
	Existing bool `json:"existing"`
}

// Normalize brings the packet's enum fields to their canonical values
func (w *WorkPacket) Normalize() {
	w.Type = NormalizePacketType(string(w.Type))
	w.Priority = NormalizePriority(string(w.Priority))
	w.Status = NormalizeStatus(string(w.Status))
}

// ExistingPacket is the reduced snapshot of a previously persisted packet
// supplied by the caller. It is read-only input to reconciliation and is
// never mutated.
type ExistingPacket struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	// PhaseID is the phase the packet previously belonged to, when known.
	PhaseID string `json:"phase_id,omitempty"`

	// Description allows update detection beyond the title, when known.
	Description string `json:"description,omitempty"`

	// Tasks preserves the packet's task list for verbatim re-insertion.
	Tasks []string `json:"tasks,omitempty"`
}
