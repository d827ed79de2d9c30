package buildplan

import (
	"fmt"

	"github.com/google/uuid"
)

// Phase is one ordered stage of a build plan
type Phase struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// BuildPlan is the structured artifact produced by a generation run:
// an ordered sequence of phases and the work packets assigned to them.
// A plan is produced fresh on every run and never mutated in place;
// reconciliation builds a new plan rather than editing this one.
type BuildPlan struct {
	Title   string       `json:"title,omitempty"`
	Phases  []Phase      `json:"phases"`
	Packets []WorkPacket `json:"packets"`
}

// Validate checks the structural invariants: at least one phase, unique
// phase and packet ids, and every packet referencing a phase in the plan.
func (p *BuildPlan) Validate() error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("plan has no phases")
	}

	phaseIDs := make(map[string]bool, len(p.Phases))
	for _, phase := range p.Phases {
		if phase.ID == "" {
			return fmt.Errorf("phase %q has no id", phase.Name)
		}
		if phaseIDs[phase.ID] {
			return fmt.Errorf("duplicate phase id: %s", phase.ID)
		}
		phaseIDs[phase.ID] = true
	}

	packetIDs := make(map[string]bool, len(p.Packets))
	for _, packet := range p.Packets {
		if packet.ID == "" {
			return fmt.Errorf("packet %q has no id", packet.Title)
		}
		if packetIDs[packet.ID] {
			return fmt.Errorf("duplicate packet id: %s", packet.ID)
		}
		packetIDs[packet.ID] = true

		if !phaseIDs[packet.PhaseID] {
			return fmt.Errorf("packet %s references unknown phase %q", packet.ID, packet.PhaseID)
		}
	}

	return nil
}

// HasPhase reports whether the plan contains a phase with the given id
func (p *BuildPlan) HasPhase(id string) bool {
	for _, phase := range p.Phases {
		if phase.ID == id {
			return true
		}
	}
	return false
}

// FirstPhaseID returns the id of the first phase, or "" for an empty plan
func (p *BuildPlan) FirstPhaseID() string {
	if len(p.Phases) == 0 {
		return ""
	}
	return p.Phases[0].ID
}

// RepairPhaseRefs reassigns packets whose phase reference does not resolve
// to the first phase of the plan. Partial correctness is preferred over
// rejecting the whole plan. Returns the number of packets repaired.
func (p *BuildPlan) RepairPhaseRefs() int {
	if len(p.Phases) == 0 {
		return 0
	}

	first := p.Phases[0].ID
	repaired := 0
	for i := range p.Packets {
		if !p.HasPhase(p.Packets[i].PhaseID) {
			p.Packets[i].PhaseID = first
			repaired++
		}
	}
	return repaired
}

// EnsurePacketIDs assigns a fresh id to every packet the model emitted
// without one. Returns the number of ids assigned.
func (p *BuildPlan) EnsurePacketIDs() int {
	assigned := 0
	for i := range p.Packets {
		if p.Packets[i].ID == "" {
			p.Packets[i].ID = uuid.NewString()
			assigned++
		}
	}
	return assigned
}

// Normalize brings enum fields of all packets to their canonical values
func (p *BuildPlan) Normalize() {
	for i := range p.Packets {
		p.Packets[i].Normalize()
	}
}

// PacketsInPhase returns the packets assigned to the given phase,
// in plan order
func (p *BuildPlan) PacketsInPhase(phaseID string) []WorkPacket {
	var out []WorkPacket
	for _, packet := range p.Packets {
		if packet.PhaseID == phaseID {
			out = append(out, packet)
		}
	}
	return out
}
