package ux

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/plansmith/plansmith/internal/buildplan"
	"github.com/plansmith/plansmith/internal/orchestrator"
	"github.com/plansmith/plansmith/internal/trace"
)

// Backend status values used in the backends report.
const (
	StatusOnline      = "online"
	StatusOffline     = "offline"
	StatusReady       = "ready"
	StatusUnavailable = "unavailable"
	StatusUnknown     = "unknown"
)

// BackendRow is one backend in the backends report.
type BackendRow struct {
	ID          string `json:"id" yaml:"id"`
	Kind        string `json:"kind" yaml:"kind"`
	Status      string `json:"status" yaml:"status"`
	Detail      string `json:"detail,omitempty" yaml:"detail,omitempty"`
	LoadedModel string `json:"loaded_model,omitempty" yaml:"loaded_model,omitempty"`
	LatencyMs   int64  `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty"`
}

// BackendsReport is the payload of the backends command and the
// /v1/backends endpoint.
type BackendsReport struct {
	Backends []BackendRow `json:"backends" yaml:"backends"`
}

// Renderer produces the styled terminal views. With color disabled every
// style is a plain passthrough, so output stays pipeable.
type Renderer struct {
	title  lipgloss.Style
	header lipgloss.Style
	label  lipgloss.Style
	good   lipgloss.Style
	warn   lipgloss.Style
	bad    lipgloss.Style
	dim    lipgloss.Style
}

// NewRenderer creates a renderer. noColor swaps every style for an
// unstyled one.
func NewRenderer(noColor bool) *Renderer {
	if noColor {
		plain := lipgloss.NewStyle()
		return &Renderer{
			title:  plain,
			header: plain,
			label:  plain,
			good:   plain,
			warn:   plain,
			bad:    plain,
			dim:    plain,
		}
	}
	return &Renderer{
		title:  lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
		header: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		label:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		good:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		bad:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		dim:    lipgloss.NewStyle().Faint(true),
	}
}

// Plan renders a build plan grouped by phase.
func (r *Renderer) Plan(plan *buildplan.BuildPlan) string {
	if plan == nil {
		return ""
	}

	var output strings.Builder

	if plan.Title != "" {
		output.WriteString(r.title.Render(plan.Title))
		output.WriteString("\n\n")
	}

	for _, phase := range plan.Phases {
		output.WriteString(r.header.Render(fmt.Sprintf("Phase %d: %s", phase.Order, phase.Name)))
		output.WriteString("\n")

		packets := plan.PacketsInPhase(phase.ID)
		if len(packets) == 0 {
			output.WriteString(r.dim.Render("  no work packets") + "\n\n")
			continue
		}
		for _, p := range packets {
			output.WriteString(r.packetLine(p))
		}
		output.WriteString("\n")
	}

	output.WriteString(r.label.Render(fmt.Sprintf("%d work packets in %d phases", len(plan.Packets), len(plan.Phases))))
	output.WriteString("\n")
	return output.String()
}

func (r *Renderer) packetLine(p buildplan.WorkPacket) string {
	status := r.statusStyle(string(p.Status)).Render(fmt.Sprintf("%-12s", p.Status))
	line := fmt.Sprintf("  %s %s  %s", r.label.Render(fmt.Sprintf("%-8s", p.ID)), status, p.Title)
	if p.Priority != "" {
		line += r.dim.Render(fmt.Sprintf("  [%s/%s]", p.Type, p.Priority))
	}
	if p.Existing {
		line += r.dim.Render("  (existing)")
	}
	if len(p.DependsOn) > 0 {
		line += r.dim.Render("  needs " + strings.Join(p.DependsOn, ", "))
	}
	return line + "\n"
}

func (r *Renderer) statusStyle(status string) lipgloss.Style {
	switch status {
	case string(buildplan.StatusCompleted):
		return r.good
	case string(buildplan.StatusInProgress):
		return r.warn
	case string(buildplan.StatusBlocked):
		return r.bad
	default:
		return r.label
	}
}

// Response renders a full generation outcome: the plan followed by a
// provenance footer.
func (r *Renderer) Response(resp *orchestrator.Response) string {
	if resp == nil {
		return ""
	}

	var output strings.Builder
	output.WriteString(r.Plan(resp.Plan))

	backend := resp.BackendUsed
	if backend == "" {
		backend = "unknown"
	}
	line := fmt.Sprintf("✓ generated by %s", backend)
	if resp.ModelUsed != "" {
		line += fmt.Sprintf(" (%s)", resp.ModelUsed)
	}
	if resp.Duration > 0 {
		line += fmt.Sprintf(" in %s", resp.Duration.Round(time.Millisecond))
	}
	output.WriteString(r.good.Render(line))
	output.WriteString("\n")

	if resp.RequestedModel != "" && resp.RequestedModel != resp.ModelUsed {
		output.WriteString(r.warn.Render(fmt.Sprintf("  requested model %s was substituted", resp.RequestedModel)))
		output.WriteString("\n")
	}

	stats := resp.Stats
	if stats.Total() > 0 {
		output.WriteString(r.label.Render(fmt.Sprintf("  merge: %d preserved, %d updated, %d added, %d re-inserted",
			stats.Preserved, stats.Updated, stats.Added, stats.Missing)))
		output.WriteString("\n")
	}

	if resp.Fingerprint != "" {
		fp := resp.Fingerprint
		if len(fp) > 16 {
			fp = fp[:16]
		}
		output.WriteString(r.dim.Render("  fingerprint " + fp))
		output.WriteString("\n")
	}
	return output.String()
}

// Report renders the backends report as an aligned table.
func (r *Renderer) Report(report BackendsReport) string {
	var output strings.Builder
	output.WriteString(r.header.Render("Backends"))
	output.WriteString("\n")

	if len(report.Backends) == 0 {
		output.WriteString(r.dim.Render("  no backends configured") + "\n")
		return output.String()
	}

	for _, row := range report.Backends {
		output.WriteString(r.backendLine(row))
	}
	return output.String()
}

func (r *Renderer) backendLine(row BackendRow) string {
	var glyph string
	switch row.Status {
	case StatusOnline, StatusReady:
		glyph = r.good.Render("✓")
	case StatusOffline, StatusUnavailable:
		glyph = r.bad.Render("✗")
	default:
		glyph = r.dim.Render("-")
	}

	line := fmt.Sprintf("  %s %s %s %s",
		glyph,
		r.label.Render(fmt.Sprintf("%-12s", row.ID)),
		fmt.Sprintf("%-15s", row.Kind),
		fmt.Sprintf("%-12s", row.Status))
	if row.Detail != "" {
		line += "  " + r.dim.Render(row.Detail)
	}
	if row.LoadedModel != "" {
		line += "  " + row.LoadedModel
	}
	if row.LatencyMs > 0 {
		line += "  " + r.dim.Render(fmt.Sprintf("(%dms)", row.LatencyMs))
	}
	return line + "\n"
}

// Trace renders the run trace, one event per line, colored by level.
func (r *Renderer) Trace(events []trace.Event) string {
	if len(events) == 0 {
		return ""
	}

	var output strings.Builder
	output.WriteString(r.header.Render("Trace"))
	output.WriteString("\n")

	for _, e := range events {
		level := r.levelStyle(e.Level).Render(fmt.Sprintf("%-7s", e.Level))
		line := fmt.Sprintf("  %s %s %s",
			r.dim.Render(e.Timestamp.Format("15:04:05.000")),
			level,
			r.label.Render(fmt.Sprintf("%-18s", e.Type)))
		if e.BackendID != "" {
			line += fmt.Sprintf("%-12s ", e.BackendID)
		}
		line += e.Message
		if e.Error != "" {
			line += r.bad.Render(": " + e.Error)
		}
		if e.Duration != nil {
			line += r.dim.Render(fmt.Sprintf(" (%s)", e.Duration.Round(time.Millisecond)))
		}
		output.WriteString(line + "\n")
	}
	return output.String()
}

func (r *Renderer) levelStyle(level string) lipgloss.Style {
	switch level {
	case "error":
		return r.bad
	case "warning":
		return r.warn
	default:
		return r.label
	}
}
