package cmd

import (
	"github.com/spf13/cobra"

	"github.com/plansmith/plansmith/internal/backend"
	"github.com/plansmith/plansmith/internal/config"
	"github.com/plansmith/plansmith/internal/credential"
	"github.com/plansmith/plansmith/internal/detect"
	"github.com/plansmith/plansmith/internal/probe"
	"github.com/plansmith/plansmith/internal/ux"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Show configured backends and their availability",
	Long: `Show every configured backend and what it can do right now: local
servers are probed for their loaded model, cloud providers are checked
for a usable credential, and the agent CLI is looked up on PATH.`,
	Args: cobra.NoArgs,
	RunE: runBackends,
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}

func runBackends(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}

	prober := probe.NewProber(cfg.Probe.Timeout())
	outcomes := prober.Probe(cmd.Context(), cfg.Candidates())

	report := ux.BackendsReport{Backends: backendRows(cfg, outcomes, openStore(cfg))}
	formatter, err := newFormatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return formatter.Format(report)
}

// backendRows builds one report row per configured backend. Local rows
// come from the probe outcomes, cloud rows from the credential chain,
// and CLI rows from a PATH lookup.
func backendRows(cfg *config.Config, outcomes []probe.Outcome, store credential.Lookup) []ux.BackendRow {
	byID := make(map[string]probe.Outcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.CandidateID] = o
	}

	rows := make([]ux.BackendRow, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		row := ux.BackendRow{ID: b.ID, Kind: b.Kind}
		switch backend.Kind(b.Kind) {
		case backend.KindLocalHTTP:
			o := byID[b.ID]
			if o.Online {
				row.Status = ux.StatusOnline
				row.LoadedModel = o.LoadedModel
				row.LatencyMs = o.Latency.Milliseconds()
			} else {
				row.Status = ux.StatusOffline
				row.Detail = o.Error
			}
		case backend.KindCloudAPI:
			row.Status, row.Detail = cloudStatus(b.Provider, store)
		case backend.KindCLISubprocess:
			f := detect.CLI(b.ID, b.Command)
			if f.Available {
				row.Status = ux.StatusReady
			} else {
				row.Status = ux.StatusUnavailable
			}
			row.Detail = f.Detail
		default:
			row.Status = ux.StatusUnknown
		}
		rows = append(rows, row)
	}
	return rows
}

// cloudStatus walks the same chain the resolver uses at generation time,
// minus the request-supplied key: stored credential first, then the
// provider's environment variable.
func cloudStatus(provider string, store credential.Lookup) (status, detail string) {
	if store != nil {
		if v, err := store.Get(provider); err == nil && v != "" {
			return ux.StatusReady, "stored credential"
		}
	}
	f := detect.Cloud(provider)
	if f.Available {
		return ux.StatusReady, f.Detail
	}
	return ux.StatusUnavailable, f.Detail
}
