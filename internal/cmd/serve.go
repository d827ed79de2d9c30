package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/plansmith/plansmith/internal/health"
	"github.com/plansmith/plansmith/internal/server"
	"github.com/plansmith/plansmith/internal/ux"
	"github.com/plansmith/plansmith/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the plan generation HTTP service",
	Long: `Run the HTTP service. It exposes plan generation, the backend report,
and Kubernetes-style health probes:

  POST /v1/plans/generate - generate a build plan
  GET  /v1/backends       - backend availability report
  GET  /healthz           - liveness probe
  GET  /readyz            - readiness probe
  GET  /openapi.yaml      - the API contract

The server drains connections on SIGINT or SIGTERM; readiness flips to
503 as soon as shutdown starts so load balancers stop routing here.

Example:
  # Serve on the configured address (default :8080)
  plansmith serve

  # Override the address and drain window
  plansmith serve --addr :9090 --shutdown-timeout 60s`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr            string
	serveShutdownTimeout time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 0, "how long to wait for in-flight requests (default from config)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}
	logger := newLogger(cfg)
	svc, prober := newService(cfg, logger)

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	shutdownTimeout := serveShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = cfg.Server.ShutdownGrace()
	}

	info := version.GetInfo()
	pm := health.NewProbeManager(info.Version)
	pm.AddChecker(health.NewBackendChecker(prober, cfg.Candidates()))
	pm.AddChecker(health.NewStoreChecker(cfg.Credentials.Path))

	srv, err := server.NewServer(server.Deps{
		Generator:    svc,
		Prober:       prober,
		Candidates:   cfg.Candidates(),
		ProbeManager: pm,
		Logger:       logger,
		Version:      info.Version,
	}, server.Config{
		Address:         addr,
		ShutdownTimeout: shutdownTimeout,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "plansmith %s serving on %s\n", info.Version, addr)
	fmt.Fprintf(out, "  generate:  POST http://%s/v1/plans/generate\n", displayAddr(addr))
	fmt.Fprintf(out, "  backends:  GET  http://%s/v1/backends\n", displayAddr(addr))
	fmt.Fprintf(out, "  liveness:  GET  http://%s/healthz\n", displayAddr(addr))
	fmt.Fprintf(out, "  readiness: GET  http://%s/readyz\n", displayAddr(addr))
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		fmt.Fprintln(out, "\nshutting down...")

		// The parent context is already cancelled at this point, so the
		// drain deadline has to come from a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout+5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		fmt.Fprintln(out, "server stopped")
		return nil
	}
}

// displayAddr turns a bare ":8080" listen address into something a curl
// example can use.
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
