// Package cmd wires the plansmith command line: plan generation, backend
// inspection, credential management, configuration, and the HTTP server.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	outputFormat string
	noColor      bool
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "plansmith",
	Short: "Build plan generation with local-first inference",
	Long: `plansmith turns a product prompt into a structured build plan: phases and
dependency-ordered work packets. Generation is local-first: inference
servers on this machine (LM Studio, Ollama) are tried before anything
else, and a paid cloud provider is only used when the request explicitly
allows it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the root command under the given context. Cancelling
// the context aborts any in-flight generation or probe.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.plansmith/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json, or yaml")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}
