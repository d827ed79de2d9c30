package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/plansmith/plansmith/internal/config"
	"github.com/plansmith/plansmith/internal/ux"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file for this host",
	Long: `Write a configuration file. By default the backend list comes from host
discovery: local servers are always listed, cloud providers and the
agent CLI only when a key or binary is actually present. Pass
--defaults to write the stock configuration instead.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigView,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file location",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var (
	configInitForce    bool
	configInitDefaults bool
)

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().BoolVar(&configInitDefaults, "defaults", false, "write the stock configuration instead of discovery")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := initConfigFile(path, configInitDefaults, configInitForce)
	if err != nil {
		return ux.EnhanceError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ wrote %s with %d backends\n", path, len(cfg.Backends))
	return nil
}

// initConfigFile writes a fresh configuration and returns what was
// written. An existing file is only replaced when force is set.
func initConfigFile(path string, useDefaults, force bool) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return nil, fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}
	cfg := config.Discover()
	if useDefaults {
		cfg = config.DefaultConfig()
	}
	if err := config.Save(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (not found, discovery defaults apply)\n", path)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
