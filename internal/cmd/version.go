package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plansmith/plansmith/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

var versionShort bool

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print just the version number")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.GetInfo()

	if versionShort {
		fmt.Fprintln(cmd.OutOrStdout(), info.Short())
		return nil
	}
	if outputFormat != "text" {
		formatter, err := newFormatter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return formatter.Format(info)
	}
	fmt.Fprintln(cmd.OutOrStdout(), info.String())
	return nil
}
