package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plansmith/plansmith/internal/credential"
	"github.com/plansmith/plansmith/internal/ux"
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage stored provider API keys",
	Long: `Manage the encrypted credential store. Stored keys take precedence over
request-supplied and environment keys when a cloud provider is called.

The store is encrypted with a passphrase taken from the ` + credential.PassphraseEnvVar + `
environment variable; every subcommand needs it set.`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store an API key for a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsSet,
}

var credentialsGetCmd = &cobra.Command{
	Use:   "get <provider>",
	Short: "Show the stored key for a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsGet,
}

var credentialsRemoveCmd = &cobra.Command{
	Use:   "remove <provider>",
	Short: "Remove the stored key for a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsRemove,
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials",
	Args:  cobra.NoArgs,
	RunE:  runCredentialsList,
}

var (
	credentialsKey  string
	credentialsShow bool
	credentialsYes  bool
)

func init() {
	credentialsSetCmd.Flags().StringVar(&credentialsKey, "key", "", "key value (prompted for when omitted)")
	credentialsGetCmd.Flags().BoolVar(&credentialsShow, "show", false, "print the key unmasked")
	credentialsRemoveCmd.Flags().BoolVarP(&credentialsYes, "yes", "y", false, "skip the confirmation prompt")

	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsGetCmd)
	credentialsCmd.AddCommand(credentialsRemoveCmd)
	credentialsCmd.AddCommand(credentialsListCmd)
	rootCmd.AddCommand(credentialsCmd)
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	provider := strings.ToLower(args[0])

	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}
	store, err := openStoreForWrite(cfg)
	if err != nil {
		return err
	}

	key := credentialsKey
	if key == "" {
		key, err = ux.PromptForSecret("API key for " + provider)
		if err != nil {
			return err
		}
	}

	if err := store.Set(provider, key); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ stored credential for %s\n", provider)
	return nil
}

func runCredentialsGet(cmd *cobra.Command, args []string) error {
	provider := strings.ToLower(args[0])

	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}
	store, err := openStoreForWrite(cfg)
	if err != nil {
		return err
	}

	key, err := store.Get(provider)
	if err != nil {
		return err
	}
	if credentialsShow {
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), maskKey(key))
	return nil
}

func runCredentialsRemove(cmd *cobra.Command, args []string) error {
	provider := strings.ToLower(args[0])

	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}
	store, err := openStoreForWrite(cfg)
	if err != nil {
		return err
	}

	if !credentialsYes && !ux.Confirm(fmt.Sprintf("Remove stored credential for %s?", provider), false) {
		fmt.Fprintln(cmd.OutOrStdout(), "aborted")
		return nil
	}

	if err := store.Delete(provider); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ removed credential for %s\n", provider)
	return nil
}

func runCredentialsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}
	store, err := openStoreForWrite(cfg)
	if err != nil {
		return err
	}

	entries := store.Entries()
	if outputFormat != "text" {
		formatter, err := newFormatter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return formatter.Format(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no stored credentials")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s updated %s\n", e.Provider, e.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// maskKey hides the middle of a key, keeping just enough to recognize it.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "…" + key[len(key)-4:]
}
