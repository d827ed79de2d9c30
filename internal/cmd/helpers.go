package cmd

import (
	"io"
	"os"

	"github.com/plansmith/plansmith/internal/config"
	"github.com/plansmith/plansmith/internal/credential"
	"github.com/plansmith/plansmith/internal/errors"
	"github.com/plansmith/plansmith/internal/log"
	"github.com/plansmith/plansmith/internal/orchestrator"
	"github.com/plansmith/plansmith/internal/probe"
	"github.com/plansmith/plansmith/internal/ux"
)

// resolveConfigPath returns the --config path when set and the default
// location otherwise. The file may not exist yet.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

// loadConfig loads the effective configuration. An explicit --config path
// must exist; the default path falls back to host discovery when missing.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	path, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	return config.LoadOrDiscover(path)
}

// newLogger builds the structured logger from the logging section, with
// the --log-level flag taking precedence. Logs go to stderr so stdout
// stays clean for formatted command output.
func newLogger(cfg *config.Config) *log.Logger {
	lc := cfg.LogConfig()
	if logLevel != "" {
		lc.Level = log.ParseLevel(logLevel)
	}
	return log.New(lc)
}

// newFormatter builds the output formatter selected by --output.
func newFormatter(w io.Writer) (ux.Formatter, error) {
	return ux.NewFormatter(outputFormat, &ux.FormatterOptions{Writer: w, NoColor: noColor})
}

// storePath returns the configured credential store location, defaulting
// to ~/.plansmith/credentials.json.
func storePath(cfg *config.Config) (string, error) {
	if cfg != nil && cfg.Credentials.Path != "" {
		return cfg.Credentials.Path, nil
	}
	return credential.DefaultPath()
}

// openStore opens the credential store for read-side resolution. It
// returns nil when there is no store file or no passphrase in the
// environment; the resolver then falls back to request and environment
// keys.
func openStore(cfg *config.Config) credential.Lookup {
	path, err := storePath(cfg)
	if err != nil {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	passphrase := os.Getenv(credential.PassphraseEnvVar)
	if passphrase == "" {
		return nil
	}
	store, err := credential.NewStore(path, passphrase)
	if err != nil {
		return nil
	}
	return store
}

// openStoreForWrite opens the credential store for mutation. Unlike the
// read side, a missing passphrase is an error here: the caller asked to
// change the store, so silently doing nothing would be worse.
func openStoreForWrite(cfg *config.Config) (*credential.Store, error) {
	path, err := storePath(cfg)
	if err != nil {
		return nil, err
	}
	passphrase := os.Getenv(credential.PassphraseEnvVar)
	if passphrase == "" {
		return nil, errors.New(errors.ErrCodeCredentialStore, "credential store passphrase is not set").
			WithSuggestion("Export " + credential.PassphraseEnvVar + " to unlock the store")
	}
	return credential.NewStore(path, passphrase)
}

// newService assembles the orchestration service for this configuration.
// The prober is returned alongside so commands can reuse it for reports.
func newService(cfg *config.Config, logger *log.Logger) (*orchestrator.Service, *probe.Prober) {
	registry := cfg.Registry()
	prober := probe.NewProber(cfg.Probe.Timeout())
	resolver := credential.NewResolver(openStore(cfg))
	return orchestrator.New(registry, prober, resolver, logger, cfg.OrchestratorOptions()), prober
}
