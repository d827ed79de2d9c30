package cmd

import (
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/plansmith/plansmith/internal/config"
	"github.com/plansmith/plansmith/internal/credential"
	"github.com/plansmith/plansmith/internal/errors"
)

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "********"},
		{"short", "********"},
		{"12345678", "********"},
		{"sk-ant-api-0123456789", "sk-a…6789"},
	}

	for _, tt := range tests {
		if got := maskKey(tt.key); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestOpenStoreForWriteNoPassphrase(t *testing.T) {
	t.Setenv(credential.PassphraseEnvVar, "")

	cfg := &config.Config{Credentials: config.Credentials{Path: filepath.Join(t.TempDir(), "creds.json")}}
	_, err := openStoreForWrite(cfg)
	if err == nil {
		t.Fatal("openStoreForWrite() expected error without passphrase")
	}
	var perr *errors.PlansmithError
	if !stderrors.As(err, &perr) || perr.Code != errors.ErrCodeCredentialStore {
		t.Errorf("error code = %v, want %v", err, errors.ErrCodeCredentialStore)
	}
}

func TestOpenStoreRoundTrip(t *testing.T) {
	t.Setenv(credential.PassphraseEnvVar, "correct horse battery staple")
	cfg := &config.Config{Credentials: config.Credentials{Path: filepath.Join(t.TempDir(), "creds.json")}}

	store, err := openStoreForWrite(cfg)
	if err != nil {
		t.Fatalf("openStoreForWrite() error = %v", err)
	}
	if err := store.Set("anthropic", "sk-ant-test"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	lookup := openStore(cfg)
	if lookup == nil {
		t.Fatal("openStore() = nil, want opened store")
	}
	got, err := lookup.Get("anthropic")
	if err != nil || got != "sk-ant-test" {
		t.Errorf("Get() = %q, %v", got, err)
	}
}

func TestOpenStoreNilWithoutStoreFile(t *testing.T) {
	t.Setenv(credential.PassphraseEnvVar, "correct horse battery staple")

	cfg := &config.Config{Credentials: config.Credentials{Path: filepath.Join(t.TempDir(), "missing.json")}}
	if lookup := openStore(cfg); lookup != nil {
		t.Error("openStore() should be nil when no store file exists")
	}
}

func TestOpenStoreNilWithoutPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	t.Setenv(credential.PassphraseEnvVar, "correct horse battery staple")

	cfg := &config.Config{Credentials: config.Credentials{Path: path}}
	store, err := openStoreForWrite(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set("openai", "sk-test"); err != nil {
		t.Fatal(err)
	}

	t.Setenv(credential.PassphraseEnvVar, "")
	if lookup := openStore(cfg); lookup != nil {
		t.Error("openStore() should be nil when the passphrase is unset")
	}
}
