package credential

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewStore(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if store == nil {
		t.Fatal("Store should not be nil")
	}
}

func TestSetAndGet(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Set("anthropic", "sk-ant-test1234"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}

	value, err := store.Get("anthropic")
	if err != nil {
		t.Fatalf("Failed to get credential: %v", err)
	}
	if value != "sk-ant-test1234" {
		t.Errorf("Value mismatch: got %s, want sk-ant-test1234", value)
	}
}

func TestGetUnknownProvider(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if _, err := store.Get("openai"); err == nil {
		t.Error("Expected error for provider with no stored credential")
	}
}

func TestDelete(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Set("openai", "sk-test"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}
	if err := store.Delete("openai"); err != nil {
		t.Fatalf("Failed to delete credential: %v", err)
	}
	if _, err := store.Get("openai"); err == nil {
		t.Error("Expected error after deletion")
	}
	if err := store.Delete("openai"); err == nil {
		t.Error("Expected error deleting a missing credential")
	}
}

func TestEntries(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	store.Set("openai", "v1")
	store.Set("anthropic", "v2")

	entries := store.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Provider != "anthropic" || entries[1].Provider != "openai" {
		t.Errorf("Entries not sorted by provider: %s, %s", entries[0].Provider, entries[1].Provider)
	}
	for _, e := range entries {
		if e.Value != "" {
			t.Errorf("Entry for %s leaked the key value", e.Provider)
		}
	}
}

func TestPersistenceAcrossOpens(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials.json")

	store1, err := NewStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to create first store: %v", err)
	}
	if err := store1.Set("anthropic", "persistent-key"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}

	store2, err := NewStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}

	value, err := store2.Get("anthropic")
	if err != nil {
		t.Fatalf("Failed to get credential from reopened store: %v", err)
	}
	if value != "persistent-key" {
		t.Errorf("Value mismatch: got %s, want persistent-key", value)
	}
}

func TestWrongPassphrase(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials.json")

	store1, err := NewStore(storePath, "passphrase1")
	if err != nil {
		t.Fatalf("Failed to create first store: %v", err)
	}
	if err := store1.Set("anthropic", "secret"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}

	store2, err := NewStore(storePath, "passphrase2")
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	if _, err := store2.Get("anthropic"); err == nil {
		t.Error("Expected decryption failure with wrong passphrase")
	}
}

func TestUpdateKeepsCreatedAt(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Set("anthropic", "first"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}
	createdAt := store.Entries()[0].CreatedAt

	time.Sleep(10 * time.Millisecond)

	if err := store.Set("anthropic", "second"); err != nil {
		t.Fatalf("Failed to update credential: %v", err)
	}

	entry := store.Entries()[0]
	if !entry.CreatedAt.Equal(createdAt) {
		t.Error("CreatedAt should not change on update")
	}
	if !entry.UpdatedAt.After(createdAt) {
		t.Error("UpdatedAt should advance on update")
	}

	value, err := store.Get("anthropic")
	if err != nil {
		t.Fatalf("Failed to get updated credential: %v", err)
	}
	if value != "second" {
		t.Errorf("Value mismatch: got %s, want second", value)
	}
}

func TestStoreFilePermissions(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Set("anthropic", "secret"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}

	info, err := os.Stat(storePath)
	if err != nil {
		t.Fatalf("Failed to stat store file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Incorrect file permissions: got %o, want 0600", info.Mode().Perm())
	}
}

func TestEncryptionRoundTrip(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	values := []string{
		"simple",
		"with spaces",
		"special!@#$%^&*()chars",
		"unicode: 你好世界",
	}
	for _, want := range values {
		if err := store.Set("p", want); err != nil {
			t.Fatalf("Failed to set %q: %v", want, err)
		}
		got, err := store.Get("p")
		if err != nil {
			t.Fatalf("Failed to get %q: %v", want, err)
		}
		if got != want {
			t.Errorf("Round trip mismatch: got %q, want %q", got, want)
		}
	}
}
