// Package credential stores provider API keys encrypted at rest and
// resolves which key a generation request should use.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// PassphraseEnvVar names the environment variable holding the store
// passphrase.
const PassphraseEnvVar = "PLANSMITH_STORE_PASSPHRASE"

const (
	pbkdf2Iterations = 100000
	keyLength        = 32
	saltLength       = 16
)

// Credential is one stored provider key. Value holds the AES-GCM
// ciphertext, base64 encoded.
type Credential struct {
	Provider  string    `json:"provider"`
	Value     string    `json:"value,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// storeFile is the on-disk layout. The salt is generated once per store
// and persisted so the same passphrase derives the same master key on
// every open.
type storeFile struct {
	Salt        string                 `json:"salt"`
	Credentials map[string]*Credential `json:"credentials"`
}

// Store manages provider keys in an encrypted file.
type Store struct {
	mu          sync.RWMutex
	storePath   string
	salt        []byte
	masterKey   []byte
	credentials map[string]*Credential
}

// NewStore opens the credential store at storePath, creating it on first
// use. The master key is derived from the passphrase with PBKDF2 over the
// per-store salt.
func NewStore(storePath, passphrase string) (*Store, error) {
	s := &Store{
		storePath:   storePath,
		credentials: make(map[string]*Credential),
	}

	if _, err := os.Stat(storePath); err == nil {
		if err := s.load(passphrase); err != nil {
			return nil, fmt.Errorf("failed to load credential store: %w", err)
		}
		return s, nil
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	s.salt = salt
	s.masterKey = deriveKey(passphrase, salt)

	return s, nil
}

// DefaultPath returns the store location under the user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".plansmith", "credentials.json"), nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLength, sha256.New)
}

// Set encrypts and stores the key for a provider, then persists the store.
func (s *Store) Set(provider, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encrypted, err := s.encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	now := time.Now()
	createdAt := now
	if existing, ok := s.credentials[provider]; ok {
		createdAt = existing.CreatedAt
	}

	s.credentials[provider] = &Credential{
		Provider:  provider,
		Value:     encrypted,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	return s.save()
}

// Get returns the decrypted key for a provider.
func (s *Store) Get(provider string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[provider]
	if !ok {
		return "", fmt.Errorf("no credential stored for provider %s", provider)
	}

	value, err := s.decrypt(cred.Value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential for %s: %w", provider, err)
	}
	return value, nil
}

// Delete removes the key for a provider and persists the store.
func (s *Store) Delete(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[provider]; !ok {
		return fmt.Errorf("no credential stored for provider %s", provider)
	}
	delete(s.credentials, provider)

	return s.save()
}

// Entries returns metadata for all stored credentials, without the key
// values, sorted by provider.
func (s *Store) Entries() []Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Credential, 0, len(s.credentials))
	for _, cred := range s.credentials {
		out = append(out, Credential{
			Provider:  cred.Provider,
			CreatedAt: cred.CreatedAt,
			UpdatedAt: cred.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// encrypt seals a value with AES-GCM, prepending the nonce.
func (s *Store) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *Store) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (s *Store) save() error {
	dir := filepath.Dir(s.storePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	file := storeFile{
		Salt:        base64.StdEncoding.EncodeToString(s.salt),
		Credentials: s.credentials,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.storePath, data, 0600)
}

func (s *Store) load(passphrase string) error {
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		return err
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return fmt.Errorf("invalid store salt: %w", err)
	}

	s.salt = salt
	s.masterKey = deriveKey(passphrase, salt)
	s.credentials = file.Credentials
	if s.credentials == nil {
		s.credentials = make(map[string]*Credential)
	}
	return nil
}
