package permission

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const (
	serviceName = "finance-dashboard"
	consentKey  = "notification-consent"
)

// KeyringConsent stores the consent answer in the system keyring so it
// survives restarts and is shared by every instance of the application.
type KeyringConsent struct {
	ring keyring.Keyring
}

// NewKeyringConsent wraps an already opened keyring.
func NewKeyringConsent(ring keyring.Keyring) *KeyringConsent {
	return &KeyringConsent{ring: ring}
}

// OpenKeyringConsent opens the system keyring, falling back to an
// encrypted file under fileDir when no native backend is available.
func OpenKeyringConsent(fileDir string) (*KeyringConsent, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyringConsent(ring), nil
}

// Load returns the cached answer. ok is false when nothing was cached.
func (k *KeyringConsent) Load() (State, bool, error) {
	item, err := k.ring.Get(consentKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return StateDefault, false, nil
	}
	if err != nil {
		return StateDefault, false, fmt.Errorf("getting credential %q: %w", consentKey, err)
	}
	return State(item.Data), true, nil
}

// Save caches the answer.
func (k *KeyringConsent) Save(s State) error {
	err := k.ring.Set(keyring.Item{
		Key:         consentKey,
		Data:        []byte(s),
		Label:       "Finance Dashboard notification consent",
		Description: "Whether desktop alerts may be shown",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", consentKey, err)
	}
	return nil
}

// Reset forgets the cached answer so the next request prompts again.
func (k *KeyringConsent) Reset() error {
	err := k.ring.Remove(consentKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", consentKey, err)
	}
	return nil
}

// MemoryConsent is a process-local ConsentCache.
type MemoryConsent struct {
	mu    sync.Mutex
	state State
	set   bool
}

func (m *MemoryConsent) Load() (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return StateDefault, false, nil
	}
	return m.state, true, nil
}

func (m *MemoryConsent) Save(s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state, m.set = s, true
	return nil
}
