package keyring

import (
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const (
	serviceName = "squeakbox"
	pinKey      = "parent-pin"
)

var (
	ring     keyring.Keyring
	ringOnce sync.Once
	ringErr  error
)

// initKeyring opens the OS keyring once and caches it. The PIN hash must
// never land in a world-readable file, so there is deliberately no
// FileBackend fallback.
func initKeyring() (keyring.Keyring, error) {
	ringOnce.Do(func() {
		ring, ringErr = keyring.Open(keyring.Config{
			ServiceName: serviceName,
			// Secret Service first: squeakbox targets Linux desktops, the
			// same place its session-bus guardian integration works.
			AllowedBackends: []keyring.BackendType{
				keyring.SecretServiceBackend,
				keyring.KeychainBackend,
				keyring.WinCredBackend,
				keyring.PassBackend,
			},
		})
	})
	return ring, ringErr
}

// SetPINHash stores the parent PIN hash in the system keyring
func SetPINHash(hash string) error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	return kr.Set(keyring.Item{
		Key:  pinKey,
		Data: []byte(hash),
	})
}

// GetPINHash retrieves the stored parent PIN hash
// Returns empty string if no PIN is set
func GetPINHash() (string, error) {
	kr, err := initKeyring()
	if err != nil {
		return "", fmt.Errorf("failed to open keyring: %w", err)
	}

	item, err := kr.Get(pinKey)
	if err == keyring.ErrKeyNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to retrieve PIN: %w", err)
	}
	return string(item.Data), nil
}

// DeletePINHash removes the stored parent PIN
func DeletePINHash() error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	err = kr.Remove(pinKey)
	if err == keyring.ErrKeyNotFound {
		return fmt.Errorf("no PIN is set")
	}
	return err
}

// HasPIN checks if a parent PIN is configured
func HasPIN() bool {
	kr, err := initKeyring()
	if err != nil {
		return false
	}

	_, err = kr.Get(pinKey)
	return err == nil
}
