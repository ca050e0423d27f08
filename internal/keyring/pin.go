package keyring

import (
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,8}$`)

// ValidatePIN checks that a PIN is 4 to 8 digits.
func ValidatePIN(pin string) error {
	if !pinPattern.MatchString(pin) {
		return fmt.Errorf("PIN must be 4 to 8 digits")
	}
	return nil
}

// HashPIN produces a bcrypt hash of the PIN suitable for keyring storage.
func HashPIN(pin string) (string, error) {
	if err := ValidatePIN(pin); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash PIN: %w", err)
	}
	return string(hash), nil
}

// VerifyPIN checks a PIN attempt against a stored hash.
func VerifyPIN(hash, pin string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
