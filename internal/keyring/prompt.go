package keyring

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PromptPIN prompts the user to enter the parent PIN securely (no echo)
func PromptPIN(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)

	// Try to open /dev/tty directly for terminal input
	// Fall back to stdin if tty is not available
	fd := int(os.Stdin.Fd())
	tty, err := os.Open("/dev/tty")
	if err == nil {
		defer tty.Close()
		fd = int(tty.Fd())
	}

	pinBytes, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // Print newline after PIN input

	if err != nil {
		return "", fmt.Errorf("failed to read PIN: %w", err)
	}

	return string(pinBytes), nil
}

// PromptAndConfirmPIN prompts for a new PIN twice and confirms they match
func PromptAndConfirmPIN() (string, error) {
	pin1, err := PromptPIN("Enter new parent PIN")
	if err != nil {
		return "", err
	}
	if err := ValidatePIN(pin1); err != nil {
		return "", err
	}

	pin2, err := PromptPIN("Confirm parent PIN")
	if err != nil {
		return "", err
	}

	if pin1 != pin2 {
		return "", fmt.Errorf("PINs do not match")
	}

	return pin1, nil
}
