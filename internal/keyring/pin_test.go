package keyring

import "testing"

func TestValidatePIN(t *testing.T) {
	valid := []string{"1234", "0000", "12345678"}
	for _, pin := range valid {
		if err := ValidatePIN(pin); err != nil {
			t.Errorf("Expected %q to be valid: %v", pin, err)
		}
	}

	invalid := []string{"", "123", "123456789", "12a4", "12 4", "abcd"}
	for _, pin := range invalid {
		if err := ValidatePIN(pin); err == nil {
			t.Errorf("Expected %q to be invalid", pin)
		}
	}
}

func TestHashAndVerifyPIN(t *testing.T) {
	hash, err := HashPIN("4711")
	if err != nil {
		t.Fatalf("HashPIN: %v", err)
	}
	if hash == "4711" {
		t.Error("Hash must not equal the PIN")
	}

	if !VerifyPIN(hash, "4711") {
		t.Error("Expected correct PIN to verify")
	}
	if VerifyPIN(hash, "0000") {
		t.Error("Expected wrong PIN to fail")
	}
	if VerifyPIN("", "4711") {
		t.Error("Expected empty hash to fail")
	}
}

func TestHashPIN_RejectsInvalid(t *testing.T) {
	if _, err := HashPIN("abc"); err == nil {
		t.Error("Expected invalid PIN to be rejected")
	}
}
