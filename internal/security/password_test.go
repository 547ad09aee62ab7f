package security

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("pw123456")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "pw123456" {
		t.Fatal("hash should not equal the plaintext")
	}
	if !VerifyPassword(hash, "pw123456") {
		t.Fatal("correct password should verify against its hash")
	}
	if VerifyPassword(hash, "wrong-password") {
		t.Fatal("wrong password should not verify")
	}
	// Swapped arguments must fail, never silently pass: the plaintext
	// is not a parseable bcrypt hash.
	if VerifyPassword("pw123456", hash) {
		t.Fatal("plaintext in the hash position should never verify")
	}
}

func TestVerifyPasswordRejectsGarbageHash(t *testing.T) {
	if VerifyPassword("not-a-bcrypt-hash", "anything") {
		t.Fatal("garbage hash should not verify")
	}
}
