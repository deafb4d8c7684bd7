package util

import "testing"

func TestHashPassword_VerifyRoundTrip(t *testing.T) {
	hashed, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hashed == "s3cret-pass" {
		t.Fatal("expected password to be hashed")
	}
	if !VerifyPassword(hashed, "s3cret-pass") {
		t.Error("expected password to verify")
	}
	if VerifyPassword(hashed, "wrong") {
		t.Error("expected wrong password to fail")
	}
}

func TestHashPassword_Salted(t *testing.T) {
	h1, _ := HashPassword("password")
	h2, _ := HashPassword("password")
	if h1 == h2 {
		t.Fatalf("expected different hashes for the same password, both %s", h1)
	}
}

func TestVerifyPassword_GarbageHash(t *testing.T) {
	if VerifyPassword("not-a-bcrypt-hash", "password") {
		t.Error("expected garbage hash to fail verification")
	}
}
