package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent RandBytes(%d) are equal, looks non-random", n)
	}
}

func TestHashPassword_SaltedEncoding(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("Passw0rd!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := HashPassword("Passw0rd!")
	if err != nil {
		t.Fatalf("HashPassword(2): %v", err)
	}
	if !strings.HasPrefix(h1, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Fatalf("unexpected encoding: %s", h1)
	}
	if h1 == h2 {
		t.Fatalf("hashes of the same password must differ (fresh salt)")
	}
	if strings.Contains(h1, "Passw0rd!") {
		t.Fatalf("hash leaks plaintext")
	}

	if _, err := HashPassword(""); err != ErrEmptyPassword {
		t.Fatalf("want ErrEmptyPassword, got %v", err)
	}
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	h, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if !VerifyPassword("correct horse battery staple", h) {
		t.Fatalf("VerifyPassword: expected true for correct password")
	}
	if VerifyPassword("wrong", h) {
		t.Fatalf("VerifyPassword: expected false for wrong password")
	}
	if VerifyPassword("", h) {
		t.Fatalf("VerifyPassword: expected false for empty password")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	t.Parallel()

	for _, enc := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=0$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$",
	} {
		if VerifyPassword("x", enc) {
			t.Fatalf("malformed hash %q must not verify", enc)
		}
	}
}
