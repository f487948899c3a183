package hashing

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
)

func testParams() Argon2Params {
	// Low-cost parameters keep the test suite fast; the digest format
	// is identical to production.
	return Argon2Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := NewHasher(testParams())

	plaintexts := []string{
		"",
		"a",
		"Abc123",
		"correct horse battery staple",
		"пароль123",
		"密码password1",
		"emoji🔒pass9",
		strings.Repeat("x", 1024) + "1",
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		b := make([]byte, 1+rng.Intn(40))
		for j := range b {
			b[j] = byte(33 + rng.Intn(94))
		}
		plaintexts = append(plaintexts, string(b))
	}

	for _, pw := range plaintexts {
		digest, err := h.Hash(pw)
		if err != nil {
			t.Fatalf("Hash(%q) failed: %v", pw, err)
		}
		if !strings.HasPrefix(digest, "$argon2id$") {
			t.Fatalf("unexpected digest format: %s", digest)
		}
		if !h.Verify(pw, digest) {
			t.Errorf("Verify(%q) = false for its own digest", pw)
		}
		if h.Verify(pw+"x", digest) {
			t.Errorf("Verify accepted wrong plaintext for %q", pw)
		}
	}
}

func TestVerifyDifferentPlaintextFails(t *testing.T) {
	h := NewHasher(testParams())

	digest, err := h.Hash("Secret99")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	for _, wrong := range []string{"", "secret99", "Secret9", "Secret99 ", "Secret990"} {
		if h.Verify(wrong, digest) {
			t.Errorf("Verify(%q) = true, want false", wrong)
		}
	}
}

func TestHashGeneratesUniqueSalts(t *testing.T) {
	h := NewHasher(testParams())

	d1, err := h.Hash("same-password1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	d2, err := h.Hash("same-password1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if d1 == d2 {
		t.Error("two digests of the same password are identical; salt not randomized")
	}
}

func TestVerifyMalformedDigest(t *testing.T) {
	h := NewHasher(testParams())

	cases := []string{
		"",
		"not-a-digest",
		"$argon2id$",
		"$argon2id$v=19$m=8192,t=1,p=1$salt",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$!!!",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=19$m=0,t=0,p=0$c2FsdHNhbHQ$aGFzaGhhc2g",
		fmt.Sprintf("$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$%s$extra", "aGFzaGhhc2g"),
	}

	for _, digest := range cases {
		if h.Verify("anything", digest) {
			t.Errorf("Verify accepted malformed digest %q", digest)
		}
	}
}
