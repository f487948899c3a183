package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestManager(t *testing.T, ttl time.Duration) *ResetTokenManager {
	t.Helper()
	m, err := NewResetTokenManager("test-secret-please-rotate", ttl)
	if err != nil {
		t.Fatalf("NewResetTokenManager failed: %v", err)
	}
	return m
}

func TestIssueAndVerify(t *testing.T) {
	m := newTestManager(t, 30*time.Minute)

	tok, err := m.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	userID, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("Verify returned user %q, want %q", userID, "user-123")
	}
}

func TestVerifyExpiryBoundary(t *testing.T) {
	m := newTestManager(t, 30*time.Minute)

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issuedAt }

	tok, err := m.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Still valid one second before expiry.
	m.now = func() time.Time { return issuedAt.Add(29*time.Minute + 59*time.Second) }
	if _, err := m.Verify(tok); err != nil {
		t.Fatalf("Verify at issued+29:59 failed: %v", err)
	}

	// Expired one second after the window.
	m.now = func() time.Time { return issuedAt.Add(30*time.Minute + 1*time.Second) }
	_, err = m.Verify(tok)
	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("Verify at issued+30:01 returned %v, want VerificationError", err)
	}
	if verr.Reason != ReasonExpired {
		t.Errorf("reason = %s, want expired", verr.Reason)
	}
}

func TestVerifyDiscriminatesFailures(t *testing.T) {
	m := newTestManager(t, 30*time.Minute)

	forged, err := NewResetTokenManager("some-other-secret", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewResetTokenManager failed: %v", err)
	}
	forgedToken, err := forged.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  Reason
	}{
		{"empty", "", ReasonMalformed},
		{"garbage", "not.a.token", ReasonMalformed},
		{"wrong signing key", forgedToken, ReasonSignatureInvalid},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Verify(tc.token)
			var verr *VerificationError
			if !errors.As(err, &verr) {
				t.Fatalf("Verify(%q) returned %v, want VerificationError", tc.token, err)
			}
			if verr.Reason != tc.want {
				t.Errorf("reason = %s, want %s", verr.Reason, tc.want)
			}
			if verr.Error() != "invalid or expired token" {
				t.Errorf("message %q leaks the failure reason", verr.Error())
			}
		})
	}
}

func TestVerifyRejectsWrongPurpose(t *testing.T) {
	m := newTestManager(t, 30*time.Minute)

	// A token signed with the right key but the wrong purpose claim
	// must not authorize a password reset.
	claims := resetClaims{
		Purpose: "email_verification",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	_, err = m.Verify(signed)
	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("Verify returned %v, want VerificationError", err)
	}
	if verr.Reason != ReasonMalformed {
		t.Errorf("reason = %s, want malformed", verr.Reason)
	}
}

func TestManagerRequiresSecret(t *testing.T) {
	if _, err := NewResetTokenManager("", time.Minute); err == nil {
		t.Fatal("NewResetTokenManager accepted an empty secret")
	}
}
