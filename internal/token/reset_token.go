package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PurposeResetPassword is the only purpose claim accepted by the
// verifier. Tokens minted for anything else never authorize a
// password change.
const PurposeResetPassword = "reset_password"

// Reason discriminates why verification failed. The user-facing
// message is uniform; the reason exists for logging and tests.
type Reason int

const (
	ReasonMalformed Reason = iota
	ReasonExpired
	ReasonSignatureInvalid
	ReasonUserNotFound
)

func (r Reason) String() string {
	switch r {
	case ReasonMalformed:
		return "malformed"
	case ReasonExpired:
		return "expired"
	case ReasonSignatureInvalid:
		return "signature_invalid"
	case ReasonUserNotFound:
		return "user_not_found"
	default:
		return "unknown"
	}
}

// VerificationError carries the internal discriminant. Its message is
// deliberately uniform regardless of reason.
type VerificationError struct {
	Reason Reason
	cause  error
}

func (e *VerificationError) Error() string {
	return "invalid or expired token"
}

func (e *VerificationError) Unwrap() error {
	return e.cause
}

// NewVerificationError builds a VerificationError for callers outside
// this package (the orchestrator maps a missing user onto
// ReasonUserNotFound after the token itself verified).
func NewVerificationError(reason Reason) *VerificationError {
	return &VerificationError{Reason: reason}
}

type resetClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// ResetTokenManager issues and verifies stateless password-reset
// tokens. Expiry is embedded in the signed payload, so rejecting an
// expired token needs no storage round-trip.
type ResetTokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewResetTokenManager(secret string, ttl time.Duration) (*ResetTokenManager, error) {
	if secret == "" {
		return nil, errors.New("reset token secret is required")
	}
	return &ResetTokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue mints a signed token binding userID to the reset-password
// purpose for the configured TTL.
func (m *ResetTokenManager) Issue(userID string) (string, error) {
	now := m.now().UTC()
	claims := resetClaims{
		Purpose: PurposeResetPassword,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and purpose, returning the encoded
// user id. Failures come back as *VerificationError with the internal
// reason set.
func (m *ResetTokenManager) Verify(tokenString string) (string, error) {
	claims := &resetClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", &VerificationError{Reason: ReasonExpired, cause: err}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", &VerificationError{Reason: ReasonSignatureInvalid, cause: err}
		default:
			return "", &VerificationError{Reason: ReasonMalformed, cause: err}
		}
	}

	if claims.Purpose != PurposeResetPassword || claims.Subject == "" {
		return "", &VerificationError{Reason: ReasonMalformed}
	}

	return claims.Subject, nil
}
