package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	redisrepo "account-service/internal/repository/redis"
)

// ErrInvalidSession is returned for unknown, expired or malformed
// session tokens.
var ErrInvalidSession = errors.New("invalid session")

// Manager issues and validates opaque session tokens. Sessions are a
// pure downstream effect of authentication success; validating one
// never touches the credential store.
type Manager struct {
	store *redisrepo.SessionStore
	ttl   time.Duration
}

func NewManager(store *redisrepo.SessionStore, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl}
}

// Create mints a fresh unguessable token bound to userID.
func (m *Manager) Create(ctx context.Context, userID string) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}
	if err := m.store.Create(ctx, token, userID, m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Validate resolves a token to its user id.
func (m *Manager) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidSession
	}
	userID, err := m.store.GetUserID(ctx, token)
	if err != nil {
		if errors.Is(err, redisrepo.ErrSessionNotFound) {
			return "", ErrInvalidSession
		}
		return "", err
	}
	return userID, nil
}

// Destroy removes the session; destroying an already-absent session
// succeeds.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}

// DestroyAllForUser drops every session held by userID, used after a
// password change.
func (m *Manager) DestroyAllForUser(ctx context.Context, userID string) error {
	return m.store.DeleteAllForUser(ctx, userID)
}

// newSessionToken returns 256 bits of hex-encoded randomness.
func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
