package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"account-service/internal/client"
	"account-service/internal/util"
)

const (
	sessionPrefix      = "session:"
	userSessionsPrefix = "user_sessions:"
)

// ErrSessionNotFound is returned when the session token is unknown or
// already expired.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore maps opaque session tokens to user ids in Redis, with
// a per-user index so all of a user's sessions can be dropped after a
// password change.
type SessionStore struct {
	client *client.RedisClient
}

func NewSessionStore(c *client.RedisClient) *SessionStore {
	return &SessionStore{client: c}
}

// Create binds token to userID for ttl.
func (s *SessionStore) Create(ctx context.Context, token, userID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.Set(ctx, sessionPrefix+token, userID, ttl)
	userKey := userSessionsPrefix + userID
	pipe.SAdd(ctx, userKey, token)
	pipe.Expire(ctx, userKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to create session",
			util.String("user_id", userID),
			util.ErrorField(err))
		return fmt.Errorf("failed to create session: %w", err)
	}

	util.Debug("Session created",
		util.String("user_id", userID),
		util.Duration("ttl", ttl))
	return nil
}

// GetUserID resolves a session token to its user id.
func (s *SessionStore) GetUserID(ctx context.Context, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	userID, err := s.client.Get(ctx, sessionPrefix+token)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("failed to read session: %w", err)
	}
	return userID, nil
}

// Delete removes a single session. Deleting an unknown token is not
// an error; logout is idempotent.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	userID, err := s.client.Get(ctx, sessionPrefix+token)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("failed to read session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, sessionPrefix+token)
	pipe.SRem(ctx, userSessionsPrefix+userID, token)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to delete session",
			util.String("user_id", userID),
			util.ErrorField(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}

	util.Debug("Session deleted", util.String("user_id", userID))
	return nil
}

// DeleteAllForUser removes every session belonging to userID.
func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	userKey := userSessionsPrefix + userID
	tokens, err := s.client.Client.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, token := range tokens {
		pipe.Del(ctx, sessionPrefix+token)
	}
	pipe.Del(ctx, userKey)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to delete user sessions",
			util.String("user_id", userID),
			util.ErrorField(err))
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	util.Info("All sessions invalidated for user",
		util.String("user_id", userID),
		util.Int("count", len(tokens)))
	return nil
}
