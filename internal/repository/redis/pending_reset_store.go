package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"account-service/internal/client"
	"account-service/internal/models"
	"account-service/internal/util"
)

const pendingResetPrefix = "pending_reset:"

// ErrPendingResetNotFound is returned when no pending reset context
// exists for the identifier (never started, already consumed, or aged
// out of the store).
var ErrPendingResetNotFound = errors.New("no pending reset for identifier")

// PendingResetStore keeps the ephemeral OTP context in Redis, one
// entry per identifier. The redis TTL is set to twice the OTP window
// so that an expired-but-recent context is still distinguishable from
// an absent one.
type PendingResetStore struct {
	client *client.RedisClient
}

func NewPendingResetStore(c *client.RedisClient) *PendingResetStore {
	return &PendingResetStore{client: c}
}

// Put creates or overwrites the pending reset for identifier
// (last-write-wins; at most one in-flight OTP per identifier).
func (s *PendingResetStore) Put(ctx context.Context, identifier string, pending *models.PendingReset, window time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending reset: %w", err)
	}

	key := pendingResetPrefix + identifier
	if err := s.client.Set(ctx, key, payload, 2*window); err != nil {
		util.Error("Failed to store pending reset",
			util.String("identifier", identifier),
			util.ErrorField(err))
		return fmt.Errorf("failed to store pending reset: %w", err)
	}

	util.Debug("Pending reset stored",
		util.String("identifier", identifier),
		util.Duration("window", window))
	return nil
}

// Get returns the pending reset without consuming it.
func (s *PendingResetStore) Get(ctx context.Context, identifier string) (*models.PendingReset, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, pendingResetPrefix+identifier)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, ErrPendingResetNotFound
		}
		util.Error("Failed to read pending reset",
			util.String("identifier", identifier),
			util.ErrorField(err))
		return nil, fmt.Errorf("failed to read pending reset: %w", err)
	}

	var pending models.PendingReset
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending reset: %w", err)
	}
	return &pending, nil
}

// Consume atomically removes and returns the pending reset. Exactly
// one of two concurrent callers observes the entry; the loser gets
// ErrPendingResetNotFound.
func (s *PendingResetStore) Consume(ctx context.Context, identifier string) (*models.PendingReset, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := s.client.GetDel(ctx, pendingResetPrefix+identifier)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, ErrPendingResetNotFound
		}
		util.Error("Failed to consume pending reset",
			util.String("identifier", identifier),
			util.ErrorField(err))
		return nil, fmt.Errorf("failed to consume pending reset: %w", err)
	}

	var pending models.PendingReset
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending reset: %w", err)
	}

	util.Debug("Pending reset consumed", util.String("identifier", identifier))
	return &pending, nil
}

// Delete discards the pending reset, if any.
func (s *PendingResetStore) Delete(ctx context.Context, identifier string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Del(ctx, pendingResetPrefix+identifier); err != nil {
		util.Error("Failed to delete pending reset",
			util.String("identifier", identifier),
			util.ErrorField(err))
		return fmt.Errorf("failed to delete pending reset: %w", err)
	}
	return nil
}
