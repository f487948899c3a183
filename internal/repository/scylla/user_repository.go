package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"account-service/internal/models"
	"account-service/internal/util"
)

const (
	insertEmailMapCQL = `INSERT INTO email_to_user (email, user_id) VALUES (?, ?) IF NOT EXISTS`
	insertPhoneMapCQL = `INSERT INTO phone_to_user (phone, user_id) VALUES (?, ?) IF NOT EXISTS`
	deleteEmailMapCQL = `DELETE FROM email_to_user WHERE email = ?`
	insertUserCQL     = `INSERT INTO users_by_id (user_id, user_bucket, username, email, phone,
		password_hash, failed_attempts, last_failed_at, last_login_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectUserCQL = `SELECT user_id, user_bucket, username, email, phone, password_hash,
		failed_attempts, last_failed_at, last_login_at, created_at, updated_at
		FROM users_by_id WHERE user_id = ?`
	selectUserByEmailCQL = `SELECT user_id FROM email_to_user WHERE email = ?`
	selectUserByPhoneCQL = `SELECT user_id FROM phone_to_user WHERE phone = ?`
	casLoginStateCQL     = `UPDATE users_by_id SET failed_attempts = ?, last_failed_at = ?,
		last_login_at = ?, updated_at = ? WHERE user_id = ? IF failed_attempts = ?`
	updatePasswordCQL = `UPDATE users_by_id SET password_hash = ?, updated_at = ?
		WHERE user_id = ? IF EXISTS`
)

type userRepository struct {
	client *ScyllaClient
}

func NewUserRepository(client *ScyllaClient) UserRepository {
	return &userRepository{client: client}
}

func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = &now

	// Uniqueness is enforced through LWT inserts on the identifier
	// mapping tables; the second insert is compensated when it loses.
	var existingOwner string
	applied, err := r.client.Session.Query(insertEmailMapCQL, user.Email, user.UserID).
		WithContext(ctx).ScanCAS(&existingOwner, &existingOwner)
	if err != nil {
		return fmt.Errorf("failed to reserve email: %w", err)
	}
	if !applied {
		return ErrEmailTaken
	}

	applied, err = r.client.Session.Query(insertPhoneMapCQL, user.Phone, user.UserID).
		WithContext(ctx).ScanCAS(&existingOwner, &existingOwner)
	if err == nil && !applied {
		err = ErrPhoneTaken
	}
	if err != nil {
		if derr := r.client.Session.Query(deleteEmailMapCQL, user.Email).
			WithContext(ctx).Exec(); derr != nil {
			util.Error("Failed to release email mapping after phone conflict",
				util.String("user_id", user.UserID),
				util.ErrorField(derr))
		}
		if errors.Is(err, ErrPhoneTaken) {
			return ErrPhoneTaken
		}
		return fmt.Errorf("failed to reserve phone: %w", err)
	}

	if err := r.client.Session.Query(insertUserCQL,
		user.UserID, user.UserBucket, user.Username, user.Email, user.Phone,
		user.PasswordHash, user.FailedAttempts, user.LastFailedAt, user.LastLoginAt,
		user.CreatedAt, user.UpdatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		util.String("user_id", user.UserID),
		util.Int("user_bucket", user.UserBucket))
	return nil
}

func (r *userRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	user := &models.User{}
	var lastFailedAt, lastLoginAt, updatedAt time.Time

	err := r.client.Session.Query(selectUserCQL, userID).WithContext(ctx).Scan(
		&user.UserID, &user.UserBucket, &user.Username, &user.Email, &user.Phone,
		&user.PasswordHash, &user.FailedAttempts, &lastFailedAt, &lastLoginAt,
		&user.CreatedAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	user.LastFailedAt = timePtr(lastFailedAt)
	user.LastLoginAt = timePtr(lastLoginAt)
	user.UpdatedAt = timePtr(updatedAt)
	return user, nil
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getByMapping(ctx, selectUserByEmailCQL, email)
}

func (r *userRepository) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.getByMapping(ctx, selectUserByPhoneCQL, phone)
}

func (r *userRepository) getByMapping(ctx context.Context, cql, key string) (*models.User, error) {
	var userID string
	if err := r.client.Session.Query(cql, key).WithContext(ctx).Scan(&userID); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve identifier: %w", err)
	}
	return r.GetUserByID(ctx, userID)
}

func (r *userRepository) SaveLoginFailure(ctx context.Context, user *models.User, expectedPrev int) error {
	return r.casLoginState(ctx, user, expectedPrev)
}

func (r *userRepository) SaveLoginSuccess(ctx context.Context, user *models.User, expectedPrev int) error {
	return r.casLoginState(ctx, user, expectedPrev)
}

// casLoginState writes the lockout counters conditionally on the
// pre-transition count. Two concurrent attempts serialize through the
// LWT: the loser observes ErrConcurrentUpdate and re-applies its
// transition on fresh state, so no failure is ever lost.
func (r *userRepository) casLoginState(ctx context.Context, user *models.User, expectedPrev int) error {
	now := time.Now().UTC()

	var current int
	applied, err := r.client.Session.Query(casLoginStateCQL,
		user.FailedAttempts, user.LastFailedAt, user.LastLoginAt, now,
		user.UserID, expectedPrev,
	).WithContext(ctx).ScanCAS(&current)
	if err != nil {
		return fmt.Errorf("failed to update login state: %w", err)
	}
	if !applied {
		util.Debug("Login state CAS lost",
			util.String("user_id", user.UserID),
			util.Int("expected", expectedPrev),
			util.Int("current", current))
		return ErrConcurrentUpdate
	}

	user.UpdatedAt = &now
	return nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	now := time.Now().UTC()

	applied, err := r.client.Session.Query(updatePasswordCQL, passwordHash, now, userID).
		WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if !applied {
		return ErrNotFound
	}

	util.Info("Password updated", util.String("user_id", userID))
	return nil
}

func (r *userRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
