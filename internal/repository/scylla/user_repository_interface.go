package scylla

import (
	"context"
	"errors"

	"account-service/internal/models"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrPhoneTaken       = errors.New("phone already registered")
	ErrConcurrentUpdate = errors.New("concurrent update on user row")
)

// UserRepository is the credential store. All mutations of a single
// user's lockout counters are atomic read-modify-writes: SaveLoginFailure
// and SaveLoginSuccess are conditional on the previous counter value
// and fail with ErrConcurrentUpdate when another attempt committed
// first, so callers re-read and re-apply rather than losing an update.
type UserRepository interface {
	// CreateUser inserts the user with uniqueness-constrained email and
	// phone; ErrEmailTaken / ErrPhoneTaken on conflict.
	CreateUser(ctx context.Context, user *models.User) error

	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)

	// SaveLoginFailure persists the counters after a failure transition
	// (failed_attempts already incremented in the model), conditional on
	// the pre-transition count.
	SaveLoginFailure(ctx context.Context, user *models.User, expectedPrev int) error

	// SaveLoginSuccess persists the cleared counters and login stamp,
	// conditional on the pre-transition count.
	SaveLoginSuccess(ctx context.Context, user *models.User, expectedPrev int) error

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	HealthCheck(ctx context.Context) error
}
