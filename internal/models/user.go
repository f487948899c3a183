package models

import "time"

// User is the durable credential record. Lockout state lives in
// failed_attempts / last_failed_at and is mutated only through the
// repository's conditional updates.
type User struct {
	UserBucket     int        `db:"user_bucket" json:"-"`
	UserID         string     `db:"user_id" json:"user_id"`
	Username       string     `db:"username" json:"username"`
	Email          string     `db:"email" json:"email"`
	Phone          string     `db:"phone" json:"phone"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	FailedAttempts int        `db:"failed_attempts" json:"-"`
	LastFailedAt   *time.Time `db:"last_failed_at" json:"-"`
	LastLoginAt    *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"-"`
}
