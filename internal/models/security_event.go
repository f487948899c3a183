package models

import "time"

// Security event types emitted by the auth flows.
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailure       = "login_failure"
	EventLoginLocked        = "login_locked"
	EventUserRegistered     = "user_registered"
	EventRecoveryStarted    = "recovery_started"
	EventOTPVerified        = "otp_verified"
	EventOTPRejected        = "otp_rejected"
	EventPasswordReset      = "password_reset"
	EventSessionInvalidated = "session_invalidated"
)

// SecurityEvent is the audit record published to Kafka and persisted
// in ClickHouse. Identifier is the normalized email or phone the
// caller presented, never a password or code.
type SecurityEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	UserID     string    `json:"user_id,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
