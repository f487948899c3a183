package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"account-service/internal/audit"
	"account-service/internal/bucketing"
	"account-service/internal/hashing"
	"account-service/internal/lockout"
	"account-service/internal/models"
	redisrepo "account-service/internal/repository/redis"
	"account-service/internal/repository/scylla"
	"account-service/internal/session"
	"account-service/internal/token"
	"account-service/internal/util"
)

// Recovery channels reported back to the caller after forgot-password.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// casRetries bounds the re-read/re-apply loop when a conditional
// counter update loses to a concurrent attempt.
const casRetries = 3

// Dispatcher hands notification work to the delivery queue.
type Dispatcher interface {
	EnqueuePasswordResetEmail(to, token string) error
	EnqueueOTP(phone, code string) error
}

// AuthService orchestrates login, registration and the two recovery
// paths. It owns no state of its own: all durable state lives in the
// credential store, all ephemeral state in the pending-reset and
// session stores.
type AuthService struct {
	users    scylla.UserRepository
	hasher   *hashing.Hasher
	guard    *lockout.Guard
	tokens   *token.ResetTokenManager
	pending  *redisrepo.PendingResetStore
	sessions *session.Manager
	notifier Dispatcher
	recorder *audit.Recorder
	buckets  *bucketing.Manager

	otpWindow time.Duration
	now       func() time.Time
}

func NewAuthService(
	users scylla.UserRepository,
	hasher *hashing.Hasher,
	guard *lockout.Guard,
	tokens *token.ResetTokenManager,
	pending *redisrepo.PendingResetStore,
	sessions *session.Manager,
	notifier Dispatcher,
	recorder *audit.Recorder,
	buckets *bucketing.Manager,
	otpWindow time.Duration,
) *AuthService {
	return &AuthService{
		users:     users,
		hasher:    hasher,
		guard:     guard,
		tokens:    tokens,
		pending:   pending,
		sessions:  sessions,
		notifier:  notifier,
		recorder:  recorder,
		buckets:   buckets,
		otpWindow: otpWindow,
		now:       time.Now,
	}
}

// Login authenticates by email and password and returns a session
// token. Unknown user and wrong password collapse into
// ErrInvalidCredentials; a locked account is rejected before the
// password is ever checked.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, remoteAddr string) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	email := util.NormalizeEmail(req.Email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			// Unknown account: uniform rejection, no counter to touch.
			s.record(models.EventLoginFailure, "", email, remoteAddr, "unknown account")
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("login lookup failed: %w", err)
	}

	if s.guard.IsLocked(user) {
		s.record(models.EventLoginLocked, user.UserID, email, remoteAddr, "")
		return "", ErrAccountLocked
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		if err := s.persistFailure(ctx, user); err != nil {
			return "", err
		}
		s.record(models.EventLoginFailure, user.UserID, email, remoteAddr, "wrong password")
		return "", ErrInvalidCredentials
	}

	if err := s.persistSuccess(ctx, user); err != nil {
		return "", err
	}

	sessionToken, err := s.sessions.Create(ctx, user.UserID)
	if err != nil {
		return "", fmt.Errorf("session create failed: %w", err)
	}

	s.record(models.EventLoginSuccess, user.UserID, email, remoteAddr, "")
	return sessionToken, nil
}

// persistFailure applies the failure transition under the store's
// conditional update, re-reading and re-applying when a concurrent
// attempt committed first. The lock check is not repeated here: the
// attempt already passed the gate and its failure must count.
func (s *AuthService) persistFailure(ctx context.Context, user *models.User) error {
	for attempt := 0; ; attempt++ {
		expectedPrev := user.FailedAttempts
		s.guard.RecordFailure(user)

		err := s.users.SaveLoginFailure(ctx, user, expectedPrev)
		if err == nil {
			return nil
		}
		if !errors.Is(err, scylla.ErrConcurrentUpdate) || attempt == casRetries {
			return fmt.Errorf("failed to record login failure: %w", err)
		}

		fresh, rerr := s.users.GetUserByID(ctx, user.UserID)
		if rerr != nil {
			return fmt.Errorf("failed to record login failure: %w", rerr)
		}
		*user = *fresh
	}
}

func (s *AuthService) persistSuccess(ctx context.Context, user *models.User) error {
	for attempt := 0; ; attempt++ {
		expectedPrev := user.FailedAttempts
		s.guard.RecordSuccess(user)

		err := s.users.SaveLoginSuccess(ctx, user, expectedPrev)
		if err == nil {
			return nil
		}
		if !errors.Is(err, scylla.ErrConcurrentUpdate) || attempt == casRetries {
			return fmt.Errorf("failed to record login success: %w", err)
		}

		fresh, rerr := s.users.GetUserByID(ctx, user.UserID)
		if rerr != nil {
			return fmt.Errorf("failed to record login success: %w", rerr)
		}
		*user = *fresh
	}
}

// Register creates a user after eager field validation. Uniqueness
// violations surface as ConflictError naming the offending field.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, remoteAddr string) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	email := util.NormalizeEmail(req.Email)
	phone := util.NormalizePhone(req.Phone)

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	userID := uuid.NewString()
	user := &models.User{
		UserID:       userID,
		UserBucket:   s.buckets.UserBucket(userID),
		Username:     req.Username,
		Email:        email,
		Phone:        phone,
		PasswordHash: digest,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, scylla.ErrEmailTaken):
			return "", &ConflictError{Field: "email"}
		case errors.Is(err, scylla.ErrPhoneTaken):
			return "", &ConflictError{Field: "phone"}
		}
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	s.record(models.EventUserRegistered, userID, email, remoteAddr, "")
	return userID, nil
}

// ForgotPassword starts recovery for an email or phone identifier and
// reports which channel the notification went to. Notification
// dispatch is fire-and-forget: a full delivery queue degrades to a log
// line, never a failed request.
func (s *AuthService) ForgotPassword(ctx context.Context, req ForgotPasswordRequest, remoteAddr string) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	if util.IsEmailIdentifier(req.Identifier) {
		return s.startEmailRecovery(ctx, util.NormalizeEmail(req.Identifier), remoteAddr)
	}
	return s.startPhoneRecovery(ctx, util.NormalizePhone(req.Identifier), remoteAddr)
}

func (s *AuthService) startEmailRecovery(ctx context.Context, email, remoteAddr string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return "", ErrNoAccount
		}
		return "", fmt.Errorf("recovery lookup failed: %w", err)
	}

	resetToken, err := s.tokens.Issue(user.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to issue reset token: %w", err)
	}

	if err := s.notifier.EnqueuePasswordResetEmail(user.Email, resetToken); err != nil {
		util.Warn("Reset email dispatch degraded",
			util.String("to", util.MaskEmail(user.Email)),
			util.ErrorField(err))
	}

	s.record(models.EventRecoveryStarted, user.UserID, email, remoteAddr, ChannelEmail)
	return ChannelEmail, nil
}

func (s *AuthService) startPhoneRecovery(ctx context.Context, phone, remoteAddr string) (string, error) {
	user, err := s.users.GetUserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return "", ErrNoAccount
		}
		return "", fmt.Errorf("recovery lookup failed: %w", err)
	}

	code, err := generateOTP()
	if err != nil {
		return "", err
	}
	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		return "", fmt.Errorf("failed to hash verification code: %w", err)
	}

	// Last write wins: a repeat request replaces the prior pending code.
	pending := &models.PendingReset{
		CodeHash: codeHash,
		Phone:    user.Phone,
		IssuedAt: s.now().UTC(),
	}
	if err := s.pending.Put(ctx, user.Phone, pending, s.otpWindow); err != nil {
		return "", fmt.Errorf("failed to store pending reset: %w", err)
	}

	if err := s.notifier.EnqueueOTP(user.Phone, code); err != nil {
		util.Warn("OTP dispatch degraded",
			util.String("to", util.MaskPhone(user.Phone)),
			util.ErrorField(err))
	}

	s.record(models.EventRecoveryStarted, user.UserID, phone, remoteAddr, ChannelSMS)
	return ChannelSMS, nil
}

// VerifyOTP checks a submitted code against the pending context for
// the identifier. On success the pending context is consumed and a
// fresh reset token is minted, so the password-set step runs through
// the same authorization path as email recovery.
func (s *AuthService) VerifyOTP(ctx context.Context, req VerifyOTPRequest, remoteAddr string) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	phone := util.NormalizePhone(req.Identifier)

	pending, err := s.pending.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, redisrepo.ErrPendingResetNotFound) {
			return "", ErrNoPendingRequest
		}
		return "", fmt.Errorf("failed to load pending reset: %w", err)
	}

	if s.now().UTC().Sub(pending.IssuedAt) > s.otpWindow {
		if derr := s.pending.Delete(ctx, phone); derr != nil {
			util.Warn("Failed to clear expired pending reset", util.ErrorField(derr))
		}
		return "", ErrOTPExpired
	}

	if !s.hasher.Verify(req.Code, pending.CodeHash) {
		s.record(models.EventOTPRejected, "", phone, remoteAddr, "code mismatch")
		return "", ErrOTPMismatch
	}

	// Single use: the consume is atomic, so of two concurrent correct
	// submissions exactly one proceeds.
	if _, err := s.pending.Consume(ctx, phone); err != nil {
		if errors.Is(err, redisrepo.ErrPendingResetNotFound) {
			return "", ErrNoPendingRequest
		}
		return "", fmt.Errorf("failed to consume pending reset: %w", err)
	}

	user, err := s.users.GetUserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return "", ErrNoAccount
		}
		return "", fmt.Errorf("recovery lookup failed: %w", err)
	}

	resetToken, err := s.tokens.Issue(user.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to issue reset token: %w", err)
	}

	s.record(models.EventOTPVerified, user.UserID, phone, remoteAddr, "")
	return resetToken, nil
}

// ResetPassword sets a new password for the user a valid reset token
// resolves to, then destroys every session issued under the old
// credentials.
func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest, remoteAddr string) error {
	if err := req.Validate(); err != nil {
		return err
	}

	userID, err := s.tokens.Verify(req.Token)
	if err != nil {
		return err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return token.NewVerificationError(token.ReasonUserNotFound)
		}
		return fmt.Errorf("reset lookup failed: %w", err)
	}

	digest, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.UserID, digest); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.sessions.DestroyAllForUser(ctx, user.UserID); err != nil {
		util.Warn("Failed to destroy sessions after reset",
			util.String("user_id", user.UserID),
			util.ErrorField(err))
	}

	s.record(models.EventPasswordReset, user.UserID, user.Email, remoteAddr, "")
	return nil
}

// Logout destroys the session. Unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, sessionToken, remoteAddr string) error {
	userID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidSession) {
			return nil
		}
		return fmt.Errorf("logout failed: %w", err)
	}

	if err := s.sessions.Destroy(ctx, sessionToken); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	s.record(models.EventSessionInvalidated, userID, "", remoteAddr, "")
	return nil
}

// ValidateSession resolves a session token to its user id.
func (s *AuthService) ValidateSession(ctx context.Context, sessionToken string) (string, error) {
	return s.sessions.Validate(ctx, sessionToken)
}

func (s *AuthService) HealthCheck(ctx context.Context) error {
	return s.users.HealthCheck(ctx)
}

func (s *AuthService) record(eventType, userID, identifier, remoteAddr, detail string) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(&models.SecurityEvent{
		EventType:  eventType,
		UserID:     userID,
		Identifier: identifier,
		RemoteAddr: remoteAddr,
		Detail:     detail,
	})
}
