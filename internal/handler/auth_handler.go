package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"account-service/internal/service"
	"account-service/internal/session"
	"account-service/internal/token"
	"account-service/internal/util"

	"github.com/go-chi/chi/v5"
)

// AuthHandler exposes the account-security flows over HTTP.
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Response is the standard API envelope.
type Response struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Message string            `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// RegisterRoutes registers the auth routes.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/verify-otp", h.VerifyOTP)
		r.Post("/reset-password", h.ResetPassword)
		r.Post("/logout", h.Logout)
		r.Get("/health", h.HealthCheck)
	})
}

// Login authenticates by email and password and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	sessionToken, err := h.authService.Login(r.Context(), req, r.RemoteAddr)
	if err != nil {
		h.rejectAuth(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(
		map[string]string{"session_token": sessionToken}, "Login successful"))
	h.logger.Info("Login via HTTP",
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Login"),
	)
}

// Register creates a new account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	userID, err := h.authService.Register(r.Context(), req, r.RemoteAddr)
	if err != nil {
		h.rejectAuth(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(
		map[string]string{"user_id": userID}, "Account created"))
	h.logger.Info("Registration via HTTP",
		util.String("user_id", userID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Register"),
	)
}

// ForgotPassword starts recovery for an email or phone identifier.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req service.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	channel, err := h.authService.ForgotPassword(r.Context(), req, r.RemoteAddr)
	if err != nil {
		h.rejectAuth(w, err)
		return
	}

	message := "Check your email for a reset link"
	if channel == service.ChannelSMS {
		message = "A verification code was sent to your phone"
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(
		map[string]string{"channel": channel}, message))
}

// VerifyOTP exchanges a pending verification code for a reset token.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	resetToken, err := h.authService.VerifyOTP(r.Context(), req, r.RemoteAddr)
	if err != nil {
		h.rejectAuth(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(
		map[string]string{"reset_token": resetToken}, "Code verified"))
}

// ResetPassword sets a new password under a valid reset token.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req service.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req, r.RemoteAddr); err != nil {
		h.rejectAuth(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Password updated"))
}

// Logout destroys the presented session. Always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.authService.Logout(r.Context(), req.SessionToken, r.RemoteAddr); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Logout failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

// HealthCheck reports credential-store connectivity.
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.HealthCheck(r.Context()); err != nil {
		h.respondWithError(w, http.StatusServiceUnavailable, err, "Service unhealthy")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Service is healthy"))
}

// rejectAuth maps service-layer rejections onto HTTP responses. The
// credential and token messages are deliberately uniform so the
// response never reveals whether an account or token component was the
// failing part.
func (h *AuthHandler) rejectAuth(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		h.respondWithJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "validation failed",
			Fields:  verr.Fields,
		})
		return
	}

	var conflict *service.ConflictError
	if errors.As(err, &conflict) {
		h.respondWithJSON(w, http.StatusConflict, Response{
			Success: false,
			Error:   conflict.Error(),
			Fields:  map[string]string{conflict.Field: conflict.Error()},
		})
		return
	}

	var tokenErr *token.VerificationError
	if errors.As(err, &tokenErr) {
		h.logger.Info("Reset token rejected", util.String("reason", tokenErr.Reason.String()))
		h.respondWithJSON(w, http.StatusUnauthorized, Response{
			Success: false,
			Error:   "invalid or expired token",
		})
		return
	}

	status, message := http.StatusInternalServerError, "Internal error"
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		status, message = http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, service.ErrAccountLocked):
		status, message = http.StatusLocked, "Account temporarily locked. Try again later"
	case errors.Is(err, service.ErrNoAccount):
		status, message = http.StatusNotFound, "No account found for that identifier"
	case errors.Is(err, service.ErrNoPendingRequest):
		status, message = http.StatusNotFound, "No pending verification request"
	case errors.Is(err, service.ErrOTPExpired):
		status, message = http.StatusGone, "Verification code expired"
	case errors.Is(err, service.ErrOTPMismatch):
		status, message = http.StatusUnauthorized, "Incorrect verification code"
	case errors.Is(err, session.ErrInvalidSession):
		status, message = http.StatusUnauthorized, "Invalid session"
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", util.ErrorField(err))
	}
	h.respondWithJSON(w, status, Response{Success: false, Error: message})
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, Response{Success: false, Error: message})
}
