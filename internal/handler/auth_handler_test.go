package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"account-service/internal/audit"
	"account-service/internal/bucketing"
	"account-service/internal/client"
	"account-service/internal/hashing"
	"account-service/internal/lockout"
	"account-service/internal/models"
	redisrepo "account-service/internal/repository/redis"
	"account-service/internal/repository/scylla"
	"account-service/internal/service"
	"account-service/internal/session"
	"account-service/internal/token"
	"account-service/internal/util"
)

// memoryUserRepo backs the handler tests with the credential-store
// contract in memory.
type memoryUserRepo struct {
	mu       sync.Mutex
	byID     map[string]*models.User
	emailIdx map[string]string
	phoneIdx map[string]string
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		byID:     make(map[string]*models.User),
		emailIdx: make(map[string]string),
		phoneIdx: make(map[string]string),
	}
}

func (r *memoryUserRepo) CreateUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.emailIdx[user.Email]; ok {
		return scylla.ErrEmailTaken
	}
	if _, ok := r.phoneIdx[user.Phone]; ok {
		return scylla.ErrPhoneTaken
	}
	u := *user
	r.byID[user.UserID] = &u
	r.emailIdx[user.Email] = user.UserID
	r.phoneIdx[user.Phone] = user.UserID
	return nil
}

func (r *memoryUserRepo) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *memoryUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	id, ok := r.emailIdx[email]
	r.mu.Unlock()
	if !ok {
		return nil, scylla.ErrNotFound
	}
	return r.GetUserByID(ctx, id)
}

func (r *memoryUserRepo) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	r.mu.Lock()
	id, ok := r.phoneIdx[phone]
	r.mu.Unlock()
	if !ok {
		return nil, scylla.ErrNotFound
	}
	return r.GetUserByID(ctx, id)
}

func (r *memoryUserRepo) saveLoginState(user *models.User, expectedPrev int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[user.UserID]
	if !ok {
		return scylla.ErrNotFound
	}
	if stored.FailedAttempts != expectedPrev {
		return scylla.ErrConcurrentUpdate
	}
	stored.FailedAttempts = user.FailedAttempts
	stored.LastFailedAt = user.LastFailedAt
	stored.LastLoginAt = user.LastLoginAt
	return nil
}

func (r *memoryUserRepo) SaveLoginFailure(_ context.Context, user *models.User, expectedPrev int) error {
	return r.saveLoginState(user, expectedPrev)
}

func (r *memoryUserRepo) SaveLoginSuccess(_ context.Context, user *models.User, expectedPrev int) error {
	return r.saveLoginState(user, expectedPrev)
}

func (r *memoryUserRepo) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return scylla.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *memoryUserRepo) HealthCheck(context.Context) error { return nil }

type silentDispatcher struct {
	mu    sync.Mutex
	codes map[string]string
}

func (d *silentDispatcher) EnqueuePasswordResetEmail(string, string) error { return nil }

func (d *silentDispatcher) EnqueueOTP(phone, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.codes == nil {
		d.codes = make(map[string]string)
	}
	d.codes[phone] = code
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *silentDispatcher) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rc := client.WrapRedisClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	tokens, err := token.NewResetTokenManager("test-secret", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewResetTokenManager failed: %v", err)
	}

	hasher := hashing.NewHasher(hashing.Argon2Params{
		Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})

	dispatcher := &silentDispatcher{}
	svc := service.NewAuthService(
		newMemoryUserRepo(),
		hasher,
		lockout.NewGuard(lockout.DefaultPolicy()),
		tokens,
		redisrepo.NewPendingResetStore(rc),
		session.NewManager(redisrepo.NewSessionStore(rc), 24*time.Hour),
		dispatcher,
		audit.NewRecorder(nil, nil, bucketing.NewManager(64)),
		bucketing.NewManager(64),
		30*time.Minute,
	)

	router := NewRouter(NewAuthHandler(svc, util.Get()), util.Get())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, dispatcher
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body interface{}) (*http.Response, Response) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded Response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func registerAlice(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp, _ := postJSON(t, srv, "/api/v1/auth/register", map[string]string{
		"username": "alice", "email": "alice@example.com", "phone": "+15550001111",
		"password": "Abc123", "confirm_password": "Abc123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
}

func TestLoginEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	registerAlice(t, srv)

	resp, body := postJSON(t, srv, "/api/v1/auth/login", map[string]string{
		"email": "alice@example.com", "password": "Abc123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	data, ok := body.Data.(map[string]interface{})
	if !ok || data["session_token"] == "" {
		t.Errorf("expected session_token in response, got %v", body.Data)
	}
}

func TestLoginRejectionsAreUniform(t *testing.T) {
	srv, _ := newTestServer(t)
	registerAlice(t, srv)

	// Unknown account and wrong password produce the same status and
	// message, so callers cannot enumerate accounts.
	respUnknown, bodyUnknown := postJSON(t, srv, "/api/v1/auth/login", map[string]string{
		"email": "ghost@example.com", "password": "Abc123",
	})
	respWrong, bodyWrong := postJSON(t, srv, "/api/v1/auth/login", map[string]string{
		"email": "alice@example.com", "password": "nope99",
	})

	if respUnknown.StatusCode != http.StatusUnauthorized || respWrong.StatusCode != http.StatusUnauthorized {
		t.Fatalf("statuses = %d/%d, want 401/401", respUnknown.StatusCode, respWrong.StatusCode)
	}
	if bodyUnknown.Error != bodyWrong.Error {
		t.Errorf("rejection messages differ: %q vs %q", bodyUnknown.Error, bodyWrong.Error)
	}
}

func TestLockedAccountGets423(t *testing.T) {
	srv, _ := newTestServer(t)
	registerAlice(t, srv)

	for i := 0; i < 5; i++ {
		postJSON(t, srv, "/api/v1/auth/login", map[string]string{
			"email": "alice@example.com", "password": "nope99",
		})
	}

	resp, _ := postJSON(t, srv, "/api/v1/auth/login", map[string]string{
		"email": "alice@example.com", "password": "Abc123",
	})
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("locked login status = %d, want 423", resp.StatusCode)
	}
}

func TestRegisterValidationSurfacesFields(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := postJSON(t, srv, "/api/v1/auth/register", map[string]string{
		"username": "x", "email": "not-an-email", "phone": "123",
		"password": "weakpass", "confirm_password": "weakpass",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	for _, field := range []string{"username", "email", "phone", "password"} {
		if _, ok := body.Fields[field]; !ok {
			t.Errorf("field %q missing from validation response %v", field, body.Fields)
		}
	}
}

func TestRegisterConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	registerAlice(t, srv)

	resp, body := postJSON(t, srv, "/api/v1/auth/register", map[string]string{
		"username": "bob", "email": "alice@example.com", "phone": "+15550002222",
		"password": "Abc123", "confirm_password": "Abc123",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if _, ok := body.Fields["email"]; !ok {
		t.Errorf("conflict response fields = %v, want email flagged", body.Fields)
	}
}

func TestPhoneRecoveryFlowOverHTTP(t *testing.T) {
	srv, dispatcher := newTestServer(t)
	registerAlice(t, srv)

	resp, body := postJSON(t, srv, "/api/v1/auth/forgot-password", map[string]string{
		"identifier": "+15550001111",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forgot-password status = %d, want 200", resp.StatusCode)
	}
	data := body.Data.(map[string]interface{})
	if data["channel"] != "sms" {
		t.Fatalf("channel = %v, want sms", data["channel"])
	}

	// Missing pending context is a 404, distinct from a wrong code.
	resp, _ = postJSON(t, srv, "/api/v1/auth/verify-otp", map[string]string{
		"identifier": "+15559990000", "code": "123456",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("no pending status = %d, want 404", resp.StatusCode)
	}

	dispatcher.mu.Lock()
	code := dispatcher.codes["+15550001111"]
	dispatcher.mu.Unlock()
	if code == "" {
		t.Fatal("no OTP dispatched")
	}

	resp, body = postJSON(t, srv, "/api/v1/auth/verify-otp", map[string]string{
		"identifier": "+15550001111", "code": code,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify-otp status = %d, want 200", resp.StatusCode)
	}
	resetToken := body.Data.(map[string]interface{})["reset_token"].(string)

	resp, _ = postJSON(t, srv, "/api/v1/auth/reset-password", map[string]string{
		"token": resetToken, "new_password": "New99pass", "confirm_password": "New99pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset-password status = %d, want 200", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv, "/api/v1/auth/login", map[string]string{
		"email": "alice@example.com", "password": "New99pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login with new password status = %d, want 200", resp.StatusCode)
	}
}

func TestResetPasswordWithForgedToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := postJSON(t, srv, "/api/v1/auth/reset-password", map[string]string{
		"token": "forged", "new_password": "New99pass", "confirm_password": "New99pass",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if body.Error != "invalid or expired token" {
		t.Errorf("error = %q, want the uniform token message", body.Error)
	}
}

func TestLogoutIsIdempotentOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp, _ := postJSON(t, srv, "/api/v1/auth/logout", map[string]string{
			"session_token": "never-issued",
		})
		if resp.StatusCode != http.StatusOK {
			t.Errorf("logout status = %d, want 200", resp.StatusCode)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestMalformedJSONIs400(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/auth/login", "application/json",
		bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
