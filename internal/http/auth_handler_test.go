package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"krishilok/internal/domain"
	"krishilok/internal/repository"
	"krishilok/internal/service"
)

type mockStore struct {
	mu       sync.Mutex
	users    map[string]domain.User
	otps     map[string]domain.OTPEntry
	counters map[string]int64
}

func newMockStore() *mockStore {
	return &mockStore{
		users:    make(map[string]domain.User),
		otps:     make(map[string]domain.OTPEntry),
		counters: make(map[string]int64),
	}
}

func (m *mockStore) FindByIdentifier(_ context.Context, id domain.Identifier) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if (id.Email != "" && u.Email == id.Email) ||
			(id.Mobile != "" && u.Mobile == id.Mobile) ||
			(id.Aadhaar != "" && u.Aadhaar == id.Aadhaar) {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (m *mockStore) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *mockStore) Replace(_ context.Context, entry domain.OTPEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps[entry.Email] = entry
	return nil
}

func (m *mockStore) Latest(_ context.Context, email string) (domain.OTPEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.otps[email]
	if !ok {
		return domain.OTPEntry{}, repository.ErrNotFound
	}
	return e, nil
}

func (m *mockStore) Consume(_ context.Context, entry domain.OTPEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.otps[entry.Email]; !ok || e.ID != entry.ID {
		return repository.ErrNotFound
	}
	delete(m.otps, entry.Email)
	return nil
}

func (m *mockStore) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *mockStore) CommitRegistration(_ context.Context, user domain.User, otp domain.OTPEntry) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.otps[otp.Email]; !ok || e.ID != otp.ID {
		return domain.User{}, repository.ErrNotFound
	}
	m.counters[user.PrimaryRole()]++
	user.DisplayID = domain.FormatDisplayID(user.PrimaryRole(), m.counters[user.PrimaryRole()])
	m.users[user.ID] = user
	delete(m.otps, otp.Email)
	return user, nil
}

func (m *mockStore) Append(_ context.Context, _ domain.LoginHistoryEntry) error {
	return nil
}

func (m *mockStore) hasOTP(email string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.otps[email]
	return ok
}

type mockSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *mockSender) SendVerificationOTP(_ context.Context, to, code string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = code
	return nil
}

func (m *mockSender) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type testServer struct {
	router *gin.Engine
	store  *mockStore
	sender *mockSender
	tokens *service.JWTService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	store := newMockStore()
	sender := &mockSender{codes: make(map[string]string)}
	tokens := newTestJWT()
	ledger := service.NewOTPLedger(logger, store, sender)
	reg := service.NewRegistrationService(logger, store, store, ledger, service.NewFormValidator("91"),
		service.WithPasswordCost(bcrypt.MinCost))
	login := service.NewLoginService(logger, store, ledger, tokens,
		service.NewHistoryRecorder(logger, store), nil, service.LoginConfig{CountryCode: "91"})
	h := NewAuthHandler(logger, reg, login, tokens, NewCookiePolicy(false))
	router := NewRouter(logger, []string{"http://localhost:4200"}, h, JWTAuthMiddleware(tokens), nil)
	return &testServer{router: router, store: store, sender: sender, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func scenarioForm() map[string]string {
	return map[string]string{
		"firstName": "Ravi",
		"lastName":  "Kumar",
		"mobile":    "+919876543210",
		"aadhaar":   "123456789012",
		"email":     "a@b.com",
		"password":  "Abc123!@",
		"state":     "Punjab",
		"district":  "Ludhiana",
		"role":      "farmer",
	}
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegistrationScenario(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodPost, "/api/auth/pre-register", scenarioForm())
	if rec.Code != http.StatusOK {
		t.Fatalf("pre-register: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if !s.store.hasOTP("a@b.com") {
		t.Fatalf("expected otp entry for a@b.com")
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(s.sender.code("a@b.com"))) {
		t.Fatalf("otp code must not be returned to the client")
	}

	code := s.sender.code("a@b.com")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rec, resp := s.do(t, http.MethodPost, "/api/auth/register-after-otp", map[string]any{"otp": wrong, "userData": scenarioForm()})
	if rec.Code != http.StatusBadRequest || resp["message"] != "Incorrect OTP." {
		t.Fatalf("wrong code: expected 400 Incorrect OTP, got %d %v", rec.Code, resp)
	}

	rec, resp = s.do(t, http.MethodPost, "/api/auth/register-after-otp", map[string]any{"otp": code, "userData": scenarioForm()})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d %v", rec.Code, resp)
	}
	if resp["displayId"] != "FARMER_001" {
		t.Fatalf("expected FARMER_001, got %v", resp["displayId"])
	}
	if s.store.hasOTP("a@b.com") {
		t.Fatalf("expected otp entry to be removed")
	}
	user, err := s.store.FindByIdentifier(context.Background(), domain.Identifier{Email: "a@b.com"})
	if err != nil || !user.Verified {
		t.Fatalf("expected verified user row, got %+v %v", user, err)
	}

	rec, resp = s.do(t, http.MethodGet, "/api/auth/check-verification/a@b.com", nil)
	if rec.Code != http.StatusOK || resp["isVerified"] != true {
		t.Fatalf("check-verification: got %d %v", rec.Code, resp)
	}
}

func TestPreRegister_Validation(t *testing.T) {
	s := newTestServer(t)
	form := scenarioForm()
	form["mobile"] = "9876543210"

	rec, resp := s.do(t, http.MethodPost, "/api/auth/pre-register", form)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp["message"] != "Mobile must be +91 followed by 10 digits." {
		t.Fatalf("unexpected message: %v", resp["message"])
	}
}

func TestResendOTP_MissingEmail(t *testing.T) {
	s := newTestServer(t)
	rec, resp := s.do(t, http.MethodPost, "/api/auth/resend-otp", map[string]string{})
	if rec.Code != http.StatusBadRequest || resp["message"] != "Email is required." {
		t.Fatalf("expected 400 Email is required., got %d %v", rec.Code, resp)
	}
}

func seedUser(t *testing.T, s *testServer) domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("Abc123!@"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := domain.User{
		ID:           "u1",
		DisplayID:    "FARMER_001",
		FirstName:    "Ravi",
		Mobile:       "9876543210",
		Aadhaar:      "123456789012",
		Email:        "a@b.com",
		PasswordHash: string(hash),
		Roles:        []string{"farmer"},
		Verified:     true,
	}
	s.store.mu.Lock()
	s.store.users[user.ID] = user
	s.store.mu.Unlock()
	return user
}

func TestLoginPassword_SetsCookies(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s)

	rec, resp := s.do(t, http.MethodPost, "/api/auth/login-password", map[string]string{"identifier": "+919876543210", "password": "Abc123!@"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", rec.Code, resp)
	}
	if resp["userId"] != "u1" {
		t.Fatalf("unexpected body: %v", resp)
	}

	access := cookieByName(rec, AccessCookieName)
	refresh := cookieByName(rec, RefreshCookieName)
	if access == nil || refresh == nil {
		t.Fatalf("expected both session cookies")
	}
	if !access.HttpOnly || !refresh.HttpOnly {
		t.Fatalf("session cookies must be http-only")
	}
	if access.MaxAge != 15*60 || refresh.MaxAge != 7*24*60*60 {
		t.Fatalf("unexpected max-age: %d / %d", access.MaxAge, refresh.MaxAge)
	}
	if access.SameSite != http.SameSiteLaxMode || access.Secure {
		t.Fatalf("development cookies must be Lax and not Secure")
	}

	rec, resp = s.do(t, http.MethodGet, "/api/auth/check-auth", nil, access)
	if rec.Code != http.StatusOK || resp["message"] != "Authenticated" {
		t.Fatalf("check-auth: got %d %v", rec.Code, resp)
	}
	if profile, _ := resp["user"].(map[string]any); profile["email"] != "a@b.com" || profile["aadhaar"] != nil {
		t.Fatalf("unexpected profile: %v", resp["user"])
	}
}

func TestLoginPassword_UniformFailure(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s)

	wrongRec, wrongResp := s.do(t, http.MethodPost, "/api/auth/login-password", map[string]string{"identifier": "a@b.com", "password": "Nope123!"})
	unknownRec, unknownResp := s.do(t, http.MethodPost, "/api/auth/login-password", map[string]string{"identifier": "x@y.com", "password": "Abc123!@"})

	if wrongRec.Code != http.StatusUnauthorized || unknownRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrongRec.Code, unknownRec.Code)
	}
	if wrongResp["message"] != unknownResp["message"] {
		t.Fatalf("messages differ: %v vs %v", wrongResp, unknownResp)
	}
}

func TestLoginOTP(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s)

	rec, _ := s.do(t, http.MethodPost, "/api/auth/login-otp", map[string]string{"identifier": "nobody@b.com", "otp": "123456"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}

	rec, _ = s.do(t, http.MethodPost, "/api/auth/login-otp", map[string]string{"identifier": "a@b.com", "otp": "123456"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without issued code, got %d", rec.Code)
	}

	rec, _ = s.do(t, http.MethodPost, "/api/auth/resend-otp", map[string]string{"email": "a@b.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resend: expected 200, got %d", rec.Code)
	}
	rec, _ = s.do(t, http.MethodPost, "/api/auth/login-otp", map[string]string{"identifier": "123456789012", "otp": s.sender.code("a@b.com")})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if cookieByName(rec, AccessCookieName) == nil {
		t.Fatalf("expected access cookie")
	}
}

func TestRefreshToken(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodPost, "/api/auth/refresh-token", nil)
	if rec.Code != http.StatusUnauthorized || resp["message"] != "No refresh token" {
		t.Fatalf("expected 401 No refresh token, got %d %v", rec.Code, resp)
	}

	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh-token", nil, &http.Cookie{Name: RefreshCookieName, Value: "garbage"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid refresh, got %d", rec.Code)
	}

	refresh, err := s.tokens.IssueRefreshToken("u1", []string{"farmer"})
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh-token", nil, &http.Cookie{Name: RefreshCookieName, Value: refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	access := cookieByName(rec, AccessCookieName)
	if access == nil {
		t.Fatalf("expected new access cookie")
	}
	if cookieByName(rec, RefreshCookieName) != nil {
		t.Fatalf("refresh token must not be rotated")
	}
	if _, err := s.tokens.ParseAccessToken(access.Value); err != nil {
		t.Fatalf("rotated access token invalid: %v", err)
	}
}

func TestLogout_ClearsCookies(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.do(t, http.MethodPost, "/api/auth/logout", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		c := cookieByName(rec, name)
		if c == nil || c.Value != "" || c.MaxAge >= 0 {
			t.Fatalf("expected %s to be cleared, got %+v", name, c)
		}
	}

	rec, _ = s.do(t, http.MethodGet, "/api/auth/check-auth", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("check-auth without cookies: expected 401, got %d", rec.Code)
	}
}

func TestCheckAuth_ExpiredAccessCookie(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s)
	expired := service.NewJWTService("access-secret", "refresh-secret", time.Nanosecond, time.Hour)
	token, err := expired.IssueAccessToken("u1", []string{"farmer"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec, _ := s.do(t, http.MethodGet, "/api/auth/check-auth", nil, &http.Cookie{Name: AccessCookieName, Value: token})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired cookie, got %d", rec.Code)
	}
}

func TestCheckVerification_Unknown(t *testing.T) {
	s := newTestServer(t)
	rec, resp := s.do(t, http.MethodGet, "/api/auth/check-verification/nobody@b.com", nil)
	if rec.Code != http.StatusNotFound || resp["isVerified"] != false {
		t.Fatalf("expected 404 isVerified=false, got %d %v", rec.Code, resp)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec, resp := s.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || resp["status"] != "ok" {
		t.Fatalf("expected ok, got %d %v", rec.Code, resp)
	}
}
