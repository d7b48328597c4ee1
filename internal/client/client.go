package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultAuthPrefix = "/api/auth"

// Config configura AuthClient. BaseURL es el origen del servidor, p. ej.
// "http://localhost:5000".
type Config struct {
	BaseURL    string
	AuthPrefix string
	Timeout    time.Duration
	Base       http.RoundTripper
	Logger     *zap.Logger

	JoinInFlightRefresh bool
	PublicRoute         func() bool
	// OnLogout se llama despues de un logout forzado por refresh fallido;
	// la app lo usa para volver a la pantalla de login.
	OnLogout func()
}

// AuthClient habla con /api/auth y con cualquier recurso protegido usando
// cookies de sesion y el Transport que renueva el access token.
type AuthClient struct {
	base     *url.URL
	prefix   string
	http     *http.Client
	jar      *resettableJar
	session  *SessionState
	logger   *zap.Logger
	onLogout func()
}

func New(cfg Config) (*AuthClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if base.Path == "" {
		// JoinPath devuelve un path relativo si la base no tiene path
		base.Path = "/"
	}
	prefix := cfg.AuthPrefix
	if prefix == "" {
		prefix = DefaultAuthPrefix
	}
	prefix = "/" + strings.Trim(prefix, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &AuthClient{
		base:     base,
		prefix:   prefix,
		jar:      newResettableJar(),
		session:  NewSessionState(),
		logger:   logger,
		onLogout: cfg.OnLogout,
	}
	transport := &Transport{
		Base:        cfg.Base,
		Jar:         c.jar,
		Session:     c.session,
		Refresh:     c.RefreshToken,
		RefreshPath: c.requestPath("refresh-token"),
		PublicPaths: []string{
			c.requestPath("pre-register"),
			c.requestPath("register-after-otp"),
			c.requestPath("resend-otp"),
			c.requestPath("login-password"),
			c.requestPath("login-otp"),
			c.requestPath("logout"),
			c.requestPath("check-verification"),
		},
		PublicRoute:         cfg.PublicRoute,
		JoinInFlightRefresh: cfg.JoinInFlightRefresh,
		OnRefreshFailure:    c.forceLogout,
	}
	c.http = &http.Client{Transport: transport, Jar: c.jar, Timeout: timeout}
	return c, nil
}

func (c *AuthClient) Session() *SessionState {
	return c.session
}

func (c *AuthClient) PreRegister(ctx context.Context, form RegistrationForm) (MessageResponse, error) {
	var out MessageResponse
	err := c.Do(ctx, http.MethodPost, c.authPath("pre-register"), form, &out)
	return out, err
}

func (c *AuthClient) RegisterAfterOTP(ctx context.Context, req ConfirmRequest) (RegisterResponse, error) {
	var out RegisterResponse
	err := c.Do(ctx, http.MethodPost, c.authPath("register-after-otp"), req, &out)
	return out, err
}

func (c *AuthClient) ResendOTP(ctx context.Context, email string) (MessageResponse, error) {
	var out MessageResponse
	err := c.Do(ctx, http.MethodPost, c.authPath("resend-otp"), ResendRequest{Email: email}, &out)
	return out, err
}

func (c *AuthClient) LoginWithPassword(ctx context.Context, identifier, password string) (LoginResponse, error) {
	var out LoginResponse
	if err := c.Do(ctx, http.MethodPost, c.authPath("login-password"), PasswordLoginRequest{Identifier: identifier, Password: password}, &out); err != nil {
		return LoginResponse{}, err
	}
	c.session.SignIn(out.UserID, out.Roles)
	return out, nil
}

func (c *AuthClient) LoginWithOTP(ctx context.Context, identifier, otp string) (LoginResponse, error) {
	var out LoginResponse
	if err := c.Do(ctx, http.MethodPost, c.authPath("login-otp"), OTPLoginRequest{Identifier: identifier, OTP: otp}, &out); err != nil {
		return LoginResponse{}, err
	}
	c.session.SignIn(out.UserID, out.Roles)
	return out, nil
}

// RefreshToken pide un access nuevo; la cookie llega al jar por Set-Cookie.
func (c *AuthClient) RefreshToken(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, c.authPath("refresh-token"), nil, nil)
}

// CheckAuth devuelve el perfil de la sesion actual y sincroniza SessionState.
func (c *AuthClient) CheckAuth(ctx context.Context) (Profile, error) {
	var out CheckAuthResponse
	if err := c.Do(ctx, http.MethodGet, c.authPath("check-auth"), nil, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			c.session.Clear()
		}
		return Profile{}, err
	}
	c.session.SignIn(out.User.ID, out.User.Roles)
	return out.User, nil
}

func (c *AuthClient) CheckVerification(ctx context.Context, email string) (bool, error) {
	var out VerificationResponse
	err := c.Do(ctx, http.MethodGet, c.authPath("check-verification", email), nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return false, nil
	}
	return out.IsVerified, err
}

// Logout borra las cookies en el servidor y localmente. El estado local se
// limpia aunque la llamada falle.
func (c *AuthClient) Logout(ctx context.Context) error {
	err := c.Do(ctx, http.MethodPost, c.authPath("logout"), nil, nil)
	c.jar.Reset()
	c.session.Clear()
	return err
}

// Do envia in como JSON a path (relativo al origen) y decodifica la respuesta en out.
func (c *AuthClient) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg MessageResponse
		_ = json.Unmarshal(data, &msg)
		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *AuthClient) forceLogout(err error) {
	c.logger.Warn("session refresh failed, logging out", zap.Error(err))
	c.jar.Reset()
	c.session.Clear()
	if c.onLogout != nil {
		c.onLogout()
	}
}

// requestPath es el path que ve el Transport en req.URL.Path, incluido el path
// de BaseURL.
func (c *AuthClient) requestPath(elem ...string) string {
	return c.base.JoinPath(c.authPath(elem...)).Path
}

func (c *AuthClient) authPath(elem ...string) string {
	escaped := make([]string, len(elem))
	for i, e := range elem {
		escaped[i] = url.PathEscape(e)
	}
	return c.prefix + "/" + strings.Join(escaped, "/")
}
