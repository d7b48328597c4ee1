package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenKind selecciona el secreto con el que se firma o valida un token.
type TokenKind int

const (
	AccessToken TokenKind = iota
	RefreshToken
)

func (k TokenKind) String() string {
	if k == RefreshToken {
		return "refresh"
	}
	return "access"
}

// JWTService emite y valida el par access/refresh. Cada tipo usa su propio
// secreto, asi que un refresh nunca pasa como access ni al reves.
type JWTService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Claims lleva solo el id y los roles; nada de PII.
type Claims struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

func NewJWTService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &JWTService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (s *JWTService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *JWTService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *JWTService) IssueAccessToken(userID string, roles []string) (string, error) {
	return s.sign(userID, roles, AccessToken)
}

func (s *JWTService) IssueRefreshToken(userID string, roles []string) (string, error) {
	return s.sign(userID, roles, RefreshToken)
}

func (s *JWTService) IssuePair(userID string, roles []string) (TokenPair, error) {
	access, err := s.IssueAccessToken(userID, roles)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(userID, roles)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify comprueba firma y expiracion contra el secreto del tipo indicado.
func (s *JWTService) Verify(token string, kind TokenKind) (Claims, error) {
	secret := s.secret(kind)
	if len(secret) == 0 || strings.TrimSpace(token) == "" {
		return Claims{}, ErrTokenInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.UserID) == "" || len(claims.Roles) == 0 {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *JWTService) ParseAccessToken(token string) (Claims, error) {
	return s.Verify(token, AccessToken)
}

// Rotate emite un access nuevo con los mismos claims. El refresh no se renueva:
// vive hasta su expiracion o hasta el logout.
func (s *JWTService) Rotate(refreshToken string) (string, error) {
	claims, err := s.Verify(refreshToken, RefreshToken)
	if err != nil {
		return "", err
	}
	return s.IssueAccessToken(claims.UserID, claims.Roles)
}

func (s *JWTService) sign(userID string, roles []string, kind TokenKind) (string, error) {
	secret := s.secret(kind)
	if len(secret) == 0 || strings.TrimSpace(userID) == "" || len(roles) == 0 {
		return "", ErrTokenInvalid
	}
	ttl := s.accessTTL
	if kind == RefreshToken {
		ttl = s.refreshTTL
	}
	claims := Claims{
		UserID: userID,
		Roles:  append([]string(nil), roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *JWTService) secret(kind TokenKind) []byte {
	if kind == RefreshToken {
		return s.refreshSecret
	}
	return s.accessSecret
}
