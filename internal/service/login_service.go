package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"krishilok/internal/domain"
	"krishilok/internal/repository"
)

// LoginConfig agrupa las decisiones de producto del login.
type LoginConfig struct {
	// CountryCode se quita de los moviles escritos como "+<cc>XXXXXXXXXX".
	CountryCode string
	// ConcealUnknownUser hace que el login por OTP responda igual para un
	// identificador desconocido que para un codigo incorrecto.
	ConcealUnknownUser bool
}

// LoginResult es lo que el handler necesita para fijar las cookies y responder.
type LoginResult struct {
	User   domain.User
	Tokens TokenPair
}

// LoginService autentica por password o por OTP y emite la sesion.
type LoginService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	ledger   *OTPLedger
	tokens   *JWTService
	recorder LoginRecorder
	limiter  LoginLimiter
	cfg      LoginConfig
}

func NewLoginService(
	logger *zap.Logger,
	users repository.UserRepository,
	ledger *OTPLedger,
	tokens *JWTService,
	recorder LoginRecorder,
	limiter LoginLimiter,
	cfg LoginConfig,
) *LoginService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginService{
		logger:   logger,
		users:    users,
		ledger:   ledger,
		tokens:   tokens,
		recorder: recorder,
		limiter:  limiter,
		cfg:      cfg,
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// equalizeTiming gasta lo mismo que una comparacion real cuando no hay usuario.
func equalizeTiming(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("krishilok-timing-pad"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// LoginWithPassword devuelve el mismo ErrInvalidCredentials para un usuario
// inexistente y para un password incorrecto.
func (s *LoginService) LoginWithPassword(ctx context.Context, identifier, password string, client ClientInfo) (LoginResult, error) {
	attempt := LoginAttempt{Identifier: identifier, Method: LoginMethodPassword, Client: client}
	key := limiterKey(identifier)
	if s.isLocked(ctx, key) {
		s.record(ctx, attempt)
		return LoginResult{}, ErrRateLimited
	}

	user, err := s.resolve(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			equalizeTiming(password)
			s.fail(ctx, key, attempt)
			return LoginResult{}, ErrInvalidCredentials
		}
		s.record(ctx, attempt)
		return LoginResult{}, err
	}
	attempt.UserID = user.ID

	if password == "" || user.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.fail(ctx, key, attempt)
		return LoginResult{}, ErrInvalidCredentials
	}
	return s.succeed(ctx, key, attempt, user)
}

// LoginWithOTP verifica el codigo contra el email del usuario resuelto. La
// verificacion consume el codigo.
func (s *LoginService) LoginWithOTP(ctx context.Context, identifier, code string, client ClientInfo) (LoginResult, error) {
	attempt := LoginAttempt{Identifier: identifier, Method: LoginMethodOTP, Client: client}
	key := limiterKey(identifier)
	if s.isLocked(ctx, key) {
		s.record(ctx, attempt)
		return LoginResult{}, ErrRateLimited
	}

	user, err := s.resolve(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.fail(ctx, key, attempt)
			if s.cfg.ConcealUnknownUser {
				return LoginResult{}, ErrInvalidOrExpiredOTP
			}
			return LoginResult{}, ErrUserNotFound
		}
		s.record(ctx, attempt)
		return LoginResult{}, err
	}
	attempt.UserID = user.ID

	if err := s.ledger.Verify(ctx, user.Email, code); err != nil {
		s.fail(ctx, key, attempt)
		if IsOTPFailure(err) {
			return LoginResult{}, ErrInvalidOrExpiredOTP
		}
		return LoginResult{}, err
	}
	return s.succeed(ctx, key, attempt, user)
}

// Profile devuelve el usuario de una sesion valida.
func (s *LoginService) Profile(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *LoginService) resolve(ctx context.Context, identifier string) (domain.User, error) {
	id := domain.ParseIdentifier(identifier, s.cfg.CountryCode)
	if id.Empty() {
		return domain.User{}, ErrUserNotFound
	}
	user, err := s.users.FindByIdentifier(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *LoginService) succeed(ctx context.Context, key string, attempt LoginAttempt, user domain.User) (LoginResult, error) {
	tokens, err := s.tokens.IssuePair(user.ID, user.Roles)
	if err != nil {
		s.record(ctx, attempt)
		return LoginResult{}, err
	}
	attempt.Success = true
	s.record(ctx, attempt)
	if s.limiter != nil {
		s.limiter.Reset(ctx, key)
	}
	s.logger.Info("login succeeded", zap.String("user_id", user.ID), zap.String("method", attempt.Method))
	return LoginResult{User: user, Tokens: tokens}, nil
}

func (s *LoginService) fail(ctx context.Context, key string, attempt LoginAttempt) {
	if s.limiter != nil {
		s.limiter.RecordFailure(ctx, key)
	}
	s.record(ctx, attempt)
}

// record usa un contexto sin cancelacion: el intento se audita aunque el cliente corte.
func (s *LoginService) record(ctx context.Context, attempt LoginAttempt) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(context.WithoutCancel(ctx), attempt)
}

func (s *LoginService) isLocked(ctx context.Context, key string) bool {
	return s.limiter != nil && key != "" && s.limiter.Locked(ctx, key)
}

func limiterKey(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
