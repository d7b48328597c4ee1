package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"krishilok/internal/domain"
	"krishilok/internal/repository"
)

// RegistrationService coordina el alta en dos pasos: Submit emite el OTP sin
// tocar la tabla de usuarios y Confirm crea el usuario una vez verificado.
type RegistrationService struct {
	logger    *zap.Logger
	users     repository.UserRepository
	store     repository.RegistrationStore
	ledger    *OTPLedger
	validator *FormValidator
	hashCost  int
	now       func() time.Time
}

type RegistrationOption func(*RegistrationService)

// WithPasswordCost cambia el coste de bcrypt; los tests usan bcrypt.MinCost.
func WithPasswordCost(cost int) RegistrationOption {
	return func(s *RegistrationService) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.hashCost = cost
		}
	}
}

func WithRegistrationClock(now func() time.Time) RegistrationOption {
	return func(s *RegistrationService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRegistrationService(
	logger *zap.Logger,
	users repository.UserRepository,
	store repository.RegistrationStore,
	ledger *OTPLedger,
	validator *FormValidator,
	opts ...RegistrationOption,
) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RegistrationService{
		logger:    logger,
		users:     users,
		store:     store,
		ledger:    ledger,
		validator: validator,
		hashCost:  bcrypt.DefaultCost,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConfirmInput lleva el email y el codigo junto al formulario que el cliente guardo.
type ConfirmInput struct {
	Email string
	Code  string
	Form  RegistrationForm
}

// Submit valida el formulario, rechaza identificadores ya registrados y emite el OTP.
func (s *RegistrationService) Submit(ctx context.Context, form RegistrationForm) error {
	form = form.Normalize()
	if err := s.validator.ValidateRegistration(form); err != nil {
		return err
	}
	if err := s.ensureAvailable(ctx, form); err != nil {
		return err
	}
	if _, err := s.ledger.Issue(ctx, form.Email); err != nil {
		return err
	}
	s.logger.Info("registration submitted", zap.String("email", form.Email), zap.String("role", form.Role))
	return nil
}

// Resend reemite el OTP de un registro en curso.
func (s *RegistrationService) Resend(ctx context.Context, emailAddr string) error {
	_, err := s.ledger.Resend(ctx, emailAddr)
	return err
}

// Confirm verifica el OTP y persiste el usuario con verified=true. El consumo del
// OTP, el contador del rol y el insert van en una sola transaccion.
func (s *RegistrationService) Confirm(ctx context.Context, in ConfirmInput) (domain.User, error) {
	form := in.Form.Normalize()
	emailAddr := domain.NormalizeEmail(in.Email)
	if emailAddr == "" {
		emailAddr = form.Email
	}
	if err := s.validator.ValidateRegistration(form); err != nil {
		return domain.User{}, err
	}
	if emailAddr != form.Email {
		return domain.User{}, newValidationError("email", "Email does not match the registration form.")
	}

	entry, err := s.ledger.Check(ctx, emailAddr, in.Code)
	if err != nil {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), s.hashCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	mobile, _ := domain.NormalizeMobile(form.Mobile, s.validator.CountryCode())
	role, _ := domain.NormalizeRole(form.Role)

	candidate := domain.User{
		ID:           uuid.NewString(),
		FirstName:    form.FirstName,
		LastName:     form.LastName,
		Mobile:       mobile,
		Aadhaar:      form.Aadhaar,
		Email:        form.Email,
		PasswordHash: string(hash),
		Roles:        []string{role},
		State:        form.State,
		District:     form.District,
		Verified:     true,
		CreatedAt:    s.now().UTC(),
	}

	user, err := s.store.CommitRegistration(ctx, candidate, entry)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return domain.User{}, ErrOTPNotFound
		case errors.Is(err, repository.ErrAlreadyExists):
			return domain.User{}, ErrAlreadyExists
		}
		s.logger.Error("commit registration failed", zap.Error(err), zap.String("email", emailAddr))
		return domain.User{}, fmt.Errorf("commit registration: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("display_id", user.DisplayID))
	return user, nil
}

// CheckVerification devuelve el flag verified del usuario con ese email.
func (s *RegistrationService) CheckVerification(ctx context.Context, emailAddr string) (bool, error) {
	emailAddr = domain.NormalizeEmail(emailAddr)
	if emailAddr == "" {
		return false, ErrMissingEmail
	}
	user, err := s.users.FindByIdentifier(ctx, domain.Identifier{Email: emailAddr})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrUserNotFound
		}
		return false, err
	}
	return user.Verified, nil
}

// ensureAvailable consulta cada campo por separado para que un campo vacio nunca
// coincida con otra fila.
func (s *RegistrationService) ensureAvailable(ctx context.Context, form RegistrationForm) error {
	mobile, _ := domain.NormalizeMobile(form.Mobile, s.validator.CountryCode())
	for _, id := range []domain.Identifier{
		{Email: form.Email},
		{Mobile: mobile},
		{Aadhaar: form.Aadhaar},
	} {
		if id.Empty() {
			continue
		}
		_, err := s.users.FindByIdentifier(ctx, id)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	return nil
}
