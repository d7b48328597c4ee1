package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"krishilok/internal/domain"
	"krishilok/internal/email"
	"krishilok/internal/repository"
)

const DefaultOTPTTL = 5 * time.Minute

// OTPLedger emite y verifica codigos de un solo uso, uno vivo por email.
type OTPLedger struct {
	logger    *zap.Logger
	otps      repository.OTPRepository
	sender    email.Sender
	limiter   OTPRateLimiter
	ttl       time.Duration
	logCodes  bool
	now       func() time.Time
	generator func() (string, string, error)
}

type OTPLedgerOption func(*OTPLedger)

// WithOTPTTL cambia la vigencia de los codigos.
func WithOTPTTL(ttl time.Duration) OTPLedgerOption {
	return func(l *OTPLedger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithOTPRateLimiter limita las emisiones por email.
func WithOTPRateLimiter(limiter OTPRateLimiter) OTPLedgerOption {
	return func(l *OTPLedger) { l.limiter = limiter }
}

// WithCodeLogging escribe el codigo en debug; solo fuera de produccion.
func WithCodeLogging(enabled bool) OTPLedgerOption {
	return func(l *OTPLedger) { l.logCodes = enabled }
}

func WithOTPClock(now func() time.Time) OTPLedgerOption {
	return func(l *OTPLedger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewOTPLedger(logger *zap.Logger, otps repository.OTPRepository, sender email.Sender, opts ...OTPLedgerOption) *OTPLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &OTPLedger{
		logger:    logger,
		otps:      otps,
		sender:    sender,
		ttl:       DefaultOTPTTL,
		now:       time.Now,
		generator: generateOTP,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Issue reemplaza cualquier codigo previo del email, guarda uno nuevo y lo envia.
// El codigo devuelto es para logs y tests; nunca debe viajar en una respuesta HTTP.
func (l *OTPLedger) Issue(ctx context.Context, emailAddr string) (string, error) {
	return l.issue(ctx, emailAddr, "issue")
}

// Resend tiene el mismo efecto que Issue; solo cambia el registro en el log.
func (l *OTPLedger) Resend(ctx context.Context, emailAddr string) (string, error) {
	return l.issue(ctx, emailAddr, "resend")
}

func (l *OTPLedger) issue(ctx context.Context, emailAddr, reason string) (string, error) {
	emailAddr = domain.NormalizeEmail(emailAddr)
	if emailAddr == "" {
		return "", ErrMissingEmail
	}
	if l.limiter != nil && !l.limiter.Allow(ctx, emailAddr) {
		return "", ErrRateLimited
	}

	if l.sender == nil {
		return "", ErrEmailSendFailure
	}

	code, hash, err := l.generator()
	if err != nil {
		return "", err
	}
	now := l.now().UTC()
	entry := domain.OTPEntry{
		ID:        uuid.NewString(),
		Email:     emailAddr,
		CodeHash:  hash,
		ExpiresAt: now.Add(l.ttl),
		CreatedAt: now,
	}
	if err := l.otps.Replace(ctx, entry); err != nil {
		return "", err
	}

	if err := l.sender.SendVerificationOTP(ctx, emailAddr, code, entry.ExpiresAt); err != nil {
		l.logger.Warn("send otp failed", zap.Error(err), zap.String("email", emailAddr), zap.String("reason", reason))
		l.discard(ctx, entry)
		return "", ErrEmailSendFailure
	}

	l.logger.Info("otp issued", zap.String("email", emailAddr), zap.String("reason", reason))
	if l.logCodes {
		l.logger.Debug("otp code", zap.String("email", emailAddr), zap.String("code", code))
	}
	return code, nil
}

// discard borra el codigo que no se pudo entregar, para que el email quede sin
// OTP vivo y el usuario pida otro con resend.
func (l *OTPLedger) discard(ctx context.Context, entry domain.OTPEntry) {
	ctx = context.WithoutCancel(ctx)
	if err := l.otps.Consume(ctx, entry); err != nil && !errors.Is(err, repository.ErrNotFound) {
		l.logger.Error("discard undelivered otp failed", zap.Error(err), zap.String("email", entry.Email))
	}
}

// Check valida el codigo sin consumirlo. El registro lo consume dentro de su
// propia transaccion.
func (l *OTPLedger) Check(ctx context.Context, emailAddr, code string) (domain.OTPEntry, error) {
	emailAddr = domain.NormalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	if emailAddr == "" {
		return domain.OTPEntry{}, ErrMissingEmail
	}

	entry, err := l.otps.Latest(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.OTPEntry{}, ErrOTPNotFound
		}
		return domain.OTPEntry{}, err
	}
	if entry.Expired(l.now().UTC()) {
		return domain.OTPEntry{}, ErrOTPExpired
	}
	if !isValidOTPCode(code) || !verifyOTP(code, entry.CodeHash) {
		return domain.OTPEntry{}, ErrOTPMismatch
	}
	return entry, nil
}

// Verify valida y consume el codigo: un segundo uso devuelve ErrOTPNotFound.
func (l *OTPLedger) Verify(ctx context.Context, emailAddr, code string) error {
	entry, err := l.Check(ctx, emailAddr, code)
	if err != nil {
		return err
	}
	if err := l.otps.Consume(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOTPNotFound
		}
		return err
	}
	return nil
}
