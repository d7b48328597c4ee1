package email

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Sender entrega los codigos OTP al usuario.
type Sender interface {
	SendVerificationOTP(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendVerificationOTP(_ context.Context, _ string, _ string, _ time.Time) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

// LogSender escribe el codigo en el log en lugar de enviarlo. Solo para desarrollo.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerificationOTP(_ context.Context, toEmail string, code string, expiresAt time.Time) error {
	s.logger.Info("otp delivery (log sender)",
		zap.String("email", toEmail),
		zap.String("code", code),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}
