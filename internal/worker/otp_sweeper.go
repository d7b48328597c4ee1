package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredOTPDeleter lo cumple repository.PgOTPRepository.
type ExpiredOTPDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// OTPSweeper borra periodicamente los OTP vencidos. La verificacion ya ignora
// los vencidos; esto solo mantiene la tabla chica.
type OTPSweeper struct {
	logger   *zap.Logger
	otps     ExpiredOTPDeleter
	interval time.Duration
	now      func() time.Time
}

func NewOTPSweeper(logger *zap.Logger, otps ExpiredOTPDeleter, interval time.Duration) *OTPSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &OTPSweeper{logger: logger, otps: otps, interval: interval, now: time.Now}
}

// Run bloquea hasta que ctx se cancela.
func (s *OTPSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("otp sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("otp sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep hace una pasada y devuelve cuantas filas borro.
func (s *OTPSweeper) Sweep(ctx context.Context) int64 {
	n, err := s.otps.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("sweep expired otps failed", zap.Error(err))
		}
		return 0
	}
	if n > 0 {
		s.logger.Debug("expired otps removed", zap.Int64("count", n))
	}
	return n
}
