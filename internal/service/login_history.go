package service

import (
	"context"
	"strings"
	"time"

	"github.com/mssola/useragent"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"krishilok/internal/domain"
	"krishilok/internal/repository"
)

const (
	LoginMethodPassword = "password"
	LoginMethodOTP      = "otp"
)

// ClientInfo describe el origen de una peticion de login.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type LoginAttempt struct {
	Identifier string
	UserID     string
	Method     string
	Success    bool
	Client     ClientInfo
}

// LoginRecorder guarda cada intento. No devuelve error: un fallo de auditoria
// nunca debe cambiar la respuesta del login.
type LoginRecorder interface {
	Record(ctx context.Context, attempt LoginAttempt)
}

type HistoryRecorder struct {
	logger *zap.Logger
	repo   repository.LoginHistoryRepository
	now    func() time.Time
}

func NewHistoryRecorder(logger *zap.Logger, repo repository.LoginHistoryRepository) *HistoryRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRecorder{logger: logger, repo: repo, now: time.Now}
}

func (r *HistoryRecorder) Record(ctx context.Context, attempt LoginAttempt) {
	entry := domain.LoginHistoryEntry{
		ID:         ksuid.New().String(),
		Identifier: strings.TrimSpace(attempt.Identifier),
		UserID:     attempt.UserID,
		IP:         attempt.Client.IP,
		Device:     DescribeDevice(attempt.Client.UserAgent),
		Method:     attempt.Method,
		Success:    attempt.Success,
		CreatedAt:  r.now().UTC(),
	}
	if r.repo == nil {
		return
	}
	if err := r.repo.Append(ctx, entry); err != nil {
		r.logger.Warn("record login history failed",
			zap.Error(err),
			zap.String("method", entry.Method),
			zap.Bool("success", entry.Success),
		)
	}
}

// DescribeDevice resume el user agent en tipo, navegador y sistema operativo.
func DescribeDevice(ua string) domain.Device {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return domain.Device{Type: "unknown"}
	}
	parsed := useragent.New(ua)
	browser, version := parsed.Browser()
	deviceType := "desktop"
	switch {
	case parsed.Bot():
		deviceType = "bot"
	case parsed.Mobile():
		deviceType = "mobile"
	}
	return domain.Device{
		Type:      deviceType,
		Browser:   browser,
		Version:   version,
		OS:        parsed.OS(),
		UserAgent: ua,
	}
}
