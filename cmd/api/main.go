package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"krishilok/internal/config"
	"krishilok/internal/db"
	"krishilok/internal/email"
	apihttp "krishilok/internal/http"
	"krishilok/internal/logger"
	"krishilok/internal/repository"
	"krishilok/internal/service"
	"krishilok/internal/worker"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Ping(ctx, pool); err != nil {
		lg.Fatal("db ping", zap.Error(err))
	}
	if err := db.Migrate(ctx, pool); err != nil {
		lg.Fatal("db migrate", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	otpRepo := repository.NewPgOTPRepository(pool)
	registrationStore := repository.NewPgRegistrationStore(pool)
	historyRepo := repository.NewPgLoginHistoryRepository(pool)

	emailSender := newEmailSender(cfg, lg)

	otpLimiter := service.NewOTPRateLimiter(cfg.OTPRateLimitWindow, cfg.OTPRateLimitMax)
	loginLimiter := service.NewMemoryLoginLimiter(cfg.LoginLockoutWindow, cfg.LoginMaxFailures)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			lg.Warn("redis ping failed, using in-memory limiters", zap.Error(err))
		} else {
			otpLimiter = service.NewRedisOTPRateLimiter(redisClient, cfg.OTPRateLimitWindow, cfg.OTPRateLimitMax)
			loginLimiter = service.NewRedisLoginLimiter(redisClient, cfg.LoginLockoutWindow, cfg.LoginMaxFailures)
		}
		cancel()
	}

	ledger := service.NewOTPLedger(lg, otpRepo, emailSender,
		service.WithOTPTTL(cfg.OTPTTL()),
		service.WithOTPRateLimiter(otpLimiter),
		service.WithCodeLogging(!cfg.IsProduction()),
	)
	jwtSvc := service.NewJWTService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	registrationSvc := service.NewRegistrationService(lg, userRepo, registrationStore, ledger, service.NewFormValidator(cfg.MobileCountryCode))
	loginSvc := service.NewLoginService(lg, userRepo, ledger, jwtSvc,
		service.NewHistoryRecorder(lg, historyRepo),
		loginLimiter,
		service.LoginConfig{CountryCode: cfg.MobileCountryCode, ConcealUnknownUser: cfg.ConcealUnknownUser},
	)

	authHandler := apihttp.NewAuthHandler(lg, registrationSvc, loginSvc, jwtSvc, apihttp.NewCookiePolicy(cfg.IsProduction()))
	router := apihttp.NewRouter(lg, cfg.CORSOrigin, authHandler, apihttp.JWTAuthMiddleware(jwtSvc), pool)

	go worker.NewOTPSweeper(lg, otpRepo, cfg.OTPSweepInterval).Run(ctx)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Warn("server shutdown", zap.Error(err))
		}
	}()

	lg.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Fatal("server error", zap.Error(err))
	}
	lg.Info("server stopped")
}

// newEmailSender usa SMTP si esta configurado; sin SMTP, en desarrollo los
// codigos solo se loguean y en produccion el envio falla.
func newEmailSender(cfg *config.Config, lg *zap.Logger) email.Sender {
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err == nil {
			return sender
		}
		lg.Warn("smtp sender init failed", zap.Error(err))
	}
	if cfg.IsProduction() {
		return email.NewDisabledSender("email sender not configured")
	}
	return email.NewLogSender(lg)
}
