package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const EnvProduction = "production"

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort   string   `env:"HTTP_PORT" envDefault:"5000"`
	AppEnv     string   `env:"APP_ENV" envDefault:"development"`
	LogLevel   string   `env:"LOG_LEVEL"`
	CORSOrigin []string `env:"CORS_ORIGIN" envSeparator:"," envDefault:"http://localhost:4200"`

	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	JWTAccessSecret      string `env:"JWT_ACCESS_SECRET,required,notEmpty"`
	JWTRefreshSecret     string `env:"JWT_REFRESH_SECRET,required,notEmpty"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"10080"`

	OTPTTLMinutes     int           `env:"OTP_TTL_MINUTES" envDefault:"5"`
	OTPSweepInterval  time.Duration `env:"OTP_SWEEP_INTERVAL" envDefault:"1m"`
	MobileCountryCode string        `env:"MOBILE_COUNTRY_CODE" envDefault:"91"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Krishilok"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	OTPRateLimitMax    int           `env:"OTP_RATE_LIMIT_MAX" envDefault:"0"`
	OTPRateLimitWindow time.Duration `env:"OTP_RATE_LIMIT_WINDOW" envDefault:"10m"`
	LoginMaxFailures   int           `env:"LOGIN_MAX_FAILURES" envDefault:"0"`
	LoginLockoutWindow time.Duration `env:"LOGIN_LOCKOUT_WINDOW" envDefault:"15m"`
	// ConcealUnknownUser hace que el login por OTP responda igual para usuarios inexistentes.
	ConcealUnknownUser bool `env:"LOGIN_CONCEAL_UNKNOWN_USER" envDefault:"false"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate revisa combinaciones que env no puede expresar con tags.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTAccessSecret) == strings.TrimSpace(c.JWTRefreshSecret) {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.JWTAccessTTLMinutes <= 0 || c.JWTRefreshTTLMinutes <= 0 {
		return errors.New("jwt ttl must be positive")
	}
	if c.JWTAccessTTLMinutes >= c.JWTRefreshTTLMinutes {
		return errors.New("access token ttl must be shorter than refresh token ttl")
	}
	if c.OTPTTLMinutes <= 0 {
		return errors.New("OTP_TTL_MINUTES must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), EnvProduction)
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLMinutes) * time.Minute
}

func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}
