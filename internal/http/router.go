package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthChecker lo cumple *pgxpool.Pool.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	allowedOrigins []string,
	authH *AuthHandler,
	jwtMw gin.HandlerFunc,
	health HealthChecker,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery, CORS con credenciales y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), corsMiddleware(allowedOrigins), jsonContentTypeMiddleware())

	r.GET("/healthz", healthHandler(health))

	auth := r.Group("/api/auth")
	auth.POST("/pre-register", authH.PreRegister)
	auth.POST("/register-after-otp", authH.RegisterAfterOTP)
	auth.POST("/resend-otp", authH.ResendOTP)
	auth.GET("/check-verification/:email", authH.CheckVerification)
	auth.POST("/login-password", authH.LoginPassword)
	auth.POST("/login-otp", authH.LoginOTP)
	auth.POST("/refresh-token", authH.RefreshToken)
	auth.POST("/logout", authH.Logout)
	auth.GET("/check-auth", jwtMw, authH.CheckAuth)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:4200"}
	}
	return cors.New(cfg)
}

func healthHandler(health HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
