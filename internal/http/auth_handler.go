package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"krishilok/internal/service"
)

// AuthHandler expone registro, login y sesion bajo /api/auth.
type AuthHandler struct {
	logger  *zap.Logger
	reg     *service.RegistrationService
	login   *service.LoginService
	tokens  *service.JWTService
	cookies CookiePolicy
}

func NewAuthHandler(
	logger *zap.Logger,
	reg *service.RegistrationService,
	login *service.LoginService,
	tokens *service.JWTService,
	cookies CookiePolicy,
) *AuthHandler {
	return &AuthHandler{
		logger:  logger,
		reg:     reg,
		login:   login,
		tokens:  tokens,
		cookies: cookies,
	}
}

type confirmRequest struct {
	Email    string                   `json:"email"`
	OTP      string                   `json:"otp"`
	UserData service.RegistrationForm `json:"userData"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	OTP        string `json:"otp"`
}

// PreRegister maneja POST /pre-register.
func (h *AuthHandler) PreRegister(c *gin.Context) {
	var form service.RegistrationForm
	if err := c.ShouldBindJSON(&form); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.reg.Submit(c.Request.Context(), form); err != nil {
		h.registrationError(c, "pre-register", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP sent to email. Please verify to complete registration."})
}

// RegisterAfterOTP maneja POST /register-after-otp.
func (h *AuthHandler) RegisterAfterOTP(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	user, err := h.reg.Confirm(c.Request.Context(), service.ConfirmInput{
		Email: req.Email,
		Code:  req.OTP,
		Form:  req.UserData,
	})
	if err != nil {
		h.registrationError(c, "register-after-otp", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "User registered successfully!",
		"userId":    user.ID,
		"displayId": user.DisplayID,
	})
}

// ResendOTP maneja POST /resend-otp.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.reg.Resend(c.Request.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrMissingEmail):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Email is required."})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"message": "Too many OTP requests. Try again later."})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to send OTP email."})
		default:
			h.logger.Error("resend otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate new OTP."})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP resent successfully."})
}

// LoginPassword maneja POST /login-password.
func (h *AuthHandler) LoginPassword(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.login.LoginWithPassword(c.Request.Context(), req.Identifier, req.Password, clientInfo(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		default:
			h.loginError(c, "password", err)
		}
		return
	}
	h.startSession(c, res)
}

// LoginOTP maneja POST /login-otp.
func (h *AuthHandler) LoginOTP(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.login.LoginWithOTP(c.Request.Context(), req.Identifier, req.OTP, clientInfo(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		case errors.Is(err, service.ErrInvalidOrExpiredOTP):
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired OTP"})
		default:
			h.loginError(c, "otp", err)
		}
		return
	}
	h.startSession(c, res)
}

// RefreshToken maneja POST /refresh-token: emite un access nuevo y deja el refresh como esta.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	refresh, err := c.Cookie(RefreshCookieName)
	if err != nil || refresh == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "No refresh token"})
		return
	}

	access, err := h.tokens.Rotate(refresh)
	if err != nil {
		h.logger.Debug("refresh rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired refresh token"})
		return
	}
	h.cookies.set(c, AccessCookieName, access, h.tokens.AccessTTL())
	c.JSON(http.StatusOK, gin.H{"message": "Access token refreshed"})
}

// Logout maneja POST /logout. No hay lista negra: basta con borrar las cookies.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.cookies.clear(c, AccessCookieName)
	h.cookies.clear(c, RefreshCookieName)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// CheckAuth maneja GET /check-auth; requiere JWTAuthMiddleware.
func (h *AuthHandler) CheckAuth(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	user, err := h.login.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		h.logger.Error("load profile failed", zap.Error(err), zap.String("user_id", claims.UserID))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Authenticated", "user": user})
}

// CheckVerification maneja GET /check-verification/:email.
func (h *AuthHandler) CheckVerification(c *gin.Context) {
	verified, err := h.reg.CheckVerification(c.Request.Context(), c.Param("email"))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) || errors.Is(err, service.ErrMissingEmail) {
			c.JSON(http.StatusNotFound, gin.H{"isVerified": false})
			return
		}
		h.logger.Error("check verification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"isVerified": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"isVerified": verified})
}

func (h *AuthHandler) startSession(c *gin.Context, res service.LoginResult) {
	h.cookies.set(c, AccessCookieName, res.Tokens.AccessToken, h.tokens.AccessTTL())
	h.cookies.set(c, RefreshCookieName, res.Tokens.RefreshToken, h.tokens.RefreshTTL())
	c.JSON(http.StatusOK, gin.H{
		"userId":  res.User.ID,
		"role":    res.User.Roles,
		"message": "Login successful",
	})
}

func (h *AuthHandler) registrationError(c *gin.Context, op string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"message": verr.Message})
	case errors.Is(err, service.ErrAlreadyExists):
		c.JSON(http.StatusBadRequest, gin.H{"message": "User with this email, mobile or Aadhaar already exists."})
	case errors.Is(err, service.ErrOTPNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"message": "OTP expired or not found."})
	case errors.Is(err, service.ErrOTPExpired):
		c.JSON(http.StatusBadRequest, gin.H{"message": "OTP has expired. Please request a new one."})
	case errors.Is(err, service.ErrOTPMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Incorrect OTP."})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "Too many OTP requests. Try again later."})
	case errors.Is(err, service.ErrEmailSendFailure):
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to send OTP email."})
	default:
		h.logger.Error("registration failed", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

func (h *AuthHandler) loginError(c *gin.Context, method string, err error) {
	if errors.Is(err, service.ErrRateLimited) {
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "Too many failed attempts. Try again later."})
		return
	}
	h.logger.Error("login failed", zap.String("method", method), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
}

func (h *AuthHandler) badRequest(c *gin.Context, err error) {
	h.logger.Warn("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
}

func clientInfo(c *gin.Context) service.ClientInfo {
	return service.ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}
