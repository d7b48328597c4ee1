package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"krishilok/internal/service"
)

const authClaimsKey = "auth_claims"

// JWTAuthMiddleware valida el access token de la cookie y guarda los claims en
// el contexto. Sin cookie acepta un header Authorization: Bearer.
func JWTAuthMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}

		token := accessTokenFrom(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Access token missing"})
			return
		}

		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

func accessTokenFrom(c *gin.Context) string {
	if token, err := c.Cookie(AccessCookieName); err == nil && strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token)
	}
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > len("bearer ") && strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return ""
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}
