package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

// CookiePolicy fija los flags de las cookies de sesion segun el entorno.
// En produccion el SPA vive en otro origen, por eso SameSite=None con Secure.
type CookiePolicy struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

func NewCookiePolicy(production bool) CookiePolicy {
	if production {
		return CookiePolicy{Secure: true, SameSite: http.SameSiteNoneMode}
	}
	return CookiePolicy{Secure: false, SameSite: http.SameSiteLaxMode}
}

func (p CookiePolicy) set(c *gin.Context, name, value string, ttl time.Duration) {
	c.SetSameSite(p.SameSite)
	c.SetCookie(name, value, int(ttl.Seconds()), "/", p.Domain, p.Secure, true)
}

func (p CookiePolicy) clear(c *gin.Context, name string) {
	c.SetSameSite(p.SameSite)
	c.SetCookie(name, "", -1, "/", p.Domain, p.Secure, true)
}
