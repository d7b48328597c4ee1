package client

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// resettableJar permite tirar todas las cookies en el logout; cookiejar.Jar no
// tiene un metodo para eso.
type resettableJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newResettableJar() *resettableJar {
	return &resettableJar{jar: newCookieJar()}
}

func newCookieJar() *cookiejar.Jar {
	// cookiejar.New solo falla con opciones invalidas.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}

func (j *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

func (j *resettableJar) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar = newCookieJar()
}
