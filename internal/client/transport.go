package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Transport reintenta una sola vez una peticion que devolvio 401, despues de
// renovar el access token. Si la renovacion falla llama a OnRefreshFailure y
// devuelve el 401 original.
//
// Por defecto solo un 401 a la vez dispara la renovacion; los que llegan
// mientras hay una en curso se devuelven tal cual. Con JoinInFlightRefresh
// esos 401 esperan a la renovacion en curso y se reintentan tambien.
type Transport struct {
	Base http.RoundTripper
	// Jar se usa para reescribir el header Cookie del reintento; http.Client
	// ya agrego las cookies viejas antes de llamar a RoundTrip.
	Jar     http.CookieJar
	Session *SessionState

	Refresh          func(ctx context.Context) error
	OnRefreshFailure func(err error)

	// RefreshPath nunca se intercepta.
	RefreshPath string
	// PublicPaths son prefijos de ruta que no requieren sesion.
	PublicPaths []string
	// PublicRoute indica si la pantalla actual es publica (login, registro).
	PublicRoute func() bool

	JoinInFlightRefresh bool

	refreshing atomic.Bool
	group      singleflight.Group
}

// refreshKey marca el contexto de las peticiones que salen desde Refresh.
type refreshKey struct{}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.RefreshPath != "" && req.URL.Path == t.RefreshPath {
		return t.base().RoundTrip(req)
	}
	// un 401 durante la renovacion nunca dispara otra
	if req.Context().Value(refreshKey{}) != nil {
		return t.base().RoundTrip(req)
	}

	replay, err := bodyReplayer(req)
	if err != nil {
		return nil, err
	}
	first, err := cloneRequest(req, replay)
	if err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if t.Refresh == nil || t.isPublic(req) {
		return resp, nil
	}
	if !t.refresh(req.Context()) {
		return resp, nil
	}

	drain(resp)
	retry, err := cloneRequest(req, replay)
	if err != nil {
		return nil, err
	}
	t.reloadCookies(retry)
	return t.base().RoundTrip(retry)
}

// refresh devuelve true si el reintento debe hacerse.
func (t *Transport) refresh(ctx context.Context) bool {
	if t.JoinInFlightRefresh {
		_, err, _ := t.group.Do("refresh", func() (any, error) {
			return nil, t.doRefresh(ctx)
		})
		return err == nil
	}

	if !t.refreshing.CompareAndSwap(false, true) {
		return false
	}
	defer t.refreshing.Store(false)
	return t.doRefresh(ctx) == nil
}

func (t *Transport) doRefresh(ctx context.Context) error {
	ctx = context.WithValue(ctx, refreshKey{}, true)
	if err := t.Refresh(ctx); err != nil {
		if t.OnRefreshFailure != nil {
			t.OnRefreshFailure(err)
		}
		return err
	}
	if t.Session != nil {
		t.Session.MarkAuthenticated()
	}
	return nil
}

func (t *Transport) isPublic(req *http.Request) bool {
	if t.PublicRoute != nil && t.PublicRoute() {
		return true
	}
	for _, p := range t.PublicPaths {
		if p != "" && strings.HasPrefix(req.URL.Path, p) {
			return true
		}
	}
	return false
}

func (t *Transport) reloadCookies(req *http.Request) {
	if t.Jar == nil {
		return
	}
	req.Header.Del("Cookie")
	for _, c := range t.Jar.Cookies(req.URL) {
		req.AddCookie(c)
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// bodyReplayer devuelve nil si la peticion no tiene cuerpo.
func bodyReplayer(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func cloneRequest(req *http.Request, replay func() (io.ReadCloser, error)) (*http.Request, error) {
	out := req.Clone(req.Context())
	if replay != nil {
		body, err := replay()
		if err != nil {
			return nil, err
		}
		out.Body = body
		out.GetBody = replay
	}
	return out, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
