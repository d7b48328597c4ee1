package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "krishilok:"

// windowIncrScript suma un hit y abre la ventana con el primero; devuelve el
// total acumulado dentro de la ventana.
const windowIncrScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

// OTPRateLimiter limita cuantas veces se emite un OTP para el mismo email.
// Cada pedido cuenta, aunque el envio despues falle.
type OTPRateLimiter interface {
	Allow(ctx context.Context, email string) bool
}

type memoryIssueLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewOTPRateLimiter devuelve nil si max <= 0 (emision sin limite).
func NewOTPRateLimiter(window time.Duration, max int) OTPRateLimiter {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &memoryIssueLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (l *memoryIssueLimiter) Allow(_ context.Context, email string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.hits[email][:0]
	for _, ts := range l.hits[email] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[email] = kept
		return false
	}
	l.hits[email] = append(kept, now)
	return true
}

type redisScripter interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// windowCounter es un contador por clave que expira una ventana despues del
// primer hit. Lo comparten el limite de OTP y el bloqueo de login.
type windowCounter struct {
	client redisScripter
	scope  string
	window time.Duration
}

func (c windowCounter) key(id string) string {
	return redisKeyPrefix + c.scope + ":" + strings.ToLower(strings.TrimSpace(id))
}

func (c windowCounter) incr(ctx context.Context, id string) (int64, error) {
	return c.client.Eval(ctx, windowIncrScript, []string{c.key(id)}, c.window.Milliseconds()).Int64()
}

func (c windowCounter) count(ctx context.Context, id string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(id)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (c windowCounter) reset(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

type redisIssueLimiter struct {
	counter windowCounter
	max     int64
}

// NewRedisOTPRateLimiter comparte el limite entre instancias. Devuelve nil sin
// cliente o con max <= 0.
func NewRedisOTPRateLimiter(client redis.Cmdable, window time.Duration, max int) OTPRateLimiter {
	if client == nil || max <= 0 {
		return nil
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &redisIssueLimiter{
		counter: windowCounter{client: client, scope: "otp-issue", window: window},
		max:     int64(max),
	}
}

// Allow deja pasar si Redis falla: sin Redis el registro tiene que seguir andando.
func (l *redisIssueLimiter) Allow(ctx context.Context, email string) bool {
	if strings.TrimSpace(email) == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	n, err := l.counter.incr(ctx, email)
	if err != nil {
		return true
	}
	return n <= l.max
}

// LoginLimiter cuenta intentos fallidos por identificador y bloquea al superar el maximo.
type LoginLimiter interface {
	Locked(ctx context.Context, key string) bool
	RecordFailure(ctx context.Context, key string)
	Reset(ctx context.Context, key string)
}

type memoryLoginLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	failures map[string]loginFailures
	now      func() time.Time
}

type loginFailures struct {
	count int
	until time.Time
}

// NewMemoryLoginLimiter devuelve nil si max <= 0 (sin bloqueo).
func NewMemoryLoginLimiter(window time.Duration, max int) LoginLimiter {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &memoryLoginLimiter{
		window:   window,
		max:      max,
		failures: make(map[string]loginFailures),
		now:      time.Now,
	}
}

func (l *memoryLoginLimiter) Locked(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.failures[key]
	if !ok {
		return false
	}
	if !l.now().Before(f.until) {
		delete(l.failures, key)
		return false
	}
	return f.count >= l.max
}

func (l *memoryLoginLimiter) RecordFailure(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	f := l.failures[key]
	if !now.Before(f.until) {
		f = loginFailures{until: now.Add(l.window)}
	}
	f.count++
	l.failures[key] = f
}

func (l *memoryLoginLimiter) Reset(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, key)
}

type redisLoginLimiter struct {
	counter windowCounter
	max     int64
}

func NewRedisLoginLimiter(client redis.Cmdable, window time.Duration, max int) LoginLimiter {
	if client == nil || max <= 0 {
		return nil
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &redisLoginLimiter{
		counter: windowCounter{client: client, scope: "login-fail", window: window},
		max:     int64(max),
	}
}

func (l *redisLoginLimiter) Locked(ctx context.Context, key string) bool {
	n, err := l.counter.count(ctx, key)
	return err == nil && n >= l.max
}

func (l *redisLoginLimiter) RecordFailure(ctx context.Context, key string) {
	_, _ = l.counter.incr(ctx, key)
}

func (l *redisLoginLimiter) Reset(ctx context.Context, key string) {
	_ = l.counter.reset(ctx, key)
}
