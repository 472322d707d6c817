package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const ownerKey = "owner_id"

// Authenticator checks an owner's API secret.
type Authenticator interface {
	Authenticate(owner, secret string) bool
}

// OwnerAuth authenticates every request with HTTP basic auth and stores the
// owner id on the context.
func OwnerAuth(authn Authenticator) echo.MiddlewareFunc {
	return middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Realm: "drive",
		Validator: func(owner, secret string, c echo.Context) (bool, error) {
			if !authn.Authenticate(owner, secret) {
				slog.Warn("authentication failed", "owner_id", owner, "ip", c.RealIP())
				return false, nil
			}
			c.Set(ownerKey, owner)
			return true, nil
		},
	})
}

func ownerID(c echo.Context) string {
	owner, _ := c.Get(ownerKey).(string)
	return owner
}

const (
	visitorTTL = 10 * time.Minute
	sweepEvery = 5 * time.Minute
)

// visitor tracks the rate limit state for a single owner.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-owner token-bucket rate limiter. Requests without an
// owner are keyed by client IP. Idle entries are dropped during later calls.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a rate limiter with the given rate (requests/sec) and burst size.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors:  make(map[string]*visitor),
		rate:      rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Middleware returns an echo middleware function that enforces rate limits.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := ownerID(c)
			if key == "" {
				key = c.RealIP()
			}
			if !rl.allow(key) {
				slog.Warn("rate limit exceeded", "key", key, "path", c.Path())
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error": "rate limit exceeded, try again later",
				})
			}
			return next(c)
		}
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.lastSweep) >= sweepEvery {
		rl.sweep(now)
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// sweep drops visitors idle for longer than visitorTTL. Callers hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, key)
		}
	}
	rl.lastSweep = now
}

// RequestLogger returns an echo middleware that logs requests using slog.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			slog.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
				"owner_id", ownerID(c),
				"bytes_out", res.Size,
			)

			return err
		}
	}
}
