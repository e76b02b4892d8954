package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the limit for a specific route or group.
type RateLimitConfig struct {
	Max    int                      // Burst size, and requests refilled per Window
	Window time.Duration            // Time to refill a drained bucket
	KeyFn  func(c fiber.Ctx) string // Returns the key to rate limit on (IP, userID, etc.)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key. A key may spend Max requests
// at once and regains them evenly over Window.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	config   RateLimitConfig
	refill   rate.Limit
}

// NewRateLimiter creates a rate limiter with the given config.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		config:   cfg,
		refill:   rate.Limit(float64(cfg.Max) / cfg.Window.Seconds()),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) bucket(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.refill, rl.config.Max)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Handler returns a Fiber middleware handler that enforces the rate limit.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		now := time.Now()
		lim := rl.bucket(rl.config.KeyFn(c), now)

		allowed := lim.AllowN(now, 1)
		tokens := lim.TokensAt(now)
		setRateLimitHeaders(c, rl.config.Max, int(math.Floor(tokens)), now.Add(rl.untilTokens(tokens, float64(rl.config.Max))))

		if !allowed {
			retryAfter := int(math.Ceil(rl.untilTokens(tokens, 1).Seconds()))
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fiber.Map{
					"code":       "RATE_LIMITED",
					"message":    "Too many requests. Try again in " + strconv.Itoa(retryAfter) + " seconds.",
					"retryAfter": retryAfter,
				},
			})
		}

		return c.Next()
	}
}

// Allow spends one token for key and reports whether it was available.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()
	return rl.bucket(key, now).AllowN(now, 1)
}

// untilTokens is how long the bucket needs to refill from tokens to want.
func (rl *RateLimiter) untilTokens(tokens, want float64) time.Duration {
	missing := want - tokens
	if missing <= 0 || rl.refill <= 0 {
		return 0
	}
	return time.Duration(missing / float64(rl.refill) * float64(time.Second))
}

func setRateLimitHeaders(c fiber.Ctx, limit, remaining int, fullAt time.Time) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(fullAt.Unix(), 10))
}

// cleanup drops buckets idle for a full window; they would be full again.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.config.Window)
		for key, v := range rl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

// KeyByIP returns the client IP as the rate limit key.
func KeyByIP(c fiber.Ctx) string {
	return "ip:" + c.IP()
}

// KeyByUserID keys on the authenticated user set by RequireAuth.
// Falls back to IP for anonymous requests.
func KeyByUserID(c fiber.Ctx) string {
	if uid := UserID(c); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.IP()
}

// --- Pre-configured rate limiters per route group ---

// NewReadRateLimiter: 100 req/min per IP
func NewReadRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Max:    100,
		Window: time.Minute,
		KeyFn:  KeyByIP,
	})
}

// NewSubmitRateLimiter: 10 req/min per user
func NewSubmitRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Max:    10,
		Window: time.Minute,
		KeyFn:  KeyByUserID,
	})
}

// NewValidateRateLimiter: 30 req/min per user
func NewValidateRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Max:    30,
		Window: time.Minute,
		KeyFn:  KeyByUserID,
	})
}

// NewAuthRateLimiter: 10 req/min per IP
func NewAuthRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Max:    10,
		Window: time.Minute,
		KeyFn:  KeyByIP,
	})
}

// NewGeoRateLimiter: 30 req/min per user
func NewGeoRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Max:    30,
		Window: time.Minute,
		KeyFn:  KeyByUserID,
	})
}

// NewSyncRateLimiter: 6 req/min per user
func NewSyncRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Max:    6,
		Window: time.Minute,
		KeyFn:  KeyByUserID,
	})
}

// NewStatsRateLimiter: 10 req/min per IP
func NewStatsRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Max:    10,
		Window: time.Minute,
		KeyFn:  KeyByIP,
	})
}

// NewExportRateLimiter: 1 req/hour per user
func NewExportRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Max:    1,
		Window: time.Hour,
		KeyFn:  KeyByUserID,
	})
}
