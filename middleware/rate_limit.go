package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/p2einferno/inferno-checkin/config"
	"github.com/p2einferno/inferno-checkin/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
	mu      sync.Mutex
}

var (
	limiters   = map[string]*rateLimiter{}
	limitersMu sync.Mutex
)

// RateLimitMiddleware applies a per-IP token bucket sized from configuration.
func RateLimitMiddleware() gin.HandlerFunc {
	return RateLimit(config.Get().RateLimitPerMinute, func(ctx *gin.Context) string { return ctx.ClientIP() })
}

// RateLimitPerSubject keys the bucket on the authenticated subject, falling back to the
// client IP. Must run after AuthRequired.
func RateLimitPerSubject(perMinute int) gin.HandlerFunc {
	return RateLimit(perMinute, func(ctx *gin.Context) string {
		if sub := ctx.GetString(ContextSubjectKey); sub != "" {
			return "sub:" + sub
		}
		return ctx.ClientIP()
	})
}

// RateLimit builds a token-bucket limiter allowing perMinute requests per key.
func RateLimit(perMinute int, keyFn func(*gin.Context) string) gin.HandlerFunc {
	r := rate.Every(time.Minute / time.Duration(max(perMinute, 1)))
	burst := max(perMinute/2, 1)

	return func(ctx *gin.Context) {
		limiter := getLimiter(keyFn(ctx), r, burst)

		limiter.mu.Lock()
		allowed := limiter.limiter.Allow()
		limiter.mu.Unlock()

		if !allowed {
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

func getLimiter(key string, limit rate.Limit, burst int) *rateLimiter {
	limitersMu.Lock()
	defer limitersMu.Unlock()

	now := time.Now()
	for k, l := range limiters {
		if now.After(l.expires) {
			delete(limiters, k)
		}
	}

	if limiter, ok := limiters[key]; ok {
		limiter.expires = now.Add(5 * time.Minute)
		return limiter
	}

	limiter := &rateLimiter{
		limiter: rate.NewLimiter(limit, burst),
		expires: now.Add(5 * time.Minute),
	}
	limiters[key] = limiter
	return limiter
}
