package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/charlesng35/bizcore/pkg/errors"
	"github.com/charlesng35/bizcore/pkg/logger"
	"github.com/charlesng35/bizcore/pkg/response"
)

const limiterSweepInterval = 5 * time.Minute

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type ipLimiter struct {
	limiters  sync.Map // map[string]*rate.Limiter
	limit     rate.Limit
	burst     int
	mu        sync.Mutex
	lastSweep time.Time
}

func (l *ipLimiter) get(key string) *rate.Limiter {
	if existing, ok := l.limiters.Load(key); ok {
		return existing.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.limit, l.burst))
	l.sweep()
	return actual.(*rate.Limiter)
}

// sweep drops limiters whose bucket has refilled, i.e. idle clients.
func (l *ipLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastSweep) < limiterSweepInterval {
		return
	}
	l.lastSweep = time.Now()
	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit throttles requests per client IP with a token bucket. A zero or
// negative rate disables limiting.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	limiter := &ipLimiter{
		limit:     rate.Limit(float64(cfg.RequestsPerMinute) / time.Minute.Seconds()),
		burst:     burst,
		lastSweep: time.Now(),
	}
	limitHeader := strconv.Itoa(cfg.RequestsPerMinute)

	return func(c *gin.Context) {
		lim := limiter.get(c.ClientIP())
		if lim.Allow() {
			c.Next()
			return
		}

		reservation := lim.Reserve()
		retryAfter := int(reservation.Delay().Seconds())
		reservation.Cancel()
		if retryAfter < 1 {
			retryAfter = 1
		}

		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.Header("X-RateLimit-Limit", limitHeader)
		logger.WithModule("http").Warn("rate limit exceeded",
			zap.String("client_ip", c.ClientIP()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("retry_after", retryAfter),
		)
		response.Error(c, errors.ErrRateLimit)
		c.Abort()
	}
}
