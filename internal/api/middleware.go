package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// endpointClass distinguishes the two rate-limit tiers named in configuration.
type endpointClass int

const (
	classStandard endpointClass = iota
	classTrading
)

// RateLimitConfig carries the two per-minute budgets from configuration.
type RateLimitConfig struct {
	PerMinute        int
	TradingPerMinute int
}

// rateLimiters is a token-bucket limiter (golang.org/x/time/rate: refill
// of perMinute/60 per second, burst of perMinute) keyed by client IP, one
// bucket per endpoint class, held in process memory and not shared across
// instances; it is not a sliding window. Grounded on the teacher's internal/api/middleware.go
// per-IP rate.Limiter map and generalized per r3e's
// infrastructure/ratelimit.RateLimiter (a standard and a trading class
// instead of one flat budget).
type rateLimiters struct {
	mu       sync.Mutex
	standard map[string]*rate.Limiter
	trading  map[string]*rate.Limiter
	cfg      RateLimitConfig
}

func newRateLimiters(cfg RateLimitConfig) *rateLimiters {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 100
	}
	if cfg.TradingPerMinute <= 0 {
		cfg.TradingPerMinute = 10
	}
	return &rateLimiters{
		standard: make(map[string]*rate.Limiter),
		trading:  make(map[string]*rate.Limiter),
		cfg:      cfg,
	}
}

func (rl *rateLimiters) allow(class endpointClass, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket := rl.standard
	perMinute := rl.cfg.PerMinute
	if class == classTrading {
		bucket = rl.trading
		perMinute = rl.cfg.TradingPerMinute
	}

	lim, ok := bucket[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		bucket[key] = lim
	}
	return lim.Allow()
}

// rateLimit enforces the token-bucket budget for the given class, keyed
// by client IP (a trader-facing deployment would key by user id instead,
// but this module has no auth layer of its own — see ChallengeReader).
func (s *Server) rateLimit(class endpointClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limits.allow(class, c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
