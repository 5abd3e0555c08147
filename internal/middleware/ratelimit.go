// Package middleware provides HTTP middleware for the matchmaker's public
// API surface.
package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apierrors "github.com/pixelstream-dev/matchmaker/internal/errors"
	"github.com/pixelstream-dev/matchmaker/internal/model"
)

// RateLimiter implements per-IP rate limiting using token bucket algorithm.
// The rate is derived from the configured window and request budget, so a
// window of 900 000 ms with 100 requests yields one token every 9 s with a
// burst of 100.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
}

// NewRateLimiter creates a rate limiter allowing maxRequests per window.
func NewRateLimiter(window time.Duration, maxRequests int) *RateLimiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(maxRequests) / window.Seconds()),
		burst:    maxRequests,
		cleanup:  5 * time.Minute, // Check the limiter map size every 5 minutes
	}

	// Start cleanup goroutine to prevent memory leaks
	go rl.cleanupRoutine()

	return rl
}

// getLimiter returns the rate limiter for the given key (usually IP address)
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		if limiter, exists = rl.limiters[key]; !exists {
			limiter = rate.NewLimiter(rl.rate, rl.burst)
			rl.limiters[key] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

// cleanupRoutine periodically drops every limiter once the map holds more
// than 10000 keys. Usage is not tracked; smaller maps are left as they are.
func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		// Reset the map when it grows past a sane bound.
		if len(rl.limiters) > 10000 {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		rl.mu.Unlock()
	}
}

// Middleware returns a Gin middleware that rate limits requests by IP
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getLimiter(c.ClientIP())

		if !limiter.Allow() {
			appErr := apierrors.New(apierrors.ErrCodeRateLimitExceeded, "Too many requests")
			c.AbortWithStatusJSON(appErr.StatusCode, model.Fail(time.Now(), appErr.Message))
			return
		}

		c.Next()
	}
}
