package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTimeout drops the limiter of a client not seen for this long.
	// Zero keeps limiters forever.
	IdleTimeout time.Duration
}

// DefaultRateLimitConfig returns the diagnostics server limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		Burst:             40,
		IdleTimeout:       5 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one limiter per client IP
type limiterSet struct {
	cfg       RateLimitConfig
	now       func() time.Time
	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

func newLimiterSet(cfg RateLimitConfig, now func() time.Time) *limiterSet {
	return &limiterSet{
		cfg:       cfg,
		now:       now,
		clients:   make(map[string]*client),
		lastSweep: now(),
	}
}

func (s *limiterSet) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cfg.IdleTimeout > 0 && now.Sub(s.lastSweep) >= s.cfg.IdleTimeout {
		for key, c := range s.clients {
			if now.Sub(c.lastSeen) >= s.cfg.IdleTimeout {
				delete(s.clients, key)
			}
		}
		s.lastSweep = now
	}

	c, ok := s.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)}
		s.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	set := newLimiterSet(cfg, time.Now)
	return func(c *gin.Context) {
		limit(c, set.get(c.ClientIP()))
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	return func(c *gin.Context) {
		limit(c, limiter)
	}
}

func limit(c *gin.Context, limiter *rate.Limiter) {
	if limiter.Allow() {
		c.Next()
		return
	}

	retry := 1
	if limiter.Limit() > 0 {
		retry = int(math.Ceil(1 / float64(limiter.Limit())))
	}
	c.Header("Retry-After", strconv.Itoa(retry))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded",
	})
}
