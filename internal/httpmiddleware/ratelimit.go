package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"labattend/internal/clock"
)

// TokenBucket is an in-memory per-client limiter. A scanner gun can fire
// several reads a second, so capacity should comfortably exceed that.
type TokenBucket struct {
	capacity int
	rate     int // tokens per minute
	clock    clock.Clock

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a limiter with capacity tokens refilled at
// perMinute. A nil clock uses wall time.
func NewTokenBucket(capacity, perMinute int, c clock.Clock) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	if c == nil {
		c = clock.Real{}
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		clock:    c,
		state:    make(map[string]*bucket),
	}
}

// Middleware enforces per-IP limits. A non-positive rate disables it.
func (l *TokenBucket) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rate <= 0 {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.Allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// Allow takes one token for key.
func (l *TokenBucket) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: float64(l.capacity - 1), last: now}
		return true
	}
	b.tokens += float64(now.Sub(b.last)) * float64(l.rate) / float64(time.Minute)
	if b.tokens > float64(l.capacity) {
		b.tokens = float64(l.capacity)
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
