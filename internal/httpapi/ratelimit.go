package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// cleanupThreshold is the minimum map size before a cleanup pass runs.
const cleanupThreshold = 500

// maxIdleAge is how long an IP's bucket sits unused before it is pruned.
const maxIdleAge = 10 * time.Minute

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP, pruning stale entries
// inline. Replaces the game server this was adapted from's always-true
// enforceRateLimit stub with a real limiter.
type ipRateLimiter struct {
	mu  sync.Mutex
	ips map[string]*ipEntry
	r   rate.Limit
	b   int
}

func newIPRateLimiter(r float64, b int) *ipRateLimiter {
	return &ipRateLimiter{
		ips: make(map[string]*ipEntry),
		r:   rate.Limit(r),
		b:   b,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.ips) > cleanupThreshold {
		cutoff := time.Now().Add(-maxIdleAge)
		for k, e := range l.ips {
			if e.lastSeen.Before(cutoff) {
				delete(l.ips, k)
			}
		}
	}

	e, ok := l.ips[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// rateLimit is gin middleware applied to room creation and join, the two
// unauthenticated endpoints most exposed to abuse.
func (s *Server) rateLimit(c *gin.Context) {
	if !s.limiter.allow(c.ClientIP()) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, slow down"})
		return
	}
	c.Next()
}
