// README: Per-client-IP token bucket limiter with idle eviction.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// sweepAbove is the visitor count past which idle limiters are evicted.
const sweepAbove = 1024

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu         sync.Mutex
	visitors   map[string]*visitor
	every      rate.Limit
	burst      int
	idle       time.Duration
	sweepAbove int
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

func newLimiterStore(perMinute, burst int) *limiterStore {
	interval := time.Minute / time.Duration(perMinute)
	idle := time.Duration(burst) * interval // an unused bucket is full again after this
	return &limiterStore{
		visitors:   make(map[string]*visitor),
		every:      rate.Every(interval),
		burst:      burst,
		idle:       idle,
		sweepAbove: sweepAbove,
		sweepEvery: idle,
		now:        time.Now,
	}
}

func (s *limiterStore) allow(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if len(s.visitors) >= s.sweepAbove && now.Sub(s.lastSweep) >= s.sweepEvery {
		s.sweep(now)
	}
	v, ok := s.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.every, s.burst)}
		s.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (s *limiterStore) sweep(now time.Time) {
	for ip, v := range s.visitors {
		if now.Sub(v.lastSeen) >= s.idle {
			delete(s.visitors, ip)
		}
	}
	s.lastSweep = now
}

// RateLimit allows perMinute requests per client IP with the given burst.
// A non-positive perMinute disables limiting. The client IP comes from
// gin's ClientIP, so forwarding headers only count from trusted proxies.
func RateLimit(perMinute, burst int, log *zap.Logger) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	store := newLimiterStore(perMinute, burst)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !store.allow(ip) {
			log.Warn("rate limit exceeded", zap.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "Rate limit exceeded. Try again later.",
				"success": false,
			})
			return
		}
		c.Next()
	}
}
