package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/metrics"
	"github.com/stemsi/exstem-integrity/internal/ratelimit"
	"github.com/stemsi/exstem-integrity/internal/response"
	"golang.org/x/time/rate"
)

// RateLimit applies an action preset keyed by the caller's subject. A limiter
// store failure lets the request through; throttling must never end a student's
// exam session.
func RateLimit(limiter *ratelimit.Limiter, action ratelimit.Action, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "ratelimit").Str("action", string(action)).Logger()
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		res, err := limiter.CheckAction(c.Request.Context(), action, p.SubjectID)
		if err != nil {
			log.Warn().Err(err).Str("subject", p.SubjectID).Msg("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		metrics.ObserveRateLimit(string(action), res.Allowed)
		WriteRateLimitHeaders(c, res, limiter.Now())
		if !res.Allowed {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

// WriteRateLimitHeaders sets X-RateLimit-* and, on denial, Retry-After.
func WriteRateLimitHeaders(c *gin.Context, res ratelimit.Result, now time.Time) {
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
	if !res.Allowed {
		c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter(now)/time.Second)))
	}
}

// IPThrottle is a per-IP token bucket flood guard in front of every API route.
type IPThrottle struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPThrottle allows perMinute requests per IP with an equal burst.
func NewIPThrottle(perMinute int) *IPThrottle {
	if perMinute <= 0 {
		perMinute = 600
	}
	return &IPThrottle{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		idle:     3 * time.Minute,
	}
}

// Start removes idle visitors every minute until ctx is cancelled.
func (t *IPThrottle) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.cleanup(now)
		}
	}
}

// Allow reports whether ip may make another request now.
func (t *IPThrottle) Allow(ip string) bool {
	t.mu.Lock()
	v, exists := t.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	t.mu.Unlock()

	return v.limiter.Allow()
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
func (t *IPThrottle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.Allow(c.ClientIP()) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (t *IPThrottle) cleanup(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, v := range t.visitors {
		if now.Sub(v.lastSeen) > t.idle {
			delete(t.visitors, ip)
		}
	}
}
