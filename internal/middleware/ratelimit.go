package middleware

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/metrics"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/ratelimit"
)

func getIP(c *fiber.Ctx) string {
	ip := c.IP()
	if ip == "" {
		ip = "unknown"
	}
	host, _, err := net.SplitHostPort(ip)
	if err == nil {
		return host
	}
	return ip
}

// SensitiveLimiter counts attempts per scope and caller (user id when signed
// in, otherwise client IP) in a fixed window. Store errors let the request
// through.
func SensitiveLimiter(l *ratelimit.Limiter, scope string, log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := getIP(c)
		if p, ok := CurrentPrincipal(c); ok {
			identity = p.UserID.String()
		}
		d, err := l.Hit(c.UserContext(), scope, identity)
		if err != nil {
			log.Warnw("rate limit store unavailable", "scope", scope, "error", err)
			return c.Next()
		}
		c.Set("X-RateLimit-Limit", strconv.FormatInt(l.Max, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		if !d.Allowed {
			metrics.RateLimited.WithLabelValues(scope).Inc()
			log.Warnw("sensitive rate limit exceeded", "scope", scope, "identity", identity, "count", d.Count)
			return apperror.TooManyRequests(d.RetryAfter)
		}
		return c.Next()
	}
}

// IPRateLimiter is a per-IP token bucket applied to the whole API.
type IPRateLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
	log      *zap.SugaredLogger
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

func NewIPRateLimiter(perMinute int, log *zap.SugaredLogger) *IPRateLimiter {
	burst := perMinute / 6
	if burst < 5 {
		burst = 5
	}
	return &IPRateLimiter{
		rps:   rate.Limit(float64(perMinute) / 60.0),
		burst: burst,
		log:   log,
	}
}

func (l *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	v, _ := l.visitors.LoadOrStore(ip, &visitor{limiter: rate.NewLimiter(l.rps, l.burst)})
	vi := v.(*visitor)
	vi.mu.Lock()
	vi.lastSeen = time.Now()
	vi.mu.Unlock()
	return vi.limiter
}

// Cleanup forgets visitors idle for more than five minutes, once a minute,
// until stop is closed.
func (l *IPRateLimiter) Cleanup(stop <-chan struct{}) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			cutoff := time.Now().Add(-5 * time.Minute)
			l.visitors.Range(func(k, v any) bool {
				vi := v.(*visitor)
				vi.mu.Lock()
				idle := vi.lastSeen.Before(cutoff)
				vi.mu.Unlock()
				if idle {
					l.visitors.Delete(k)
				}
				return true
			})
		}
	}
}

func (l *IPRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := getIP(c)
		limiter := l.getLimiter(ip)
		if r := limiter.Reserve(); !r.OK() || r.Delay() > 0 {
			var wait time.Duration
			if r.OK() {
				wait = r.Delay()
				r.Cancel()
			}
			metrics.RateLimited.WithLabelValues("api").Inc()
			l.log.Warnw("rate limit exceeded", "ip", ip, "path", c.Path())
			return apperror.TooManyRequests(wait)
		}
		return c.Next()
	}
}
