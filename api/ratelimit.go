package api

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	guardian "github.com/goliatone/go-guardian"
	"golang.org/x/time/rate"
)

// keyedLimiter hands out one token bucket per key and forgets keys idle for
// longer than ttl. Idle keys are swept at most once per ttl.
type keyedLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	now       func() time.Time
	entries   map[string]*bucket
	nextSweep time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// newKeyedLimiter allows perMinute events per key with a burst of the same
// size.
func newKeyedLimiter(perMinute int, ttl time.Duration) *keyedLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &keyedLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*bucket),
	}
}

func (m *keyedLimiter) allow(key string) bool {
	if m == nil {
		return true
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.entries[key]
	if b == nil {
		b = &bucket{lim: rate.NewLimiter(m.limit, m.burst)}
		m.entries[key] = b
	}
	b.lastSeen = now

	if !now.Before(m.nextSweep) {
		m.sweep(now)
	}
	return b.lim.AllowN(now, 1)
}

func (m *keyedLimiter) sweep(now time.Time) {
	for k, v := range m.entries {
		if now.Sub(v.lastSeen) > m.ttl {
			delete(m.entries, k)
		}
	}
	m.nextSweep = now.Add(m.ttl)
}

// limitByIP rejects callers that exhausted their bucket
func limitByIP(l *keyedLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.allow(c.IP()) {
			return guardian.NewRateLimitedError()
		}
		return c.Next()
	}
}
