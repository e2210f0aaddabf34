package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newKeyedLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "buckets are per key")

	now = now.Add(30 * time.Second)
	assert.True(t, l.allow("10.0.0.1"), "a token refills every 30s")

	now = now.Add(2 * time.Minute)
	l.allow("10.0.0.3")
	assert.Len(t, l.entries, 1, "idle keys are evicted")
}

func TestKeyedLimiterSweepsPeriodically(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	l := newKeyedLimiter(60, time.Minute)
	l.now = func() time.Time { return now }

	at := func(offset time.Duration, key string) {
		now = start.Add(offset)
		l.allow(key)
	}

	at(0, "a")
	at(30*time.Second, "b")
	at(61*time.Second, "c")
	assert.ElementsMatch(t, []string{"b", "c"}, keys(l), "a went idle and the sweep was due")

	at(100*time.Second, "c")
	assert.ElementsMatch(t, []string{"b", "c"}, keys(l), "b is idle but no sweep is due yet")

	at(122*time.Second, "c")
	assert.ElementsMatch(t, []string{"c"}, keys(l))
}

func keys(l *keyedLimiter) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for k := range l.entries {
		out = append(out, k)
	}
	return out
}

func TestKeyedLimiterDisabled(t *testing.T) {
	l := newKeyedLimiter(0, time.Minute)
	assert.Nil(t, l)
	for i := 0; i < 10; i++ {
		assert.True(t, l.allow("any"))
	}
}
