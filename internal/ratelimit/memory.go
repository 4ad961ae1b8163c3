package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Memory: лимитер в памяти процесса, по token bucket на ключ.
// Используется, когда Redis не настроен.
type Memory struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

// NewMemory допускает limit событий за window на ключ.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:   rate.Limit(float64(limit) / window.Seconds()),
		burst:   limit,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	if m.burst <= 0 {
		return true, nil
	}
	m.mu.Lock()
	b, ok := m.buckets[key]
	if !ok {
		b = rate.NewLimiter(m.limit, m.burst)
		m.buckets[key] = b
	}
	m.mu.Unlock()
	return b.AllowN(m.now(), 1), nil
}
