// Package admission is the per-user rate-limiting collaborator consulted by
// the gateway before any gameplay action reaches the broker.
package admission

import (
	"sync"
	"time"

	"github.com/arcadelab/pusher/internal/core"
)

type SlidingWindow struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewSlidingWindow(limit int, interval time.Duration) *SlidingWindow {
	return &SlidingWindow{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (l *SlidingWindow) TryAcquire(key string) core.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.interval)

	attempts := l.history[key]

	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= l.limit {
		l.history[key] = fresh
		// The window frees up when the oldest fresh attempt ages out.
		return core.Decision{Allowed: false, ResetAt: fresh[0].Add(l.interval)}
	}

	fresh = append(fresh, now)
	l.history[key] = fresh

	return core.Decision{Allowed: true}
}
