package scheduler

import (
	"sync"
	"time"
)

// Gate refuses to start a run for a key sooner than MinInterval after the last one.
// A zero MinInterval always allows.
type Gate struct {
	MinInterval time.Duration
	Clock       Clock

	mu   sync.Mutex
	last map[string]time.Time
}

func NewGate(minInterval time.Duration, clock Clock) *Gate {
	if clock == nil {
		clock = SystemClock()
	}
	return &Gate{MinInterval: minInterval, Clock: clock, last: map[string]time.Time{}}
}

// Allow records the attempt and reports whether it may run. When refused it
// returns how long the caller has to wait.
func (g *Gate) Allow(key string) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		g.last = map[string]time.Time{}
	}
	clock := g.Clock
	if clock == nil {
		clock = SystemClock()
	}
	now := clock.Now()
	if prev, ok := g.last[key]; ok && g.MinInterval > 0 {
		if elapsed := now.Sub(prev); elapsed < g.MinInterval {
			return false, g.MinInterval - elapsed
		}
	}
	g.last[key] = now
	return true, 0
}
