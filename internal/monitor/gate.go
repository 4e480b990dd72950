package monitor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minSendInterval is the floor for outbound send spacing.
const minSendInterval = 100 * time.Millisecond

// SendGate enforces a minimum spacing between outbound sends. Burst is fixed
// at one so sends never cluster after an idle stretch.
type SendGate struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	interval time.Duration
}

// NewSendGate creates a gate spacing sends at least interval apart, clamped
// to no less than 100ms.
func NewSendGate(interval time.Duration) *SendGate {
	if interval < minSendInterval {
		interval = minSendInterval
	}
	return &SendGate{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Wait blocks until the next send slot or until ctx is done.
func (g *SendGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	limiter := g.limiter
	g.mu.Unlock()
	return limiter.Wait(ctx)
}

// SetInterval adjusts the spacing at runtime, keeping the 100ms floor.
func (g *SendGate) SetInterval(interval time.Duration) {
	if interval < minSendInterval {
		interval = minSendInterval
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if interval == g.interval {
		return
	}
	g.interval = interval
	g.limiter.SetLimit(rate.Every(interval))
}

// Interval returns the current spacing.
func (g *SendGate) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interval
}
