// Package ratelimit enforces call spacing and a fixed-window cap for
// outbound reasoning and flight-backend requests, which share one quota
// budget.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config governs admission of outbound calls.
type Config struct {
	MinInterval time.Duration // minimum spacing between consecutive calls (0 = no spacing)
	MaxCalls    int           // calls admitted per window (0 = uncapped)
	Window      time.Duration // fixed window length
}

// DefaultConfig returns limits conservative enough for sandbox API quotas.
func DefaultConfig() Config {
	return Config{
		MinInterval: 6 * time.Second,
		MaxCalls:    10,
		Window:      time.Minute,
	}
}

// Limiter admits outbound calls one at a time. It never rejects: Acquire
// blocks until the call is safe to issue, or until ctx is cancelled.
//
// The window is fixed, anchored at the first call admitted after the
// previous window elapsed. When the counter reaches MaxCalls before the
// window elapses, the caller waits out the remainder of the window.
type Limiter struct {
	mu          sync.Mutex
	cfg         Config
	lastCall    time.Time
	windowStart time.Time
	callCount   int

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter with the given config.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Acquire blocks until one more outbound call may be issued, then records
// that the call was made. The only error it returns is ctx cancellation.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Spacing first: wait out the remainder of MinInterval since the
	// previous admitted call.
	if l.cfg.MinInterval > 0 && !l.lastCall.IsZero() {
		if elapsed := l.now().Sub(l.lastCall); elapsed < l.cfg.MinInterval {
			if err := l.sleep(ctx, l.cfg.MinInterval-elapsed); err != nil {
				return err
			}
		}
	}

	if l.cfg.MaxCalls > 0 && l.cfg.Window > 0 {
		now := l.now()
		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.cfg.Window {
			l.windowStart = now
			l.callCount = 0
		}
		if l.callCount >= l.cfg.MaxCalls {
			remaining := l.cfg.Window - now.Sub(l.windowStart)
			if remaining > 0 {
				if err := l.sleep(ctx, remaining); err != nil {
					return err
				}
			}
			l.windowStart = l.now()
			l.callCount = 0
		}
		l.callCount++
	}

	l.lastCall = l.now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ratelimit: wait cancelled: %w", ctx.Err())
	}
}
