package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// Limiter spaces page loads. The token bucket enforces the minimum gap and
// a random extra delay in [0, max-min) is added on top.
type Limiter struct {
	mu       sync.Mutex
	bucket   *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration
	rand     func(n int64) int64
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(minDelay, maxDelay time.Duration) *Limiter {
	l := &Limiter{
		rand:  rand.Int64N,
		sleep: sleep,
	}
	l.SetDelay(minDelay, maxDelay)
	return l
}

// Unlimited never waits. Used when assembling already fetched items.
func Unlimited() *Limiter {
	return New(0, 0)
}

func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	bucket := l.bucket
	extra := l.jitter()
	l.mu.Unlock()

	if err := bucket.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	if extra <= 0 {
		return ctx.Err()
	}
	return l.sleep(ctx, extra)
}

func (l *Limiter) SetDelay(minDelay, maxDelay time.Duration) {
	minDelay = max(minDelay, 0)
	maxDelay = max(maxDelay, minDelay)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.minDelay = minDelay
	l.maxDelay = maxDelay
	if minDelay == 0 {
		l.bucket = rate.NewLimiter(rate.Inf, 1)
	} else {
		l.bucket = rate.NewLimiter(rate.Every(minDelay), 1)
	}
}

func (l *Limiter) Delays() (time.Duration, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minDelay, l.maxDelay
}

func (l *Limiter) jitter() time.Duration {
	delta := l.maxDelay - l.minDelay
	if delta <= 0 {
		return 0
	}
	return time.Duration(l.rand(int64(delta)))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AdaptiveLimiter widens the delays after repeated failures and narrows
// the minimum again after a run of successes.
type AdaptiveLimiter struct {
	*Limiter
	mu            sync.Mutex
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
	floor         time.Duration
}

func NewAdaptive(minDelay, maxDelay time.Duration) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		Limiter:       New(minDelay, maxDelay),
		maxErrorCount: 3,
		backoffFactor: 1.5,
		floor:         minDelay,
	}
}

func (a *AdaptiveLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		minDelay, maxDelay := a.Delays()
		a.SetDelay(max(time.Duration(float64(minDelay)*0.9), a.floor), maxDelay)
		a.successCount = 0
	}
}

func (a *AdaptiveLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		minDelay, maxDelay := a.Delays()
		newMin := min(time.Duration(float64(minDelay)*a.backoffFactor), 60*time.Second)
		newMax := min(time.Duration(float64(maxDelay)*a.backoffFactor), 120*time.Second)
		a.SetDelay(newMin, newMax)
		a.errorCount = 0
	}
}
