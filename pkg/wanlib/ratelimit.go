package wanlib

import (
	"context"
	"time"
)

// Limiter throttles a chunked byte stream to a target rate.
//
// Each call to Wait delays the caller by c/R minus the time elapsed since the
// previous chunk returned, so bursts never exceed one chunk while the long-run
// average stays at R. A Limiter is owned by a single stream and is not safe
// for concurrent use.
type Limiter struct {
	rate int64
	last time.Time
	now  func() time.Time
}

// NewLimiter returns a limiter for rate bytes per second.
// A rate <= 0 never delays.
func NewLimiter(rate int64) *Limiter {
	return &Limiter{rate: rate, now: time.Now}
}

// Rate returns the configured rate in bytes per second.
func (l *Limiter) Rate() int64 {
	if l == nil {
		return 0
	}
	return l.rate
}

// Delay returns how long a chunk of n bytes must wait at time now.
func (l *Limiter) Delay(n int, now time.Time) time.Duration {
	if l == nil || l.rate <= 0 || n <= 0 {
		return 0
	}
	want := time.Duration(float64(n) / float64(l.rate) * float64(time.Second))
	if l.last.IsZero() {
		return want
	}
	// time.Time carries a monotonic reading, Sub uses it.
	d := want - now.Sub(l.last)
	if d < 0 {
		return 0
	}
	return d
}

// Wait blocks for the delay owed by a chunk of n bytes. It returns early with
// ctx.Err() when ctx is done, or with nil when interrupt is closed.
func (l *Limiter) Wait(ctx context.Context, n int, interrupt <-chan struct{}) error {
	if l == nil || l.rate <= 0 {
		return nil
	}
	d := l.Delay(n, l.now())
	if d <= 0 {
		l.last = l.now()
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	defer func() { l.last = l.now() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-interrupt:
		return nil
	case <-timer.C:
		return nil
	}
}

// Reset forgets the previous chunk time, used after a pause so the paused
// period is not credited to the next chunk.
func (l *Limiter) Reset() {
	if l != nil {
		l.last = time.Time{}
	}
}
