package service

import (
	"context"
	"time"
)

// RetryPolicy is a bounded retry schedule with an injectable sleeper.
// Delay receives the 1-based number of the attempt that just missed.
type RetryPolicy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// LinearBackoff waits base*attempt after each miss.
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base * time.Duration(attempt)
	}
}

// DefaultProfileRetryPolicy polls 5 times waiting 500ms, 1s, 1.5s, 2s and 2.5s.
func DefaultProfileRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Delay:       LinearBackoff(500 * time.Millisecond),
		Sleep:       ContextSleep,
	}
}

// ContextSleep waits for d or until ctx is done.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Schedule lists the waits the policy performs when every attempt misses.
func (p RetryPolicy) Schedule() []time.Duration {
	p = p.normalized()
	out := make([]time.Duration, 0, p.MaxAttempts)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		out = append(out, p.Delay(attempt))
	}
	return out
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultProfileRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay == nil {
		p.Delay = def.Delay
	}
	if p.Sleep == nil {
		p.Sleep = def.Sleep
	}
	return p
}
