package service

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const minJanitorInterval = time.Second

// SessionJanitor periodically stops synchronizers of browser sessions that
// have gone quiet. The persisted session survives; the next request restores it.
type SessionJanitor struct {
	registry *SessionRegistry
	maxIdle  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// SessionJanitorOptions groups dependencies for SessionJanitor.
type SessionJanitorOptions struct {
	Registry *SessionRegistry
	// MaxIdle is how long a session may go unused before it is released.
	MaxIdle time.Duration
	// Interval between sweeps; defaults to half of MaxIdle.
	Interval time.Duration
	Logger   *slog.Logger
}

// NewSessionJanitor constructs a SessionJanitor.
func NewSessionJanitor(opts SessionJanitorOptions) (*SessionJanitor, error) {
	if opts.Registry == nil {
		return nil, errors.New("session registry is required")
	}
	if opts.MaxIdle <= 0 {
		return nil, errors.New("max idle must be positive")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = opts.MaxIdle / 2
	}
	interval = max(interval, minJanitorInterval)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionJanitor{
		registry: opts.Registry,
		maxIdle:  opts.MaxIdle,
		interval: interval,
		logger:   logger.With("component", "session_janitor"),
	}, nil
}

// Run sweeps until ctx ends.
func (j *SessionJanitor) Run(ctx context.Context) error {
	j.logger.InfoContext(ctx, "starting session janitor", "interval", j.interval, "max_idle", j.maxIdle)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep releases idle sessions once and returns how many were released.
func (j *SessionJanitor) Sweep() int {
	return j.registry.ReleaseIdle(j.maxIdle)
}
