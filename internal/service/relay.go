package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dealshub/dealshub-go/internal/ports"
)

// EventRelay applies auth events announced on the bus to the live sessions of
// the same user, so signing out in one browser signs the user out everywhere.
type EventRelay struct {
	bus      ports.EventBus
	registry *SessionRegistry
	logger   *slog.Logger
}

// NewEventRelay constructs an EventRelay.
func NewEventRelay(bus ports.EventBus, registry *SessionRegistry, logger *slog.Logger) *EventRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRelay{bus: bus, registry: registry, logger: logger.With("component", "event_relay")}
}

// Run listens on the bus until ctx ends.
func (r *EventRelay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "event relay listening", "origin", r.registry.Origin())
	err := r.bus.Listen(ctx, r.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Handle applies one remote event. The browser session that announced the
// event already applied it and is skipped.
func (r *EventRelay) Handle(ctx context.Context, ev ports.RemoteAuthEvent) {
	applied := 0
	for _, rt := range r.registry.ForUser(ev.UserID) {
		if ev.Origin == r.registry.Origin() && rt.ID == ev.BrowserSessionID {
			continue
		}
		rt.Backend.ApplyRemote(ctx, ev)
		applied++
	}
	if applied > 0 {
		r.logger.InfoContext(ctx, "applied remote auth event",
			"event", ev.Event,
			"user_id", ev.UserID,
			"sessions", applied,
		)
	}
}
