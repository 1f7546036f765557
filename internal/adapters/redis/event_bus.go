package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/ports"
)

const defaultEventChannelPrefix = "dealshub:auth:events:"

var _ ports.EventBus = (*EventBus)(nil)

// EventBus exchanges auth events between gateway instances over Redis Pub/Sub.
// Events are published on <prefix><user id>; listeners subscribe to the pattern.
type EventBus struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// EventBusOptions groups dependencies for EventBus.
type EventBusOptions struct {
	Client redis.UniversalClient
	Prefix string
	Logger *slog.Logger
}

// NewEventBus creates a Redis Pub/Sub event bus.
func NewEventBus(opts EventBusOptions) *EventBus {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultEventChannelPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{client: opts.Client, prefix: prefix, logger: logger.With("component", "redis_event_bus")}
}

func (b *EventBus) Publish(ctx context.Context, ev ports.RemoteAuthEvent) error {
	if ev.UserID == "" {
		return apperrors.ValidationField("user_id", "user id is required")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal auth event: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+ev.UserID, data).Err(); err != nil {
		return apperrors.AsNetwork(fmt.Errorf("redis publish: %w", err), "publish auth event")
	}
	return nil
}

// Listen subscribes to every user channel and calls handle for each event until ctx ends.
func (b *EventBus) Listen(ctx context.Context, handle func(context.Context, ports.RemoteAuthEvent)) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Warn("close pubsub", "error", err)
		}
	}()

	// Wait for the subscription confirmation so publishes after Listen returns
	// control are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return apperrors.AsNetwork(fmt.Errorf("redis psubscribe: %w", err), "subscribe to auth events")
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev ports.RemoteAuthEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.WarnContext(ctx, "dropping malformed auth event", "channel", msg.Channel, "error", err)
				continue
			}
			handle(ctx, ev)
		}
	}
}
