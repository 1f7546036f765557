package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/ports"
	"github.com/dealshub/dealshub-go/internal/testutil"
)

func TestEventBus_PublishAndListen(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	bus := NewEventBus(EventBusOptions{Client: client, Prefix: "test:events:"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan ports.RemoteAuthEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- bus.Listen(ctx, func(_ context.Context, ev ports.RemoteAuthEvent) { got <- ev })
	}()

	ev := ports.RemoteAuthEvent{
		Origin:     "instance-a",
		UserID:     "user-123",
		Event:      domainauth.EventSignedOut,
		OccurredAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	// The subscription is confirmed asynchronously; publish until it is received.
	require.Eventually(t, func() bool {
		if err := bus.Publish(ctx, ev); err != nil {
			return false
		}
		select {
		case received := <-got:
			assert.Equal(t, ev.UserID, received.UserID)
			assert.Equal(t, ev.Event, received.Event)
			assert.True(t, ev.OccurredAt.Equal(received.OccurredAt))
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestEventBus_PublishRequiresUser(t *testing.T) {
	bus := NewEventBus(EventBusOptions{})
	err := bus.Publish(context.Background(), ports.RemoteAuthEvent{Event: domainauth.EventSignedOut})
	assert.True(t, apperrors.IsValidation(err))
}
