package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfileRetryPolicy_Schedule(t *testing.T) {
	want := []time.Duration{
		500 * time.Millisecond,
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2000 * time.Millisecond,
		2500 * time.Millisecond,
	}
	assert.Equal(t, want, DefaultProfileRetryPolicy().Schedule())

	var total time.Duration
	for _, d := range want {
		total += d
	}
	assert.Equal(t, 7500*time.Millisecond, total)
}

func TestRetryPolicy_NormalizesZeroValue(t *testing.T) {
	p := RetryPolicy{}.normalized()

	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.Delay(1))
	require.NotNil(t, p.Sleep)
}

func TestLinearBackoff_ClampsAttempt(t *testing.T) {
	delay := LinearBackoff(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, delay(0))
	assert.Equal(t, 300*time.Millisecond, delay(3))
}

func TestContextSleep(t *testing.T) {
	require.NoError(t, ContextSleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ContextSleep(ctx, time.Hour), context.Canceled)
	require.ErrorIs(t, ContextSleep(ctx, 0), context.Canceled)
}
