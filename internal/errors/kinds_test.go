package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not found app error", err: NotFound("profile not found"), want: ErrCodeNotFound},
		{name: "wrapped auth backend", err: fmt.Errorf("sign out: %w", AuthBackend("invalid token")), want: ErrCodeAuthBackend},
		{name: "db timeout", err: &AppError{Code: ErrCodeTimeout}, want: ErrCodeNetwork},
		{name: "db internal", err: Internal("boom"), want: ErrCodeUnexpected},
		{name: "deadline", err: fmt.Errorf("get: %w", context.DeadlineExceeded), want: ErrCodeNetwork},
		{name: "canceled", err: context.Canceled, want: ErrCodeCanceled},
		{
			name: "url error",
			err:  &url.Error{Op: "Get", URL: "https://proj.supabase.co", Err: errors.New("connection refused")},
			want: ErrCodeNetwork,
		},
		{name: "op error", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: ErrCodeNetwork},
		{name: "plain error", err: errors.New("boom"), want: ErrCodeUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestAsNetwork(t *testing.T) {
	assert.NoError(t, AsNetwork(nil, "x"))

	transport := &url.Error{Op: "Get", URL: "https://x", Err: errors.New("refused")}
	wrapped := AsNetwork(transport, "fetch profile")
	assert.True(t, IsNetwork(wrapped))
	assert.ErrorIs(t, wrapped, transport)

	backend := AuthBackend("bad jwt")
	assert.Same(t, backend, AsNetwork(backend, "fetch profile"))
}

func TestNewKindConstructors(t *testing.T) {
	assert.True(t, IsAuthBackend(AuthBackend("x")))
	assert.True(t, IsUnauthorized(Unauthorized("x")))
	assert.False(t, IsNetwork(AuthBackend("x")))
}
