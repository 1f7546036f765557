package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Network(cause, "fetch profile")

	assert.Equal(t, "fetch profile: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "profile not found", NotFound("profile not found").Error())
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "x"))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{name: "not found", err: NotFoundf("profile %s not found", "u1"), is: IsNotFound},
		{name: "conflict", err: Conflict("exists"), is: IsConflict},
		{name: "validation", err: ValidationField("role", "required"), is: IsValidation},
		{name: "network", err: Network(errors.New("refused"), "dial"), is: IsNetwork},
		{name: "auth backend", err: AuthBackend("invalid grant"), is: IsAuthBackend},
		{name: "unauthorized", err: Unauthorized("missing token"), is: IsUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.is(fmt.Errorf("outer: %w", tt.err)))
			assert.False(t, tt.is(errors.New("plain")))
		})
	}
}

func TestGetCodeAndField(t *testing.T) {
	err := fmt.Errorf("update: %w", ValidationField("full_name", "too long"))
	assert.Equal(t, ErrCodeValidation, GetCode(err))
	assert.Equal(t, "full_name", GetField(err))

	assert.Empty(t, GetCode(errors.New("plain")))
	assert.Empty(t, GetField(Internal("boom")))
}
