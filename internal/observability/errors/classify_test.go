package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/dealshub/dealshub-go/internal/errors"
)

type customErr struct{}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func (customErr) Error() string { return "custom" }

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: fmt.Errorf("fetch: %w", apperrors.NotFound("missing")), want: "not_found"},
		{err: apperrors.AuthBackend("bad"), want: "auth_backend"},
		{err: fmt.Errorf("resolve: %w", context.DeadlineExceeded), want: "timeout"},
		{err: context.Canceled, want: "canceled"},
		{err: apperrors.Network(context.DeadlineExceeded, "profile fetch"), want: "timeout"},
		{err: fmt.Errorf("dial: %w", timeoutErr{}), want: "timeout"},
		{err: apperrors.Network(errors.New("connection refused"), "profile fetch"), want: "network"},
		{err: fmt.Errorf("wrap: %w", &customErr{}), want: "errors_customerr"},
		{err: errors.New("plain"), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), fmt.Sprint(tt.err))
	}
}
