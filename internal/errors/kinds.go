package errors

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// Kind returns the error category used by the identity synchronizer:
// network, not_found, auth_backend, or unexpected. AppError codes are kept
// as-is; transport failures are reported as network.
func Kind(err error) ErrorCode {
	if err == nil {
		return ""
	}

	if code := GetCode(err); code != "" {
		switch code {
		case ErrCodeTimeout:
			return ErrCodeNetwork
		case ErrCodeInternal:
			return ErrCodeUnexpected
		default:
			return code
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeNetwork
	}
	if errors.Is(err, context.Canceled) {
		return ErrCodeCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrCodeNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrCodeNetwork
	}

	return ErrCodeUnexpected
}

// AsNetwork wraps transport errors as Network errors and leaves everything else untouched.
func AsNetwork(err error, message string) error {
	if err == nil {
		return nil
	}
	if Kind(err) == ErrCodeNetwork && GetCode(err) == "" {
		return Network(err, message)
	}
	return err
}
