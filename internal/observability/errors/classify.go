// Package errors reduces errors to low-cardinality class names for metric tags.
package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"strings"

	apperrors "github.com/dealshub/dealshub-go/internal/errors"
)

// Classify names err for a metric tag. Timeouts and cancellations win, even
// when wrapped in an application error, then application error kinds
// ("network", "not_found", ...), then the innermost concrete type, e.g. "url_error".
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	if kind := apperrors.Kind(err); kind != "" && kind != apperrors.ErrCodeUnexpected {
		return string(kind)
	}

	for next := goerrors.Unwrap(err); next != nil; next = goerrors.Unwrap(err) {
		err = next
	}
	name := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	name = strings.ToLower(strings.ReplaceAll(name, ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}
