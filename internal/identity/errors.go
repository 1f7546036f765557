package identity

import "errors"

// ErrStoreClosed is returned when publishing to a closed store.
var ErrStoreClosed = errors.New("identity store closed")
