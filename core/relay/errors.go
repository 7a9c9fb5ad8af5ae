package relay

import "errors"

var (
	ErrSessionClosed = errors.New("relay session closed")
	ErrMissingID     = errors.New("request id is required")
	ErrDuplicateID   = errors.New("request already in flight")
)
