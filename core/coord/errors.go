package coord

import "errors"

var (
	// ErrTimeout rejects a request that saw no response within its timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrClosed rejects requests still pending when the coordinator closes.
	ErrClosed = errors.New("coordinator closed")
)
