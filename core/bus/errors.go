package bus

import "errors"

var (
	ErrBusClosed   = errors.New("bus closed")
	ErrUnavailable = errors.New("no message bus strategy available")
	ErrNoStore     = errors.New("storage bus requires a store")
)
