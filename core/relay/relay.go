// Package relay describes the single outbound request path shared by all
// contexts of one origin, and ships an in-memory session that reproduces
// the relay's delivery rule: a response only reaches whichever context
// currently holds the active connection.
package relay

import (
	"context"
	"encoding/json"
)

// Request is an outbound request. ID correlates the response; Params and
// the response are opaque to this package.
type Request struct {
	ID     string          `json:"id"`
	Topic  string          `json:"topic"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the wire frame a relay hands back for a request.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Err    string          `json:"err,omitempty"`
}

// SendFunc sends a request and waits for its response.
type SendFunc func(ctx context.Context, req Request) (json.RawMessage, error)

type Sender interface {
	Send(ctx context.Context, req Request) (json.RawMessage, error)
}

// Handler answers requests on the far side of the relay (the wallet).
type Handler func(ctx context.Context, req Request) (json.RawMessage, error)

// UnsolicitedFunc receives a response that arrived in this context for a
// request this context is not waiting on.
type UnsolicitedFunc func(requestID string, response json.RawMessage)
