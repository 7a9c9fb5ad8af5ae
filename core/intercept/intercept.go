// Package intercept wraps a relay send function so that every request is
// registered with the coordinator before it goes out, and every response is
// routed through it when it comes back.
package intercept

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/coord"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/relay"
)

// Coordinator is the part of *coord.Coordinator the interceptor needs.
type Coordinator interface {
	Register(topic, method, requestID string) coord.Registration
	IsOwner(requestID string) bool
	HandleResponse(requestID string, response json.RawMessage)
	Fail(requestID string, err error)
}

type IDFunc func(topic, method string, params []byte) string

type options struct {
	log   *slog.Logger
	newID IDFunc
}

type Option func(*options)

func WithLog(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithRequestID replaces NewRequestID for requests that carry no id.
func WithRequestID(fn IDFunc) Option {
	return func(o *options) { o.newID = fn }
}

type sent struct {
	resp json.RawMessage
	err  error
}

// Wrap returns a send function with the same contract as send.
//
// The original send runs while the caller waits on the registered future:
// whichever finishes first decides the outcome. A relay that delivered the
// response to another context leaves send blocked, but the forwarded
// response settles the future and send is then cancelled. Errors returned by
// send are passed through unchanged.
func Wrap(c Coordinator, send relay.SendFunc, opts ...Option) relay.SendFunc {
	o := options{
		log:   slog.Default(),
		newID: NewRequestID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With(slog.String("component", "intercept"))

	return func(ctx context.Context, req relay.Request) (json.RawMessage, error) {
		if req.ID == "" {
			req.ID = o.newID(req.Topic, req.Method, req.Params)
		}
		reg := c.Register(req.Topic, req.Method, req.ID)

		sendCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		done := make(chan sent, 1)
		go func() {
			resp, err := send(sendCtx, req)
			done <- sent{resp: resp, err: err}
		}()

		select {
		case r := <-done:
			if r.err != nil {
				if reg.Future.Settled() {
					if resp, err := reg.Future.Wait(ctx); err == nil {
						return resp, nil
					}
				}
				c.Fail(req.ID, r.err)
				return nil, r.err
			}
			c.HandleResponse(req.ID, r.resp)
			if reg.Future.Settled() {
				return reg.Future.Wait(ctx)
			}
			if c.IsOwner(req.ID) {
				return r.resp, nil
			}
			// claimed by another context while in flight
			log.Debug("waiting for forwarded response", slog.String("request_id", req.ID))
			return wait(ctx, c, reg)

		case <-reg.Future.Done():
			log.Debug("request settled before send returned", slog.String("request_id", req.ID))
			return reg.Future.Wait(ctx)

		case <-ctx.Done():
			c.Fail(req.ID, ctx.Err())
			return nil, ctx.Err()
		}
	}
}

func wait(ctx context.Context, c Coordinator, reg coord.Registration) (json.RawMessage, error) {
	resp, err := reg.Future.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		c.Fail(reg.RequestID, err)
	}
	return resp, err
}
