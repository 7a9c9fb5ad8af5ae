// Package coord coordinates request ownership between execution contexts
// ("tabs") that share one relay connection.
//
// The relay only delivers a response to the context holding the active
// connection, which is not necessarily the context that sent the request.
// Each context runs one [Coordinator]. When a context registers a request
// it broadcasts the registration; every peer keeps a mirror entry so that,
// if the response lands there, it can forward it to the owner. The owner
// resolves the caller's [Future] exactly once: from a local response, from
// a forwarded one, or with [ErrTimeout].
//
// # Protocol
//
//   - REQUEST_REGISTERED: a new request and its owner
//   - RESPONSE_RECEIVED: a response observed by a non-owner
//   - REQUEST_COMPLETED: the request settled, mirrors can go
//   - TAB_HEARTBEAT: liveness beacon
//   - REQUEST_CLAIM: ownership transfer, applied on receipt, never sent
//
// All messages are idempotent, so a lossy bus only ever costs a timeout.
//
// # Liveness
//
// Heartbeats go out every HeartbeatInterval. A periodic [Coordinator.Sweep]
// fails requests past their timeout and forgets peers silent for more than
// three heartbeat intervals. Requests owned by such peers are reported as
// orphaned but are not reassigned; they end through their own timeout.
//
// # Usage
//
//	c := coord.New(ctx, coord.Options{
//	    Strategies: []bus.Strategy{hub.Strategy("wc")},
//	})
//	defer c.Close()
//
//	reg := c.Register("topic", "hedera_signMessage", requestID)
//	// ... response arrives in some context, which calls HandleResponse
//	resp, err := reg.Future.Wait(ctx)
package coord
