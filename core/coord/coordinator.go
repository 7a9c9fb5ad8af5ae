package coord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/metrics"
)

// Registration is returned by Register. Resolve and Reject settle the
// request through the coordinator, exactly like Complete and Fail.
type Registration struct {
	RequestID string
	Future    *Future
	Resolve   func(response json.RawMessage)
	Reject    func(err error)
}

// handler is the owner-only resolver of one request.
type handler struct {
	future *Future
	timer  *time.Timer
	timing metrics.Timer
	method string
}

// Coordinator tracks request ownership for one context and cooperates with
// the coordinators of other contexts over a message bus.
type Coordinator struct {
	id      string
	log     *slog.Logger
	metrics Metrics
	now     func() time.Time

	requestTimeout    time.Duration
	heartbeatInterval time.Duration
	cleanupInterval   time.Duration

	// nil when coordination is disabled
	peer *bus.Peer

	mu       sync.Mutex
	closed   bool
	requests map[string]*PendingRequest
	handlers map[string]*handler
	peers    map[string]time.Time

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New creates and starts the coordinator of one context. It is closed when
// ctx is done, which is the usual way to tie it to the context's lifetime.
func New(ctx context.Context, opts Options) *Coordinator {
	opts = opts.withDefaults()

	id := opts.ID
	if id == "" {
		id = fmt.Sprintf("tab-%s", gonanoid.Must(8))
	}

	c := &Coordinator{
		id:                id,
		log:               opts.Log.With(slog.String("tab", id)),
		metrics:           opts.Metrics,
		now:               opts.Now,
		requestTimeout:    opts.RequestTimeout,
		heartbeatInterval: opts.HeartbeatInterval,
		cleanupInterval:   opts.CleanupInterval,
		requests:          make(map[string]*PendingRequest),
		handlers:          make(map[string]*handler),
		peers:             make(map[string]time.Time),
		stop:              make(chan struct{}),
	}

	if opts.Disabled {
		if opts.Bus != nil {
			_ = opts.Bus.Close()
		}
	} else {
		c.peer = c.connect(ctx, opts)
	}

	if c.peer != nil {
		c.heartbeat()
		c.wg.Add(2)
		go c.every(c.heartbeatInterval, c.heartbeat)
		go c.every(c.cleanupInterval, func() { c.Sweep() })
	}

	c.log.Debug("coordinator started",
		slog.Bool("enabled", c.peer != nil),
		slog.Duration("request_timeout", c.requestTimeout),
		slog.Duration("heartbeat_interval", c.heartbeatInterval),
		slog.Duration("cleanup_interval", c.cleanupInterval),
	)

	context.AfterFunc(ctx, func() {
		_ = c.Close()
	})

	return c
}

// connect opens the message bus. Any failure leaves the coordinator
// disabled instead of failing the host.
func (c *Coordinator) connect(ctx context.Context, opts Options) *bus.Peer {
	b := opts.Bus
	if b == nil {
		if len(opts.Strategies) == 0 {
			c.log.Warn("no message bus configured, cross-context coordination disabled")
			return nil
		}
		var (
			strategy string
			err      error
		)
		b, strategy, err = bus.Select(ctx, c.log, opts.Strategies...)
		if err != nil {
			c.log.Warn("message bus unavailable, cross-context coordination disabled", slog.Any("error", err))
			return nil
		}
		c.log.Info("message bus selected", slog.String("strategy", strategy))
	}

	p := bus.NewPeer(c.id, b, c.log)
	if err := p.OnMessage(ctx, c.onMessage); err != nil {
		c.log.Warn("message bus subscribe failed, cross-context coordination disabled", slog.Any("error", err))
		_ = p.Close()
		return nil
	}
	return p
}

func (c *Coordinator) ID() string { return c.id }

// Enabled reports whether cross-context coordination is active.
func (c *Coordinator) Enabled() bool { return c.peer != nil }

// Register records a new request owned by this context and returns the
// future its caller waits on. The future is rejected with ErrTimeout unless
// it settles within the request timeout.
func (c *Coordinator) Register(topic, method, requestID string) Registration {
	reg := Registration{
		RequestID: requestID,
		Resolve:   func(resp json.RawMessage) { c.Complete(requestID, resp) },
		Reject:    func(err error) { c.Fail(requestID, err) },
	}

	req := PendingRequest{
		RequestID: requestID,
		OwnerID:   c.id,
		Topic:     topic,
		Method:    method,
		CreatedAt: c.now(),
		TimeoutMs: c.requestTimeout.Milliseconds(),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		reg.Future = newFuture()
		reg.Future.settle(nil, ErrClosed)
		return reg
	}
	if h, ok := c.handlers[requestID]; ok {
		c.mu.Unlock()
		c.log.Warn("request already registered", slog.String("request_id", requestID))
		reg.Future = h.future
		return reg
	}

	h := &handler{
		future: newFuture(),
		timing: c.metrics.RequestDuration(method),
		method: method,
	}
	h.timer = time.AfterFunc(c.requestTimeout, func() {
		c.expire(requestID, h)
	})
	c.requests[requestID] = &req
	c.handlers[requestID] = h
	pending := len(c.handlers)
	c.mu.Unlock()

	reg.Future = h.future

	c.metrics.RequestRegistered(method)
	c.metrics.PendingRequests(pending)
	c.log.Debug("request registered",
		slog.String("request_id", requestID),
		slog.String("topic", topic),
		slog.String("method", method),
	)

	c.broadcast(RequestRegistered{Request: req})
	return reg
}

// IsOwner reports whether this context registered requestID. Unknown ids
// are not owned.
func (c *Coordinator) IsOwner(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.requests[requestID]
	return ok && r.OwnerID == c.id
}

// HandleResponse is called by the context whose transport received the
// response for requestID. The owner resolves locally; any other context
// forwards the response to the owner.
func (c *Coordinator) HandleResponse(requestID string, response json.RawMessage) {
	c.mu.Lock()
	r, known := c.requests[requestID]
	var owner string
	if known {
		owner = r.OwnerID
	}
	c.mu.Unlock()

	switch {
	case !known:
		c.metrics.UnknownResponse()
		c.log.Warn("dropping response for unknown request", slog.String("request_id", requestID))
	case owner == c.id:
		c.Complete(requestID, response)
	default:
		c.metrics.ResponseForwarded()
		c.log.Debug("forwarding response to owner",
			slog.String("request_id", requestID),
			slog.String("owner", owner),
		)
		c.broadcast(ResponseReceived{
			RequestID:  requestID,
			Response:   response,
			ReceivedBy: c.id,
		})
	}
}

// Complete resolves requestID with response. It is a no-op if the request
// already settled.
func (c *Coordinator) Complete(requestID string, response json.RawMessage) {
	c.settle(requestID, response, nil)
}

// Fail rejects requestID with err. It is a no-op if the request already
// settled.
func (c *Coordinator) Fail(requestID string, err error) {
	c.settle(requestID, nil, err)
}

func (c *Coordinator) settle(requestID string, resp json.RawMessage, err error) bool {
	c.mu.Lock()
	h, ok := c.handlers[requestID]
	if !ok {
		// A request claimed by this context has an entry but no handler.
		r := c.requests[requestID]
		claimed := r != nil && r.OwnerID == c.id
		if claimed {
			delete(c.requests, requestID)
		}
		c.mu.Unlock()
		if claimed {
			c.broadcast(RequestCompleted{RequestID: requestID, TabID: c.id})
			return false
		}
		c.log.Debug("no handler for request, ignoring", slog.String("request_id", requestID))
		return false
	}
	delete(c.handlers, requestID)
	delete(c.requests, requestID)
	pending := len(c.handlers)
	c.mu.Unlock()

	h.timer.Stop()
	if !h.future.settle(resp, err) {
		return false
	}

	h.timing.ObserveDuration()
	c.metrics.RequestSettled(h.method, outcomeOf(err))
	c.metrics.PendingRequests(pending)
	if err != nil {
		c.log.Debug("request failed", slog.String("request_id", requestID), slog.Any("error", err))
	} else {
		c.log.Debug("request completed", slog.String("request_id", requestID))
	}

	c.broadcast(RequestCompleted{RequestID: requestID, TabID: c.id})
	return true
}

// expire fires from the per-request timer; the handler check keeps a stale
// timer from failing a request that was registered again under the same id.
func (c *Coordinator) expire(requestID string, h *handler) {
	c.mu.Lock()
	current := c.handlers[requestID]
	c.mu.Unlock()
	if current != h {
		return
	}
	c.log.Warn("request timed out", slog.String("request_id", requestID), slog.Duration("timeout", c.requestTimeout))
	c.Fail(requestID, fmt.Errorf("%w: %s after %s", ErrTimeout, requestID, c.requestTimeout))
}

// Pending returns a snapshot of all known requests, owned and mirrored.
func (c *Coordinator) Pending() []PendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PendingRequest, 0, len(c.requests))
	for _, r := range c.requests {
		out = append(out, *r)
	}
	return out
}

// Close stops all timers, rejects requests still pending with ErrClosed,
// tells the peers they are gone and leaves the bus. It is safe to call more
// than once.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		handlers := c.handlers
		c.handlers = make(map[string]*handler)
		c.requests = make(map[string]*PendingRequest)
		c.peers = make(map[string]time.Time)
		c.mu.Unlock()

		close(c.stop)
		c.wg.Wait()

		for id, h := range handlers {
			h.timer.Stop()
			if h.future.settle(nil, ErrClosed) {
				c.metrics.RequestSettled(h.method, OutcomeClosed)
			}
			c.broadcast(RequestCompleted{RequestID: id, TabID: c.id})
		}
		c.metrics.PendingRequests(0)

		if c.peer != nil {
			c.closeErr = c.peer.Close()
		}
		c.log.Debug("coordinator closed", slog.Int("rejected", len(handlers)))
	})
	return c.closeErr
}

func (c *Coordinator) broadcast(p payload) {
	if c.peer == nil {
		return
	}
	msg, err := Encode(p)
	if err != nil {
		c.log.Error("failed to encode message", slog.String("type", p.MessageType()), slog.Any("error", err))
		return
	}
	if err := c.peer.Broadcast(msg); err != nil {
		c.metrics.BroadcastFailed(msg.Type)
	}
}

func (c *Coordinator) every(interval time.Duration, fn func()) {
	defer c.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			fn()
		}
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrClosed):
		return OutcomeClosed
	default:
		return OutcomeFailed
	}
}
