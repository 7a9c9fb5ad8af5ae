package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

type result struct {
	resp json.RawMessage
	err  error
}

// MemorySession is one relay connection shared by several endpoints. The
// most recently attached (or activated) endpoint holds the connection and
// receives every response, whoever sent the request.
type MemorySession struct {
	mu  sync.RWMutex
	log *slog.Logger
	h   Handler

	endpoints map[string]*Endpoint
	active    string
	closed    bool
	wg        sync.WaitGroup
}

func NewMemorySession(h Handler) *MemorySession {
	return &MemorySession{
		log:       slog.New(slog.DiscardHandler),
		h:         h,
		endpoints: make(map[string]*Endpoint),
	}
}

func (s *MemorySession) WithLog(log *slog.Logger) *MemorySession {
	s.log = log.With(slog.String("relay", "mem"))
	return s
}

// Attach connects a new endpoint and makes it the active one.
func (s *MemorySession) Attach(name string, onResponse UnsolicitedFunc) *Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &Endpoint{
		s:          s,
		name:       name,
		onResponse: onResponse,
		inflight:   make(map[string]chan result),
	}
	s.endpoints[name] = e
	s.active = name
	s.log.Debug("attached", slog.String("endpoint", name))
	return e
}

// Activate hands the connection to the named endpoint.
func (s *MemorySession) Activate(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[name]; !ok {
		return false
	}
	s.active = name
	return true
}

func (s *MemorySession) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Close stops routing and waits for in-flight handler calls.
func (s *MemorySession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.endpoints {
		e.closeInflight()
	}
	return nil
}

func (s *MemorySession) dispatch(ctx context.Context, req Request) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		resp, err := s.h(ctx, req)
		s.route(req.ID, resp, err)
	}()
	return nil
}

func (s *MemorySession) route(id string, resp json.RawMessage, err error) {
	s.mu.RLock()
	e := s.endpoints[s.active]
	s.mu.RUnlock()
	if e == nil {
		s.log.Warn("dropping response, no active endpoint", slog.String("id", id))
		return
	}
	if e.deliver(id, result{resp: resp, err: err}) {
		return
	}
	if err != nil {
		// Error frames are only meaningful to the waiting sender.
		s.log.Warn("dropping error response for foreign request",
			slog.String("endpoint", e.name), slog.String("id", id), slog.Any("error", err))
		return
	}
	if e.onResponse == nil {
		s.log.Warn("dropping foreign response", slog.String("endpoint", e.name), slog.String("id", id))
		return
	}
	s.log.Debug("foreign response", slog.String("endpoint", e.name), slog.String("id", id))
	e.onResponse(id, resp)
}

// Endpoint is one context's handle on a MemorySession.
type Endpoint struct {
	s          *MemorySession
	name       string
	onResponse UnsolicitedFunc

	mu       sync.Mutex
	inflight map[string]chan result
}

func (e *Endpoint) Name() string { return e.name }

// Send dispatches req and waits for the response. If another endpoint holds
// the connection, the response goes there and Send only returns when ctx is
// done.
func (e *Endpoint) Send(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.ID == "" {
		return nil, ErrMissingID
	}
	ch := make(chan result, 1)
	e.mu.Lock()
	if _, dup := e.inflight[req.ID]; dup {
		e.mu.Unlock()
		return nil, ErrDuplicateID
	}
	e.inflight[req.ID] = ch
	e.mu.Unlock()
	defer e.forget(req.ID)

	if err := e.s.dispatch(context.WithoutCancel(ctx), req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-ch:
		if !ok {
			return nil, ErrSessionClosed
		}
		return r.resp, r.err
	}
}

func (e *Endpoint) deliver(id string, r result) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.inflight[id]
	if !ok {
		return false
	}
	delete(e.inflight, id)
	ch <- r
	return true
}

func (e *Endpoint) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
}

func (e *Endpoint) closeInflight() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.inflight {
		close(ch)
		delete(e.inflight, id)
	}
}

var _ Sender = (*Endpoint)(nil)
