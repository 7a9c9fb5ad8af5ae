package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/relay"
)

type RelayConfig struct {
	Connect       Connector    // If nil, ConnectDefault() is used.
	Log           *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix string       // e.g. "tabsync" -> tabsync.relay.<session>.req
	Session       string       // Session shared by every context of one origin
}

func (cfg RelayConfig) subjects() (req, resp, queue string) {
	p := cfg.SubjectPrefix
	if p == "" {
		p = "tabsync"
	}
	base := p + ".relay." + cfg.Session
	return base + ".req", base + ".resp", "session-" + cfg.Session
}

func (cfg RelayConfig) connect() (*natsgo.Conn, closeFunc, *slog.Logger, error) {
	if cfg.Session == "" {
		return nil, nil, nil, errors.New("nats: relay session is required")
	}
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	nc, closeNc, err := connFn()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("nats: connect: %w", err)
	}
	return nc, closeNc, log.With(slog.String("relay", "nats"), slog.String("session", cfg.Session)), nil
}

type relayResult struct {
	resp json.RawMessage
	err  error
}

// Relay is one context's connection to a relay session. Responses are
// consumed through a queue group, so each response reaches exactly one of
// the contexts attached to the session, not necessarily the sender.
type Relay struct {
	nc         *natsgo.Conn
	closeNc    closeFunc
	log        *slog.Logger
	reqSubject string
	sub        *natsgo.Subscription
	onResponse relay.UnsolicitedFunc

	mu       sync.Mutex
	inflight map[string]chan relayResult

	closed atomic.Bool
}

// NewRelay attaches to the session. onResponse receives successful responses
// for requests this context did not send; it may be nil.
func NewRelay(cfg RelayConfig, onResponse relay.UnsolicitedFunc) (*Relay, error) {
	nc, closeNc, log, err := cfg.connect()
	if err != nil {
		return nil, err
	}
	reqSubject, respSubject, queue := cfg.subjects()

	r := &Relay{
		nc:         nc,
		closeNc:    closeNc,
		log:        log,
		reqSubject: reqSubject,
		onResponse: onResponse,
		inflight:   make(map[string]chan relayResult),
	}

	r.sub, err = nc.QueueSubscribe(respSubject, queue, r.receive)
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("nats: subscribe responses: %w", err)
	}
	if err := nc.Flush(); err != nil {
		_ = r.sub.Unsubscribe()
		closeNc()
		return nil, fmt.Errorf("nats: flush: %w", err)
	}
	return r, nil
}

func (r *Relay) receive(msg *natsgo.Msg) {
	var frame relay.Response
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		r.log.Error("failed to decode response", slog.Any("error", err))
		return
	}

	var res relayResult
	if frame.Err != "" {
		res.err = errors.New(frame.Err)
	} else {
		res.resp = frame.Result
	}

	r.mu.Lock()
	ch, ok := r.inflight[frame.ID]
	delete(r.inflight, frame.ID)
	r.mu.Unlock()
	if ok {
		ch <- res
		return
	}

	if res.err != nil {
		r.log.Warn("dropping error response for foreign request", slog.String("id", frame.ID), slog.Any("error", res.err))
		return
	}
	if r.onResponse == nil {
		r.log.Warn("dropping foreign response", slog.String("id", frame.ID))
		return
	}
	r.log.Debug("foreign response", slog.String("id", frame.ID))
	r.onResponse(frame.ID, res.resp)
}

// Send publishes req and waits for its response until ctx is done.
func (r *Relay) Send(ctx context.Context, req relay.Request) (json.RawMessage, error) {
	if r.closed.Load() {
		return nil, relay.ErrSessionClosed
	}
	if req.ID == "" {
		return nil, relay.ErrMissingID
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ch := make(chan relayResult, 1)
	r.mu.Lock()
	if _, dup := r.inflight[req.ID]; dup {
		r.mu.Unlock()
		return nil, relay.ErrDuplicateID
	}
	r.inflight[req.ID] = ch
	r.mu.Unlock()
	defer r.forget(req.ID)

	if err := r.nc.Publish(r.reqSubject, data); err != nil {
		return nil, fmt.Errorf("nats: publish: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-ch:
		if !ok {
			return nil, relay.ErrSessionClosed
		}
		return res.resp, res.err
	}
}

func (r *Relay) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, id)
}

func (r *Relay) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	_ = r.sub.Unsubscribe()
	r.mu.Lock()
	for id, ch := range r.inflight {
		close(ch)
		delete(r.inflight, id)
	}
	r.mu.Unlock()
	r.closeNc()
	return nil
}

// RelayServer answers the requests of a session, standing in for the wallet
// on the far side of the relay.
type RelayServer struct {
	nc          *natsgo.Conn
	closeNc     closeFunc
	log         *slog.Logger
	respSubject string
	sub         *natsgo.Subscription
	wg          sync.WaitGroup
	closed      atomic.Bool
}

func NewRelayServer(ctx context.Context, cfg RelayConfig, h relay.Handler) (*RelayServer, error) {
	nc, closeNc, log, err := cfg.connect()
	if err != nil {
		return nil, err
	}
	reqSubject, respSubject, _ := cfg.subjects()

	s := &RelayServer{
		nc:          nc,
		closeNc:     closeNc,
		log:         log.With(slog.String("side", "server")),
		respSubject: respSubject,
	}

	s.sub, err = nc.Subscribe(reqSubject, func(msg *natsgo.Msg) {
		var req relay.Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.log.Error("failed to decode request", slog.Any("error", err))
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.answer(ctx, req, h)
		}()
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("nats: subscribe requests: %w", err)
	}
	if err := nc.Flush(); err != nil {
		_ = s.sub.Unsubscribe()
		closeNc()
		return nil, fmt.Errorf("nats: flush: %w", err)
	}
	return s, nil
}

func (s *RelayServer) answer(ctx context.Context, req relay.Request, h relay.Handler) {
	frame := relay.Response{ID: req.ID}
	resp, err := h(ctx, req)
	if err != nil {
		frame.Err = err.Error()
	} else {
		frame.Result = resp
	}
	data, err := json.Marshal(frame)
	if err != nil {
		s.log.Error("failed to encode response", slog.String("id", req.ID), slog.Any("error", err))
		return
	}
	if s.closed.Load() {
		return
	}
	if err := s.nc.Publish(s.respSubject, data); err != nil {
		s.log.Error("failed to publish response", slog.String("id", req.ID), slog.Any("error", err))
	}
}

func (s *RelayServer) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	_ = s.sub.Unsubscribe()
	s.wg.Wait()
	s.closeNc()
	return nil
}

var _ relay.Sender = (*Relay)(nil)
