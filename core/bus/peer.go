package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultBroadcastTimeout = 5 * time.Second

// Peer is one context's endpoint on a Bus.
type Peer struct {
	id      string
	b       Bus
	log     *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// NewPeer takes ownership of b; closing the peer closes the bus.
func NewPeer(id string, b Bus, log *slog.Logger) *Peer {
	if log == nil {
		log = slog.Default()
	}
	return &Peer{
		id:      id,
		b:       b,
		log:     log,
		timeout: defaultBroadcastTimeout,
	}
}

func (p *Peer) ID() string { return p.id }

// Broadcast sends msg to all other peers. Errors are logged and returned for
// accounting only; callers must not fail their own work because of them.
func (p *Peer) Broadcast(msg Message) error {
	msg.Sender = p.id
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.b.Broadcast(ctx, msg); err != nil {
		p.log.Warn("broadcast failed", slog.String("type", msg.Type), slog.Any("error", err))
		return err
	}
	return nil
}

// OnMessage registers h for every message sent by another peer.
func (p *Peer) OnMessage(ctx context.Context, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrBusClosed
	}

	sub, err := p.b.Subscribe(ctx, func(ctx context.Context, msg Message) {
		if msg.Sender == p.id {
			return
		}
		h(ctx, msg)
	})
	if err != nil {
		return err
	}
	p.subs = append(p.subs, sub)
	return nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	return p.b.Close()
}
