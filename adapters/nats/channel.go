package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
)

type ChannelConfig struct {
	Connect       Connector    // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Log           *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix string       // SubjectPrefix for bus subjects, e.g. "tabsync" -> tabsync.bus.<name>
	Name          string       // Name of the channel, defaults to "default"
}

// Channel is a bus.Bus over a plain NATS subject. Every subscriber of the
// subject receives every message, including the sender's own.
type Channel struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	subject string

	mu   sync.Mutex
	subs map[*natsgo.Subscription]struct{}

	closed atomic.Bool
}

func NewChannel(cfg ChannelConfig) (*Channel, error) {
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
		return nil, fmt.Errorf("nats: connect: %w", err)
	}

	subject := busSubject(cfg.SubjectPrefix, cfg.Name)
	return &Channel{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("bus", "nats"), slog.String("subject", subject)),
		subject: subject,
		subs:    make(map[*natsgo.Subscription]struct{}),
	}, nil
}

// ChannelStrategy opens a Channel as the primary bus strategy.
func ChannelStrategy(cfg ChannelConfig) bus.Strategy {
	return bus.Strategy{
		Name: "nats",
		Open: func(context.Context) (bus.Bus, error) {
			return NewChannel(cfg)
		},
	}
}

func busSubject(prefix, name string) string {
	if prefix == "" {
		prefix = "tabsync"
	}
	if name == "" {
		name = "default"
	}
	return prefix + ".bus." + name
}

func (c *Channel) Broadcast(_ context.Context, msg bus.Message) error {
	if c.closed.Load() {
		return bus.ErrBusClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := c.nc.Publish(c.subject, data); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

func (c *Channel) Subscribe(ctx context.Context, h bus.Handler) (bus.Subscription, error) {
	if c.closed.Load() {
		return nil, bus.ErrBusClosed
	}

	sub, err := c.nc.Subscribe(c.subject, func(m *natsgo.Msg) {
		var msg bus.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			c.log.Error("failed to decode message", slog.Any("error", err))
			return
		}
		h(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe: %w", err)
	}

	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	s := &channelSubscription{sub: sub, c: c}
	context.AfterFunc(ctx, func() {
		_ = s.Unsubscribe()
	})
	return s, nil
}

// Flush waits until the server processed everything published so far.
func (c *Channel) Flush() error {
	return c.nc.Flush()
}

func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	for s := range c.subs {
		_ = s.Unsubscribe()
	}
	c.subs = map[*natsgo.Subscription]struct{}{}
	c.mu.Unlock()
	if c.nc != nil {
		_ = c.nc.Flush()
		c.closeNc()
	}
	return nil
}

type channelSubscription struct {
	sub  *natsgo.Subscription
	c    *Channel
	once sync.Once
}

func (s *channelSubscription) Unsubscribe() (err error) {
	s.once.Do(func() {
		s.c.mu.Lock()
		_, ok := s.c.subs[s.sub]
		delete(s.c.subs, s.sub)
		s.c.mu.Unlock()
		if ok {
			err = s.sub.Unsubscribe()
		}
	})
	return
}

var _ bus.Bus = (*Channel)(nil)
