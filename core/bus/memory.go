package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// MemoryHub is an in-process broadcast channel registry. Each call to Open
// returns an independent handle; a message broadcast on one handle reaches
// the subscribers of every other open handle with the same name.
//
// Delivery is synchronous in the broadcasting goroutine, in no particular
// order across subscribers.
type MemoryHub struct {
	mu  sync.RWMutex
	log *slog.Logger

	// channel name -> handle -> subID -> handler
	channels map[string]map[*memoryChannel]map[uint64]Handler

	seq uint64
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		log:      slog.New(slog.DiscardHandler),
		channels: make(map[string]map[*memoryChannel]map[uint64]Handler),
	}
}

func (h *MemoryHub) WithLog(log *slog.Logger) *MemoryHub {
	h.log = log.With(slog.String("bus", "mem"))
	return h
}

// Open returns a new handle on the named channel.
func (h *MemoryHub) Open(name string) Bus {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &memoryChannel{hub: h, name: name}
	if h.channels[name] == nil {
		h.channels[name] = make(map[*memoryChannel]map[uint64]Handler)
	}
	h.channels[name][c] = make(map[uint64]Handler)
	return c
}

// Strategy exposes the hub as a bus strategy opening the named channel.
func (h *MemoryHub) Strategy(name string) Strategy {
	return Strategy{
		Name: "memory",
		Open: func(context.Context) (Bus, error) {
			return h.Open(name), nil
		},
	}
}

/* ---------------------- internals ---------------------- */

type memoryChannel struct {
	hub    *MemoryHub
	name   string
	closed atomic.Bool
}

func (c *memoryChannel) Broadcast(ctx context.Context, msg Message) error {
	if c.closed.Load() {
		return ErrBusClosed
	}

	// Copy handlers to avoid holding the lock while invoking user code.
	c.hub.mu.RLock()
	handles := c.hub.channels[c.name]
	handlers := make([]Handler, 0, len(handles))
	for other, subs := range handles {
		if other == c {
			continue
		}
		for _, h := range subs {
			handlers = append(handlers, h)
		}
	}
	c.hub.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
	return nil
}

func (c *memoryChannel) Subscribe(ctx context.Context, h Handler) (Subscription, error) {
	if c.closed.Load() {
		return nil, ErrBusClosed
	}

	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()

	subs := c.hub.channels[c.name][c]
	if subs == nil {
		return nil, ErrBusClosed
	}
	id := atomic.AddUint64(&c.hub.seq, 1)
	subs[id] = h

	c.hub.log.Debug("subscribe", slog.String("channel", c.name), slog.Uint64("sub", id))

	s := &memorySubscription{c: c, id: id}
	context.AfterFunc(ctx, func() {
		_ = s.Unsubscribe()
	})
	return s, nil
}

func (c *memoryChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()

	if handles := c.hub.channels[c.name]; handles != nil {
		delete(handles, c)
		if len(handles) == 0 {
			delete(c.hub.channels, c.name)
		}
	}
	c.hub.log.Debug("closed", slog.String("channel", c.name))
	return nil
}

type memorySubscription struct {
	c    *memoryChannel
	id   uint64
	once sync.Once
}

func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.c.hub.mu.Lock()
		defer s.c.hub.mu.Unlock()
		if subs := s.c.hub.channels[s.c.name][s.c]; subs != nil {
			delete(subs, s.id)
		}
	})
	return nil
}

var _ Bus = (*memoryChannel)(nil)
