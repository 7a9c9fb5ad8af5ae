package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/hashgraph/hedera-wallet-connect-sub000/ports/kv"
)

const keyAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

type StorageOptions struct {
	Store   kv.WatchStore
	Channel string        // key prefix, defaults to "tabsync"
	Linger  time.Duration // how long a message stays in the store before it is cleared
	Log     *slog.Logger
}

// StorageBus is the fallback strategy: messages are written to a shared
// key-value store and cleared again, peers react to the put notification.
type StorageBus struct {
	store   kv.WatchStore
	channel string
	linger  time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
	subs   map[kv.Subscription]struct{}
}

func NewStorageBus(opts StorageOptions) (*StorageBus, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	channel := opts.Channel
	if channel == "" {
		channel = "tabsync"
	}
	log := opts.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &StorageBus{
		store:   opts.Store,
		channel: channel,
		linger:  opts.Linger,
		log:     log.With(slog.String("bus", "storage"), slog.String("channel", channel)),
		subs:    make(map[kv.Subscription]struct{}),
	}, nil
}

// StorageStrategy exposes a store as a bus strategy.
func StorageStrategy(store kv.WatchStore, channel string, linger time.Duration) Strategy {
	return Strategy{
		Name: "storage",
		Open: func(context.Context) (Bus, error) {
			return NewStorageBus(StorageOptions{Store: store, Channel: channel, Linger: linger})
		},
	}
}

func (s *StorageBus) prefix() string { return s.channel + "." }

// newKey returns a per-message key so concurrent writers do not overwrite
// each other before peers had a chance to read.
func (s *StorageBus) newKey() string {
	suffix, err := gonanoid.Generate(keyAlphabet, 10)
	if err != nil {
		suffix = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return s.prefix() + "message." + suffix
}

func (s *StorageBus) Broadcast(ctx context.Context, msg Message) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrBusClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	key := s.newKey()
	if err := s.store.Put(ctx, key, kv.Entry{Data: data}, kv.PutOptions{TTL: s.linger}); err != nil {
		return fmt.Errorf("storage bus: put: %w", err)
	}

	if s.linger <= 0 {
		if err := s.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("storage bus: clear: %w", err)
		}
		return nil
	}

	// Clearing outlives Close so the store does not keep stale messages.
	time.AfterFunc(s.linger, func() {
		if err := s.store.Delete(context.Background(), key); err != nil {
			s.log.Warn("failed to clear message", slog.String("key", key), slog.Any("error", err))
		}
	})
	return nil
}

func (s *StorageBus) Subscribe(ctx context.Context, h Handler) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrBusClosed
	}

	sub, err := s.store.Watch(ctx, s.prefix(), func(ev kv.Event) {
		if ev.Op != kv.OpPut || !strings.HasPrefix(ev.Key, s.prefix()+"message.") {
			return
		}
		var msg Message
		if err := json.Unmarshal(ev.Entry.Data, &msg); err != nil {
			s.log.Error("failed to decode message", slog.String("key", ev.Key), slog.Any("error", err))
			return
		}
		h(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("storage bus: watch: %w", err)
	}
	s.subs[sub] = struct{}{}
	return &storageSubscription{s: s, sub: sub}, nil
}

func (s *StorageBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = map[kv.Subscription]struct{}{}
	return nil
}

type storageSubscription struct {
	s   *StorageBus
	sub kv.Subscription
}

func (u *storageSubscription) Unsubscribe() error {
	u.s.mu.Lock()
	delete(u.s.subs, u.sub)
	u.s.mu.Unlock()
	return u.sub.Unsubscribe()
}

var _ Bus = (*StorageBus)(nil)
