package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
	"github.com/hashgraph/hedera-wallet-connect-sub000/ports/kv"
)

type KVConfig struct {
	Connect Connector
	Bucket  string        // defaults to "tabsync"
	TTL     time.Duration // maximum age of any entry in the bucket, 0 keeps entries until deleted
	Log     *slog.Logger
}

// KV is a kv.WatchStore over a JetStream key-value bucket. Per-entry TTLs
// are not supported; the bucket-wide TTL applies to every key.
type KV struct {
	kv      jetstream.KeyValue
	closeNc closeFunc
	log     *slog.Logger
}

func NewKV(ctx context.Context, cfg KVConfig) (*KV, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "tabsync"
	}

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	bkt, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   bucket,
		Storage:  jetstream.MemoryStorage,
		History:  1,
		TTL:      cfg.TTL,
		MaxBytes: 8 * 1024 * 1024,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("nats: create bucket %s: %w", bucket, err)
	}

	return &KV{
		kv:      bkt,
		closeNc: closeNc,
		log:     log.With(slog.String("kv", "nats"), slog.String("bucket", bucket)),
	}, nil
}

func (k *KV) Put(ctx context.Context, key string, entry kv.Entry, _ kv.PutOptions) error {
	if key == "" {
		return kv.ErrInvalidKey
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := k.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("nats: put %s: %w", key, err)
	}
	return nil
}

func (k *KV) Get(ctx context.Context, key string) (entry kv.Entry, err error) {
	v, err := k.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return entry, kv.ErrNotFound
		}
		return entry, fmt.Errorf("nats: get %s: %w", key, err)
	}
	return decodeEntry(v.Value())
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if err := k.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats: delete %s: %w", key, err)
	}
	return nil
}

// Watch only reports changes made after the call.
func (k *KV) Watch(ctx context.Context, prefix string, fn kv.WatchFunc) (kv.Subscription, error) {
	w, err := k.kv.Watch(ctx, watchFilter(prefix), jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("nats: watch %s: %w", prefix, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = w.Stop()
	})

	go func() {
		defer stop()
		for e := range w.Updates() {
			if e == nil || !strings.HasPrefix(e.Key(), prefix) {
				continue
			}
			switch e.Operation() {
			case jetstream.KeyValuePut:
				entry, err := decodeEntry(e.Value())
				if err != nil {
					k.log.Warn("failed to decode entry", slog.String("key", e.Key()), slog.Any("error", err))
					continue
				}
				fn(kv.Event{Key: e.Key(), Op: kv.OpPut, Entry: entry})
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				fn(kv.Event{Key: e.Key(), Op: kv.OpDelete})
			}
		}
	}()

	return &kvWatch{w: w}, nil
}

func (k *KV) Close() error {
	k.closeNc()
	return nil
}

// watchFilter narrows the subscription to whole key tokens; the rest of the
// prefix is matched in Watch.
func watchFilter(prefix string) string {
	i := strings.LastIndex(prefix, ".")
	if i < 0 {
		return ">"
	}
	return prefix[:i+1] + ">"
}

func decodeEntry(data []byte) (entry kv.Entry, err error) {
	if err = json.Unmarshal(data, &entry); err != nil {
		return entry, fmt.Errorf("decode entry: %w", err)
	}
	return entry, nil
}

type kvWatch struct {
	w jetstream.KeyWatcher
}

func (s *kvWatch) Unsubscribe() error {
	err := s.w.Stop()
	if errors.Is(err, jetstream.ErrConsumerNotFound) {
		return nil
	}
	return err
}

// StorageStrategy opens a JetStream bucket and runs the storage bus over it.
// Closing the bus also closes the bucket's connection.
func StorageStrategy(cfg KVConfig, channel string, linger time.Duration) bus.Strategy {
	return bus.Strategy{
		Name: "nats-kv",
		Open: func(ctx context.Context) (bus.Bus, error) {
			store, err := NewKV(ctx, cfg)
			if err != nil {
				return nil, err
			}
			b, err := bus.NewStorageBus(bus.StorageOptions{
				Store:   store,
				Channel: channel,
				Linger:  linger,
				Log:     cfg.Log,
			})
			if err != nil {
				_ = store.Close()
				return nil, err
			}
			return &storageBus{StorageBus: b, store: store}, nil
		},
	}
}

type storageBus struct {
	*bus.StorageBus
	store *KV
}

func (b *storageBus) Close() error {
	return errors.Join(b.StorageBus.Close(), b.store.Close())
}

var _ kv.WatchStore = (*KV)(nil)
