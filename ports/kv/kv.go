package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidKey = errors.New("invalid key")
)

type Entry struct {
	Data []byte
	Meta map[string]any
}

type PutOptions struct {
	TTL time.Duration
}

type Store interface {
	Put(ctx context.Context, key string, entry Entry, opts PutOptions) error
	Get(ctx context.Context, key string) (entry Entry, err error)
	Delete(ctx context.Context, key string) error
}

// Op is the kind of change a watcher observed.
type Op int

const (
	OpPut Op = iota
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event describes a single change to a key. Entry is empty for deletes.
type Event struct {
	Key   string
	Op    Op
	Entry Entry
}

type WatchFunc func(ev Event)

type Subscription interface {
	Unsubscribe() error
}

// WatchStore is a Store that notifies about changes made by any writer,
// including writers in other processes sharing the same backend.
type WatchStore interface {
	Store
	// Watch invokes fn for every change to a key starting with prefix until
	// ctx is done or the subscription is removed.
	Watch(ctx context.Context, prefix string, fn WatchFunc) (Subscription, error)
}

func Put[T any](ctx context.Context, store Store, key string, v T, opts PutOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, Entry{Data: data}, opts)
}

func Get[T any](ctx context.Context, store Store, key string) (out T, err error) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		return
	}
	err = json.Unmarshal(entry.Data, &out)
	if err != nil {
		return
	}
	return
}
