package kv

import (
	"context"
	"strings"
	"sync"
)

type memWatcher struct {
	prefix string
	fn     WatchFunc
}

// MemStore is an in-process WatchStore. Watchers are notified synchronously
// in the writer's goroutine after the write is applied.
type MemStore struct {
	mu       sync.RWMutex
	data     map[string]Entry
	watchers map[uint64]memWatcher
	seq      uint64
}

func NewMemStore() *MemStore {
	return &MemStore{
		data:     map[string]Entry{},
		watchers: map[uint64]memWatcher{},
	}
}

func (m *MemStore) Put(_ context.Context, key string, entry Entry, _ PutOptions) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	m.data[key] = entry
	m.mu.Unlock()
	m.notify(Event{Key: key, Op: OpPut, Entry: entry})
	return nil
}

func (m *MemStore) Get(_ context.Context, key string) (entry Entry, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ok bool
	entry, ok = m.data[key]
	if !ok {
		return entry, ErrNotFound
	}

	return entry, nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	_, existed := m.data[key]
	delete(m.data, key)
	m.mu.Unlock()
	if existed {
		m.notify(Event{Key: key, Op: OpDelete})
	}
	return nil
}

func (m *MemStore) Watch(ctx context.Context, prefix string, fn WatchFunc) (Subscription, error) {
	m.mu.Lock()
	m.seq++
	id := m.seq
	m.watchers[id] = memWatcher{prefix: prefix, fn: fn}
	m.mu.Unlock()

	s := &memSubscription{m: m, id: id}
	context.AfterFunc(ctx, func() {
		_ = s.Unsubscribe()
	})
	return s, nil
}

func (m *MemStore) notify(ev Event) {
	// Copy watchers so callbacks may write to the store.
	m.mu.RLock()
	fns := make([]WatchFunc, 0, len(m.watchers))
	for _, w := range m.watchers {
		if strings.HasPrefix(ev.Key, w.prefix) {
			fns = append(fns, w.fn)
		}
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

type memSubscription struct {
	m    *MemStore
	id   uint64
	once sync.Once
}

func (s *memSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.m.mu.Lock()
		delete(s.m.watchers, s.id)
		s.m.mu.Unlock()
	})
	return nil
}

var _ WatchStore = (*MemStore)(nil)
