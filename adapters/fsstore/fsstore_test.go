package fsstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
	"github.com/hashgraph/hedera-wallet-connect-sub000/ports/kv"
)

func newStore(t *testing.T) (*Store, string) {
	dir := t.TempDir()
	s, err := New(Options{Dir: dir})
	require.NoError(t, err)
	return s, dir
}

func TestStore(t *testing.T) {
	s, dir := newStore(t)
	ctx := t.Context()

	require.NoError(t, s.Put(ctx, "foo", kv.Entry{Data: []byte(`"bar"`)}, kv.PutOptions{}))
	e, err := s.Get(ctx, "foo")
	require.NoError(t, err)
	require.Equal(t, `"bar"`, string(e.Data))

	require.NoError(t, kv.Put(ctx, s, "foo", 42, kv.PutOptions{}))
	n, err := kv.Get[int](ctx, s, "foo")
	require.NoError(t, err)
	require.Equal(t, 42, n)

	require.NoError(t, s.Delete(ctx, "foo"))
	_, err = s.Get(ctx, "foo")
	require.ErrorIs(t, err, kv.ErrNotFound)
	require.NoError(t, s.Delete(ctx, "foo"))

	for _, key := range []string{"", ".hidden", "a/b", `a\b`} {
		require.ErrorIs(t, s.Put(ctx, key, kv.Entry{}, kv.PutOptions{}), kv.ErrInvalidKey, key)
	}

	// no temp files are left behind
	tmp, err := os.ReadDir(filepath.Join(dir, tmpDirName))
	require.NoError(t, err)
	require.Empty(t, tmp)
}

func TestStore_TTL(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()

	require.NoError(t, s.Put(ctx, "short", kv.Entry{Data: []byte(`1`)}, kv.PutOptions{TTL: 20 * time.Millisecond}))
	_, err := s.Get(ctx, "short")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := s.Get(ctx, "short")
		return err == kv.ErrNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestStore_Watch(t *testing.T) {
	s, dir := newStore(t)

	// a second process sharing the directory
	other, err := New(Options{Dir: dir})
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		events []kv.Event
	)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	sub, err := s.Watch(ctx, "wc.", func(ev kv.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	require.NoError(t, err)

	require.NoError(t, other.Put(t.Context(), "wc.one", kv.Entry{Data: []byte(`1`)}, kv.PutOptions{}))
	require.NoError(t, other.Put(t.Context(), "unrelated", kv.Entry{Data: []byte(`2`)}, kv.PutOptions{}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, other.Delete(t.Context(), "wc.one"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, kv.Event{Key: "wc.one", Op: kv.OpPut, Entry: kv.Entry{Data: []byte(`1`)}}, events[0])
	require.Equal(t, kv.Event{Key: "wc.one", Op: kv.OpDelete}, events[1])
	mu.Unlock()

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
}

func TestStorageStrategy(t *testing.T) {
	dir := t.TempDir()
	strategy := StorageStrategy(Options{Dir: dir}, "wc", 0)
	require.Equal(t, "fs", strategy.Name)

	a, err := strategy.Open(t.Context())
	require.NoError(t, err)
	defer a.Close()
	b, err := strategy.Open(t.Context())
	require.NoError(t, err)
	defer b.Close()

	got := make(chan bus.Message, 8)
	_, err = b.Subscribe(t.Context(), func(_ context.Context, msg bus.Message) {
		got <- msg
	})
	require.NoError(t, err)

	require.NoError(t, a.Broadcast(t.Context(), bus.Message{Type: "PING", Sender: "tab-a"}))
	select {
	case msg := <-got:
		require.Equal(t, "PING", msg.Type)
		require.Equal(t, "tab-a", msg.Sender)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}
