package nats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
	"github.com/hashgraph/hedera-wallet-connect-sub000/ports/kv"
)

func TestKV(t *testing.T) {
	type fooBar struct {
		Fruit string
		Count int
	}
	connectNats := ReuseConnection(NewTestContainer(t))
	store, err := NewKV(t.Context(), KVConfig{
		Bucket:  "fruits",
		Connect: connectNats,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	t.Run("put get delete", func(t *testing.T) {
		require.NoError(t, kv.Put(t.Context(), store, "apple", fooBar{Fruit: "apple", Count: 10}, kv.PutOptions{}))

		v, err := kv.Get[fooBar](t.Context(), store, "apple")
		require.NoError(t, err)
		require.Equal(t, fooBar{Fruit: "apple", Count: 10}, v)

		require.NoError(t, store.Delete(t.Context(), "apple"))
		_, err = store.Get(t.Context(), "apple")
		require.ErrorIs(t, err, kv.ErrNotFound)

		require.NoError(t, store.Delete(t.Context(), "never-written"))
		require.ErrorIs(t, store.Put(t.Context(), "", kv.Entry{}, kv.PutOptions{}), kv.ErrInvalidKey)
	})

	t.Run("watch prefix", func(t *testing.T) {
		var (
			mu     sync.Mutex
			events []kv.Event
		)
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		sub, err := store.Watch(ctx, "basket.", func(ev kv.Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		})
		require.NoError(t, err)

		require.NoError(t, store.Put(t.Context(), "basket.pear", kv.Entry{Data: []byte(`1`)}, kv.PutOptions{}))
		require.NoError(t, store.Put(t.Context(), "other.plum", kv.Entry{Data: []byte(`2`)}, kv.PutOptions{}))
		require.NoError(t, store.Delete(t.Context(), "basket.pear"))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(events) == 2
		}, 5*time.Second, 20*time.Millisecond)

		mu.Lock()
		require.Equal(t, "basket.pear", events[0].Key)
		require.Equal(t, kv.OpPut, events[0].Op)
		require.Equal(t, `1`, string(events[0].Entry.Data))
		require.Equal(t, kv.OpDelete, events[1].Op)
		mu.Unlock()

		require.NoError(t, sub.Unsubscribe())
	})
}

func TestKV_StorageStrategy(t *testing.T) {
	connectNats := ReuseConnection(NewTestContainer(t))
	strategy := StorageStrategy(KVConfig{Bucket: "tabsync", Connect: connectNats}, "wc", 0)
	require.Equal(t, "nats-kv", strategy.Name)

	a, err := strategy.Open(t.Context())
	require.NoError(t, err)
	b, err := strategy.Open(t.Context())
	require.NoError(t, err)

	got := make(chan bus.Message, 1)
	_, err = b.Subscribe(t.Context(), func(_ context.Context, msg bus.Message) {
		got <- msg
	})
	require.NoError(t, err)

	require.NoError(t, a.Broadcast(t.Context(), bus.Message{Type: "PING", Sender: "tab-a"}))

	select {
	case msg := <-got:
		require.Equal(t, "PING", msg.Type)
		require.Equal(t, "tab-a", msg.Sender)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

func TestWatchFilter(t *testing.T) {
	require.Equal(t, ">", watchFilter(""))
	require.Equal(t, ">", watchFilter("tabsync"))
	require.Equal(t, "tabsync.>", watchFilter("tabsync."))
	require.Equal(t, "tabsync.message.>", watchFilter("tabsync.message.ab"))
}
