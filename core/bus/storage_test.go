package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashgraph/hedera-wallet-connect-sub000/ports/kv"
)

func TestStorageBus(t *testing.T) {
	store := kv.NewMemStore()

	a, err := NewStorageBus(StorageOptions{Store: store, Channel: "wc"})
	require.NoError(t, err)
	b, err := NewStorageBus(StorageOptions{Store: store, Channel: "wc"})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, a.Close())
		require.NoError(t, b.Close())
	})

	var puts []string
	_, err = store.Watch(t.Context(), "wc.", func(ev kv.Event) {
		if ev.Op == kv.OpPut {
			puts = append(puts, ev.Key)
		}
	})
	require.NoError(t, err)

	var got []Message
	_, err = b.Subscribe(t.Context(), func(_ context.Context, msg Message) {
		got = append(got, msg)
	})
	require.NoError(t, err)

	require.NoError(t, a.Broadcast(t.Context(), Message{Type: "TAB_HEARTBEAT", Sender: "tab-a", Data: []byte(`{"tabId":"tab-a"}`)}))

	require.Len(t, got, 1)
	require.Equal(t, "TAB_HEARTBEAT", got[0].Type)
	require.JSONEq(t, `{"tabId":"tab-a"}`, string(got[0].Data))

	// the message does not linger in the store
	require.Len(t, puts, 1)
	_, err = store.Get(t.Context(), puts[0])
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStorageBus_Linger(t *testing.T) {
	store := kv.NewMemStore()
	a, err := NewStorageBus(StorageOptions{Store: store, Linger: 20 * time.Millisecond})
	require.NoError(t, err)
	defer a.Close()

	keys := make(chan kv.Event, 4)
	_, err = store.Watch(t.Context(), "tabsync.", func(ev kv.Event) { keys <- ev })
	require.NoError(t, err)

	require.NoError(t, a.Broadcast(t.Context(), Message{Type: "x"}))

	put := <-keys
	require.Equal(t, kv.OpPut, put.Op)
	_, err = store.Get(t.Context(), put.Key)
	require.NoError(t, err)

	select {
	case del := <-keys:
		require.Equal(t, kv.OpDelete, del.Op)
		require.Equal(t, put.Key, del.Key)
	case <-time.After(time.Second):
		t.Fatal("message was never cleared")
	}
}

func TestStorageBus_RequiresStore(t *testing.T) {
	_, err := NewStorageBus(StorageOptions{})
	require.ErrorIs(t, err, ErrNoStore)

	s, err := NewStorageBus(StorageOptions{Store: kv.NewMemStore()})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Broadcast(t.Context(), Message{}), ErrBusClosed)
}
