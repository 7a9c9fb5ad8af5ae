package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingBus struct{ Bus }

func (failingBus) Broadcast(context.Context, Message) error { return errors.New("quota exceeded") }
func (failingBus) Close() error                             { return nil }

func TestPeer_FiltersOwnMessages(t *testing.T) {
	hub := CreateMemoryHub(t)
	a := NewPeer("tab-a", hub.Open("wc"), nil)
	b := NewPeer("tab-b", hub.Open("wc"), nil)
	t.Cleanup(func() {
		require.NoError(t, a.Close())
		require.NoError(t, b.Close())
	})

	var got []Message
	require.NoError(t, b.OnMessage(t.Context(), func(_ context.Context, msg Message) {
		got = append(got, msg)
	}))

	require.NoError(t, a.Broadcast(Message{Type: "hello"}))
	require.Len(t, got, 1)
	require.Equal(t, "tab-a", got[0].Sender)
	require.NotZero(t, got[0].Timestamp)

	// A message carrying b's own identity is dropped even if the
	// primitive echoes it back.
	raw := hub.Open("wc")
	defer raw.Close()
	require.NoError(t, raw.Broadcast(t.Context(), Message{Type: "echo", Sender: "tab-b"}))
	require.Len(t, got, 1)
}

func TestPeer_BroadcastErrorIsReported(t *testing.T) {
	p := NewPeer("tab-a", failingBus{}, nil)
	require.ErrorContains(t, p.Broadcast(Message{Type: "x"}), "quota exceeded")
	require.NoError(t, p.Close())
	require.ErrorIs(t, p.OnMessage(t.Context(), func(context.Context, Message) {}), ErrBusClosed)
}
