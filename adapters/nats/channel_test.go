package nats

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/coord"
)

func TestNats_Channel(t *testing.T) {
	connectNatsC := ReuseConnection(NewTestContainer(t))
	cfg := ChannelConfig{
		Connect:       connectNatsC,
		Log:           slog.Default(),
		SubjectPrefix: "test",
		Name:          "wc",
	}

	t.Run("broadcast & subscribe", func(t *testing.T) {
		a, err := NewChannel(cfg)
		require.NoError(t, err)
		b, err := NewChannel(cfg)
		require.NoError(t, err)

		got := make(chan bus.Message, 4)
		sub, err := b.Subscribe(t.Context(), func(_ context.Context, msg bus.Message) {
			got <- msg
		})
		require.NoError(t, err)
		require.NoError(t, b.Flush())

		require.NoError(t, a.Broadcast(t.Context(), bus.Message{Type: "PING", Sender: "tab-a", Data: []byte(`{"n":1}`)}))

		select {
		case msg := <-got:
			require.Equal(t, "PING", msg.Type)
			require.JSONEq(t, `{"n":1}`, string(msg.Data))
		case <-time.After(5 * time.Second):
			t.Fatal("message not delivered")
		}

		// tear down
		require.NoError(t, sub.Unsubscribe())
		require.NoError(t, sub.Unsubscribe())
		require.NoError(t, a.Close())
		require.NoError(t, b.Close())
		require.ErrorIs(t, a.Broadcast(t.Context(), bus.Message{Type: "PING"}), bus.ErrBusClosed)
	})

	t.Run("coordinators forward over nats", func(t *testing.T) {
		tabs := make([]*coord.Coordinator, 2)
		for i := range tabs {
			tabs[i] = coord.New(t.Context(), coord.Options{
				ID:         fmt.Sprintf("tab-%d", i),
				Strategies: []bus.Strategy{ChannelStrategy(cfg)},
			})
			require.True(t, tabs[i].Enabled())
		}
		a, b := tabs[0], tabs[1]
		t.Cleanup(func() {
			require.NoError(t, a.Close())
			require.NoError(t, b.Close())
		})

		reg := a.Register("t1", "m1", "t1_m1_1000_abc")
		require.Eventually(t, func() bool { return len(b.Pending()) == 1 }, 5*time.Second, 10*time.Millisecond)

		b.HandleResponse("t1_m1_1000_abc", []byte(`{"result":"ok"}`))

		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		defer cancel()
		resp, err := reg.Future.Wait(ctx)
		require.NoError(t, err)
		require.JSONEq(t, `{"result":"ok"}`, string(resp))

		require.Eventually(t, func() bool {
			return len(a.Pending()) == 0 && len(b.Pending()) == 0
		}, 5*time.Second, 10*time.Millisecond)
	})
}
