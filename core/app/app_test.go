package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/coord"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/relay"
)

type (
	signParams struct{ Message string }
	signature  struct{ Signed string }
)

func wallet(_ context.Context, req relay.Request) (json.RawMessage, error) {
	var p signParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, err
	}
	return json.Marshal(signature{Signed: "sig:" + p.Message})
}

func createTabs(t *testing.T, n int) ([]*App, *relay.MemorySession) {
	t.Helper()
	hub := bus.CreateMemoryHub(t)
	session := relay.NewMemorySession(wallet)
	t.Cleanup(func() { _ = session.Close() })

	tabs := make([]*App, 0, n)
	for i := range n {
		tab, err := New(Config{
			Context: t.Context(),
			ID:      fmt.Sprintf("tab-%d", i),
			Coord:   coord.Options{Strategies: []bus.Strategy{hub.Strategy("wc")}},
			Attach: func(id string, onResponse relay.UnsolicitedFunc) (relay.Sender, error) {
				return session.Attach(id, onResponse), nil
			},
		})
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, tab.Stop()) })
		tabs = append(tabs, tab)
	}
	return tabs, session
}

func TestApp(t *testing.T) {
	tabs, session := createTabs(t, 3)
	require.Equal(t, "tab-2", session.Active())

	for _, tab := range tabs {
		require.True(t, tab.Coordinator().Enabled())
		sig, err := Request[signature](t.Context(), tab, "t1", "sign", signParams{Message: tab.ID()})
		require.NoError(t, err)
		require.Equal(t, "sig:"+tab.ID(), sig.Signed)
	}

	require.True(t, session.Activate("tab-0"))
	sig, err := Request[signature](t.Context(), tabs[2], "t1", "sign", signParams{Message: "again"})
	require.NoError(t, err)
	require.Equal(t, "sig:again", sig.Signed)
}

func TestApp_GeneratesID(t *testing.T) {
	session := relay.NewMemorySession(wallet)
	defer session.Close()

	tab, err := New(Config{
		Context: t.Context(),
		Attach: func(id string, onResponse relay.UnsolicitedFunc) (relay.Sender, error) {
			return session.Attach(id, onResponse), nil
		},
	})
	require.NoError(t, err)
	defer tab.Stop()

	require.Regexp(t, `^tab-.{8}$`, tab.ID())
	require.Equal(t, tab.ID(), tab.Coordinator().ID())
	require.False(t, tab.Coordinator().Enabled(), "no bus configured")

	sig, err := Request[signature](t.Context(), tab, "t1", "sign", signParams{Message: "solo"})
	require.NoError(t, err)
	require.Equal(t, "sig:solo", sig.Signed)
}

func TestApp_AttachFails(t *testing.T) {
	boom := errors.New("no relay")
	_, err := New(Config{
		Attach: func(string, relay.UnsolicitedFunc) (relay.Sender, error) { return nil, boom },
	})
	require.ErrorIs(t, err, boom)

	_, err = New(Config{})
	require.Error(t, err)
}

func TestApp_StopRejectsPending(t *testing.T) {
	block := make(chan struct{})
	session := relay.NewMemorySession(func(ctx context.Context, _ relay.Request) (json.RawMessage, error) {
		<-block
		return json.RawMessage(`null`), nil
	})
	defer session.Close()
	defer close(block)

	tab, err := New(Config{
		Context: t.Context(),
		Attach: func(id string, onResponse relay.UnsolicitedFunc) (relay.Sender, error) {
			return session.Attach(id, onResponse), nil
		},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := tab.Send(t.Context(), "t1", "sign", nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(tab.Coordinator().Pending()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, tab.Stop())
	require.ErrorIs(t, <-done, coord.ErrClosed)
}
