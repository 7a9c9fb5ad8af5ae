package coord

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFuture_SettlesOnce(t *testing.T) {
	f := newFuture()

	require.False(t, f.Settled())

	require.True(t, f.settle(json.RawMessage(`1`), nil))
	require.False(t, f.settle(json.RawMessage(`2`), nil))
	require.False(t, f.settle(nil, errors.New("late")))

	require.True(t, f.Settled())
	resp, err := f.Wait(t.Context())
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`1`), resp)

	select {
	case <-f.Done():
	default:
		t.Fatal("Done() should be closed")
	}
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	f := newFuture()
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// still settleable after a waiter gave up
	require.True(t, f.settle(nil, ErrTimeout))
	_, err = f.Wait(t.Context())
	require.ErrorIs(t, err, ErrTimeout)
}
