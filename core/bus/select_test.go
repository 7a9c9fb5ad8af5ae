package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	hub := CreateMemoryHub(t)
	broken := Strategy{
		Name: "broken",
		Open: func(context.Context) (Bus, error) { return nil, errors.New("not supported") },
	}

	t.Run("first available wins", func(t *testing.T) {
		b, name, err := Select(t.Context(), nil, broken, hub.Strategy("wc"))
		require.NoError(t, err)
		require.Equal(t, "memory", name)
		require.NoError(t, b.Close())
	})

	t.Run("none available", func(t *testing.T) {
		b, _, err := Select(t.Context(), nil, broken, Strategy{Name: "empty"})
		require.Nil(t, b)
		require.ErrorIs(t, err, ErrUnavailable)
		require.ErrorContains(t, err, "not supported")
	})

	t.Run("no strategies", func(t *testing.T) {
		_, _, err := Select(t.Context(), nil)
		require.ErrorIs(t, err, ErrUnavailable)
	})
}
