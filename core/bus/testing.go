package bus

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateMemoryHub returns a hub that logs to the default logger.
func CreateMemoryHub(t *testing.T) *MemoryHub {
	t.Helper()
	return NewMemoryHub().WithLog(slog.Default())
}

// OpenTestChannel opens a handle on hub and closes it on test cleanup.
func OpenTestChannel(t *testing.T, hub *MemoryHub, name string) Bus {
	b := hub.Open(name)
	t.Cleanup(func() {
		require.NoError(t, b.Close())
	})
	return b
}
