package coord

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
)

// CreateTestCoordinators starts n coordinators named tab-0..tab-n-1 on one
// in-memory channel. They are closed when the test ends.
func CreateTestCoordinators(t *testing.T, n int, opts Options) []*Coordinator {
	t.Helper()
	hub := bus.CreateMemoryHub(t)
	out := make([]*Coordinator, 0, n)
	for i := range n {
		o := opts
		o.ID = fmt.Sprintf("tab-%d", i)
		o.Bus = hub.Open("wc")
		c := New(t.Context(), o)
		t.Cleanup(func() {
			require.NoError(t, c.Close())
		})
		out = append(out, c)
	}
	return out
}

// ManualClock is a clock for Options.Now that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
