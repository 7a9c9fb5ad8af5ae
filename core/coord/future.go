package coord

import (
	"context"
	"encoding/json"
	"sync"
)

// Future is the pending outcome of one registered request. It settles
// exactly once; later attempts are ignored.
type Future struct {
	ch   chan struct{}
	once sync.Once

	resp json.RawMessage
	err  error
}

func newFuture() *Future {
	return &Future{ch: make(chan struct{})}
}

// settle reports whether this call was the one that settled the future.
func (f *Future) settle(resp json.RawMessage, err error) (settled bool) {
	f.once.Do(func() {
		f.resp, f.err = resp, err
		close(f.ch)
		settled = true
	})
	return
}

// Done is closed once the future settled.
func (f *Future) Done() <-chan struct{} {
	return f.ch
}

// Wait blocks until the future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.ch:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the future has an outcome yet.
func (f *Future) Settled() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}
