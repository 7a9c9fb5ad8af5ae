package coord

import (
	"log/slog"
	"time"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
)

const (
	DefaultRequestTimeout    = 60 * time.Second
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultCleanupInterval   = 10 * time.Second

	// peers silent for more than deadPeerFactor heartbeats are dead
	deadPeerFactor = 3
)

type Options struct {
	// ID is the context identity. Generated if empty.
	ID string

	// Bus is used as is when set; the coordinator takes ownership of it.
	Bus bus.Bus
	// Strategies are tried in order when Bus is nil.
	Strategies []bus.Strategy
	// Disabled turns off all cross-context behaviour.
	Disabled bool

	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration

	Log     *slog.Logger
	Metrics Metrics
	// Now is the clock used for ages and liveness.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = NopMetrics()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
