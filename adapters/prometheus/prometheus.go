// Package prometheus provides Prometheus implementations of the metrics
// interfaces used by the coordinator.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/metrics"
)

// timer wraps a Prometheus histogram to implement the Timer interface.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) metrics.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for request latency (in seconds). Requests wait
// on a human approving them in the wallet, so the range reaches a minute.
var defaultBuckets = []float64{
	.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60,
}
