package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/coord"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/metrics"
)

// CoordMetrics holds the collectors shared by all coordinators of a
// process. Use ForTab to get the coord.Metrics of one context.
type CoordMetrics struct {
	requestDuration   *prometheus.HistogramVec
	requestsTotal     *prometheus.CounterVec
	settledTotal      *prometheus.CounterVec
	pendingRequests   *prometheus.GaugeVec
	forwardedTotal    *prometheus.CounterVec
	unknownTotal      *prometheus.CounterVec
	messagesTotal     *prometheus.CounterVec
	broadcastFailures *prometheus.CounterVec
	peersAlive        *prometheus.GaugeVec
	peersDeadTotal    *prometheus.CounterVec
	orphanedTotal     *prometheus.CounterVec
}

// NewCoordMetrics creates and registers the coordinator collectors.
func NewCoordMetrics(reg prometheus.Registerer) *CoordMetrics {
	m := &CoordMetrics{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tabsync_coord_request_duration_seconds",
			Help:    "Time from registration until a request settled",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsync_coord_requests_total",
			Help: "Total number of registered requests",
		}, []string{"method"}),

		settledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsync_coord_requests_settled_total",
			Help: "Total number of settled requests by outcome",
		}, []string{"method", "outcome"}),

		pendingRequests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tabsync_coord_pending_requests",
			Help: "Number of requests owned and not yet settled",
		}, []string{"tab"}),

		forwardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsync_coord_responses_forwarded_total",
			Help: "Total number of responses forwarded to their owner",
		}, []string{"tab"}),

		unknownTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsync_coord_unknown_responses_total",
			Help: "Total number of responses dropped for unknown requests",
		}, []string{"tab"}),

		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsync_coord_messages_received_total",
			Help: "Total number of bus messages received",
		}, []string{"type"}),

		broadcastFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsync_coord_broadcast_failures_total",
			Help: "Total number of failed broadcasts",
		}, []string{"type"}),

		peersAlive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tabsync_coord_peers_alive",
			Help: "Number of peers heard from within the liveness deadline",
		}, []string{"tab"}),

		peersDeadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsync_coord_peers_dead_total",
			Help: "Total number of peers removed after missing heartbeats",
		}, []string{"tab"}),

		orphanedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsync_coord_orphaned_requests_total",
			Help: "Total number of times a request was found owned by a dead peer",
		}, []string{"tab"}),
	}

	reg.MustRegister(
		m.requestDuration,
		m.requestsTotal,
		m.settledTotal,
		m.pendingRequests,
		m.forwardedTotal,
		m.unknownTotal,
		m.messagesTotal,
		m.broadcastFailures,
		m.peersAlive,
		m.peersDeadTotal,
		m.orphanedTotal,
	)

	return m
}

// ForTab returns the metrics of the context identified by tab.
func (m *CoordMetrics) ForTab(tab string) coord.Metrics {
	return &tabMetrics{m: m, tab: tab}
}

// tabMetrics implements coord.Metrics for one context.
type tabMetrics struct {
	m   *CoordMetrics
	tab string
}

func (t *tabMetrics) RequestDuration(method string) metrics.Timer {
	return newTimer(t.m.requestDuration.WithLabelValues(method))
}

func (t *tabMetrics) RequestRegistered(method string) {
	t.m.requestsTotal.WithLabelValues(method).Inc()
}

func (t *tabMetrics) RequestSettled(method string, outcome string) {
	t.m.settledTotal.WithLabelValues(method, outcome).Inc()
}

func (t *tabMetrics) PendingRequests(count int) {
	t.m.pendingRequests.WithLabelValues(t.tab).Set(float64(count))
}

func (t *tabMetrics) ResponseForwarded() {
	t.m.forwardedTotal.WithLabelValues(t.tab).Inc()
}

func (t *tabMetrics) UnknownResponse() {
	t.m.unknownTotal.WithLabelValues(t.tab).Inc()
}

func (t *tabMetrics) MessageReceived(msgType string) {
	t.m.messagesTotal.WithLabelValues(msgType).Inc()
}

func (t *tabMetrics) BroadcastFailed(msgType string) {
	t.m.broadcastFailures.WithLabelValues(msgType).Inc()
}

func (t *tabMetrics) PeersAlive(count int) {
	t.m.peersAlive.WithLabelValues(t.tab).Set(float64(count))
}

func (t *tabMetrics) PeersDead(count int) {
	t.m.peersDeadTotal.WithLabelValues(t.tab).Add(float64(count))
}

func (t *tabMetrics) OrphanedRequests(count int) {
	t.m.orphanedTotal.WithLabelValues(t.tab).Add(float64(count))
}

var _ coord.Metrics = (*tabMetrics)(nil)
