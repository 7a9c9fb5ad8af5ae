package coord

import "github.com/hashgraph/hedera-wallet-connect-sub000/core/metrics"

// Request outcomes reported to Metrics.RequestSettled.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeClosed    = "closed"
)

// Metrics defines the instrumentation of a Coordinator.
// All methods are thread-safe.
type Metrics interface {
	RequestDuration(method string) metrics.Timer
	RequestRegistered(method string)
	RequestSettled(method string, outcome string)
	PendingRequests(count int)

	ResponseForwarded()
	UnknownResponse()

	MessageReceived(msgType string)
	BroadcastFailed(msgType string)

	PeersAlive(count int)
	PeersDead(count int)
	OrphanedRequests(count int)
}

type nopMetrics struct{}

func (nopMetrics) RequestDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) RequestRegistered(string)             {}
func (nopMetrics) RequestSettled(string, string)        {}
func (nopMetrics) PendingRequests(int)                  {}

func (nopMetrics) ResponseForwarded() {}
func (nopMetrics) UnknownResponse()   {}

func (nopMetrics) MessageReceived(string) {}
func (nopMetrics) BroadcastFailed(string) {}

func (nopMetrics) PeersAlive(int)       {}
func (nopMetrics) PeersDead(int)        {}
func (nopMetrics) OrphanedRequests(int) {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
