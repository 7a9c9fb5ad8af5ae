package coord

import (
	"encoding/json"
	"time"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
)

// Message types exchanged between coordinators.
const (
	MsgRequestRegistered = "REQUEST_REGISTERED"
	MsgResponseReceived  = "RESPONSE_RECEIVED"
	MsgRequestCompleted  = "REQUEST_COMPLETED"
	MsgTabHeartbeat      = "TAB_HEARTBEAT"
	// MsgRequestClaim is handled when received but never sent by this package.
	MsgRequestClaim = "REQUEST_CLAIM"
)

// PendingRequest is an outstanding request as known to one context. The
// owner keeps it next to the request's handler; peers hold a mirror that
// only tells them where a misdelivered response must go.
type PendingRequest struct {
	RequestID string    `json:"requestId"`
	OwnerID   string    `json:"ownerId"`
	Topic     string    `json:"topic"`
	Method    string    `json:"method"`
	CreatedAt time.Time `json:"createdAt"`
	TimeoutMs int64     `json:"timeoutMs"`
}

func (r PendingRequest) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

func (r PendingRequest) expired(now time.Time) bool {
	return now.Sub(r.CreatedAt) > r.Timeout()
}

type (
	RequestRegistered struct {
		Request PendingRequest `json:"request"`
	}

	ResponseReceived struct {
		RequestID  string          `json:"requestId"`
		Response   json.RawMessage `json:"response"`
		ReceivedBy string          `json:"receivedBy"`
	}

	RequestCompleted struct {
		RequestID string `json:"requestId"`
		TabID     string `json:"tabId"`
	}

	TabHeartbeat struct {
		TabID     string `json:"tabId"`
		Timestamp int64  `json:"timestamp"`
	}

	RequestClaim struct {
		RequestID     string `json:"requestId"`
		ClaimingTabID string `json:"claimingTabId"`
	}
)

func (RequestRegistered) MessageType() string { return MsgRequestRegistered }
func (ResponseReceived) MessageType() string  { return MsgResponseReceived }
func (RequestCompleted) MessageType() string  { return MsgRequestCompleted }
func (TabHeartbeat) MessageType() string      { return MsgTabHeartbeat }
func (RequestClaim) MessageType() string      { return MsgRequestClaim }

type payload interface {
	MessageType() string
}

// Encode wraps a protocol payload into a bus message.
func Encode(p payload) (bus.Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return bus.Message{}, err
	}
	return bus.Message{Type: p.MessageType(), Data: data}, nil
}
