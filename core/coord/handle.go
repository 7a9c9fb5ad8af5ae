package coord

import (
	"context"
	"log/slog"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
)

// onMessage applies a message from another context. Every branch tolerates
// duplicates and arbitrary ordering.
func (c *Coordinator) onMessage(_ context.Context, msg bus.Message) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	c.metrics.MessageReceived(msg.Type)

	var err error
	switch msg.Type {
	case MsgRequestRegistered:
		var p RequestRegistered
		if err = msg.Decode(&p); err == nil {
			c.onRegistered(p)
		}
	case MsgResponseReceived:
		var p ResponseReceived
		if err = msg.Decode(&p); err == nil {
			c.onResponseReceived(p)
		}
	case MsgRequestCompleted:
		var p RequestCompleted
		if err = msg.Decode(&p); err == nil {
			c.onCompleted(p)
		}
	case MsgTabHeartbeat:
		var p TabHeartbeat
		if err = msg.Decode(&p); err == nil {
			c.onHeartbeat(msg.Sender, p)
		}
	case MsgRequestClaim:
		var p RequestClaim
		if err = msg.Decode(&p); err == nil {
			c.onClaim(p)
		}
	default:
		c.log.Debug("ignoring message", slog.String("type", msg.Type), slog.String("sender", msg.Sender))
	}

	if err != nil {
		c.log.Warn("dropping malformed message",
			slog.String("type", msg.Type),
			slog.String("sender", msg.Sender),
			slog.Any("error", err),
		)
	}
}

func (c *Coordinator) onRegistered(p RequestRegistered) {
	r := p.Request
	if r.RequestID == "" || r.OwnerID == "" {
		return
	}
	if r.expired(c.now()) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.requests[r.RequestID]; exists {
		return
	}
	c.requests[r.RequestID] = &r
	c.log.Debug("mirroring request",
		slog.String("request_id", r.RequestID),
		slog.String("owner", r.OwnerID),
		slog.String("method", r.Method),
	)
}

func (c *Coordinator) onResponseReceived(p ResponseReceived) {
	c.mu.Lock()
	_, owned := c.handlers[p.RequestID]
	c.mu.Unlock()
	if !owned {
		// Every peer sees the forward; only the owner acts on it.
		return
	}
	c.log.Debug("response forwarded by peer",
		slog.String("request_id", p.RequestID),
		slog.String("received_by", p.ReceivedBy),
	)
	c.Complete(p.RequestID, p.Response)
}

func (c *Coordinator) onCompleted(p RequestCompleted) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, owned := c.handlers[p.RequestID]; owned {
		// Only this context settles its own handlers.
		return
	}
	delete(c.requests, p.RequestID)
}

func (c *Coordinator) onClaim(p RequestClaim) {
	if p.ClaimingTabID == "" {
		return
	}
	c.mu.Lock()
	r, ok := c.requests[p.RequestID]
	var previous string
	if ok {
		previous = r.OwnerID
		r.OwnerID = p.ClaimingTabID
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.log.Info("request claimed",
		slog.String("request_id", p.RequestID),
		slog.String("previous_owner", previous),
		slog.String("owner", p.ClaimingTabID),
	)
}
