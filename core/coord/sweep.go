package coord

import (
	"fmt"
	"log/slog"
	"slices"
)

// SweepReport lists what one cleanup pass did.
type SweepReport struct {
	// Expired are owned requests failed with ErrTimeout.
	Expired []string
	// Dropped are expired mirror entries removed.
	Dropped []string
	// DeadPeers were removed from the liveness table.
	DeadPeers []string
	// Orphaned are requests whose owner is dead. They are left to time out.
	Orphaned []string
}

// Sweep fails requests older than their timeout, drops stale mirrors and
// removes peers that stopped heartbeating. It runs periodically and can be
// called directly.
func (c *Coordinator) Sweep() SweepReport {
	var rep SweepReport
	now := c.now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return rep
	}
	for id, r := range c.requests {
		if !r.expired(now) {
			continue
		}
		if _, owned := c.handlers[id]; owned {
			rep.Expired = append(rep.Expired, id)
			continue
		}
		delete(c.requests, id)
		rep.Dropped = append(rep.Dropped, id)
	}

	dead := map[string]struct{}{}
	for peer, seen := range c.peers {
		if now.Sub(seen) > c.deadline() {
			delete(c.peers, peer)
			dead[peer] = struct{}{}
			rep.DeadPeers = append(rep.DeadPeers, peer)
		}
	}
	for id, r := range c.requests {
		if _, ok := dead[r.OwnerID]; ok {
			rep.Orphaned = append(rep.Orphaned, id)
		}
	}
	alive := len(c.peers)
	c.mu.Unlock()

	slices.Sort(rep.Expired)
	slices.Sort(rep.Dropped)
	slices.Sort(rep.DeadPeers)
	slices.Sort(rep.Orphaned)

	for _, id := range rep.Expired {
		c.Fail(id, fmt.Errorf("%w: %s expired during cleanup", ErrTimeout, id))
	}

	if len(rep.DeadPeers) > 0 {
		c.metrics.PeersDead(len(rep.DeadPeers))
		c.metrics.PeersAlive(alive)
		c.log.Info("peers stopped heartbeating", slog.Any("peers", rep.DeadPeers))
	}
	if len(rep.Orphaned) > 0 {
		c.metrics.OrphanedRequests(len(rep.Orphaned))
		c.log.Warn("requests owned by dead peers, waiting for their timeout", slog.Any("requests", rep.Orphaned))
	}
	if len(rep.Expired)+len(rep.Dropped) > 0 {
		c.log.Debug("cleanup",
			slog.Int("expired", len(rep.Expired)),
			slog.Int("dropped", len(rep.Dropped)),
		)
	}
	return rep
}
