package coord

import (
	"maps"
	"time"
)

func (c *Coordinator) heartbeat() {
	c.broadcast(TabHeartbeat{TabID: c.id, Timestamp: c.now().UnixMilli()})
}

// onHeartbeat stamps the peer with the local receive time; the sender's
// timestamp is not compared against the local clock.
func (c *Coordinator) onHeartbeat(sender string, p TabHeartbeat) {
	peer := p.TabID
	if peer == "" {
		peer = sender
	}
	if peer == "" || peer == c.id {
		return
	}
	c.mu.Lock()
	c.peers[peer] = c.now()
	alive := len(c.peers)
	c.mu.Unlock()
	c.metrics.PeersAlive(alive)
}

// Peers returns the last time each live peer was heard from.
func (c *Coordinator) Peers() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.peers)
}

func (c *Coordinator) deadline() time.Duration {
	return deadPeerFactor * c.heartbeatInterval
}
