// Package bus delivers small structured messages between execution contexts
// that share one origin, without any central server.
//
// A [Bus] is the raw broadcast primitive. Two strategies with identical
// message semantics are provided:
//
//   - Broadcast channel: a named pub/sub channel. [MemoryHub] implements it
//     in-process; adapters/nats implements it over a NATS subject.
//   - Storage: [StorageBus] writes every message into a shared key-value
//     store and clears it right away. Peers observe the store's change
//     notification. Rapid writes may coalesce or be missed, so only
//     idempotent or timeout-retried messages should travel over it.
//
// [Select] picks the first strategy that can be opened at startup and
// returns [ErrUnavailable] when none can.
//
// A [Peer] is the per-context endpoint. It stamps the local identity on
// outgoing messages, never fails the caller on a broadcast error, and drops
// messages it sent itself.
//
//	b, strategy, err := bus.Select(ctx, log,
//	    nats.ChannelStrategy(chCfg),
//	    bus.StorageStrategy(kvStore, "tabsync", 0),
//	)
//	p := bus.NewPeer("tab-1", b, log)
//	err = p.OnMessage(ctx, func(ctx context.Context, msg bus.Message) { ... })
//	p.Broadcast(bus.Message{Type: "TAB_HEARTBEAT", Data: data})
package bus
