// Package app assembles one context of an origin: a [coord.Coordinator]
// joined to the origin's message bus and a relay sender wrapped by the
// interceptor, so responses reach the caller whichever context the relay
// delivered them to.
//
// # Basic Usage
//
//	session := relay.NewMemorySession(wallet)
//	tab, err := app.New(app.Config{
//	    Coord: coord.Options{Strategies: []bus.Strategy{hub.Strategy("wc")}},
//	    Attach: func(id string, onResponse relay.UnsolicitedFunc) (relay.Sender, error) {
//	        return session.Attach(id, onResponse), nil
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tab.Stop()
//
//	sig, err := app.Request[Signature](ctx, tab, topic, "hedera_signMessage", params)
//
// Any [relay.Sender] works; the NATS relay adapter connects contexts that
// live in separate processes.
package app
