package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/coord"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/intercept"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/relay"
)

// AttachFunc connects one context to the shared relay session. onResponse
// must receive every response that arrives for a request the returned
// sender is not waiting on.
type AttachFunc func(id string, onResponse relay.UnsolicitedFunc) (relay.Sender, error)

type Config struct {
	Context context.Context
	Log     *slog.Logger
	// ID of the context, generated when empty.
	ID     string
	Coord  coord.Options
	Attach AttachFunc
}

// App is one context: a coordinator plus the intercepted relay sender.
type App struct {
	ctx       context.Context
	cancelCtx context.CancelFunc
	log       *slog.Logger
	id        string
	coord     *coord.Coordinator
	sender    relay.Sender
	send      relay.SendFunc
}

func New(config Config) (app *App, err error) {
	if config.Attach == nil {
		return nil, errors.New("app: attach is required")
	}

	app = &App{id: config.ID}
	if app.id == "" {
		app.id = fmt.Sprintf("tab-%s", gonanoid.Must(8))
	}

	// === logger ===
	if config.Log == nil {
		config.Log = slog.Default()
	}
	app.log = config.Log.With(slog.String("tab", app.id))

	// === context ===
	if config.Context == nil {
		config.Context = context.Background()
	}
	app.ctx, app.cancelCtx = context.WithCancel(config.Context)

	// === coordinator ===
	coordOpts := config.Coord
	coordOpts.ID = app.id
	if coordOpts.Log == nil {
		coordOpts.Log = config.Log
	}
	app.coord = coord.New(app.ctx, coordOpts)

	// === relay ===
	app.sender, err = config.Attach(app.id, app.coord.HandleResponse)
	if err != nil {
		app.cancelCtx()
		_ = app.coord.Close()
		return nil, fmt.Errorf("app: attach relay: %w", err)
	}
	app.send = intercept.Wrap(app.coord, app.sender.Send, intercept.WithLog(app.log))

	app.log.Debug("app started", slog.Bool("coordinated", app.coord.Enabled()))
	return app, nil
}

func (a *App) ID() string                      { return a.id }
func (a *App) Coordinator() *coord.Coordinator { return a.coord }

// Send marshals params and sends the request through the coordinator.
func (a *App) Send(ctx context.Context, topic, method string, params any) (json.RawMessage, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return a.send(ctx, relay.Request{Topic: topic, Method: method, Params: data})
}

// Stop closes the coordinator and the relay sender. Requests still pending
// are rejected with coord.ErrClosed.
func (a *App) Stop() error {
	a.cancelCtx()
	errs := []error{a.coord.Close()}
	if c, ok := a.sender.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Request sends a request and decodes its response into RESP.
func Request[RESP any](ctx context.Context, a *App, topic, method string, params any) (out RESP, err error) {
	data, err := a.Send(ctx, topic, method, params)
	if err != nil {
		return out, err
	}
	if err = json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
