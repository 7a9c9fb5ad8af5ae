// Command tabsim runs several contexts of one origin against a single
// simulated relay connection that keeps moving between them, and reports
// that every request still resolved in the context that sent it.
//
// Configuration is read from TABSYNC_CONFIG and TABSYNC_* variables, see
// internal/config. TABSIM_TABS, TABSIM_REQUESTS and TABSIM_SWITCH_MS control
// the simulation itself.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	promadapter "github.com/hashgraph/hedera-wallet-connect-sub000/adapters/prometheus"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/app"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/relay"
	"github.com/hashgraph/hedera-wallet-connect-sub000/internal/config"
)

var (
	numTabs     = getEnvInt("TABSIM_TABS", 3)
	numRequests = getEnvInt("TABSIM_REQUESTS", 10)
	switchEvery = time.Duration(getEnvInt("TABSIM_SWITCH_MS", 20)) * time.Millisecond
)

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

type (
	signParams struct {
		Tab string `json:"tab"`
		Seq int    `json:"seq"`
	}
	signature struct {
		Tab string `json:"tab"`
		Seq int    `json:"seq"`
		Sig string `json:"sig"`
	}
)

// wallet approves every request after a short, random think time.
func wallet(ctx context.Context, req relay.Request) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(5+rand.IntN(25)) * time.Millisecond):
	}
	var p signParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, err
	}
	return json.Marshal(signature{Tab: p.Tab, Seq: p.Seq, Sig: "sig-" + req.ID})
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tabsim: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === metrics ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	coordMetrics := promadapter.NewCoordMetrics(reg)
	if cfg.MetricsAddr != "" {
		promMux := http.NewServeMux()
		promMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		promServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promMux}
		go func() {
			log.Info("serving metrics", slog.String("addr", cfg.MetricsAddr))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer promServer.Close()
	}

	// === shared relay and bus ===
	session := relay.NewMemorySession(wallet).WithLog(log)
	defer session.Close()

	hub := bus.NewMemoryHub().WithLog(log)
	strategies, err := cfg.Strategies(hub, cfg.Connector(), log)
	if err != nil {
		return err
	}

	// === tabs ===
	tabs := make([]*app.App, 0, numTabs)
	defer func() {
		for _, tab := range tabs {
			_ = tab.Stop()
		}
	}()
	for i := range numTabs {
		id := fmt.Sprintf("tab-%d", i)
		opts := cfg.CoordOptions(log)
		opts.Strategies = strategies
		opts.Metrics = coordMetrics.ForTab(id)

		tab, err := app.New(app.Config{
			Context: ctx,
			Log:     log,
			ID:      id,
			Coord:   opts,
			Attach: func(id string, onResponse relay.UnsolicitedFunc) (relay.Sender, error) {
				return session.Attach(id, onResponse), nil
			},
		})
		if err != nil {
			return err
		}
		tabs = append(tabs, tab)
	}

	// === simulation ===
	var ok, failed atomic.Int64
	startAt := time.Now()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		t := time.NewTicker(switchEvery)
		defer t.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-t.C:
				session.Activate(tabs[rand.IntN(len(tabs))].ID())
			}
		}
	}()

	g, gctx := errgroup.WithContext(runCtx)
	for _, tab := range tabs {
		g.Go(func() error {
			for seq := range numRequests {
				sig, err := app.Request[signature](gctx, tab, "topic-1", "hedera_signMessage", signParams{Tab: tab.ID(), Seq: seq})
				if err != nil {
					failed.Add(1)
					log.Warn("request failed", slog.String("tab", tab.ID()), slog.Int("seq", seq), slog.Any("error", err))
					continue
				}
				if sig.Tab != tab.ID() || sig.Seq != seq {
					return fmt.Errorf("%s got the response for %s #%d", tab.ID(), sig.Tab, sig.Seq)
				}
				ok.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	cancelRun()

	fmt.Printf("tabs:      %d\n", numTabs)
	fmt.Printf("requests:  %d ok, %d failed\n", ok.Load(), failed.Load())
	fmt.Printf("duration:  %s\n", time.Since(startAt).Round(time.Millisecond))
	for _, tab := range tabs {
		fmt.Printf("%s: coordinated=%t pending=%d peers=%d\n",
			tab.ID(),
			tab.Coordinator().Enabled(),
			len(tab.Coordinator().Pending()),
			len(tab.Coordinator().Peers()),
		)
	}

	if err != nil {
		return err
	}
	if failed.Load() > 0 {
		return fmt.Errorf("%d requests failed", failed.Load())
	}

	if cfg.MetricsAddr != "" {
		log.Info("done, metrics stay up until interrupted")
		<-ctx.Done()
	}
	return nil
}
