package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/coord"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tabsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.True(t, cfg.Enabled)
	require.Equal(t, 60*time.Second, cfg.RequestTimeout)
	require.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	require.Equal(t, 10*time.Second, cfg.CleanupInterval)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
enabled = false
request_timeout_ms = 1500
log_level = "debug"
metrics_addr = ":9100"

[bus]
strategies = ["nats", " fs "]
channel = "wc"
nats_url = "nats://example:4222"
dir = "/tmp/tabsync"
linger_ms = 250
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.False(t, cfg.Enabled)
	require.Equal(t, 1500*time.Millisecond, cfg.RequestTimeout)
	require.Equal(t, coord.DefaultHeartbeatInterval, cfg.HeartbeatInterval, "undefined keys keep defaults")
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
	require.Equal(t, ":9100", cfg.MetricsAddr)
	require.Equal(t, []string{"nats", "fs"}, cfg.Bus.Strategies)
	require.Equal(t, "wc", cfg.Bus.Channel)
	require.Equal(t, "nats://example:4222", cfg.Bus.NatsURL)
	require.Equal(t, "tabsync", cfg.Bus.SubjectPrefix)
	require.Equal(t, 250*time.Millisecond, cfg.Bus.Linger)

	opts := cfg.CoordOptions(slog.Default())
	require.True(t, opts.Disabled)
	require.Equal(t, 1500*time.Millisecond, opts.RequestTimeout)
}

func TestLoad_Env(t *testing.T) {
	path := writeConfig(t, `request_timeout_ms = 1500`)

	t.Setenv("TABSYNC_REQUEST_TIMEOUT_MS", "2500")
	t.Setenv("TABSYNC_HEARTBEAT_INTERVAL_MS", "100")
	t.Setenv("TABSYNC_ENABLED", "false")
	t.Setenv("TABSYNC_LOG_LEVEL", "warn")
	t.Setenv("TABSYNC_BUS_STRATEGIES", "nats, nats-kv,memory")
	t.Setenv("NATS_URL", "nats://from-nats-url:4222")
	t.Setenv("TABSYNC_CONFIG", path)

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, 2500*time.Millisecond, cfg.RequestTimeout)
	require.Equal(t, 100*time.Millisecond, cfg.HeartbeatInterval)
	require.False(t, cfg.Enabled)
	require.Equal(t, slog.LevelWarn, cfg.LogLevel)
	require.Equal(t, []string{"nats", "nats-kv", "memory"}, cfg.Bus.Strategies)
	require.Equal(t, "nats://from-nats-url:4222", cfg.Bus.NatsURL)

	t.Setenv("TABSYNC_NATS_URL", "nats://explicit:4222")
	cfg, err = FromEnv()
	require.NoError(t, err)
	require.Equal(t, "nats://explicit:4222", cfg.Bus.NatsURL)
}

func TestLoad_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key":      `request_timeout = 10`,
		"zero timeout":     `request_timeout_ms = 0`,
		"unknown strategy": "[bus]\nstrategies = [\"carrier-pigeon\"]",
		"fs without dir":   "[bus]\nstrategies = [\"fs\"]",
		"bad level":        `log_level = "loud"`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}

	_, err := Load(writeConfig(t, `request_timeout_ms = 0`))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestConfig_Strategies(t *testing.T) {
	cfg := Default()
	cfg.Bus.Strategies = []string{StrategyNats, StrategyNatsKV, StrategyFS, StrategyMemory}
	cfg.Bus.Dir = t.TempDir()

	hub := bus.NewMemoryHub()
	strategies, err := cfg.Strategies(hub, cfg.Connector(), slog.Default())
	require.NoError(t, err)

	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"nats", "nats-kv", "fs", "memory"}, names)

	_, err = cfg.Strategies(nil, cfg.Connector(), slog.Default())
	require.ErrorIs(t, err, ErrInvalid)
}

// With no NATS server around, selection falls through to the directory store.
func TestConfig_StrategiesFallback(t *testing.T) {
	cfg := Default()
	cfg.Bus.Strategies = []string{StrategyNats, StrategyFS}
	cfg.Bus.NatsURL = "nats://127.0.0.1:1"
	cfg.Bus.Dir = t.TempDir()

	strategies, err := cfg.Strategies(nil, cfg.Connector(), slog.Default())
	require.NoError(t, err)

	b, name, err := bus.Select(t.Context(), slog.Default(), strategies...)
	require.NoError(t, err)
	require.Equal(t, "fs", name)
	require.NoError(t, b.Close())
}

func TestConfig_Logger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = slog.LevelWarn

	var buf bytes.Buffer
	log := cfg.Logger(&buf)
	log.Info("hidden")
	log.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}
