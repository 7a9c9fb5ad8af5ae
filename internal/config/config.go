// Package config loads the settings shared by the tabsync commands: a TOML
// file (optional) overlaid with TABSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hashgraph/hedera-wallet-connect-sub000/adapters/fsstore"
	natsadapter "github.com/hashgraph/hedera-wallet-connect-sub000/adapters/nats"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
	"github.com/hashgraph/hedera-wallet-connect-sub000/core/coord"
)

// Bus strategy names accepted in bus.strategies.
const (
	StrategyMemory = "memory"
	StrategyNats   = "nats"
	StrategyNatsKV = "nats-kv"
	StrategyFS     = "fs"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Enabled           bool
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration
	LogLevel          slog.Level
	MetricsAddr       string
	Bus               BusConfig
}

type BusConfig struct {
	// Strategies are tried in order, the first that opens is used.
	Strategies    []string
	Channel       string
	NatsURL       string
	SubjectPrefix string
	Bucket        string
	Dir           string
	Linger        time.Duration
}

func Default() Config {
	return Config{
		Enabled:           true,
		RequestTimeout:    coord.DefaultRequestTimeout,
		HeartbeatInterval: coord.DefaultHeartbeatInterval,
		CleanupInterval:   coord.DefaultCleanupInterval,
		LogLevel:          slog.LevelInfo,
		Bus: BusConfig{
			Strategies:    []string{StrategyMemory},
			Channel:       "tabsync",
			SubjectPrefix: "tabsync",
			Bucket:        "tabsync",
		},
	}
}

// config.toml key mapping.
type fileConfig struct {
	Enabled             bool   `toml:"enabled"`
	RequestTimeoutMs    int64  `toml:"request_timeout_ms"`
	HeartbeatIntervalMs int64  `toml:"heartbeat_interval_ms"`
	CleanupIntervalMs   int64  `toml:"cleanup_interval_ms"`
	LogLevel            string `toml:"log_level"`
	MetricsAddr         string `toml:"metrics_addr"`
	Bus                 struct {
		Strategies    []string `toml:"strategies"`
		Channel       string   `toml:"channel"`
		NatsURL       string   `toml:"nats_url"`
		SubjectPrefix string   `toml:"subject_prefix"`
		Bucket        string   `toml:"bucket"`
		Dir           string   `toml:"dir"`
		LingerMs      int64    `toml:"linger_ms"`
	} `toml:"bus"`
}

// Load reads the file at path (skipped when empty), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv loads the file named by TABSYNC_CONFIG, if any.
func FromEnv() (Config, error) {
	return Load(getEnv("TABSYNC_CONFIG", ""))
}

func (c *Config) decodeFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	if meta.IsDefined("enabled") {
		c.Enabled = raw.Enabled
	}
	if meta.IsDefined("request_timeout_ms") {
		c.RequestTimeout = time.Duration(raw.RequestTimeoutMs) * time.Millisecond
	}
	if meta.IsDefined("heartbeat_interval_ms") {
		c.HeartbeatInterval = time.Duration(raw.HeartbeatIntervalMs) * time.Millisecond
	}
	if meta.IsDefined("cleanup_interval_ms") {
		c.CleanupInterval = time.Duration(raw.CleanupIntervalMs) * time.Millisecond
	}
	if meta.IsDefined("log_level") {
		if err := c.LogLevel.UnmarshalText([]byte(strings.TrimSpace(raw.LogLevel))); err != nil {
			return fmt.Errorf("%w: log_level: %w", ErrInvalid, err)
		}
	}
	if meta.IsDefined("metrics_addr") {
		c.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("bus", "strategies") {
		c.Bus.Strategies = trimAll(raw.Bus.Strategies)
	}
	if meta.IsDefined("bus", "channel") {
		c.Bus.Channel = strings.TrimSpace(raw.Bus.Channel)
	}
	if meta.IsDefined("bus", "nats_url") {
		c.Bus.NatsURL = strings.TrimSpace(raw.Bus.NatsURL)
	}
	if meta.IsDefined("bus", "subject_prefix") {
		c.Bus.SubjectPrefix = strings.TrimSpace(raw.Bus.SubjectPrefix)
	}
	if meta.IsDefined("bus", "bucket") {
		c.Bus.Bucket = strings.TrimSpace(raw.Bus.Bucket)
	}
	if meta.IsDefined("bus", "dir") {
		c.Bus.Dir = strings.TrimSpace(raw.Bus.Dir)
	}
	if meta.IsDefined("bus", "linger_ms") {
		c.Bus.Linger = time.Duration(raw.Bus.LingerMs) * time.Millisecond
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Enabled = getEnvBool("TABSYNC_ENABLED", c.Enabled)
	c.RequestTimeout = getEnvMillis("TABSYNC_REQUEST_TIMEOUT_MS", c.RequestTimeout)
	c.HeartbeatInterval = getEnvMillis("TABSYNC_HEARTBEAT_INTERVAL_MS", c.HeartbeatInterval)
	c.CleanupInterval = getEnvMillis("TABSYNC_CLEANUP_INTERVAL_MS", c.CleanupInterval)
	if v := getEnv("TABSYNC_LOG_LEVEL", ""); v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%w: TABSYNC_LOG_LEVEL: %w", ErrInvalid, err)
		}
	}
	c.MetricsAddr = getEnv("TABSYNC_METRICS_ADDR", c.MetricsAddr)

	if v := getEnv("TABSYNC_BUS_STRATEGIES", ""); v != "" {
		c.Bus.Strategies = trimAll(strings.Split(v, ","))
	}
	c.Bus.Channel = getEnv("TABSYNC_BUS_CHANNEL", c.Bus.Channel)
	c.Bus.NatsURL = getEnv("NATS_URL", c.Bus.NatsURL)
	c.Bus.NatsURL = getEnv("TABSYNC_NATS_URL", c.Bus.NatsURL)
	c.Bus.SubjectPrefix = getEnv("TABSYNC_BUS_SUBJECT_PREFIX", c.Bus.SubjectPrefix)
	c.Bus.Bucket = getEnv("TABSYNC_BUS_BUCKET", c.Bus.Bucket)
	c.Bus.Dir = getEnv("TABSYNC_BUS_DIR", c.Bus.Dir)
	c.Bus.Linger = getEnvMillis("TABSYNC_BUS_LINGER_MS", c.Bus.Linger)
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeat interval must be positive"))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, errors.New("cleanup interval must be positive"))
	}
	if c.Bus.Linger < 0 {
		errs = append(errs, errors.New("bus linger must not be negative"))
	}
	for _, s := range c.Bus.Strategies {
		switch s {
		case StrategyMemory, StrategyNats, StrategyNatsKV:
		case StrategyFS:
			if c.Bus.Dir == "" {
				errs = append(errs, errors.New("bus strategy fs requires bus.dir"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown bus strategy %q", s))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// CoordOptions converts the config into coordinator options. ID, Bus,
// Strategies and Metrics are left to the caller.
func (c Config) CoordOptions(log *slog.Logger) coord.Options {
	return coord.Options{
		Disabled:          !c.Enabled,
		RequestTimeout:    c.RequestTimeout,
		HeartbeatInterval: c.HeartbeatInterval,
		CleanupInterval:   c.CleanupInterval,
		Log:               log,
	}
}

// Connector returns the NATS connector for the configured URL.
func (c Config) Connector() natsadapter.Connector {
	if c.Bus.NatsURL == "" {
		return natsadapter.ConnectDefault()
	}
	return natsadapter.ConnectURL(c.Bus.NatsURL)
}

// Strategies builds the configured bus strategies in order. hub serves the
// memory strategy and may be nil when it is not configured.
func (c Config) Strategies(hub *bus.MemoryHub, connect natsadapter.Connector, log *slog.Logger) ([]bus.Strategy, error) {
	out := make([]bus.Strategy, 0, len(c.Bus.Strategies))
	for _, name := range c.Bus.Strategies {
		switch name {
		case StrategyMemory:
			if hub == nil {
				return nil, fmt.Errorf("%w: bus strategy memory needs an in-process hub", ErrInvalid)
			}
			out = append(out, hub.Strategy(c.Bus.Channel))
		case StrategyNats:
			out = append(out, natsadapter.ChannelStrategy(natsadapter.ChannelConfig{
				Connect:       connect,
				Log:           log,
				SubjectPrefix: c.Bus.SubjectPrefix,
				Name:          c.Bus.Channel,
			}))
		case StrategyNatsKV:
			out = append(out, natsadapter.StorageStrategy(natsadapter.KVConfig{
				Connect: connect,
				Bucket:  c.Bus.Bucket,
				Log:     log,
			}, c.Bus.Channel, c.Bus.Linger))
		case StrategyFS:
			out = append(out, fsstore.StorageStrategy(fsstore.Options{Dir: c.Bus.Dir, Log: log}, c.Bus.Channel, c.Bus.Linger))
		default:
			return nil, fmt.Errorf("%w: unknown bus strategy %q", ErrInvalid, name)
		}
	}
	return out, nil
}

// Logger returns a text logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch v {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	v, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(v) * time.Millisecond
}
