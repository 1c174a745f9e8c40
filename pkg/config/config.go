// Package config loads the agent's TOML configuration file, following
// the teacher's InitDefaults/Validate pattern (control/config/config.go):
// every sub-config knows how to fill in its own defaults and validate
// itself, and Config simply fans both out across its fields.
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/openr-go/openr/pkg/serrors"
)

// AreaConfig is one configured area (spec §2 Area Table).
type AreaConfig struct {
	AreaID              string   `toml:"area_id"`
	InterfaceRegexes    []string `toml:"interface_regexes"`
	RedistributeRegexes []string `toml:"redistribute_regexes"`
	KeyPrefixes         []string `toml:"key_prefixes,omitempty"`
}

// LinkMonitorConfig configures Link-Monitor's tunables (spec §4.2).
type LinkMonitorConfig struct {
	UseRTTMetric      bool          `toml:"use_rtt_metric"`
	AssumeDrained     bool          `toml:"assume_drained"`
	AdvertiseThrottle time.Duration `toml:"advertise_throttle"`
	StartupHold       time.Duration `toml:"startup_hold"`
	BackoffInitial    time.Duration `toml:"backoff_initial"`
	BackoffMax        time.Duration `toml:"backoff_max"`
	ConfigStorePath   string        `toml:"config_store_path"`
}

func (c *LinkMonitorConfig) InitDefaults() {
	if c.AdvertiseThrottle == 0 {
		c.AdvertiseThrottle = 500 * time.Millisecond
	}
	if c.StartupHold == 0 {
		c.StartupHold = 10 * time.Second
	}
	if c.BackoffInitial == 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 5 * time.Minute
	}
	if c.ConfigStorePath == "" {
		c.ConfigStorePath = "/var/lib/openr/link-monitor.db"
	}
}

func (c *LinkMonitorConfig) Validate() error {
	if c.BackoffInitial > c.BackoffMax {
		return serrors.New("backoff_initial cannot exceed backoff_max")
	}
	return nil
}

// DecisionConfig configures Decision's tunables (spec §4.4).
type DecisionConfig struct {
	DebounceWindow time.Duration `toml:"debounce_window"`
}

func (c *DecisionConfig) InitDefaults() {
	if c.DebounceWindow == 0 {
		c.DebounceWindow = 100 * time.Millisecond
	}
}

func (c *DecisionConfig) Validate() error { return nil }

// FibConfig configures Fib's tunables (spec §4.5).
type FibConfig struct {
	ResyncInterval time.Duration `toml:"resync_interval"`
	RetryMax       time.Duration `toml:"retry_max"`
}

func (c *FibConfig) InitDefaults() {
	if c.ResyncInterval == 0 {
		c.ResyncInterval = 2 * time.Minute
	}
	if c.RetryMax == 0 {
		c.RetryMax = 30 * time.Second
	}
}

func (c *FibConfig) Validate() error { return nil }

// LoggingConfig configures pkg/log's root logger.
type LoggingConfig struct {
	Development bool `toml:"development"`
}

func (c *LoggingConfig) InitDefaults() {}
func (c *LoggingConfig) Validate() error { return nil }

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

func (c *MetricsConfig) InitDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":20100"
	}
}
func (c *MetricsConfig) Validate() error { return nil }

// Config is the full agent configuration (spec §6).
type Config struct {
	NodeID  string             `toml:"node_id"`
	Areas   []AreaConfig       `toml:"areas"`
	LinkMon LinkMonitorConfig  `toml:"link_monitor,omitempty"`
	Decision DecisionConfig    `toml:"decision,omitempty"`
	Fib     FibConfig          `toml:"fib,omitempty"`
	Logging LoggingConfig      `toml:"log,omitempty"`
	Metrics MetricsConfig      `toml:"metrics,omitempty"`
}

type initDefaulter interface{ InitDefaults() }
type validator interface{ Validate() error }

// InitDefaults fills in every sub-config's defaults.
func (c *Config) InitDefaults() {
	for _, sub := range c.subConfigs() {
		sub.InitDefaults()
	}
}

// Validate checks NodeID/Areas and fans out to every sub-config's
// own Validate.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return serrors.New("node_id must be set")
	}
	if len(c.Areas) == 0 {
		return serrors.New("at least one area must be configured")
	}
	seen := make(map[string]struct{}, len(c.Areas))
	for _, a := range c.Areas {
		if a.AreaID == "" {
			return serrors.New("area_id must be set")
		}
		if _, dup := seen[a.AreaID]; dup {
			return serrors.New("duplicate area_id", "area", a.AreaID)
		}
		seen[a.AreaID] = struct{}{}
	}
	for _, sub := range c.subConfigs() {
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) subConfigs() []interface {
	initDefaulter
	validator
} {
	return []interface {
		initDefaulter
		validator
	}{&c.LinkMon, &c.Decision, &c.Fib, &c.Logging, &c.Metrics}
}

// Load reads and parses the TOML configuration file at path, then
// applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.Wrap("read config file", err, "path", path)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, serrors.Wrap("parse config file", err, "path", path)
	}
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, serrors.Wrap("validate config", err, "path", path)
	}
	return &cfg, nil
}
