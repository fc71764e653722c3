// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/twinport/internal/core"
)

// GlobalConfig is the top-level static configuration.
type GlobalConfig struct {
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	TX      TxConfig      `mapstructure:"tx"`
	RX      RxConfig      `mapstructure:"rx"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Chip    ChipConfig    `mapstructure:"chip"`
	Sim     SimConfig     `mapstructure:"sim"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// BridgeConfig configures the forwarding engine and learning table.
type BridgeConfig struct {
	HostMAC     string        `mapstructure:"host_mac"`
	Promiscuous bool          `mapstructure:"promiscuous"` // host copy of flooded traffic
	TableSize   int           `mapstructure:"table_size"`
	AgingTime   time.Duration `mapstructure:"aging_time"`
}

// TxConfig configures the transmit path.
type TxConfig struct {
	QueueSize  int           `mapstructure:"queue_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	Watchdog   time.Duration `mapstructure:"watchdog"`
	BackoffMin time.Duration `mapstructure:"backoff_min"`
	BackoffMax time.Duration `mapstructure:"backoff_max"`
}

// RxConfig configures the receive path.
type RxConfig struct {
	// PollInterval is the timed-poll fallback used when the data-pending
	// signal source does not provide an interrupt-style waiter.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MonitorConfig configures the link/statistics monitor.
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ChipConfig points at the chip register-map profile.
type ChipConfig struct {
	// ProfilePath names a YAML register map; empty means the built-in
	// default profile.
	ProfilePath string `mapstructure:"profile_path"`
}

// SimConfig configures the built-in chip simulator used by `start --sim`.
type SimConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port1Listen string `mapstructure:"port1_listen"`
	Port1Peer   string `mapstructure:"port1_peer"`
	Port2Listen string `mapstructure:"port2_listen"`
	Port2Peer   string `mapstructure:"port2_peer"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level   string        `mapstructure:"level"`
	Format  string        `mapstructure:"format"` // json | text
	Outputs OutputsConfig `mapstructure:"outputs"`
}

// OutputsConfig lists log destinations; stdout is always included.
type OutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures the rotating file output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig maps to lumberjack settings.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Load reads configuration from path. An empty path yields pure defaults.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("TWINPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bridge.host_mac", "02:00:00:00:00:01")
	v.SetDefault("bridge.promiscuous", true)
	v.SetDefault("bridge.table_size", 256)
	v.SetDefault("bridge.aging_time", "5m")

	v.SetDefault("tx.queue_size", 256)
	v.SetDefault("tx.max_retries", 3)
	v.SetDefault("tx.watchdog", "5s")
	v.SetDefault("tx.backoff_min", "10ms")
	v.SetDefault("tx.backoff_max", "500ms")

	v.SetDefault("rx.poll_interval", "10ms")
	v.SetDefault("monitor.interval", "1s")

	v.SetDefault("sim.enabled", false)
	v.SetDefault("sim.port1_listen", "127.0.0.1:10001")
	v.SetDefault("sim.port1_peer", "127.0.0.1:11001")
	v.SetDefault("sim.port2_listen", "127.0.0.1:10002")
	v.SetDefault("sim.port2_peer", "127.0.0.1:11002")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9309")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks the configuration for internal consistency.
func (c *GlobalConfig) Validate() error {
	if _, err := core.ParseMAC(c.Bridge.HostMAC); err != nil {
		return fmt.Errorf("%w: bridge.host_mac %q: %v", core.ErrConfigInvalid, c.Bridge.HostMAC, err)
	}
	if c.Bridge.TableSize <= 0 {
		return fmt.Errorf("%w: bridge.table_size must be positive", core.ErrConfigInvalid)
	}
	if c.Bridge.AgingTime <= 0 {
		return fmt.Errorf("%w: bridge.aging_time must be positive", core.ErrConfigInvalid)
	}
	if c.TX.QueueSize <= 0 {
		return fmt.Errorf("%w: tx.queue_size must be positive", core.ErrConfigInvalid)
	}
	if c.TX.Watchdog <= 0 {
		return fmt.Errorf("%w: tx.watchdog must be positive", core.ErrConfigInvalid)
	}
	if c.TX.BackoffMin > c.TX.BackoffMax {
		return fmt.Errorf("%w: tx.backoff_min exceeds tx.backoff_max", core.ErrConfigInvalid)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log.format %q (must be json or text)", core.ErrConfigInvalid, c.Log.Format)
	}
	return nil
}

// HostMAC returns the parsed host address. Validate must have passed.
func (c *GlobalConfig) HostMAC() core.MAC {
	mac, _ := core.ParseMAC(c.Bridge.HostMAC)
	return mac
}
