package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/twinport/internal/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "02:00:00:00:00:01", cfg.Bridge.HostMAC)
	assert.True(t, cfg.Bridge.Promiscuous)
	assert.Equal(t, 256, cfg.Bridge.TableSize)
	assert.Equal(t, 5*time.Minute, cfg.Bridge.AgingTime)

	assert.Equal(t, 256, cfg.TX.QueueSize)
	assert.Equal(t, 3, cfg.TX.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.TX.Watchdog)

	assert.Equal(t, 10*time.Millisecond, cfg.RX.PollInterval)
	assert.Equal(t, time.Second, cfg.Monitor.Interval)

	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "text", cfg.Log.Format)

	assert.Equal(t, core.MAC{0x02, 0, 0, 0, 0, 0x01}, cfg.HostMAC())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twinport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bridge:
  host_mac: "02:aa:bb:cc:dd:ee"
  table_size: 64
tx:
  watchdog: 2s
log:
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "02:aa:bb:cc:dd:ee", cfg.Bridge.HostMAC)
	assert.Equal(t, 64, cfg.Bridge.TableSize)
	assert.Equal(t, 2*time.Second, cfg.TX.Watchdog)
	assert.Equal(t, "json", cfg.Log.Format)

	// Untouched keys keep their defaults.
	assert.Equal(t, 256, cfg.TX.QueueSize)
	assert.Equal(t, 5*time.Minute, cfg.Bridge.AgingTime)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	base := func() *GlobalConfig {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*GlobalConfig)
	}{
		{"bad host mac", func(c *GlobalConfig) { c.Bridge.HostMAC = "not-a-mac" }},
		{"zero table size", func(c *GlobalConfig) { c.Bridge.TableSize = 0 }},
		{"zero aging", func(c *GlobalConfig) { c.Bridge.AgingTime = 0 }},
		{"zero queue", func(c *GlobalConfig) { c.TX.QueueSize = 0 }},
		{"zero watchdog", func(c *GlobalConfig) { c.TX.Watchdog = 0 }},
		{"inverted backoff", func(c *GlobalConfig) {
			c.TX.BackoffMin = time.Second
			c.TX.BackoffMax = time.Millisecond
		}},
		{"bad log format", func(c *GlobalConfig) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrConfigInvalid))
		})
	}
}
