package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Reconnect.Interval)
	assert.True(t, cfg.Subscription.StatsEnabled)
	assert.True(t, cfg.Subscription.ForcePlayoutDelay)
	assert.Equal(t, DefaultDirectorURL, cfg.Subscription.DirectorURL)
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"pong not after ping", func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval }},
		{"relative director url", func(c *Config) { c.Subscription.DirectorURL = "/api/director" }},
		{"stats without interval", func(c *Config) { c.Subscription.StatsInterval = 0 }},
		{"negative jitter delay", func(c *Config) { c.Subscription.JitterMinimumDelay = -time.Millisecond }},
		{"zero director timeout", func(c *Config) { c.Director.Timeout = 0 }},
		{"negative breaker threshold", func(c *Config) { c.Director.BreakerThreshold = -1 }},
		{"reconnect without interval", func(c *Config) { c.Reconnect.Interval = 0 }},
		{"zero queue", func(c *Config) { c.Orchestrator.QueueSize = 0 }},
		{"half port range", func(c *Config) { c.WebRTC.PortRange.Min = 5000 }},
		{"inverted port range", func(c *Config) {
			c.WebRTC.PortRange.Min = 6000
			c.WebRTC.PortRange.Max = 5000
		}},
		{"reachability without interval", func(c *Config) {
			c.Monitoring.ReachabilityURL = "https://example.com"
			c.Monitoring.ReachabilityInterval = 0
		}},
		{"tracing sample rate", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 2
		}},
		{"redis without channel", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Channel = ""
		}},
		{"http rps must be > 0", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.RequestsPerSecond = 0
		}},
		{"ws max concurrent must be >= 0", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.WebSocket.MaxConcurrent = -1
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_DisabledSectionsIgnoreZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reconnect.Enabled = false
	cfg.Reconnect.Interval = 0
	cfg.Subscription.StatsEnabled = false
	cfg.Subscription.StatsInterval = 0
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0

	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Address)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte(`
subscription:
  stream_name: live
  account_id: acc
  disable_audio: true
reconnect:
  interval: 2s
`)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "live", cfg.Subscription.StreamName)
		assert.Equal(t, "acc", cfg.Subscription.AccountID)
		assert.True(t, cfg.Subscription.DisableAudio)
		assert.Equal(t, 2*time.Second, cfg.Reconnect.Interval)
		assert.True(t, cfg.Subscription.StatsEnabled, "untouched defaults survive")
	})

	t.Run("env overrides yaml", func(t *testing.T) {
		t.Setenv("RTSVIEW_STREAM_NAME", "from-env")
		t.Setenv("RTSVIEW_RECONNECT_ENABLED", "false")

		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Subscription.StreamName)
		assert.False(t, cfg.Reconnect.Enabled)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})
}
