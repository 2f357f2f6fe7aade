package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const DefaultDirectorURL = "https://director.millicast.com/api/director/subscribe"

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// APIToken protects the control API. Empty leaves it open.
		APIToken        string        `yaml:"api_token,omitempty"`
	} `yaml:"server"`

	Signal struct {
		PingInterval        time.Duration `yaml:"ping_interval"`
		PongTimeout         time.Duration `yaml:"pong_timeout"`
		WriteTimeout        time.Duration `yaml:"write_timeout"`
		CommandTimeout      time.Duration `yaml:"command_timeout"`
		MaxMessageSizeBytes int64         `yaml:"max_message_size_bytes"`
	} `yaml:"signal"`

	Subscription struct {
		DirectorURL        string        `yaml:"director_url"`
		StreamName         string        `yaml:"stream_name"`
		AccountID          string        `yaml:"account_id"`
		Token              string        `yaml:"token,omitempty"`
		DisableAudio       bool          `yaml:"disable_audio"`
		StatsEnabled       bool          `yaml:"stats_enabled"`
		StatsInterval      time.Duration `yaml:"stats_interval"`
		ForcePlayoutDelay  bool          `yaml:"force_playout_delay"`
		JitterMinimumDelay time.Duration `yaml:"jitter_minimum_delay"`
		TransportLogLevel  string        `yaml:"transport_log_level"`
	} `yaml:"subscription"`

	Director struct {
		Timeout            time.Duration `yaml:"timeout"`
		// Consecutive failed lookups before further lookups fail fast.
		BreakerThreshold   int           `yaml:"breaker_threshold"`
		BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout"`
	} `yaml:"director"`

	Reconnect struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"reconnect"`

	Orchestrator struct {
		QueueSize     int `yaml:"queue_size"`
		CallQueueSize int `yaml:"call_queue_size"`
	} `yaml:"orchestrator"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Monitoring struct {
		PrometheusEnabled    bool          `yaml:"prometheus_enabled"`
		ReachabilityURL      string        `yaml:"reachability_url"`
		ReachabilityInterval time.Duration `yaml:"reachability_interval"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int `yaml:"connections_per_minute"`
			MaxConcurrent        int `yaml:"max_concurrent_connections"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.CommandTimeout <= 0 {
		return fmt.Errorf("signal.command_timeout must be > 0")
	}
	if c.Signal.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("signal.max_message_size_bytes must be >= 0")
	}

	// Subscription
	if u, err := url.Parse(c.Subscription.DirectorURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("subscription.director_url must be an absolute URL")
	}
	if c.Subscription.StatsEnabled && c.Subscription.StatsInterval <= 0 {
		return fmt.Errorf("subscription.stats_interval must be > 0 when stats_enabled=true")
	}
	if c.Subscription.JitterMinimumDelay < 0 {
		return fmt.Errorf("subscription.jitter_minimum_delay must be >= 0")
	}

	// Director
	if c.Director.Timeout <= 0 {
		return fmt.Errorf("director.timeout must be > 0")
	}
	if c.Director.BreakerThreshold < 0 {
		return fmt.Errorf("director.breaker_threshold must be >= 0")
	}

	// Reconnect
	if c.Reconnect.Enabled && c.Reconnect.Interval <= 0 {
		return fmt.Errorf("reconnect.interval must be > 0 when reconnect.enabled=true")
	}

	// Orchestrator
	if c.Orchestrator.QueueSize <= 0 {
		return fmt.Errorf("orchestrator.queue_size must be > 0")
	}
	if c.Orchestrator.CallQueueSize <= 0 {
		return fmt.Errorf("orchestrator.call_queue_size must be > 0")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	// Monitoring
	if c.Monitoring.ReachabilityURL != "" && c.Monitoring.ReachabilityInterval <= 0 {
		return fmt.Errorf("monitoring.reachability_interval must be > 0 when reachability_url is set")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.Channel == "" {
			return fmt.Errorf("redis.channel must not be empty when redis.enabled=true")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.CommandTimeout = 10 * time.Second
	cfg.Signal.MaxMessageSizeBytes = 1 << 20

	cfg.Subscription.DirectorURL = DefaultDirectorURL
	cfg.Subscription.StatsEnabled = true
	cfg.Subscription.StatsInterval = time.Second
	cfg.Subscription.ForcePlayoutDelay = true

	cfg.Director.Timeout = 10 * time.Second
	cfg.Director.BreakerThreshold = 5
	cfg.Director.BreakerOpenTimeout = 30 * time.Second

	cfg.Reconnect.Enabled = true
	cfg.Reconnect.Interval = 5 * time.Second

	cfg.Orchestrator.QueueSize = 256
	cfg.Orchestrator.CallQueueSize = 64

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.ReachabilityInterval = 5 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing.ServiceName = "rtsview"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.Channel = "rtsview:state"

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.HTTP.RequestsPerSecond = 20
	cfg.RateLimiting.HTTP.Burst = 40
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("RTSVIEW_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if token := os.Getenv("RTSVIEW_API_TOKEN"); token != "" {
		c.Server.APIToken = token
	}
	if level := os.Getenv("RTSVIEW_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if name := os.Getenv("RTSVIEW_STREAM_NAME"); name != "" {
		c.Subscription.StreamName = name
	}
	if id := os.Getenv("RTSVIEW_ACCOUNT_ID"); id != "" {
		c.Subscription.AccountID = id
	}
	if token := os.Getenv("RTSVIEW_TOKEN"); token != "" {
		c.Subscription.Token = token
	}
	if u := os.Getenv("RTSVIEW_DIRECTOR_URL"); u != "" {
		c.Subscription.DirectorURL = u
	}
	if addr := os.Getenv("RTSVIEW_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if v := os.Getenv("RTSVIEW_RECONNECT_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Reconnect.Enabled = enabled
		}
	}
}
