package domain

import "time"

// Credentials identify the viewer to the stream director.
type Credentials struct {
	StreamName string
	AccountID  string
	Token      string
	APIURL     string
}

// SubscriptionConfig carries per-connection options.
type SubscriptionConfig struct {
	// DisableAudio makes audio tracks optional for a source to be complete.
	DisableAudio       bool
	StatsEnabled       bool
	ForcePlayoutDelay  bool
	JitterMinimumDelay time.Duration
	// TransportLogLevel sets the level transport library logs are
	// forwarded at. Empty disables forwarding.
	TransportLogLevel string
}

func DefaultSubscriptionConfig() SubscriptionConfig {
	return SubscriptionConfig{
		StatsEnabled:      true,
		ForcePlayoutDelay: true,
	}
}

// RendererID is a stable handle for a display surface.
type RendererID uint64
