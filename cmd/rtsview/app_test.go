package main

import (
	"context"
	"testing"
	"time"

	"rtsview/internal/core/domain"
	"rtsview/internal/core/ports"
	"rtsview/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WebRTC.ICEServers = append(cfg.WebRTC.ICEServers, struct {
		URLs       []string `yaml:"urls"`
		Username   string   `yaml:"username,omitempty"`
		Credential string   `yaml:"credential,omitempty"`
	}{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"})
	cfg.WebRTC.PortRange.Min = 50000
	cfg.WebRTC.PortRange.Max = 50100

	tc := transportConfig(cfg)

	require.Len(t, tc.ICEServers, 1)
	assert.Equal(t, []string{"turn:turn.example.com:3478"}, tc.ICEServers[0].URLs)
	assert.Equal(t, "u", tc.ICEServers[0].Username)
	assert.Equal(t, uint16(50000), tc.PortRange.Min)
	assert.Equal(t, uint16(50100), tc.PortRange.Max)
	assert.Equal(t, cfg.Signal.CommandTimeout, tc.Signal.CommandTimeout)
	assert.Equal(t, cfg.Subscription.StatsInterval, tc.StatsInterval)
}

func TestSubscriptionConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Subscription.DisableAudio = true
	cfg.Subscription.JitterMinimumDelay = 80 * time.Millisecond
	cfg.Subscription.TransportLogLevel = "warn"

	a := &app{cfg: cfg}
	sub := a.subscriptionConfig()

	assert.True(t, sub.DisableAudio)
	assert.True(t, sub.StatsEnabled)
	assert.True(t, sub.ForcePlayoutDelay)
	assert.Equal(t, 80*time.Millisecond, sub.JitterMinimumDelay)
	assert.Equal(t, "warn", sub.TransportLogLevel)
}

type connectOnlyViewer struct {
	ports.StreamViewer
	err error
}

func (v connectOnlyViewer) Connect(ctx context.Context, streamName, accountID string, cfg domain.SubscriptionConfig) error {
	return v.err
}

func TestNamedViewerRemembersStream(t *testing.T) {
	v := &namedViewer{StreamViewer: connectOnlyViewer{}}
	assert.Empty(t, v.streamName())

	require.NoError(t, v.Connect(context.Background(), "live", "acc", domain.SubscriptionConfig{}))
	assert.Equal(t, "live", v.streamName())

	v.StreamViewer = connectOnlyViewer{err: domain.ErrUnexpectedState}
	assert.ErrorIs(t, v.Connect(context.Background(), "other", "acc", domain.SubscriptionConfig{}), domain.ErrUnexpectedState)
	assert.Equal(t, "live", v.streamName())
}
