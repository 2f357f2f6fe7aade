package ports

import (
	"context"

	"rtsview/internal/core/domain"
)

// TransportListener receives the raw transport callbacks. Implementations
// must tolerate calls from any goroutine.
type TransportListener interface {
	OnConnected()
	OnConnectionError(status int, reason string)
	OnDisconnected()
	OnSubscribed()
	OnSubscribedError(reason string)
	OnSignalingError(message string)
	OnStopped()
	OnActive(streamID string, tracks []string, sourceID string)
	OnInactive(streamID string, sourceID string)
	OnVideoTrack(track domain.VideoTrack, mid string)
	OnAudioTrack(track domain.AudioTrack, mid string)
	OnLayers(mid string, activeLayers, inactiveLayers []domain.LayerData)
	OnStatsReport(report domain.StatsReport)
	OnViewerCount(count int)
}

// Transport is the signaling and media client the core sequences calls to.
type Transport interface {
	SetListener(listener TransportListener)
	Connect(ctx context.Context, creds domain.Credentials, cfg domain.SubscriptionConfig) error
	Subscribe(ctx context.Context) error
	Unsubscribe(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	IsSubscribed() bool
	EnableStats(enabled bool)
	AddRemoteTrack(ctx context.Context, media domain.MediaType) error
	Project(ctx context.Context, sourceID domain.SourceID, data []domain.ProjectionData) error
	Unproject(ctx context.Context, mids []string) error
}

// TransportFactory creates a fresh transport for every connection attempt.
type TransportFactory func() Transport
