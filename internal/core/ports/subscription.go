package ports

import (
	"context"
	"time"

	"rtsview/internal/core/domain"
)

// EventHandler consumes normalized transport events.
type EventHandler interface {
	HandleEvent(event domain.Event)
}

type SubscriptionManager interface {
	SetEventHandler(handler EventHandler)
	Connect(ctx context.Context, detail domain.StreamDetail, cfg domain.SubscriptionConfig) error
	StartSubscribe(ctx context.Context) error
	StopSubscribe(ctx context.Context) error
	AddRemoteTrack(ctx context.Context, tracks []domain.TrackItem)
	ProjectVideo(ctx context.Context, source domain.StreamSource, quality domain.VideoQuality)
	UnprojectVideo(ctx context.Context, source domain.StreamSource)
	ProjectAudio(ctx context.Context, source domain.StreamSource)
	UnprojectAudio(ctx context.Context, source domain.StreamSource)
}

type RendererRegistry interface {
	NewRendererID() domain.RendererID
	Register(renderer domain.RendererID, trackKey string, quality domain.VideoQuality)
	Deregister(renderer domain.RendererID)
	HasActiveRenderer(trackKey string) bool
	RequestedQuality(trackKey string) domain.VideoQuality
	Reset()
}

// TaskScheduler holds at most one pending task.
type TaskScheduler interface {
	Schedule(after time.Duration, task func()) bool
	Invalidate()
	Pending() bool
}

// NetworkMonitor reports reachability changes.
type NetworkMonitor interface {
	Start(ctx context.Context, onChange func(reachable bool))
	Stop()
}

// SessionMetrics records orchestrator activity.
type SessionMetrics interface {
	RecordTransition(from, to string)
	RecordDroppedEvent(event, state string)
	RecordReconnectAttempt()
	RecordProjection(media domain.MediaType, project bool)
	SetVisibleSources(n int)
	SetViewerCount(n int)
}
