package ports

import (
	"context"

	"rtsview/internal/core/domain"
)

// StreamViewer is the public surface of the stream orchestrator.
type StreamViewer interface {
	Connect(ctx context.Context, streamName, accountID string, cfg domain.SubscriptionConfig) error
	StopConnection(ctx context.Context) error
	PlayAudio(ctx context.Context, source domain.StreamSource) error
	StopAudio(ctx context.Context, source domain.StreamSource) error
	PlayVideo(ctx context.Context, source domain.StreamSource, renderer domain.RendererID, quality domain.VideoQuality) error
	StopVideo(ctx context.Context, source domain.StreamSource, renderer domain.RendererID) error
	SelectVideoQuality(ctx context.Context, source domain.StreamSource, quality domain.VideoQuality) error
	NewRendererID() domain.RendererID
	State() domain.StreamState
	Watch(ctx context.Context) <-chan domain.StreamState
}
