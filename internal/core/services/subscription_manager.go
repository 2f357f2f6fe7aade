package services

import (
	"context"
	"fmt"
	"sync"

	"rtsview/internal/core/domain"
	"rtsview/internal/core/ports"
	"rtsview/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SubscriptionManager sequences calls to a transport and turns its callbacks
// into domain events. A fresh transport is created for every Connect.
type SubscriptionManager struct {
	factory ports.TransportFactory
	logger  *zap.SugaredLogger
	apiURL  string
	token   string

	mu        sync.Mutex
	transport ports.Transport
	cfg       domain.SubscriptionConfig
	handler   ports.EventHandler
}

var _ ports.SubscriptionManager = (*SubscriptionManager)(nil)

type ManagerOption func(*SubscriptionManager)

// WithDirector overrides the director API URL and sets a subscriber token.
func WithDirector(apiURL, token string) ManagerOption {
	return func(m *SubscriptionManager) {
		m.apiURL = apiURL
		m.token = token
	}
}

func NewSubscriptionManager(factory ports.TransportFactory, logger *zap.SugaredLogger, opts ...ManagerOption) *SubscriptionManager {
	m := &SubscriptionManager{
		factory: factory,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SubscriptionManager) SetEventHandler(handler ports.EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

func (m *SubscriptionManager) current() ports.Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport
}

func (m *SubscriptionManager) Connect(ctx context.Context, detail domain.StreamDetail, cfg domain.SubscriptionConfig) error {
	if !detail.Valid() {
		m.logger.Warnw("invalid credentials passed to connect")
		return domain.ErrInvalidCredentials
	}

	ctx, span := tracing.StartSpan(ctx, "subscription.connect")
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		attribute.String("stream_name", detail.StreamName),
		attribute.String("account_id", detail.AccountID),
	)

	if m.current() != nil {
		if err := m.StopSubscribe(ctx); err != nil {
			m.logger.Warnw("failed to stop previous subscription", "error", err)
		}
	}

	transport := m.factory()
	transport.SetListener(&transportListener{manager: m, transport: transport})

	m.mu.Lock()
	m.transport = transport
	m.cfg = cfg
	m.mu.Unlock()

	if transport.IsConnected() || transport.IsSubscribed() {
		return domain.ErrAlreadyConnected
	}

	creds := domain.Credentials{
		StreamName: detail.StreamName,
		AccountID:  detail.AccountID,
		Token:      m.token,
		APIURL:     m.apiURL,
	}

	m.logger.Debugw("connecting", "stream_name", detail.StreamName, "account_id", detail.AccountID)
	if err := transport.Connect(ctx, creds, cfg); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (m *SubscriptionManager) StartSubscribe(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "subscription.subscribe")
	defer span.End()

	m.mu.Lock()
	transport, cfg := m.transport, m.cfg
	m.mu.Unlock()

	if transport == nil {
		return domain.ErrNoTransport
	}
	if !transport.IsConnected() {
		m.logger.Warnw("transport has not completed connect")
		return domain.ErrNotConnected
	}
	if transport.IsSubscribed() {
		return domain.ErrAlreadyConnected
	}

	if err := transport.Subscribe(ctx); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	transport.EnableStats(cfg.StatsEnabled)
	return nil
}

// StopSubscribe tears the transport down. Both steps are always attempted
// and the transport is released even when one of them fails.
func (m *SubscriptionManager) StopSubscribe(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "subscription.stop")
	defer span.End()

	m.mu.Lock()
	transport := m.transport
	m.transport = nil
	m.mu.Unlock()

	if transport == nil {
		return nil
	}
	transport.EnableStats(false)

	var err error
	if uerr := transport.Unsubscribe(ctx); uerr != nil {
		m.logger.Warnw("failed to unsubscribe", "error", uerr)
		err = multierr.Append(err, fmt.Errorf("failed to unsubscribe: %w", uerr))
	}
	if derr := transport.Disconnect(ctx); derr != nil {
		m.logger.Warnw("failed to disconnect", "error", derr)
		err = multierr.Append(err, fmt.Errorf("failed to disconnect: %w", derr))
	}
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

func (m *SubscriptionManager) AddRemoteTrack(ctx context.Context, tracks []domain.TrackItem) {
	transport := m.current()
	if transport == nil {
		return
	}
	for _, t := range tracks {
		if err := transport.AddRemoteTrack(ctx, t.MediaType); err != nil {
			m.logger.Warnw("failed to add remote track", "media", t.MediaType, "track_id", t.TrackID, "error", err)
		}
	}
}

func (m *SubscriptionManager) ProjectVideo(ctx context.Context, source domain.StreamSource, quality domain.VideoQuality) {
	transport := m.current()
	if transport == nil || source.VideoTrack == nil {
		return
	}

	video := source.VideoTrack
	data := domain.ProjectionData{
		Media:   domain.MediaVideo,
		Mid:     video.Mid,
		TrackID: video.TrackID,
		Layer:   quality.Layer,
	}
	m.logger.Debugw("project video", "source_id", source.SourceID, "mid", video.Mid, "quality", quality)
	if err := transport.Project(ctx, source.SourceID, []domain.ProjectionData{data}); err != nil {
		m.logger.Errorw("failed to project video", "source_id", source.SourceID, "error", err)
	}
}

func (m *SubscriptionManager) UnprojectVideo(ctx context.Context, source domain.StreamSource) {
	transport := m.current()
	if transport == nil || source.VideoTrack == nil {
		return
	}

	m.logger.Debugw("unproject video", "source_id", source.SourceID, "mid", source.VideoTrack.Mid)
	if err := transport.Unproject(ctx, []string{source.VideoTrack.Mid}); err != nil {
		m.logger.Errorw("failed to unproject video", "source_id", source.SourceID, "error", err)
	}
}

func (m *SubscriptionManager) ProjectAudio(ctx context.Context, source domain.StreamSource) {
	transport := m.current()
	if transport == nil || len(source.AudioTracks) == 0 {
		return
	}

	audio := source.AudioTracks[0]
	data := domain.ProjectionData{
		Media:   domain.MediaAudio,
		Mid:     audio.Mid,
		TrackID: audio.TrackID,
	}
	m.logger.Debugw("project audio", "source_id", source.SourceID, "mid", audio.Mid)
	if err := transport.Project(ctx, source.SourceID, []domain.ProjectionData{data}); err != nil {
		m.logger.Errorw("failed to project audio", "source_id", source.SourceID, "error", err)
		return
	}
	if audio.Track != nil {
		audio.Track.SetEnabled(true)
		audio.Track.SetVolume(1)
	}
}

func (m *SubscriptionManager) UnprojectAudio(ctx context.Context, source domain.StreamSource) {
	transport := m.current()
	if transport == nil || len(source.AudioTracks) == 0 {
		return
	}

	mids := make([]string, 0, len(source.AudioTracks))
	for _, a := range source.AudioTracks {
		mids = append(mids, a.Mid)
		if a.Track != nil {
			a.Track.SetEnabled(false)
		}
	}
	m.logger.Debugw("unproject audio", "source_id", source.SourceID, "mids", mids)
	if err := transport.Unproject(ctx, mids); err != nil {
		m.logger.Errorw("failed to unproject audio", "source_id", source.SourceID, "error", err)
	}
}

// emit forwards an event unless it comes from a transport that has since
// been replaced or released.
func (m *SubscriptionManager) emit(from ports.Transport, event domain.Event) {
	m.mu.Lock()
	handler, current := m.handler, m.transport
	m.mu.Unlock()

	if current != from {
		m.logger.Debugw("ignoring event from stale transport", "event", event.EventName())
		return
	}
	if handler != nil {
		handler.HandleEvent(event)
	}
}

type transportListener struct {
	manager   *SubscriptionManager
	transport ports.Transport
}

func (l *transportListener) OnConnected() {
	l.manager.emit(l.transport, domain.ConnectedEvent{})
}

func (l *transportListener) OnConnectionError(status int, reason string) {
	l.manager.emit(l.transport, domain.ConnectionErrorEvent{Status: status, Reason: reason})
}

func (l *transportListener) OnDisconnected() {
	l.manager.emit(l.transport, domain.DisconnectedEvent{})
}

func (l *transportListener) OnSubscribed() {
	l.manager.emit(l.transport, domain.SubscribedEvent{})
}

func (l *transportListener) OnSubscribedError(reason string) {
	l.manager.emit(l.transport, domain.SubscribeErrorEvent{Reason: reason})
}

func (l *transportListener) OnSignalingError(message string) {
	l.manager.emit(l.transport, domain.SignalingErrorEvent{Message: message})
}

func (l *transportListener) OnStopped() {
	l.manager.emit(l.transport, domain.StoppedEvent{})
}

func (l *transportListener) OnActive(streamID string, tracks []string, sourceID string) {
	l.manager.emit(l.transport, domain.ActiveEvent{
		StreamID: streamID,
		SourceID: domain.SourceID(sourceID),
		Tracks:   domain.ParseTrackItems(tracks),
	})
}

func (l *transportListener) OnInactive(streamID string, sourceID string) {
	l.manager.emit(l.transport, domain.InactiveEvent{StreamID: streamID, SourceID: domain.SourceID(sourceID)})
}

func (l *transportListener) OnVideoTrack(track domain.VideoTrack, mid string) {
	l.manager.emit(l.transport, domain.VideoTrackEvent{Track: track, Mid: mid})
}

func (l *transportListener) OnAudioTrack(track domain.AudioTrack, mid string) {
	l.manager.emit(l.transport, domain.AudioTrackEvent{Track: track, Mid: mid})
}

func (l *transportListener) OnLayers(mid string, activeLayers, inactiveLayers []domain.LayerData) {
	l.manager.emit(l.transport, domain.LayersEvent{Mid: mid, ActiveLayers: activeLayers, InactiveLayers: inactiveLayers})
}

func (l *transportListener) OnStatsReport(report domain.StatsReport) {
	stats, ok := domain.NormalizeStats(report)
	if !ok {
		return
	}
	l.manager.emit(l.transport, domain.StatsEvent{Stats: stats})
}

func (l *transportListener) OnViewerCount(count int) {
	l.manager.emit(l.transport, domain.ViewerCountEvent{Count: count})
}
