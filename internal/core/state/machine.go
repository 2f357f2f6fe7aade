package state

import (
	"rtsview/internal/core/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Machine owns the lifecycle state. It is not safe for concurrent use; the
// orchestrator applies every event from a single goroutine.
type Machine struct {
	current      State
	requireAudio bool
	logger       *zap.SugaredLogger

	onStateChange func(from, to State)
	onDropped     func(event string, in State)
}

func NewMachine(logger *zap.SugaredLogger) *Machine {
	return &Machine{
		current:      Disconnected(),
		requireAudio: true,
		logger:       logger,
	}
}

// OnStateChange sets a callback invoked after every applied transition,
// including in-place updates of the Subscribed payload.
func (m *Machine) OnStateChange(fn func(from, to State)) {
	m.onStateChange = fn
}

// OnDropped sets a callback invoked for events that are illegal in the
// current state.
func (m *Machine) OnDropped(fn func(event string, in State)) {
	m.onDropped = fn
}

func (m *Machine) Current() State { return m.current }

func (m *Machine) set(next State) {
	prev := m.current
	m.current = next
	if prev.kind != next.kind {
		m.logger.Debugw("state transition", "from", prev.kind, "to", next.kind)
	}
	if m.onStateChange != nil {
		m.onStateChange(prev, next)
	}
}

func (m *Machine) drop(event string) {
	m.logger.Warnw("unexpected state for event", "event", event, "state", m.current.kind)
	if m.onDropped != nil {
		m.onDropped(event, m.current)
	}
}

func (m *Machine) in(kinds ...Kind) bool {
	for _, k := range kinds {
		if m.current.kind == k {
			return true
		}
	}
	return false
}

// StartConnection moves to Connecting. cfg decides whether sources need
// their audio tracks bound before they become visible.
func (m *Machine) StartConnection(cfg domain.SubscriptionConfig) bool {
	if !m.in(KindDisconnected, KindError, KindStopped) {
		m.drop("start_connection")
		return false
	}
	m.requireAudio = !cfg.DisableAudio
	m.set(Connecting())
	return true
}

func (m *Machine) OnConnected() bool {
	if !m.in(KindConnecting) {
		m.drop("connected")
		return false
	}
	m.set(Connected())
	return true
}

func (m *Machine) StartSubscribe() bool {
	if !m.in(KindConnected) {
		m.drop("start_subscribe")
		return false
	}
	m.set(Subscribing())
	return true
}

func (m *Machine) OnSubscribed() bool {
	switch m.current.kind {
	case KindSubscribing:
		m.set(Subscribed(NewSubscriptionState(m.requireAudio)))
		return true
	case KindSubscribed:
		m.logger.Debugw("already subscribed")
		return true
	default:
		m.drop("subscribed")
		return false
	}
}

func (m *Machine) OnConnectionError(status int, reason string) {
	m.set(Errored(*domain.NewConnectFailed(status, reason)))
}

func (m *Machine) OnSubscribedError(reason string) bool {
	if !m.in(KindConnecting, KindConnected, KindSubscribing, KindSubscribed) {
		m.drop("subscribe_error")
		return false
	}
	m.set(Errored(*domain.NewSubscribeFailed(reason)))
	return true
}

func (m *Machine) OnSignalingError(message string) bool {
	if !m.in(KindConnecting, KindConnected, KindSubscribing, KindSubscribed) {
		m.drop("signaling_error")
		return false
	}
	m.set(Errored(*domain.NewSignalingError(message)))
	return true
}

func (m *Machine) OnDisconnected() {
	m.set(Disconnected())
}

func (m *Machine) OnStopped() {
	m.set(Stopped())
}

// StopSubscribe is the user initiated stop. It discards the subscription.
func (m *Machine) StopSubscribe() {
	m.set(Disconnected())
}

func (m *Machine) mutate(event string, fn func(s *SubscriptionState) bool) bool {
	sub, ok := m.current.Subscription()
	if !ok {
		m.drop(event)
		return false
	}
	next := sub.clone()
	if !fn(next) {
		return false
	}
	m.set(Subscribed(next))
	return true
}

// OnActive adds a builder for the source. It returns false when the event was
// dropped or the source is already live.
func (m *Machine) OnActive(streamID string, sourceID domain.SourceID, tracks []domain.TrackItem) bool {
	return m.mutate("active", func(s *SubscriptionState) bool {
		if !s.add(streamID, sourceID, tracks) {
			m.logger.Debugw("source already active", "source_id", sourceID)
			return false
		}
		return true
	})
}

// OnInactive removes the source. The subscription stops once no source is left.
func (m *Machine) OnInactive(streamID string, sourceID domain.SourceID) bool {
	sub, ok := m.current.Subscription()
	if !ok {
		m.drop("inactive")
		return false
	}
	next := sub.clone()
	removed := next.remove(streamID, sourceID)
	if next.BuilderCount() == 0 {
		m.set(Stopped())
		return true
	}
	if removed {
		m.set(Subscribed(next))
	}
	return removed
}

// OnVideoTrack binds the track to the first source waiting for video. It
// returns true when the mid is bound afterwards; false means nothing was
// waiting and the caller should keep the track for later.
func (m *Machine) OnVideoTrack(track domain.VideoTrack, mid string) bool {
	if sub, ok := m.current.Subscription(); ok && sub.hasMid(mid) {
		return true
	}
	return m.mutate("video_track", func(s *SubscriptionState) bool {
		return s.bindVideo(track, mid)
	})
}

// OnAudioTrack is the audio counterpart of OnVideoTrack.
func (m *Machine) OnAudioTrack(track domain.AudioTrack, mid string) bool {
	if sub, ok := m.current.Subscription(); ok && sub.hasMid(mid) {
		return true
	}
	return m.mutate("audio_track", func(s *SubscriptionState) bool {
		return s.bindAudio(track, mid)
	})
}

func (m *Machine) OnLayers(mid string, active, inactive []domain.LayerData) bool {
	qualities := domain.DeriveQualities(active)
	return m.mutate("layers", func(s *SubscriptionState) bool {
		if !s.setQualities(mid, qualities) {
			m.logger.Debugw("layers for unknown mid", "mid", mid, "inactive", len(inactive))
			return false
		}
		return true
	})
}

func (m *Machine) OnStatsReport(stats domain.StreamingStatistics) bool {
	return m.mutate("stats", func(s *SubscriptionState) bool {
		s.setStats(stats)
		return true
	})
}

func (m *Machine) OnViewerCount(count int) bool {
	return m.mutate("viewer_count", func(s *SubscriptionState) bool {
		if s.viewerCount == count {
			return false
		}
		s.viewerCount = count
		return true
	})
}

func (m *Machine) SetPlayingAudio(id uuid.UUID, enabled bool) bool {
	return m.mutate("set_playing_audio", func(s *SubscriptionState) bool {
		b := s.find(id)
		if b == nil {
			return false
		}
		b.SetPlayingAudio(enabled)
		return true
	})
}

func (m *Machine) SetPlayingVideo(id uuid.UUID, enabled bool) bool {
	return m.mutate("set_playing_video", func(s *SubscriptionState) bool {
		b := s.find(id)
		if b == nil {
			return false
		}
		b.SetPlayingVideo(enabled)
		return true
	})
}

func (m *Machine) SelectVideoQuality(id uuid.UUID, q domain.VideoQuality) bool {
	return m.mutate("select_video_quality", func(s *SubscriptionState) bool {
		b := s.find(id)
		if b == nil {
			return false
		}
		b.SelectQuality(q)
		return true
	})
}
